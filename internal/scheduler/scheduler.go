package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/metrics"
)

// Sweep is one periodic reconciliation task. Sweeps are independent: there
// is no ordering between them, only the shared readiness gate.
type Sweep struct {
	Name   string
	Period time.Duration
	Run    func(ctx context.Context) error

	running atomic.Bool
}

// Scheduler drives a set of sweeps on their own tickers until the context
// is cancelled.
type Scheduler struct {
	sweeps []*Sweep
	l      logger.Logger
	wg     sync.WaitGroup
}

func New(l logger.Logger, sweeps ...*Sweep) *Scheduler {
	return &Scheduler{
		sweeps: sweeps,
		l:      l,
	}
}

// Start launches every sweep loop. It returns immediately; Wait blocks
// until all loops have drained after cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	for _, sweep := range s.sweeps {
		s.wg.Add(1)
		go s.loop(ctx, sweep)
	}
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sweep *Sweep) {
	defer s.wg.Done()

	ticker := time.NewTicker(sweep.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, sweep)
		}
	}
}

// runOnce executes a single sweep tick. A tick that finds the previous one
// still running is skipped, and a panic inside a sweep is contained to that
// tick.
func (s *Scheduler) runOnce(ctx context.Context, sweep *Sweep) {
	if !sweep.running.CompareAndSwap(false, true) {
		s.l.Debug(ctx, "sweep still running, tick skipped", "sweep", sweep.Name)
		return
	}
	defer sweep.running.Store(false)

	ctx = wrap.WithAction(ctx, types.ActionSweep)
	start := time.Now()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sweep panic: %v", r)
			}
		}()
		err = sweep.Run(ctx)
	}()

	metrics.RecordSweep(sweep.Name, err, time.Since(start))
	if err != nil {
		s.l.Error(ctx, "sweep run failed", err, "sweep", sweep.Name)
	}
}
