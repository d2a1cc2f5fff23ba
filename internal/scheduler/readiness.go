package scheduler

import "sync/atomic"

// Readiness gates dispatching on startup recovery. The service starts not
// ready, recovery flips it, and anything that hands out vehicles checks it
// first.
type Readiness struct {
	ready atomic.Bool
}

func NewReadiness() *Readiness {
	return &Readiness{}
}

func (r *Readiness) IsReady() bool {
	return r.ready.Load()
}

func (r *Readiness) MarkReady() {
	r.ready.Store(true)
}

func (r *Readiness) MarkNotReady() {
	r.ready.Store(false)
}
