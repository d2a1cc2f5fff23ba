package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/clock"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

/*=================Test doubles======================*/

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, args ...any)            {}
func (nopLogger) Info(ctx context.Context, msg string, args ...any)             {}
func (nopLogger) Warn(ctx context.Context, msg string, args ...any)             {}
func (nopLogger) Error(ctx context.Context, msg string, err error, args ...any) {}
func (nopLogger) GetSlogLogger() *slog.Logger                                   { return slog.New(slog.DiscardHandler) }

type fakeTxManager struct {
	mu sync.Mutex
}

func (m *fakeTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

type fakeEmergencyRepo struct {
	emergencies map[uuid.UUID]*models.Emergency
}

func newFakeEmergencyRepo() *fakeEmergencyRepo {
	return &fakeEmergencyRepo{emergencies: make(map[uuid.UUID]*models.Emergency)}
}

func (r *fakeEmergencyRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Emergency, error) {
	e, ok := r.emergencies[id]
	if !ok {
		return nil, types.ErrEmergencyNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeEmergencyRepo) Update(ctx context.Context, e *models.Emergency) error {
	cur, ok := r.emergencies[e.ID]
	if !ok {
		return types.ErrEmergencyNotFound
	}
	if cur.Version != e.Version {
		return types.ErrOptimisticLockConflict
	}
	cp := *e
	cp.Version++
	r.emergencies[e.ID] = &cp
	e.Version++
	return nil
}

func (r *fakeEmergencyRepo) ListExpiredCreated(ctx context.Context, now time.Time) ([]*models.Emergency, error) {
	var out []*models.Emergency
	for _, e := range r.emergencies {
		if e.Status == types.EmergencyCreated && !e.ConfirmationDeadline.After(now) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeEmergencyRepo) ListByStatus(ctx context.Context, status types.EmergencyStatus) ([]*models.Emergency, error) {
	var out []*models.Emergency
	for _, e := range r.emergencies {
		if e.Status == status {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeAssignmentRepo struct {
	assignments map[uuid.UUID]*models.Assignment
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{assignments: make(map[uuid.UUID]*models.Assignment)}
}

func (r *fakeAssignmentRepo) GetActiveForUpdate(ctx context.Context, emergencyID uuid.UUID) (*models.Assignment, error) {
	return r.GetActive(ctx, emergencyID)
}

func (r *fakeAssignmentRepo) GetActive(ctx context.Context, emergencyID uuid.UUID) (*models.Assignment, error) {
	for _, a := range r.assignments {
		if a.EmergencyID == emergencyID && a.Status.IsActive() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, types.ErrAssignmentNotFound
}

func (r *fakeAssignmentRepo) Update(ctx context.Context, a *models.Assignment) error {
	cur, ok := r.assignments[a.ID]
	if !ok {
		return types.ErrAssignmentNotFound
	}
	if cur.Version != a.Version {
		return types.ErrOptimisticLockConflict
	}
	cp := *a
	cp.Version++
	r.assignments[a.ID] = &cp
	a.Version++
	return nil
}

func (r *fakeAssignmentRepo) ListExpiredAssigned(ctx context.Context, now time.Time) ([]*models.Assignment, error) {
	var out []*models.Assignment
	for _, a := range r.assignments {
		if a.Status == types.AssignmentAssigned && !a.RespondBy.After(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAssignmentRepo) HasActiveForVehicle(ctx context.Context, vehicleID uuid.UUID) (bool, error) {
	for _, a := range r.assignments {
		if a.VehicleID == vehicleID && a.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

type fakeVehicleRepo struct {
	vehicles map[uuid.UUID]*models.Vehicle
}

func newFakeVehicleRepo() *fakeVehicleRepo {
	return &fakeVehicleRepo{vehicles: make(map[uuid.UUID]*models.Vehicle)}
}

func (r *fakeVehicleRepo) Get(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	v, ok := r.vehicles[id]
	if !ok {
		return nil, types.ErrVehicleNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *fakeVehicleRepo) SetStatus(ctx context.Context, v *models.Vehicle, status types.VehicleStatus) error {
	cur, ok := r.vehicles[v.ID]
	if !ok {
		return types.ErrVehicleNotFound
	}
	if cur.Version != v.Version {
		return types.ErrOptimisticLockConflict
	}
	cur.Status = status
	cur.Version++
	v.Status = status
	v.Version++
	return nil
}

func (r *fakeVehicleRepo) ListByStatus(ctx context.Context, status types.VehicleStatus) ([]*models.Vehicle, error) {
	var out []*models.Vehicle
	for _, v := range r.vehicles {
		if v.Status == status {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeDispatcher struct {
	mu     sync.Mutex
	called []uuid.UUID
	err    error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, emergencyID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.called = append(d.called, emergencyID)
	return d.err
}

/*=================Readiness======================*/

func TestReadiness(t *testing.T) {
	r := NewReadiness()
	if r.IsReady() {
		t.Fatal("must start not ready")
	}
	r.MarkReady()
	if !r.IsReady() {
		t.Fatal("MarkReady must open the gate")
	}
	r.MarkNotReady()
	if r.IsReady() {
		t.Fatal("MarkNotReady must close the gate")
	}
}

/*=================Sweep runner======================*/

func TestRunOnce_SkipsOverlappingTick(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var runs int

	sweep := &Sweep{
		Name:   "slow",
		Period: time.Hour,
		Run: func(ctx context.Context) error {
			runs++
			close(started)
			<-release
			return nil
		},
	}
	s := New(nopLogger{}, sweep)

	done := make(chan struct{})
	go func() {
		s.runOnce(context.Background(), sweep)
		close(done)
	}()
	<-started

	// A tick arriving while the first run is in flight must be dropped.
	s.runOnce(context.Background(), sweep)
	close(release)
	<-done

	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
}

func TestRunOnce_ContainsPanic(t *testing.T) {
	sweep := &Sweep{
		Name:   "panicky",
		Period: time.Hour,
		Run: func(ctx context.Context) error {
			panic("boom")
		},
	}
	s := New(nopLogger{}, sweep)

	// Must not crash the caller, and the guard must be released for the
	// next tick.
	s.runOnce(context.Background(), sweep)
	s.runOnce(context.Background(), sweep)
}

/*=================Confirmation sweep======================*/

func TestConfirmationSweep_DispatchesOverdueCreated(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	emergencies := newFakeEmergencyRepo()
	dispatcher := &fakeDispatcher{}

	overdue := &models.Emergency{
		ID:                   uuid.New(),
		Status:               types.EmergencyCreated,
		ConfirmationDeadline: clk.Now().Add(-1 * time.Second),
		Version:              1,
	}
	pending := &models.Emergency{
		ID:                   uuid.New(),
		Status:               types.EmergencyCreated,
		ConfirmationDeadline: clk.Now().Add(50 * time.Second),
		Version:              1,
	}
	dispatched := &models.Emergency{
		ID:                   uuid.New(),
		Status:               types.EmergencyInProgress,
		ConfirmationDeadline: clk.Now().Add(-10 * time.Second),
		Version:              1,
	}
	emergencies.emergencies[overdue.ID] = overdue
	emergencies.emergencies[pending.ID] = pending
	emergencies.emergencies[dispatched.ID] = dispatched

	sweep := NewConfirmationSweep(10*time.Second, emergencies, dispatcher, clk, nopLogger{})
	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(dispatcher.called) != 1 || dispatcher.called[0] != overdue.ID {
		t.Fatalf("only the overdue CREATED emergency must be dispatched, got %v", dispatcher.called)
	}
}

func TestConfirmationSweep_NoDriversIsNotAnError(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	emergencies := newFakeEmergencyRepo()
	dispatcher := &fakeDispatcher{err: types.ErrNoDriversAvailable}

	e := &models.Emergency{
		ID:                   uuid.New(),
		Status:               types.EmergencyCreated,
		ConfirmationDeadline: clk.Now().Add(-1 * time.Second),
		Version:              1,
	}
	emergencies.emergencies[e.ID] = e

	sweep := NewConfirmationSweep(10*time.Second, emergencies, dispatcher, clk, nopLogger{})
	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("no-drivers must not fail the sweep: %v", err)
	}
}

/*=================Invariant repair======================*/

func TestInvariantRepair(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	emergencies := newFakeEmergencyRepo()
	assignments := newFakeAssignmentRepo()
	vehicles := newFakeVehicleRepo()

	// A held BUSY vehicle with its active assignment: untouched.
	heldVehicle := &models.Vehicle{ID: uuid.New(), Status: types.VehicleBusy, Version: 1}
	vehicles.vehicles[heldVehicle.ID] = heldVehicle
	coveredEmergency := &models.Emergency{ID: uuid.New(), Status: types.EmergencyInProgress, Version: 1}
	emergencies.emergencies[coveredEmergency.ID] = coveredEmergency
	active := &models.Assignment{
		ID:          uuid.New(),
		EmergencyID: coveredEmergency.ID,
		VehicleID:   heldVehicle.ID,
		Status:      types.AssignmentAssigned,
		RespondBy:   clk.Now().Add(time.Minute),
		Version:     1,
	}
	assignments.assignments[active.ID] = active

	// An orphaned BUSY vehicle: must be freed.
	orphanVehicle := &models.Vehicle{ID: uuid.New(), Status: types.VehicleBusy, Version: 1}
	vehicles.vehicles[orphanVehicle.ID] = orphanVehicle

	// An IN_PROGRESS emergency nobody is assigned to: must be parked.
	orphanEmergency := &models.Emergency{ID: uuid.New(), Status: types.EmergencyInProgress, Version: 1}
	emergencies.emergencies[orphanEmergency.ID] = orphanEmergency

	sweep := NewInvariantRepairSweep(time.Minute, emergencies, assignments, vehicles, &fakeTxManager{}, clk, nopLogger{})
	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if vehicles.vehicles[heldVehicle.ID].Status != types.VehicleBusy {
		t.Fatalf("held vehicle must stay BUSY")
	}
	if vehicles.vehicles[orphanVehicle.ID].Status != types.VehicleAvailable {
		t.Fatalf("orphaned vehicle must be freed")
	}
	if emergencies.emergencies[coveredEmergency.ID].Status != types.EmergencyInProgress {
		t.Fatalf("covered emergency must stay IN_PROGRESS")
	}
	if emergencies.emergencies[orphanEmergency.ID].Status != types.EmergencyUnassigned {
		t.Fatalf("orphaned emergency must be parked UNASSIGNED")
	}
}

/*=================Startup recovery======================*/

func TestRecovery_ExpiresLeftoverOffersAndOpensGate(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	emergencies := newFakeEmergencyRepo()
	assignments := newFakeAssignmentRepo()
	vehicles := newFakeVehicleRepo()
	readiness := NewReadiness()

	vehicle := &models.Vehicle{ID: uuid.New(), Status: types.VehicleBusy, Version: 1}
	vehicles.vehicles[vehicle.ID] = vehicle

	emergency := &models.Emergency{ID: uuid.New(), Status: types.EmergencyInProgress, Version: 1}
	emergencies.emergencies[emergency.ID] = emergency

	// An offer that expired while the process was down.
	stale := &models.Assignment{
		ID:          uuid.New(),
		EmergencyID: emergency.ID,
		VehicleID:   vehicle.ID,
		Status:      types.AssignmentAssigned,
		AssignedAt:  clk.Now().Add(-10 * time.Minute),
		RespondBy:   clk.Now().Add(-9 * time.Minute),
		Version:     1,
	}
	assignments.assignments[stale.ID] = stale

	// A BUSY vehicle whose assignment is long gone.
	orphan := &models.Vehicle{ID: uuid.New(), Status: types.VehicleBusy, Version: 1}
	vehicles.vehicles[orphan.ID] = orphan

	rec := NewRecovery(emergencies, assignments, vehicles, readiness, &fakeTxManager{}, clk, nopLogger{})

	if readiness.IsReady() {
		t.Fatal("gate must be closed before recovery")
	}
	if err := rec.Run(context.Background()); err != nil {
		t.Fatalf("recovery: %v", err)
	}

	if got := assignments.assignments[stale.ID].Status; got != types.AssignmentTimeout {
		t.Fatalf("leftover offer = %s, want TIMEOUT", got)
	}
	if assignments.assignments[stale.ID].TimedOutAt == nil {
		t.Fatalf("timed_out_at must be stamped")
	}
	if got := vehicles.vehicles[vehicle.ID].Status; got != types.VehicleAvailable {
		t.Fatalf("offer vehicle = %s, want AVAILABLE", got)
	}
	if got := vehicles.vehicles[orphan.ID].Status; got != types.VehicleAvailable {
		t.Fatalf("orphan vehicle = %s, want AVAILABLE", got)
	}
	if got := emergencies.emergencies[emergency.ID].Status; got != types.EmergencyUnassigned {
		t.Fatalf("emergency = %s, want UNASSIGNED for re-dispatch", got)
	}
	if !readiness.IsReady() {
		t.Fatal("gate must open after recovery")
	}
}

func TestRecovery_FreshOffersSurvive(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	emergencies := newFakeEmergencyRepo()
	assignments := newFakeAssignmentRepo()
	vehicles := newFakeVehicleRepo()
	readiness := NewReadiness()

	vehicle := &models.Vehicle{ID: uuid.New(), Status: types.VehicleBusy, Version: 1}
	vehicles.vehicles[vehicle.ID] = vehicle
	emergency := &models.Emergency{ID: uuid.New(), Status: types.EmergencyInProgress, Version: 1}
	emergencies.emergencies[emergency.ID] = emergency

	fresh := &models.Assignment{
		ID:          uuid.New(),
		EmergencyID: emergency.ID,
		VehicleID:   vehicle.ID,
		Status:      types.AssignmentAssigned,
		RespondBy:   clk.Now().Add(30 * time.Second),
		Version:     1,
	}
	assignments.assignments[fresh.ID] = fresh

	rec := NewRecovery(emergencies, assignments, vehicles, readiness, &fakeTxManager{}, clk, nopLogger{})
	if err := rec.Run(context.Background()); err != nil {
		t.Fatalf("recovery: %v", err)
	}

	if got := assignments.assignments[fresh.ID].Status; got != types.AssignmentAssigned {
		t.Fatalf("fresh offer must survive recovery, got %s", got)
	}
	if got := vehicles.vehicles[vehicle.ID].Status; got != types.VehicleBusy {
		t.Fatalf("held vehicle must stay BUSY, got %s", got)
	}
	if got := emergencies.emergencies[emergency.ID].Status; got != types.EmergencyInProgress {
		t.Fatalf("covered emergency must stay IN_PROGRESS, got %s", got)
	}
}
