package dispatch

import (
	"context"
	"errors"
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

// fakeTxManager serializes Do calls so concurrent callers behave like
// transactions contending on the same rows.
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

type fakeAssignmentRepo struct {
	assignments []*models.Assignment
}

func (r *fakeAssignmentRepo) Create(ctx context.Context, a *models.Assignment) (*models.Assignment, error) {
	a.ID = uuid.New()
	a.Version = 1
	cp := *a
	r.assignments = append(r.assignments, &cp)
	return a, nil
}

func (r *fakeAssignmentRepo) RejectedDriverIDs(ctx context.Context, emergencyID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, a := range r.assignments {
		if a.EmergencyID == emergencyID && a.Status == types.AssignmentRejected && a.DriverID != nil {
			ids = append(ids, *a.DriverID)
		}
	}
	return ids, nil
}

type fakeSessionRepo struct {
	sessions []*models.DriverSession
}

func (r *fakeSessionRepo) ListOnlineFresh(ctx context.Context, cutoff time.Time) ([]*models.DriverSession, error) {
	var out []*models.DriverSession
	for _, s := range r.sessions {
		if s.Status != types.SessionOnline || s.SessionEnd != nil {
			continue
		}
		if s.LastHeartbeat == nil || !s.LastHeartbeat.After(cutoff) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeSessionRepo) GetActiveByVehicle(ctx context.Context, vehicleID uuid.UUID) (*models.DriverSession, error) {
	for _, s := range r.sessions {
		if s.VehicleID == vehicleID && s.SessionEnd == nil {
			return s, nil
		}
	}
	return nil, types.ErrSessionNotFound
}

type fakeVehicleRepo struct {
	vehicles map[uuid.UUID]*models.Vehicle
	// conflictOnce makes the next SetStatus on the vehicle fail like a lost CAS.
	conflictOnce map[uuid.UUID]bool
}

func newFakeVehicleRepo() *fakeVehicleRepo {
	return &fakeVehicleRepo{
		vehicles:     make(map[uuid.UUID]*models.Vehicle),
		conflictOnce: make(map[uuid.UUID]bool),
	}
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
	if r.conflictOnce[v.ID] {
		delete(r.conflictOnce, v.ID)
		return types.ErrOptimisticLockConflict
	}
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

type fakeNotifier struct {
	offers []models.AssignmentOfferMessage
}

func (n *fakeNotifier) PublishAssignmentOffer(ctx context.Context, msg models.AssignmentOfferMessage) error {
	n.offers = append(n.offers, msg)
	return nil
}

type readyGate bool

func (g readyGate) IsReady() bool { return bool(g) }

/*=================Fixture======================*/

type engineFixture struct {
	engine      *Engine
	clock       *clock.Mock
	emergencies *fakeEmergencyRepo
	assignments *fakeAssignmentRepo
	sessions    *fakeSessionRepo
	vehicles    *fakeVehicleRepo
	notifier    *fakeNotifier
}

func newEngineFixture(t *testing.T, ready bool) *engineFixture {
	t.Helper()

	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := &engineFixture{
		clock:       clk,
		emergencies: newFakeEmergencyRepo(),
		assignments: &fakeAssignmentRepo{},
		sessions:    &fakeSessionRepo{},
		vehicles:    newFakeVehicleRepo(),
		notifier:    &fakeNotifier{},
	}
	f.engine = New(
		f.emergencies, f.assignments, f.sessions, f.vehicles,
		f.notifier, readyGate(ready), &fakeTxManager{}, clk,
		Config{ResponseWindow: 60 * time.Second, StaleThreshold: 30 * time.Second},
		nopLogger{},
	)
	return f
}

func (f *engineFixture) addEmergency(status types.EmergencyStatus, loc models.Location) *models.Emergency {
	e := &models.Emergency{
		ID:              uuid.New(),
		RequesterID:     uuid.New(),
		Location:        loc,
		Type:            types.TypeMedical,
		Severity:        types.SeverityHigh,
		Status:          status,
		CreatedAt:       f.clock.Now(),
		StatusUpdatedAt: f.clock.Now(),
		Version:         1,
	}
	f.emergencies.emergencies[e.ID] = e
	return e
}

func (f *engineFixture) addDriver(lat, lon float64) (*models.DriverSession, *models.Vehicle) {
	v := &models.Vehicle{
		ID:          uuid.New(),
		PlateNumber: "A 001 BC",
		Status:      types.VehicleAvailable,
		Version:     1,
	}
	f.vehicles.vehicles[v.ID] = v

	hb := f.clock.Now()
	s := &models.DriverSession{
		ID:            uuid.New(),
		DriverID:      uuid.New(),
		VehicleID:     v.ID,
		Status:        types.SessionOnline,
		SessionStart:  f.clock.Now(),
		LastLatitude:  &lat,
		LastLongitude: &lon,
		LastHeartbeat: &hb,
		Version:       1,
	}
	f.sessions.sessions = append(f.sessions.sessions, s)
	return s, v
}

/*=================Tests======================*/

func TestDispatch_PicksNearestDriver(t *testing.T) {
	f := newEngineFixture(t, true)
	e := f.addEmergency(types.EmergencyCreated, models.Location{Latitude: 43.24, Longitude: 76.91})

	_, farVehicle := f.addDriver(43.60, 76.50)
	nearSession, nearVehicle := f.addDriver(43.25, 76.92)
	f.addDriver(43.40, 76.70)

	if err := f.engine.Dispatch(context.Background(), e.ID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(f.assignments.assignments) != 1 {
		t.Fatalf("want 1 assignment, got %d", len(f.assignments.assignments))
	}
	a := f.assignments.assignments[0]
	if a.VehicleID != nearVehicle.ID {
		t.Fatalf("picked vehicle %s, want nearest %s", a.VehicleID, nearVehicle.ID)
	}
	if a.Status != types.AssignmentAssigned {
		t.Fatalf("assignment status = %s, want ASSIGNED", a.Status)
	}
	if wantRespondBy := f.clock.Now().Add(60 * time.Second); !a.RespondBy.Equal(wantRespondBy) {
		t.Fatalf("respond_by = %v, want %v", a.RespondBy, wantRespondBy)
	}

	if got := f.emergencies.emergencies[e.ID].Status; got != types.EmergencyInProgress {
		t.Fatalf("emergency status = %s, want IN_PROGRESS", got)
	}
	if got := f.vehicles.vehicles[nearVehicle.ID].Status; got != types.VehicleBusy {
		t.Fatalf("claimed vehicle status = %s, want BUSY", got)
	}
	if got := f.vehicles.vehicles[farVehicle.ID].Status; got != types.VehicleAvailable {
		t.Fatalf("unclaimed vehicle status = %s, want AVAILABLE", got)
	}

	if len(f.notifier.offers) != 1 || f.notifier.offers[0].DriverID != nearSession.DriverID {
		t.Fatalf("offer should go to the assigned driver")
	}
}

func TestDispatch_NoDrivers_LeavesEmergencyCreated(t *testing.T) {
	f := newEngineFixture(t, true)
	e := f.addEmergency(types.EmergencyCreated, models.Location{Latitude: 43.24, Longitude: 76.91})

	err := f.engine.Dispatch(context.Background(), e.ID)
	if !errors.Is(err, types.ErrNoDriversAvailable) {
		t.Fatalf("want ErrNoDriversAvailable, got %v", err)
	}
	if got := f.emergencies.emergencies[e.ID].Status; got != types.EmergencyCreated {
		t.Fatalf("emergency status = %s, want CREATED untouched", got)
	}
	if len(f.assignments.assignments) != 0 {
		t.Fatalf("no assignment should exist")
	}
}

func TestDispatch_NotReady(t *testing.T) {
	f := newEngineFixture(t, false)
	e := f.addEmergency(types.EmergencyCreated, models.Location{})
	f.addDriver(43.25, 76.92)

	if err := f.engine.Dispatch(context.Background(), e.ID); !errors.Is(err, types.ErrNotReady) {
		t.Fatalf("want ErrNotReady, got %v", err)
	}
}

func TestDispatch_StaleHeartbeatExcluded(t *testing.T) {
	f := newEngineFixture(t, true)
	e := f.addEmergency(types.EmergencyCreated, models.Location{Latitude: 43.24, Longitude: 76.91})

	s, _ := f.addDriver(43.24, 76.91)
	// Heartbeat exactly at the threshold counts as stale.
	old := f.clock.Now().Add(-30 * time.Second)
	s.LastHeartbeat = &old

	if err := f.engine.Dispatch(context.Background(), e.ID); !errors.Is(err, types.ErrNoDriversAvailable) {
		t.Fatalf("stale session must not be dispatched, got %v", err)
	}
}

func TestDispatch_NoLocationRanksLast(t *testing.T) {
	f := newEngineFixture(t, true)
	e := f.addEmergency(types.EmergencyCreated, models.Location{Latitude: 43.24, Longitude: 76.91})

	noLoc, _ := f.addDriver(0, 0)
	noLoc.LastLatitude = nil
	noLoc.LastLongitude = nil
	_, locatedVehicle := f.addDriver(44.00, 77.50)

	if err := f.engine.Dispatch(context.Background(), e.ID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := f.assignments.assignments[0].VehicleID; got != locatedVehicle.ID {
		t.Fatalf("driver without location must rank last, picked %s", got)
	}
}

func TestDispatch_NoLocationStillEligibleWhenAlone(t *testing.T) {
	f := newEngineFixture(t, true)
	e := f.addEmergency(types.EmergencyCreated, models.Location{Latitude: 43.24, Longitude: 76.91})

	noLoc, onlyVehicle := f.addDriver(0, 0)
	noLoc.LastLatitude = nil
	noLoc.LastLongitude = nil

	if err := f.engine.Dispatch(context.Background(), e.ID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := f.assignments.assignments[0].VehicleID; got != onlyVehicle.ID {
		t.Fatalf("lone driver without location must still be assigned")
	}
}

func TestDispatch_EqualDistance_FirstListedWins(t *testing.T) {
	f := newEngineFixture(t, true)
	e := f.addEmergency(types.EmergencyCreated, models.Location{Latitude: 43.24, Longitude: 76.91})

	_, firstVehicle := f.addDriver(43.25, 76.91)
	f.addDriver(43.25, 76.91)

	if err := f.engine.Dispatch(context.Background(), e.ID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := f.assignments.assignments[0].VehicleID; got != firstVehicle.ID {
		t.Fatalf("tie must resolve to the first listed session, got %s", got)
	}
}

func TestDispatch_VehicleClaimConflict_FallsBackToNext(t *testing.T) {
	f := newEngineFixture(t, true)
	e := f.addEmergency(types.EmergencyCreated, models.Location{Latitude: 43.24, Longitude: 76.91})

	_, nearVehicle := f.addDriver(43.25, 76.92)
	_, nextVehicle := f.addDriver(43.30, 76.95)
	f.vehicles.conflictOnce[nearVehicle.ID] = true

	if err := f.engine.Dispatch(context.Background(), e.ID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := f.assignments.assignments[0].VehicleID; got != nextVehicle.ID {
		t.Fatalf("lost claim must fall back to next nearest, got %s", got)
	}
}

func TestRedispatch_ExcludesRejectedDrivers(t *testing.T) {
	f := newEngineFixture(t, true)
	e := f.addEmergency(types.EmergencyInProgress, models.Location{Latitude: 43.24, Longitude: 76.91})

	rejector, rejVehicle := f.addDriver(43.24, 76.91) // nearest, but already said no
	_, otherVehicle := f.addDriver(43.50, 77.20)

	f.assignments.assignments = append(f.assignments.assignments, &models.Assignment{
		ID:          uuid.New(),
		EmergencyID: e.ID,
		VehicleID:   rejVehicle.ID,
		DriverID:    &rejector.DriverID,
		Status:      types.AssignmentRejected,
	})

	a, err := f.engine.Redispatch(context.Background(), e)
	if err != nil {
		t.Fatalf("Redispatch: %v", err)
	}
	if a.VehicleID != otherVehicle.ID {
		t.Fatalf("rejected driver must be excluded, picked %s", a.VehicleID)
	}
}

func TestRedispatch_FromUnassigned_RevivesEmergency(t *testing.T) {
	f := newEngineFixture(t, true)
	e := f.addEmergency(types.EmergencyUnassigned, models.Location{Latitude: 43.24, Longitude: 76.91})
	f.addDriver(43.25, 76.92)

	a, err := f.engine.Redispatch(context.Background(), e)
	if err != nil {
		t.Fatalf("Redispatch: %v", err)
	}
	if a.Status != types.AssignmentAssigned {
		t.Fatalf("assignment status = %s, want ASSIGNED", a.Status)
	}
	if e.Status != types.EmergencyInProgress {
		t.Fatalf("emergency must move back to IN_PROGRESS, got %s", e.Status)
	}
}

func TestRedispatch_NoDrivers(t *testing.T) {
	f := newEngineFixture(t, true)
	e := f.addEmergency(types.EmergencyInProgress, models.Location{Latitude: 43.24, Longitude: 76.91})

	if _, err := f.engine.Redispatch(context.Background(), e); !errors.Is(err, types.ErrNoDriversAvailable) {
		t.Fatalf("want ErrNoDriversAvailable, got %v", err)
	}
}
