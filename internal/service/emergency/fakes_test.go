package emergency

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/internal/service/dispatch"
	"github.com/aqylbek/ambulance-dispatch/internal/service/session"
	"github.com/aqylbek/ambulance-dispatch/pkg/clock"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

// The fixture wires the real dispatch engine and session service over shared
// in-memory fakes, so respond/timeout tests exercise the same interplay the
// production wiring has.

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

type readyGate struct{}

func (readyGate) IsReady() bool { return true }

/*=================Emergency store======================*/

type memEmergencyRepo struct {
	mu          sync.Mutex
	emergencies map[uuid.UUID]*models.Emergency
}

func newMemEmergencyRepo() *memEmergencyRepo {
	return &memEmergencyRepo{emergencies: make(map[uuid.UUID]*models.Emergency)}
}

func (r *memEmergencyRepo) Create(ctx context.Context, e *models.Emergency) (*models.Emergency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedAt = e.StatusUpdatedAt
	e.Version = 1
	cp := *e
	r.emergencies[e.ID] = &cp
	return e, nil
}

func (r *memEmergencyRepo) Get(ctx context.Context, id uuid.UUID) (*models.Emergency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.emergencies[id]
	if !ok {
		return nil, types.ErrEmergencyNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memEmergencyRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Emergency, error) {
	return r.Get(ctx, id)
}

func (r *memEmergencyRepo) Update(ctx context.Context, e *models.Emergency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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

/*=================Assignment store======================*/

type memAssignmentRepo struct {
	mu          sync.Mutex
	assignments map[uuid.UUID]*models.Assignment
}

func newMemAssignmentRepo() *memAssignmentRepo {
	return &memAssignmentRepo{assignments: make(map[uuid.UUID]*models.Assignment)}
}

func (r *memAssignmentRepo) Create(ctx context.Context, a *models.Assignment) (*models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = uuid.New()
	a.Version = 1
	cp := *a
	r.assignments[a.ID] = &cp
	return a, nil
}

func (r *memAssignmentRepo) GetActiveForUpdate(ctx context.Context, emergencyID uuid.UUID) (*models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.EmergencyID == emergencyID && a.Status.IsActive() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, types.ErrAssignmentNotFound
}

func (r *memAssignmentRepo) Update(ctx context.Context, a *models.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *memAssignmentRepo) ListExpiredAssigned(ctx context.Context, now time.Time) ([]*models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Assignment
	for _, a := range r.assignments {
		if a.Status == types.AssignmentAssigned && !a.RespondBy.After(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memAssignmentRepo) ListByEmergency(ctx context.Context, emergencyID uuid.UUID) ([]*models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Assignment
	for _, a := range r.assignments {
		if a.EmergencyID == emergencyID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memAssignmentRepo) RejectedDriverIDs(ctx context.Context, emergencyID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, a := range r.assignments {
		if a.EmergencyID == emergencyID && a.Status == types.AssignmentRejected && a.DriverID != nil {
			ids = append(ids, *a.DriverID)
		}
	}
	return ids, nil
}

/*=================Session store======================*/

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.DriverSession
	order    []uuid.UUID
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[uuid.UUID]*models.DriverSession)}
}

func (r *memSessionRepo) Create(ctx context.Context, s *models.DriverSession) (*models.DriverSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = uuid.New()
	s.Version = 1
	cp := *s
	r.sessions[s.ID] = &cp
	r.order = append(r.order, s.ID)
	return s, nil
}

func (r *memSessionRepo) GetActiveByDriver(ctx context.Context, driverID uuid.UUID) (*models.DriverSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		s := r.sessions[id]
		if s.DriverID == driverID && s.SessionEnd == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, types.ErrNoActiveSession
}

func (r *memSessionRepo) GetActiveByVehicle(ctx context.Context, vehicleID uuid.UUID) (*models.DriverSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		s := r.sessions[id]
		if s.VehicleID == vehicleID && s.SessionEnd == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, types.ErrSessionNotFound
}

func (r *memSessionRepo) Update(ctx context.Context, s *models.DriverSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[s.ID]
	if !ok {
		return types.ErrSessionNotFound
	}
	if cur.Version != s.Version {
		return types.ErrOptimisticLockConflict
	}
	cp := *s
	cp.Version++
	r.sessions[s.ID] = &cp
	s.Version++
	return nil
}

func (r *memSessionRepo) ListActive(ctx context.Context) ([]*models.DriverSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.DriverSession
	for _, id := range r.order {
		s := r.sessions[id]
		if s.SessionEnd == nil {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSessionRepo) ListOnlineFresh(ctx context.Context, cutoff time.Time) ([]*models.DriverSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.DriverSession
	for _, id := range r.order {
		s := r.sessions[id]
		if s.Status != types.SessionOnline || s.SessionEnd != nil {
			continue
		}
		if s.LastHeartbeat == nil || !s.LastHeartbeat.After(cutoff) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

/*=================Vehicle store======================*/

type memVehicleRepo struct {
	mu       sync.Mutex
	vehicles map[uuid.UUID]*models.Vehicle
}

func newMemVehicleRepo() *memVehicleRepo {
	return &memVehicleRepo{vehicles: make(map[uuid.UUID]*models.Vehicle)}
}

func (r *memVehicleRepo) Get(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return nil, types.ErrVehicleNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *memVehicleRepo) SetStatus(ctx context.Context, v *models.Vehicle, status types.VehicleStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *memVehicleRepo) UpdateLocation(ctx context.Context, id uuid.UUID, loc models.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return types.ErrVehicleNotFound
	}
	v.LastLatitude = &loc.Latitude
	v.LastLongitude = &loc.Longitude
	return nil
}

/*=================User store======================*/

type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (r *memUserRepo) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) IncrementSuspectCancellations(ctx context.Context, id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return 0, types.ErrUserNotFound
	}
	u.SuspectCancellations++
	return u.SuspectCancellations, nil
}

/*=================Notifier======================*/

type memNotifier struct {
	mu       sync.Mutex
	statuses []models.EmergencyStatusMessage
	offers   []models.AssignmentOfferMessage
	alerts   []models.CriticalAlertMessage
}

func (n *memNotifier) PublishEmergencyStatus(ctx context.Context, msg models.EmergencyStatusMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, msg)
	return nil
}

func (n *memNotifier) PublishAssignmentOffer(ctx context.Context, msg models.AssignmentOfferMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offers = append(n.offers, msg)
	return nil
}

func (n *memNotifier) PublishCriticalAlert(ctx context.Context, msg models.CriticalAlertMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, msg)
	return nil
}

/*=================Fixture======================*/

type fixture struct {
	svc      *Service
	sessions *session.Service
	engine   *dispatch.Engine

	clock       *clock.Mock
	emergencies *memEmergencyRepo
	assignments *memAssignmentRepo
	sessionRepo *memSessionRepo
	vehicles    *memVehicleRepo
	users       *memUserRepo
	notifier    *memNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	txm := &fakeTxManager{}

	f := &fixture{
		clock:       clk,
		emergencies: newMemEmergencyRepo(),
		assignments: newMemAssignmentRepo(),
		sessionRepo: newMemSessionRepo(),
		vehicles:    newMemVehicleRepo(),
		users:       newMemUserRepo(),
		notifier:    &memNotifier{},
	}

	f.engine = dispatch.New(
		f.emergencies, f.assignments, f.sessionRepo, f.vehicles,
		f.notifier, readyGate{}, txm, clk,
		dispatch.Config{ResponseWindow: 60 * time.Second, StaleThreshold: 30 * time.Second},
		nopLogger{},
	)
	f.sessions = session.New(
		f.sessionRepo, f.users, f.vehicles, f.notifier,
		txm, clk,
		session.Config{StaleThreshold: 30 * time.Second},
		nopLogger{},
	)
	f.svc = New(
		f.emergencies, f.assignments, f.vehicles, f.users,
		f.sessions, f.engine, f.notifier,
		txm, clk,
		Config{ConfirmationWindow: 100 * time.Second},
		nopLogger{},
	)
	return f
}

func (f *fixture) addRequester() *models.User {
	u := &models.User{
		ID:     uuid.New(),
		Name:   "Requester",
		Phone:  "+77010000001",
		Role:   types.RoleRequester,
		Status: types.UserActive,
	}
	f.users.users[u.ID] = u
	return u
}

// addOnlineDriver registers a verified driver with an AVAILABLE vehicle at
// the given position and puts them on shift.
func (f *fixture) addOnlineDriver(t *testing.T, lat, lon float64) (*models.User, *models.Vehicle) {
	t.Helper()

	u := &models.User{
		ID:         uuid.New(),
		Name:       "Driver",
		Phone:      "+77020000002",
		Role:       types.RoleDriver,
		Status:     types.UserActive,
		IsVerified: true,
	}
	f.users.users[u.ID] = u

	v := &models.Vehicle{
		ID:            uuid.New(),
		PlateNumber:   "A 001 KZ",
		Status:        types.VehicleAvailable,
		LastLatitude:  &lat,
		LastLongitude: &lon,
		Version:       1,
	}
	f.vehicles.vehicles[v.ID] = v

	if _, err := f.sessions.StartShift(context.Background(), u.ID, v.ID); err != nil {
		t.Fatalf("StartShift: %v", err)
	}
	return u, v
}

func (f *fixture) createEmergency(t *testing.T) *models.Emergency {
	t.Helper()

	requester := f.addRequester()
	e, err := f.svc.CreateEmergency(context.Background(), requester.ID,
		models.Location{Latitude: 43.24, Longitude: 76.91},
		types.TypeMedical, types.SeverityHigh,
	)
	if err != nil {
		t.Fatalf("CreateEmergency: %v", err)
	}
	return e
}

func (f *fixture) emergencyStatus(t *testing.T, id uuid.UUID) types.EmergencyStatus {
	t.Helper()
	e, err := f.emergencies.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get emergency: %v", err)
	}
	return e.Status
}

func (f *fixture) vehicleStatus(t *testing.T, id uuid.UUID) types.VehicleStatus {
	t.Helper()
	v, err := f.vehicles.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get vehicle: %v", err)
	}
	return v.Status
}
