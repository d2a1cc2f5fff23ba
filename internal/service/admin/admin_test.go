package admin

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
)

/*=================Test doubles======================*/

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, args ...any)            {}
func (nopLogger) Info(ctx context.Context, msg string, args ...any)             {}
func (nopLogger) Warn(ctx context.Context, msg string, args ...any)             {}
func (nopLogger) Error(ctx context.Context, msg string, err error, args ...any) {}
func (nopLogger) GetSlogLogger() *slog.Logger                                   { return slog.New(slog.DiscardHandler) }

type fakeTxManager struct {
	calls int
}

func (m *fakeTxManager) DoReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type fakeEmergencyRepo struct {
	active   int
	byStatus map[types.EmergencyStatus]int
	listed   map[types.EmergencyStatus][]*models.Emergency
	err      error
}

func (r *fakeEmergencyRepo) CountActive(ctx context.Context) (int, error) {
	return r.active, r.err
}

func (r *fakeEmergencyRepo) CountByStatus(ctx context.Context) (map[types.EmergencyStatus]int, error) {
	return r.byStatus, r.err
}

func (r *fakeEmergencyRepo) ListByStatus(ctx context.Context, status types.EmergencyStatus) ([]*models.Emergency, error) {
	return r.listed[status], r.err
}

type fakeSessionRepo struct {
	online int
}

func (r *fakeSessionRepo) CountOnline(ctx context.Context) (int, error) {
	return r.online, nil
}

type fakeVehicleRepo struct {
	byStatus map[types.VehicleStatus][]*models.Vehicle
}

func (r *fakeVehicleRepo) ListByStatus(ctx context.Context, status types.VehicleStatus) ([]*models.Vehicle, error) {
	return r.byStatus[status], nil
}

/*=================Tests=============================*/

func TestOverview(t *testing.T) {
	emergencies := &fakeEmergencyRepo{
		active: 3,
		byStatus: map[types.EmergencyStatus]int{
			types.EmergencyCreated:    1,
			types.EmergencyInProgress: 2,
			types.EmergencyCompleted:  7,
		},
	}
	sessions := &fakeSessionRepo{online: 4}
	vehicles := &fakeVehicleRepo{byStatus: map[types.VehicleStatus][]*models.Vehicle{
		types.VehicleAvailable: {{}, {}},
		types.VehicleBusy:      {{}},
	}}
	txm := &fakeTxManager{}

	svc := New(emergencies, sessions, vehicles, txm, nopLogger{})

	overview, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("overview: %v", err)
	}

	if overview.ActiveEmergencies != 3 {
		t.Errorf("active emergencies = %d, want 3", overview.ActiveEmergencies)
	}
	if overview.DriversOnline != 4 {
		t.Errorf("drivers online = %d, want 4", overview.DriversOnline)
	}
	if overview.VehiclesAvailable != 2 || overview.VehiclesBusy != 1 {
		t.Errorf("vehicles = %d available / %d busy, want 2/1",
			overview.VehiclesAvailable, overview.VehiclesBusy)
	}
	if overview.EmergenciesByStatus[types.EmergencyCompleted] != 7 {
		t.Errorf("completed count = %d, want 7", overview.EmergenciesByStatus[types.EmergencyCompleted])
	}
	if txm.calls != 1 {
		t.Errorf("overview should run in a single read transaction, got %d", txm.calls)
	}
}

func TestOverview_RepoError(t *testing.T) {
	emergencies := &fakeEmergencyRepo{err: errors.New("boom")}
	svc := New(emergencies, &fakeSessionRepo{}, &fakeVehicleRepo{}, &fakeTxManager{}, nopLogger{})

	if _, err := svc.Overview(context.Background()); err == nil {
		t.Fatalf("expected error from repo")
	}
}

func TestActiveEmergencies_OrderedByStatus(t *testing.T) {
	created := &models.Emergency{Status: types.EmergencyCreated}
	inProgress := &models.Emergency{Status: types.EmergencyInProgress}
	unassigned := &models.Emergency{Status: types.EmergencyUnassigned}

	emergencies := &fakeEmergencyRepo{listed: map[types.EmergencyStatus][]*models.Emergency{
		types.EmergencyUnassigned: {unassigned},
		types.EmergencyCreated:    {created},
		types.EmergencyInProgress: {inProgress},
	}}
	svc := New(emergencies, &fakeSessionRepo{}, &fakeVehicleRepo{}, &fakeTxManager{}, nopLogger{})

	out, err := svc.ActiveEmergencies(context.Background())
	if err != nil {
		t.Fatalf("active emergencies: %v", err)
	}

	if len(out) != 3 {
		t.Fatalf("got %d emergencies, want 3", len(out))
	}
	if out[0] != created || out[1] != inProgress || out[2] != unassigned {
		t.Errorf("unexpected order: %v %v %v", out[0].Status, out[1].Status, out[2].Status)
	}
}
