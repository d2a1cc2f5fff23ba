package auth

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/clock"
	"github.com/aqylbek/ambulance-dispatch/pkg/passhash"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, args ...any)            {}
func (nopLogger) Info(ctx context.Context, msg string, args ...any)             {}
func (nopLogger) Warn(ctx context.Context, msg string, args ...any)             {}
func (nopLogger) Error(ctx context.Context, msg string, err error, args ...any) {}
func (nopLogger) GetSlogLogger() *slog.Logger                                   { return slog.New(slog.DiscardHandler) }

type fakeUserRepo struct {
	byID    map[uuid.UUID]*models.User
	byPhone map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[uuid.UUID]*models.User),
		byPhone: make(map[string]*models.User),
	}
}

func (r *fakeUserRepo) add(u *models.User) {
	r.byID[u.ID] = u
	r.byPhone[u.Phone] = u
}

func (r *fakeUserRepo) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	u, ok := r.byPhone[phone]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func newUser(t *testing.T, phone, password string) *models.User {
	t.Helper()
	hash, err := passhash.HashPasswordWithIters(password, 1000)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &models.User{
		ID:           uuid.New(),
		Name:         "Aslan",
		Phone:        phone,
		Role:         types.RoleDriver,
		Status:       types.UserActive,
		PasswordHash: hash,
	}
}

func newService(t *testing.T) (*AuthService, *TokenService, *fakeUserRepo, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tokens := NewTokenService("test-secret", time.Hour, clk)
	users := newFakeUserRepo()
	return NewAuthService(users, tokens, nopLogger{}), tokens, users, clk
}

func TestLogin_IssuesVerifiableToken(t *testing.T) {
	svc, tokens, users, clk := newService(t)
	user := newUser(t, "+77001234567", "hunter2")
	users.add(user)

	pair, err := svc.Login(context.Background(), "+77001234567", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" {
		t.Fatal("empty access token")
	}
	if want := clk.Now().Add(time.Hour); !pair.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", pair.ExpiresAt, want)
	}

	claims, err := tokens.Validate(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("user_id = %s, want %s", claims.UserID, user.ID)
	}
	if claims.Role != types.RoleDriver {
		t.Fatalf("role = %s, want DRIVER", claims.Role)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _, users, _ := newService(t)
	users.add(newUser(t, "+77001234567", "hunter2"))

	if _, err := svc.Login(context.Background(), "+77001234567", "letmein"); !errors.Is(err, types.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_UnknownPhoneLooksLikeWrongPassword(t *testing.T) {
	svc, _, _, _ := newService(t)

	if _, err := svc.Login(context.Background(), "+77000000000", "hunter2"); !errors.Is(err, types.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_BlockedUser(t *testing.T) {
	svc, _, users, _ := newService(t)
	user := newUser(t, "+77001234567", "hunter2")
	user.Status = types.UserBlocked
	users.add(user)

	if _, err := svc.Login(context.Background(), "+77001234567", "hunter2"); !errors.Is(err, types.ErrUserBlocked) {
		t.Fatalf("err = %v, want ErrUserBlocked", err)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	svc, _, users, clk := newService(t)
	users.add(newUser(t, "+77001234567", "hunter2"))

	pair, err := svc.Login(context.Background(), "+77001234567", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	clk.Advance(2 * time.Hour)

	if _, err := svc.Verify(context.Background(), pair.AccessToken); !errors.Is(err, types.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	other := NewTokenService("other-secret", time.Hour, clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	svc, _, users, _ := newService(t)
	user := newUser(t, "+77001234567", "hunter2")
	users.add(user)

	forged, err := other.Generate(context.Background(), user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := svc.Verify(context.Background(), forged.AccessToken); !errors.Is(err, types.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_LoadsUser(t *testing.T) {
	svc, tokens, users, _ := newService(t)
	user := newUser(t, "+77001234567", "hunter2")
	users.add(user)

	pair, err := tokens.Generate(context.Background(), user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	got, err := svc.Verify(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.ID != user.ID || got.Phone != user.Phone {
		t.Fatalf("loaded wrong user: %+v", got)
	}
}

func TestVerify_BlockedAfterIssue(t *testing.T) {
	svc, tokens, users, _ := newService(t)
	user := newUser(t, "+77001234567", "hunter2")
	users.add(user)

	pair, err := tokens.Generate(context.Background(), user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	users.byID[user.ID].Status = types.UserBlocked

	if _, err := svc.Verify(context.Background(), pair.AccessToken); !errors.Is(err, types.ErrUserBlocked) {
		t.Fatalf("err = %v, want ErrUserBlocked", err)
	}
}
