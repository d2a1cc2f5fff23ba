package models

import (
	"context"
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

type User struct {
	ID           uuid.UUID
	Name         string
	Phone        string
	Role         types.UserRole
	Status       types.UserStatus
	PasswordHash string

	// True for drivers whose documents were checked.
	IsVerified bool

	// Count of penalized (late) cancellations, kept for abuse tracking.
	SuspectCancellations int

	CreatedAt time.Time
}

// IsBlocked reports whether the account may not act.
func (u *User) IsBlocked() bool {
	return u.Status == types.UserBlocked
}

var anonymous = &User{Name: "anonymous"}

// AnonymousUser represents an unauthenticated caller.
func AnonymousUser() *User {
	return anonymous
}

func (u *User) IsAnonymous() bool {
	return u == anonymous
}

type userCtxKey struct{}

// WithUser stores the authenticated user in the context.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

// UserFromContext returns the user stored by WithUser, or nil.
func UserFromContext(ctx context.Context) *User {
	if u, ok := ctx.Value(userCtxKey{}).(*User); ok {
		return u
	}
	return nil
}

// TokenPair carries issued JWT tokens.
type TokenPair struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CustomClaims is the decoded payload of an access token.
type CustomClaims struct {
	TokenID   uuid.UUID
	UserID    uuid.UUID
	Role      types.UserRole
	ExpiresAt time.Time
}
