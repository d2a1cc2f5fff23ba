package types

import "errors"

// Validation errors: bad input, nothing is mutated.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserBlocked         = errors.New("user is blocked")
	ErrDriverNotVerified   = errors.New("driver is not verified")
	ErrDriverOnTrip        = errors.New("driver is on a trip, finish it first")
	ErrDriverAlreadyOnline = errors.New("driver already has an active session")
	ErrNoActiveSession     = errors.New("driver has no active session")
	ErrVehicleNotFound     = errors.New("vehicle not found")
	ErrVehicleNotAvailable = errors.New("vehicle is not available")
	ErrVehicleClaimed      = errors.New("vehicle is already claimed by another session")
	ErrDriverMismatch      = errors.New("driver does not operate the assigned vehicle")
)

// State machine errors.
var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrConsistencyViolation   = errors.New("assignment and emergency statuses are inconsistent")
	ErrEmergencyTerminal      = errors.New("emergency is in a terminal status")
)

// Resource errors: the caller decides between retry-later and UNASSIGNED.
var (
	ErrNoDriversAvailable = errors.New("no drivers available")
	ErrNotReady           = errors.New("dispatch is not ready: startup recovery in progress")
)

// Concurrency errors.
var (
	ErrOptimisticLockConflict = errors.New("optimistic lock conflict")
	ErrAssignmentNotActive    = errors.New("assignment is no longer active")
)

// Lookup errors.
var (
	ErrEmergencyNotFound  = errors.New("emergency not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNotFound           = errors.New("requested item not found")
)

// Auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)
