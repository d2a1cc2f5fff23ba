package models

import (
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

// Assignment is one proposed pairing of an emergency to a vehicle.
// DriverID is filled only once a driver actually responds; before that
// the driver is implied by the vehicle's active session.
// Once terminal an assignment is never reopened; a re-dispatch creates
// a new row, so an emergency accumulates an append-only assignment history.
type Assignment struct {
	ID          uuid.UUID
	EmergencyID uuid.UUID
	VehicleID   uuid.UUID
	DriverID    *uuid.UUID
	Status      types.AssignmentStatus

	AssignedAt time.Time
	RespondBy  time.Time

	// At most one of these is ever set.
	AcceptedAt  *time.Time
	RejectedAt  *time.Time
	TimedOutAt  *time.Time
	CancelledAt *time.Time
	CompletedAt *time.Time

	// Seconds between AssignedAt and the driver's response, when one came.
	ResponseTimeSeconds *int64

	CancelReason *string

	// Optimistic concurrency counter.
	Version int64
}
