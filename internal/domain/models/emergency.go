package models

import (
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

// Location is a geographic point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Emergency is a single help request. It is never physically deleted:
// COMPLETED and CANCELLED rows are retained for audit and timeline queries.
type Emergency struct {
	ID          uuid.UUID
	RequesterID uuid.UUID
	Location    Location
	Type        types.EmergencyType
	Severity    types.Severity
	Status      types.EmergencyStatus

	CreatedAt            time.Time
	ConfirmationDeadline time.Time
	StatusUpdatedAt      time.Time
	CompletedAt          *time.Time
	CancelledAt          *time.Time

	// Set at completion when the crew reported a destination hospital.
	HospitalLocation   *Location
	HospitalDistanceKm *float64

	// Late (penalized) cancellation marker, see Cancel.
	IsSuspect    bool
	CancelReason *string

	// Optimistic concurrency counter.
	Version int64
}

// TimelineEvent is one entry of the reconstructed emergency timeline.
type TimelineEvent struct {
	EventType types.TimelineEventType `json:"event_type"`
	Timestamp time.Time               `json:"timestamp"`
	Detail    string                  `json:"detail,omitempty"`
}

// Overview is the operator dashboard snapshot.
type Overview struct {
	ActiveEmergencies   int                           `json:"active_emergencies"`
	EmergenciesByStatus map[types.EmergencyStatus]int `json:"emergencies_by_status"`
	DriversOnline       int                           `json:"drivers_online"`
	VehiclesAvailable   int                           `json:"vehicles_available"`
	VehiclesBusy        int                           `json:"vehicles_busy"`
}
