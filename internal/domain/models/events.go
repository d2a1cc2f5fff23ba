package models

import (
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

/* ======================= rabbitmq ======================= */

// EmergencyStatusMessage is published on every emergency status change.
type EmergencyStatusMessage struct {
	EmergencyID   uuid.UUID             `json:"emergency_id"`
	Status        types.EmergencyStatus `json:"status"`
	Timestamp     time.Time             `json:"timestamp"`
	DriverID      *uuid.UUID            `json:"driver_id,omitempty"`
	CorrelationID string                `json:"correlation_id"`
}

// AssignmentOfferMessage notifies a driver about a pending assignment.
type AssignmentOfferMessage struct {
	AssignmentID uuid.UUID           `json:"assignment_id"`
	EmergencyID  uuid.UUID           `json:"emergency_id"`
	DriverID     uuid.UUID           `json:"driver_id"`
	VehicleID    uuid.UUID           `json:"vehicle_id"`
	Type         types.EmergencyType `json:"type"`
	Severity     types.Severity      `json:"severity"`
	Location     Location            `json:"location"`
	DistanceKm   float64             `json:"distance_km"`
	RespondBy    time.Time           `json:"respond_by"`
}

// CriticalAlertMessage flags conditions that need operator attention,
// e.g. an ON_TRIP session whose heartbeat went stale.
type CriticalAlertMessage struct {
	Kind        string     `json:"kind"`
	DriverID    uuid.UUID  `json:"driver_id"`
	VehicleID   uuid.UUID  `json:"vehicle_id"`
	EmergencyID *uuid.UUID `json:"emergency_id,omitempty"`
	Detail      string     `json:"detail"`
	Timestamp   time.Time  `json:"timestamp"`
}

/* ======================= websocket ======================= */

// DriverLocationUpdate is what the driver app pushes every 3-5 seconds.
type DriverLocationUpdate struct {
	Type      string  `json:"type"` // "location_update"
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
