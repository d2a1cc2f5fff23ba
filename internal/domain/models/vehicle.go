package models

import (
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

// Vehicle is an ambulance. Its status flips BUSY while an assignment
// holds it and back to AVAILABLE when the assignment terminates.
type Vehicle struct {
	ID          uuid.UUID
	PlateNumber string
	Status      types.VehicleStatus

	LastLatitude  *float64
	LastLongitude *float64

	CreatedAt time.Time
	UpdatedAt time.Time

	// Optimistic concurrency counter.
	Version int64
}

// LastLocation returns the vehicle's last known location, or false
// when none was ever recorded.
func (v *Vehicle) LastLocation() (Location, bool) {
	if v.LastLatitude == nil || v.LastLongitude == nil {
		return Location{}, false
	}
	return Location{Latitude: *v.LastLatitude, Longitude: *v.LastLongitude}, true
}
