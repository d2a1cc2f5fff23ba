package models

import (
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
)

// DriverSession is one on-shift stint of a driver operating one vehicle.
// A session is closed by stamping SessionEnd; it is never deleted.
// At most one session per driver and one per vehicle may be active
// (SessionEnd unset) at any time.
type DriverSession struct {
	ID        uuid.UUID
	DriverID  uuid.UUID
	VehicleID uuid.UUID
	Status    types.SessionStatus

	SessionStart time.Time
	SessionEnd   *time.Time

	LastLatitude      *float64
	LastLongitude     *float64
	LocationUpdatedAt *time.Time
	LastHeartbeat     *time.Time

	EmergenciesHandled int

	// Optimistic concurrency counter.
	Version int64
}

// IsActive reports whether this session still counts as on-shift.
func (s *DriverSession) IsActive() bool {
	return s.SessionEnd == nil
}

// LastLocation returns the session's last known location, or false
// when no location update has arrived yet.
func (s *DriverSession) LastLocation() (Location, bool) {
	if s.LastLatitude == nil || s.LastLongitude == nil {
		return Location{}, false
	}
	return Location{Latitude: *s.LastLatitude, Longitude: *s.LastLongitude}, true
}
