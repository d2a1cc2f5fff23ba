package dto

import (
	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/pkg/uuid"
	"github.com/aqylbek/ambulance-dispatch/pkg/validator"
)

type StartShiftRequest struct {
	VehicleID uuid.UUID `json:"vehicle_id"`
}

func (r *StartShiftRequest) Validate(v *validator.Validator) {
	v.Check(!r.VehicleID.IsNil(), "vehicle_id", "must be provided")
}

type CoordinateUpdateRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (r *CoordinateUpdateRequest) Validate(v *validator.Validator) {
	if r.Latitude != nil && r.Longitude != nil {
		v.Check(validator.ValidLatitude(*r.Latitude), "latitude", "must be between -90 and 90")
		v.Check(validator.ValidLongitude(*r.Longitude), "longitude", "must be between -180 and 180")
	} else {
		v.Check(r.Latitude != nil, "latitude", "must be provided")
		v.Check(r.Longitude != nil, "longitude", "must be provided")
	}
}

func (r *CoordinateUpdateRequest) Location() models.Location {
	return models.Location{Latitude: *r.Latitude, Longitude: *r.Longitude}
}
