package dto

import (
	"time"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
	"github.com/aqylbek/ambulance-dispatch/pkg/validator"
)

type CreateEmergencyRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Type      string   `json:"type"`
	Severity  string   `json:"severity"`
}

func (r *CreateEmergencyRequest) Validate(v *validator.Validator) {
	if r.Latitude != nil {
		v.Check(validator.ValidLatitude(*r.Latitude), "latitude", "must be between -90 and 90")
	} else {
		v.AddError("latitude", "must be provided")
	}
	if r.Longitude != nil {
		v.Check(validator.ValidLongitude(*r.Longitude), "longitude", "must be between -180 and 180")
	} else {
		v.AddError("longitude", "must be provided")
	}

	v.Check(r.Type != "", "type", "must be provided")
	v.Check(validator.PermittedValue(types.EmergencyType(r.Type),
		types.TypeMedical, types.TypeTrauma, types.TypeCardiac,
		types.TypeBirth, types.TypeAccident, types.TypeOther,
	), "type", "must be one of MEDICAL, TRAUMA, CARDIAC, BIRTH, ACCIDENT, OTHER")

	v.Check(r.Severity != "", "severity", "must be provided")
	v.Check(validator.PermittedValue(types.Severity(r.Severity),
		types.SeverityCritical, types.SeverityHigh, types.SeverityMedium, types.SeverityLow,
	), "severity", "must be one of CRITICAL, HIGH, MEDIUM, LOW")
}

func (r *CreateEmergencyRequest) Location() models.Location {
	return models.Location{Latitude: *r.Latitude, Longitude: *r.Longitude}
}

type CancelEmergencyRequest struct {
	Reason string `json:"reason"`
}

func (r *CancelEmergencyRequest) Validate(v *validator.Validator) {
	v.Check(r.Reason != "", "reason", "must be provided")
	v.Check(len(r.Reason) <= 500, "reason", "must be at most 500 characters")
}

type RespondRequest struct {
	Accepted *bool `json:"accepted"`
}

func (r *RespondRequest) Validate(v *validator.Validator) {
	v.Check(r.Accepted != nil, "accepted", "must be provided")
}

type CompleteEmergencyRequest struct {
	HospitalLatitude  *float64 `json:"hospital_latitude"`
	HospitalLongitude *float64 `json:"hospital_longitude"`
}

func (r *CompleteEmergencyRequest) Validate(v *validator.Validator) {
	// The hospital location is optional, but half a coordinate is not.
	if r.HospitalLatitude == nil && r.HospitalLongitude == nil {
		return
	}
	if r.HospitalLatitude != nil {
		v.Check(validator.ValidLatitude(*r.HospitalLatitude), "hospital_latitude", "must be between -90 and 90")
	} else {
		v.AddError("hospital_latitude", "must be provided together with hospital_longitude")
	}
	if r.HospitalLongitude != nil {
		v.Check(validator.ValidLongitude(*r.HospitalLongitude), "hospital_longitude", "must be between -180 and 180")
	} else {
		v.AddError("hospital_longitude", "must be provided together with hospital_latitude")
	}
}

func (r *CompleteEmergencyRequest) Hospital() *models.Location {
	if r.HospitalLatitude == nil || r.HospitalLongitude == nil {
		return nil
	}
	return &models.Location{Latitude: *r.HospitalLatitude, Longitude: *r.HospitalLongitude}
}

// EmergencyResponse is the wire form of an emergency.
type EmergencyResponse struct {
	ID                   string                 `json:"id"`
	Status               string                 `json:"status"`
	Type                 string                 `json:"type"`
	Severity             string                 `json:"severity"`
	Location             models.Location        `json:"location"`
	CreatedAt            string                 `json:"created_at"`
	ConfirmationDeadline string                 `json:"confirmation_deadline"`
	CompletedAt          string                 `json:"completed_at,omitempty"`
	CancelledAt          string                 `json:"cancelled_at,omitempty"`
	HospitalLocation     *models.Location       `json:"hospital_location,omitempty"`
	HospitalDistanceKm   *float64               `json:"hospital_distance_km,omitempty"`
	Timeline             []models.TimelineEvent `json:"timeline,omitempty"`
}

func ToEmergencyResponse(e *models.Emergency) EmergencyResponse {
	resp := EmergencyResponse{
		ID:                   e.ID.String(),
		Status:               e.Status.String(),
		Type:                 string(e.Type),
		Severity:             string(e.Severity),
		Location:             e.Location,
		CreatedAt:            e.CreatedAt.UTC().Format(time.RFC3339),
		ConfirmationDeadline: e.ConfirmationDeadline.UTC().Format(time.RFC3339),
		HospitalLocation:     e.HospitalLocation,
		HospitalDistanceKm:   e.HospitalDistanceKm,
	}
	if e.CompletedAt != nil {
		resp.CompletedAt = e.CompletedAt.UTC().Format(time.RFC3339)
	}
	if e.CancelledAt != nil {
		resp.CancelledAt = e.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}
