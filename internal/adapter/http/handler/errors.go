package handler

import (
	"errors"
	"net/http"

	t "github.com/aqylbek/ambulance-dispatch/internal/domain/types"
)

func errorResponse(w http.ResponseWriter, status int, message any) {
	env := envelope{"error": message}

	if err := writeJSON(w, status, env, nil); err != nil {
		w.WriteHeader(500)
	}
}

// failedValidationResponse returns 422 Unprocessable Entity with the
// per-field validation errors.
func failedValidationResponse(w http.ResponseWriter, errors map[string]string) {
	errorResponse(w, http.StatusUnprocessableEntity, errors)
}

func internalErrorResponse(w http.ResponseWriter, message any) {
	errorResponse(w, http.StatusInternalServerError, message)
}

// GetCode maps service errors onto HTTP status codes.
func GetCode(err error) int {
	switch {
	case IsOneOf(err, t.ErrEmergencyNotFound, t.ErrUserNotFound, t.ErrVehicleNotFound,
		t.ErrSessionNotFound, t.ErrAssignmentNotFound, t.ErrNoActiveSession, t.ErrNotFound):
		return http.StatusNotFound
	case IsOneOf(err, t.ErrInvalidCredentials, t.ErrInvalidToken):
		return http.StatusUnauthorized
	case IsOneOf(err, t.ErrUserBlocked, t.ErrDriverNotVerified):
		return http.StatusForbidden
	case IsOneOf(err, t.ErrDriverAlreadyOnline, t.ErrDriverOnTrip, t.ErrVehicleNotAvailable,
		t.ErrVehicleClaimed, t.ErrAssignmentNotActive, t.ErrOptimisticLockConflict,
		t.ErrInvalidStateTransition, t.ErrEmergencyTerminal, t.ErrDriverMismatch):
		return http.StatusConflict
	case IsOneOf(err, t.ErrNoDriversAvailable, t.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func IsOneOf(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
