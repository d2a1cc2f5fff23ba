package statemachine

import (
	"fmt"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
)

// consistencyRule maps each assignment status to the emergency statuses
// it may legally coexist with. The canonical mapping used throughout
// this codebase: an emergency waiting on a driver response is
// IN_PROGRESS, an accepted one is DISPATCHED (then AT_PATIENT and
// TO_HOSPITAL as the crew confirms progress).
var consistencyRule = map[types.AssignmentStatus][]types.EmergencyStatus{
	types.AssignmentAssigned: {types.EmergencyInProgress},
	types.AssignmentAccepted: {types.EmergencyDispatched, types.EmergencyAtPatient, types.EmergencyToHospital},
	types.AssignmentRejected: {types.EmergencyInProgress, types.EmergencyUnassigned},
	types.AssignmentTimeout:  {types.EmergencyInProgress, types.EmergencyUnassigned},
	types.AssignmentCancelled: {
		types.EmergencyCancelled,
	},
	types.AssignmentCompleted: {types.EmergencyCompleted},
}

// ValidateConsistency must hold after every joint mutation of an
// assignment/emergency pair. A violation is an assertion failure:
// the caller treats it as a rollback signal, never ignores it.
func ValidateConsistency(assignment types.AssignmentStatus, emergency types.EmergencyStatus) error {
	allowed, ok := consistencyRule[assignment]
	if !ok {
		return fmt.Errorf("%w: unknown assignment status %s", types.ErrConsistencyViolation, assignment)
	}
	for _, e := range allowed {
		if e == emergency {
			return nil
		}
	}
	return fmt.Errorf("%w: assignment %s with emergency %s", types.ErrConsistencyViolation, assignment, emergency)
}
