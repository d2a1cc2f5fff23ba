// Package statemachine holds the pure transition tables for emergencies
// and assignments plus the cross-entity consistency rule. Nothing here
// touches storage; callers validate an edge first and mutate after.
package statemachine

import (
	"fmt"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
)

type emergencyEdge struct {
	From, To types.EmergencyStatus
}

// emergencyTransitions is the full legal edge set. CANCELLED is absent
// on purpose: cancellation is a side-channel abort reachable from any
// non-terminal status, see CanCancelEmergency.
var emergencyTransitions = map[emergencyEdge]bool{
	{types.EmergencyCreated, types.EmergencyInProgress}:    true,
	{types.EmergencyInProgress, types.EmergencyDispatched}: true,
	{types.EmergencyInProgress, types.EmergencyUnassigned}: true,
	{types.EmergencyDispatched, types.EmergencyAtPatient}:  true,
	{types.EmergencyDispatched, types.EmergencyCompleted}:  true,
	{types.EmergencyDispatched, types.EmergencyUnassigned}: true,
	{types.EmergencyAtPatient, types.EmergencyToHospital}:  true,
	{types.EmergencyAtPatient, types.EmergencyCompleted}:   true,
	{types.EmergencyToHospital, types.EmergencyCompleted}:  true,
	{types.EmergencyUnassigned, types.EmergencyInProgress}: true,
}

// CanTransitionEmergency reports whether from→to is a legal edge.
func CanTransitionEmergency(from, to types.EmergencyStatus) bool {
	return emergencyTransitions[emergencyEdge{from, to}]
}

// ValidateEmergencyTransition returns ErrInvalidStateTransition
// (annotated with both statuses) when from→to is not a legal edge.
func ValidateEmergencyTransition(from, to types.EmergencyStatus) error {
	if !CanTransitionEmergency(from, to) {
		return fmt.Errorf("%w: emergency %s -> %s", types.ErrInvalidStateTransition, from, to)
	}
	return nil
}

// CanCancelEmergency reports whether the cancellation side channel is
// open: any non-terminal status may be aborted.
func CanCancelEmergency(from types.EmergencyStatus) bool {
	return !from.IsTerminal()
}
