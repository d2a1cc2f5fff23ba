package statemachine

import (
	"errors"
	"testing"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
)

var allEmergencyStatuses = []types.EmergencyStatus{
	types.EmergencyCreated,
	types.EmergencyInProgress,
	types.EmergencyDispatched,
	types.EmergencyAtPatient,
	types.EmergencyToHospital,
	types.EmergencyUnassigned,
	types.EmergencyCompleted,
	types.EmergencyCancelled,
}

func TestEmergencyTransitions_Table(t *testing.T) {
	legal := map[types.EmergencyStatus][]types.EmergencyStatus{
		types.EmergencyCreated:    {types.EmergencyInProgress},
		types.EmergencyInProgress: {types.EmergencyDispatched, types.EmergencyUnassigned},
		types.EmergencyDispatched: {types.EmergencyAtPatient, types.EmergencyCompleted, types.EmergencyUnassigned},
		types.EmergencyAtPatient:  {types.EmergencyToHospital, types.EmergencyCompleted},
		types.EmergencyToHospital: {types.EmergencyCompleted},
		types.EmergencyUnassigned: {types.EmergencyInProgress},
		types.EmergencyCompleted:  {},
		types.EmergencyCancelled:  {},
	}

	for from, tos := range legal {
		want := make(map[types.EmergencyStatus]bool, len(tos))
		for _, to := range tos {
			want[to] = true
		}
		for _, to := range allEmergencyStatuses {
			if got := CanTransitionEmergency(from, to); got != want[to] {
				t.Errorf("CanTransitionEmergency(%s, %s) = %v, want %v", from, to, got, want[to])
			}
		}
	}
}

func TestEmergencyTransitions_NoShortcutToCompleted(t *testing.T) {
	// CREATED may never jump straight to COMPLETED.
	if CanTransitionEmergency(types.EmergencyCreated, types.EmergencyCompleted) {
		t.Fatal("CREATED -> COMPLETED must be illegal")
	}
	err := ValidateEmergencyTransition(types.EmergencyCreated, types.EmergencyCompleted)
	if !errors.Is(err, types.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestCanCancelEmergency(t *testing.T) {
	for _, s := range allEmergencyStatuses {
		want := s != types.EmergencyCompleted && s != types.EmergencyCancelled
		if got := CanCancelEmergency(s); got != want {
			t.Errorf("CanCancelEmergency(%s) = %v, want %v", s, got, want)
		}
	}
}

func TestAssignmentTransitions_Table(t *testing.T) {
	all := []types.AssignmentStatus{
		types.AssignmentAssigned,
		types.AssignmentAccepted,
		types.AssignmentRejected,
		types.AssignmentTimeout,
		types.AssignmentCancelled,
		types.AssignmentCompleted,
	}
	legal := map[types.AssignmentStatus][]types.AssignmentStatus{
		types.AssignmentAssigned: {types.AssignmentAccepted, types.AssignmentRejected, types.AssignmentTimeout, types.AssignmentCancelled},
		types.AssignmentAccepted: {types.AssignmentCompleted, types.AssignmentCancelled},
	}

	for _, from := range all {
		want := make(map[types.AssignmentStatus]bool)
		for _, to := range legal[from] {
			want[to] = true
		}
		for _, to := range all {
			if got := CanTransitionAssignment(from, to); got != want[to] {
				t.Errorf("CanTransitionAssignment(%s, %s) = %v, want %v", from, to, got, want[to])
			}
		}
	}
}

func TestAssignmentTerminalStatusesHaveNoExits(t *testing.T) {
	terminal := []types.AssignmentStatus{
		types.AssignmentRejected,
		types.AssignmentTimeout,
		types.AssignmentCancelled,
		types.AssignmentCompleted,
	}
	targets := []types.AssignmentStatus{
		types.AssignmentAssigned,
		types.AssignmentAccepted,
		types.AssignmentRejected,
		types.AssignmentTimeout,
		types.AssignmentCancelled,
		types.AssignmentCompleted,
	}
	for _, from := range terminal {
		for _, to := range targets {
			if CanTransitionAssignment(from, to) {
				t.Errorf("terminal assignment status %s must not transition to %s", from, to)
			}
		}
	}
}

func TestValidateConsistency(t *testing.T) {
	tests := []struct {
		name       string
		assignment types.AssignmentStatus
		emergency  types.EmergencyStatus
		wantErr    bool
	}{
		{"assigned while in progress", types.AssignmentAssigned, types.EmergencyInProgress, false},
		{"assigned while dispatched", types.AssignmentAssigned, types.EmergencyDispatched, true},
		{"accepted while dispatched", types.AssignmentAccepted, types.EmergencyDispatched, false},
		{"accepted at patient", types.AssignmentAccepted, types.EmergencyAtPatient, false},
		{"accepted to hospital", types.AssignmentAccepted, types.EmergencyToHospital, false},
		{"accepted while created", types.AssignmentAccepted, types.EmergencyCreated, true},
		{"rejected while in progress", types.AssignmentRejected, types.EmergencyInProgress, false},
		{"rejected while unassigned", types.AssignmentRejected, types.EmergencyUnassigned, false},
		{"rejected while completed", types.AssignmentRejected, types.EmergencyCompleted, true},
		{"timeout while unassigned", types.AssignmentTimeout, types.EmergencyUnassigned, false},
		{"completed pair", types.AssignmentCompleted, types.EmergencyCompleted, false},
		{"completed while dispatched", types.AssignmentCompleted, types.EmergencyDispatched, true},
		{"cancelled pair", types.AssignmentCancelled, types.EmergencyCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConsistency(tt.assignment, tt.emergency)
			if tt.wantErr {
				if !errors.Is(err, types.ErrConsistencyViolation) {
					t.Fatalf("expected ErrConsistencyViolation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// Every accept path must keep the pair consistent: an ASSIGNED
// assignment lives with IN_PROGRESS, and the accept transition moves
// both to ACCEPTED/DISPATCHED in one step.
func TestAcceptPathStaysConsistent(t *testing.T) {
	if err := ValidateConsistency(types.AssignmentAssigned, types.EmergencyInProgress); err != nil {
		t.Fatalf("pre-accept pair must be consistent: %v", err)
	}
	if err := ValidateAssignmentTransition(types.AssignmentAssigned, types.AssignmentAccepted); err != nil {
		t.Fatalf("accept edge must be legal: %v", err)
	}
	if err := ValidateEmergencyTransition(types.EmergencyInProgress, types.EmergencyDispatched); err != nil {
		t.Fatalf("emergency accept edge must be legal: %v", err)
	}
	if err := ValidateConsistency(types.AssignmentAccepted, types.EmergencyDispatched); err != nil {
		t.Fatalf("post-accept pair must be consistent: %v", err)
	}
}
