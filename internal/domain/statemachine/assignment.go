package statemachine

import (
	"fmt"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/types"
)

type assignmentEdge struct {
	From, To types.AssignmentStatus
}

// assignmentTransitions is the full legal edge set. Every terminal
// status (REJECTED, TIMEOUT, CANCELLED, COMPLETED) has no outgoing
// edges: a re-dispatch always creates a fresh assignment row.
var assignmentTransitions = map[assignmentEdge]bool{
	{types.AssignmentAssigned, types.AssignmentAccepted}:  true,
	{types.AssignmentAssigned, types.AssignmentRejected}:  true,
	{types.AssignmentAssigned, types.AssignmentTimeout}:   true,
	{types.AssignmentAssigned, types.AssignmentCancelled}: true,
	{types.AssignmentAccepted, types.AssignmentCompleted}: true,
	{types.AssignmentAccepted, types.AssignmentCancelled}: true,
}

// CanTransitionAssignment reports whether from→to is a legal edge.
func CanTransitionAssignment(from, to types.AssignmentStatus) bool {
	return assignmentTransitions[assignmentEdge{from, to}]
}

// ValidateAssignmentTransition returns ErrInvalidStateTransition
// (annotated with both statuses) when from→to is not a legal edge.
func ValidateAssignmentTransition(from, to types.AssignmentStatus) error {
	if !CanTransitionAssignment(from, to) {
		return fmt.Errorf("%w: assignment %s -> %s", types.ErrInvalidStateTransition, from, to)
	}
	return nil
}
