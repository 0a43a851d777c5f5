// Package lifecycle implements the task status state machine.
//
// TODO is the only initial state. DONE and CANCELLED are terminal.
// The transition table is fixed; callers validate a transition only when an
// update carries a status different from the stored one.
package lifecycle

import (
	"fmt"

	"github.com/roach88/teamtask/internal/domain"
)

// transitions is the directed graph of legal status changes.
// Never mutated after init.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusTodo:       {domain.StatusInProgress, domain.StatusCancelled},
	domain.StatusInProgress: {domain.StatusReview, domain.StatusCancelled},
	domain.StatusReview:     {domain.StatusDone, domain.StatusInProgress, domain.StatusCancelled},
	domain.StatusDone:       {},
	domain.StatusCancelled:  {},
}

// TransitionError reports an illegal status change.
type TransitionError struct {
	From domain.Status
	To   domain.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// Initial returns the status every new task starts in.
func Initial() domain.Status {
	return domain.StatusTodo
}

// ValidateTransition returns nil if from → to is legal.
// Unknown statuses on either side are illegal.
func ValidateTransition(from, to domain.Status) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// Allowed returns the statuses reachable from s in one step.
// The returned slice is a copy.
func Allowed(s domain.Status) []domain.Status {
	next := transitions[s]
	out := make([]domain.Status, len(next))
	copy(out, next)
	return out
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s domain.Status) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}
