package coordinator

import (
	"context"
	"fmt"

	"github.com/roach88/teamtask/internal/authz"
	"github.com/roach88/teamtask/internal/domain"
)

// List returns the tasks selected by q that the actor may read, newest
// first. The result is never nil.
//
// Views:
//   - my-tasks: team tasks assigned to the actor
//   - my-personal-tasks: the actor's personal tasks
//   - created-by-me: team tasks the actor created (managers only)
//   - team-tasks: every team task of the actor's team (managers only)
//   - default: managers see tasks they created or are assigned; everyone
//     else sees tasks assigned to them
func (c *Coordinator) List(ctx context.Context, actor domain.AuthContext, q domain.TaskQuery) ([]domain.Task, error) {
	if actor.IsZero() {
		return nil, deniedError(authz.ReasonAnonymousActor)
	}

	f, ok, err := resolveFilter(actor, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.Task{}, nil
	}

	found, err := c.tasks.FindTasks(ctx, f)
	if err != nil {
		return nil, unavailableError("list tasks", err)
	}

	// The filter selects; authorization still decides what is visible.
	visible := make([]domain.Task, 0, len(found))
	for i := range found {
		if authz.CanPerform(actor, &found[i], domain.ActionRead, nil).Allowed {
			visible = append(visible, found[i])
		}
	}
	return visible, nil
}

// resolveFilter turns a query into a store filter. ok is false when the
// extra filters contradict the view, so nothing can match.
func resolveFilter(actor domain.AuthContext, q domain.TaskQuery) (f domain.TaskFilter, ok bool, err error) {
	if q.Status != "" && !q.Status.Valid() {
		return f, false, validationError(fmt.Sprintf("unknown status %q", q.Status))
	}
	if q.Priority != "" && !q.Priority.Valid() {
		return f, false, validationError(fmt.Sprintf("unknown priority %q", q.Priority))
	}

	isManager := actor.Role() == domain.RoleManager
	team, personal := false, true

	switch q.View {
	case domain.ViewMyTasks:
		f.AssignedTo = actor.UserID()
		f.IsPersonal = &team

	case domain.ViewMyPersonalTasks:
		f.CreatedBy = actor.UserID()
		f.IsPersonal = &personal

	case domain.ViewCreatedByMe:
		if !isManager {
			return f, false, deniedError("only managers can list tasks they created")
		}
		f.CreatedBy = actor.UserID()
		f.TeamID = actor.TeamID()
		f.IsPersonal = &team

	case domain.ViewTeamTasks:
		if !isManager {
			return f, false, deniedError("only managers can list team tasks")
		}
		f.TeamID = actor.TeamID()
		f.IsPersonal = &team

	case domain.ViewDefault:
		if isManager {
			f.CreatedOrAssigned = actor.UserID()
		} else {
			f.AssignedTo = actor.UserID()
		}

	default:
		return f, false, validationError(fmt.Sprintf("unknown view %q", q.View))
	}

	f.Status = q.Status
	f.Priority = q.Priority

	if q.AssignedTo != "" {
		if f.AssignedTo != "" && f.AssignedTo != q.AssignedTo {
			return f, false, nil
		}
		f.AssignedTo = q.AssignedTo
	}
	if q.IsPersonal != nil {
		if f.IsPersonal != nil && *f.IsPersonal != *q.IsPersonal {
			return f, false, nil
		}
		v := *q.IsPersonal
		f.IsPersonal = &v
	}
	return f, true, nil
}
