// Package authz decides whether an actor may act on a task.
//
// CanPerform is a pure predicate: no I/O, no logging, no mutation. Every
// reference the rules need (the task, the intended assignee) is resolved by
// the caller and passed in.
//
// Rules, evaluated in order:
//  1. Personal tasks: only the creator may read, update or delete. Only
//     members may create personal tasks.
//  2. Team tasks: only managers may create, and only for an active member
//     of their own team. A bad assignee is a shape error, not a denial.
//  3. Reading a team task: members need assigned_to == actor; managers need
//     the task in their team.
//  4. Updating or deleting a team task: members never; managers only for
//     tasks they created in their own team.
//
// ADMIN has no rule for team tasks and is denied.
package authz

import (
	"github.com/roach88/teamtask/internal/domain"
)

// DenyCode distinguishes an authorization denial from a bad task shape.
type DenyCode string

const (
	// DenyForbidden means the actor lacks the right to act.
	DenyForbidden DenyCode = "forbidden"

	// DenyInvalidShape means the intended task is malformed for the actor
	// (e.g. the assignee is not a member of the actor's team).
	DenyInvalidShape DenyCode = "invalid_shape"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Code    DenyCode // Empty when Allowed
	Reason  string   // Empty when Allowed
}

// Allow is the permitting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny builds a forbidding decision.
func Deny(reason string) Decision {
	return Decision{Code: DenyForbidden, Reason: reason}
}

// InvalidShape builds a shape-validation decision.
func InvalidShape(reason string) Decision {
	return Decision{Code: DenyInvalidShape, Reason: reason}
}

// Shape carries the resolved parts of a task the caller intends to create.
type Shape struct {
	IsPersonal bool

	// Assignee is the directory entry for the requested assigned_to,
	// nil when none was requested or the ID did not resolve.
	Assignee *domain.User
}

// Denial reasons. Kept stable because they appear in logs.
const (
	ReasonPersonalNotCreator  = "personal task belongs to another user"
	ReasonPersonalCreateRole  = "only members can create personal tasks"
	ReasonTeamCreateRole      = "only managers can create team tasks"
	ReasonAssigneeRequired    = "team tasks must be assigned to a member"
	ReasonAssigneeNotTeammate = "can only assign tasks to members in your team"
	ReasonMemberNotAssignee   = "team task is not assigned to you"
	ReasonOtherTeam           = "task belongs to another team"
	ReasonMemberCannotModify  = "members cannot modify team tasks"
	ReasonManagerNotCreator   = "can only modify tasks you created"
	ReasonNoRuleForRole       = "no task access rule for role"
	ReasonUnknownAction       = "unknown action"
	ReasonMissingTask         = "no task to evaluate"
	ReasonMissingShape        = "no task shape to evaluate"
	ReasonAnonymousActor      = "no actor"
)

// CanPerform decides whether actor may perform action on task.
//
// For ActionCreate, task is ignored and shape describes the intended task.
// For every other action, task must be non-nil and shape is ignored.
func CanPerform(actor domain.AuthContext, task *domain.Task, action domain.Action, shape *Shape) Decision {
	if actor.IsZero() {
		return Deny(ReasonAnonymousActor)
	}

	switch action {
	case domain.ActionCreate:
		if shape == nil {
			return InvalidShape(ReasonMissingShape)
		}
		return canCreate(actor, shape)

	case domain.ActionRead, domain.ActionUpdate, domain.ActionDelete:
		if task == nil {
			return Deny(ReasonMissingTask)
		}
		if task.IsPersonal {
			return canAccessPersonal(actor, task)
		}
		if action == domain.ActionRead {
			return canReadTeam(actor, task)
		}
		return canModifyTeam(actor, task)

	default:
		return Deny(ReasonUnknownAction)
	}
}

// CheckAssignee applies the team-task assignee rule: the assignee must be an
// active member of the actor's team. Used for creation and reassignment.
func CheckAssignee(actor domain.AuthContext, assignee *domain.User) Decision {
	if assignee == nil {
		return InvalidShape(ReasonAssigneeRequired)
	}
	if assignee.Role != domain.RoleMember || !assignee.IsActive {
		return InvalidShape(ReasonAssigneeNotTeammate)
	}
	if actor.TeamID() == "" || assignee.TeamID != actor.TeamID() {
		return InvalidShape(ReasonAssigneeNotTeammate)
	}
	return Allow()
}

func canCreate(actor domain.AuthContext, shape *Shape) Decision {
	if shape.IsPersonal {
		if actor.Role() != domain.RoleMember {
			return Deny(ReasonPersonalCreateRole)
		}
		return Allow()
	}

	if actor.Role() != domain.RoleManager {
		return Deny(ReasonTeamCreateRole)
	}
	return CheckAssignee(actor, shape.Assignee)
}

func canAccessPersonal(actor domain.AuthContext, task *domain.Task) Decision {
	if task.CreatedBy != actor.UserID() {
		return Deny(ReasonPersonalNotCreator)
	}
	return Allow()
}

func canReadTeam(actor domain.AuthContext, task *domain.Task) Decision {
	switch actor.Role() {
	case domain.RoleMember:
		if task.AssignedTo != actor.UserID() {
			return Deny(ReasonMemberNotAssignee)
		}
		return Allow()
	case domain.RoleManager:
		if !sameTeam(actor, task) {
			return Deny(ReasonOtherTeam)
		}
		return Allow()
	default:
		return Deny(ReasonNoRuleForRole + " " + string(actor.Role()))
	}
}

func canModifyTeam(actor domain.AuthContext, task *domain.Task) Decision {
	switch actor.Role() {
	case domain.RoleMember:
		return Deny(ReasonMemberCannotModify)
	case domain.RoleManager:
		if task.CreatedBy != actor.UserID() {
			return Deny(ReasonManagerNotCreator)
		}
		if !sameTeam(actor, task) {
			return Deny(ReasonOtherTeam)
		}
		return Allow()
	default:
		return Deny(ReasonNoRuleForRole + " " + string(actor.Role()))
	}
}

// sameTeam requires a non-empty team on both sides.
func sameTeam(actor domain.AuthContext, task *domain.Task) bool {
	return actor.TeamID() != "" && task.TeamID == actor.TeamID()
}
