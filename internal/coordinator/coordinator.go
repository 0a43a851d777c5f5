// Package coordinator is the single entry point for task mutations.
//
// Every request runs the same sequence:
//
//	authorize → validate transition → persist → submit side effects
//
// Side effects (notifications, analytics counters, event archive) are
// submitted as detached jobs after the store commits. They never change
// the result already returned to the caller.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/teamtask/internal/authz"
	"github.com/roach88/teamtask/internal/dispatch"
	"github.com/roach88/teamtask/internal/domain"
	"github.com/roach88/teamtask/internal/eventlog"
	"github.com/roach88/teamtask/internal/ids"
	"github.com/roach88/teamtask/internal/lifecycle"
	"github.com/roach88/teamtask/internal/schema"
	"github.com/roach88/teamtask/internal/store"
)

// UserDirectory resolves users by ID.
type UserDirectory interface {
	FindUserByID(ctx context.Context, id string) (domain.User, error)
}

// TaskStore persists tasks. Missing rows are reported with store.ErrNotFound.
type TaskStore interface {
	CreateTask(ctx context.Context, t domain.Task) error
	FindTaskByID(ctx context.Context, id string) (domain.Task, error)
	FindTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch, updatedBy string) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Notifier fans task events out to connected clients.
// Implemented by *notify.Hub.
type Notifier interface {
	TaskAssigned(assigneeID string, task domain.Task, assignedBy string) int
	TaskStatusChanged(teamID string, task domain.Task, oldStatus domain.Status, changedBy string) int
	TaskCreated(teamID string, task domain.Task, createdBy string) int
	TaskUpdated(teamID string, task domain.Task, updatedBy string, changes map[string]any) int
	TaskDeleted(teamID, taskID, title, deletedBy string) int
}

// Recorder derives counters from events. Implemented by
// *analytics.Aggregator.
type Recorder interface {
	Record(ctx context.Context, eventType domain.EventType, data domain.EventData, userID string)
}

// Submitter accepts fire-and-forget jobs. Implemented by *dispatch.Pool
// and dispatch.Inline.
type Submitter interface {
	Submit(name string, run func(ctx context.Context) error) bool
}

// Validator normalizes and validates payloads. Implemented by
// *schema.Validator.
type Validator interface {
	Draft(d domain.TaskDraft) (domain.TaskDraft, error)
	Patch(p domain.TaskPatch) (domain.TaskPatch, error)
}

// Payload carries the action-specific part of a Submit call.
//
//   - create: Draft
//   - read, delete: TaskID
//   - update: TaskID and Patch
type Payload struct {
	TaskID string
	Draft  *domain.TaskDraft
	Patch  *domain.TaskPatch
}

// Coordinator sequences authorization, lifecycle and persistence for tasks.
//
// Thread-safety: all methods are safe for concurrent use provided the
// collaborators are.
type Coordinator struct {
	tasks     TaskStore
	users     UserDirectory
	validator Validator
	notifier  Notifier
	recorder  Recorder
	sink      eventlog.Sink
	jobs      Submitter
	ids       ids.Generator
	now       func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNotifier sets the notification target. Without one, no
// notifications are sent.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithRecorder sets the analytics recorder. Without one, no counters are
// derived.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithEventSink sets the event archive. Defaults to eventlog.Discard.
func WithEventSink(s eventlog.Sink) Option {
	return func(c *Coordinator) { c.sink = s }
}

// WithSubmitter sets where side-effect jobs run. The default,
// dispatch.Inline, runs them before the mutating call returns.
func WithSubmitter(s Submitter) Option {
	return func(c *Coordinator) { c.jobs = s }
}

// WithIDs sets the identifier generator. Defaults to UUIDv7.
func WithIDs(g ids.Generator) Option {
	return func(c *Coordinator) { c.ids = g }
}

// WithClock sets the time source for created_at and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithValidator overrides the payload validator.
func WithValidator(v Validator) Option {
	return func(c *Coordinator) { c.validator = v }
}

// New creates a coordinator over the given store and directory.
func New(tasks TaskStore, users UserDirectory, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		tasks: tasks,
		users: users,
		sink:  eventlog.Discard{},
		jobs:  dispatch.Inline{},
		ids:   ids.UUIDv7{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.validator == nil {
		v, err := schema.New()
		if err != nil {
			return nil, fmt.Errorf("create coordinator: %w", err)
		}
		c.validator = v
	}
	return c, nil
}

// Submit performs action on behalf of actor. It returns the resulting task
// for create, read and update, and nil for delete.
func (c *Coordinator) Submit(ctx context.Context, actor domain.AuthContext, action domain.Action, p Payload) (*domain.Task, error) {
	switch action {
	case domain.ActionCreate:
		if p.Draft == nil {
			return nil, validationError("create requires a task payload")
		}
		t, err := c.Create(ctx, actor, *p.Draft)
		if err != nil {
			return nil, err
		}
		return &t, nil

	case domain.ActionRead:
		t, err := c.Get(ctx, actor, p.TaskID)
		if err != nil {
			return nil, err
		}
		return &t, nil

	case domain.ActionUpdate:
		if p.Patch == nil {
			return nil, validationError("update requires a patch")
		}
		t, err := c.Update(ctx, actor, p.TaskID, *p.Patch)
		if err != nil {
			return nil, err
		}
		return &t, nil

	case domain.ActionDelete:
		return nil, c.Delete(ctx, actor, p.TaskID)

	default:
		return nil, validationError(fmt.Sprintf("unknown action %q", action))
	}
}

// Create authorizes and stores a new task.
//
// Personal tasks are assigned to their creator in the creator's team;
// any requested assignee is ignored. Team tasks go to the requested
// assignee, who must be an active member of the creator's team.
func (c *Coordinator) Create(ctx context.Context, actor domain.AuthContext, draft domain.TaskDraft) (domain.Task, error) {
	if actor.IsZero() {
		return domain.Task{}, deniedError(authz.ReasonAnonymousActor)
	}

	draft, err := c.validator.Draft(draft)
	if err != nil {
		return domain.Task{}, validationFrom(err)
	}

	shape := &authz.Shape{IsPersonal: draft.IsPersonal}
	if !draft.IsPersonal && draft.AssignedTo != "" {
		assignee, err := c.lookupUser(ctx, draft.AssignedTo)
		if err != nil {
			return domain.Task{}, err
		}
		shape.Assignee = assignee
	}

	if err := decisionError(authz.CanPerform(actor, nil, domain.ActionCreate, shape)); err != nil {
		c.logRejected(actor, domain.ActionCreate, "", err)
		return domain.Task{}, err
	}

	now := c.now().UTC()
	task := domain.Task{
		ID:          c.ids.Generate(),
		Title:       draft.Title,
		Description: draft.Description,
		Status:      lifecycle.Initial(),
		Priority:    draft.Priority,
		DueDate:     draft.DueDate,
		AssignedBy:  actor.UserID(),
		CreatedBy:   actor.UserID(),
		TeamID:      actor.TeamID(),
		IsPersonal:  draft.IsPersonal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Priority == "" {
		task.Priority = domain.DefaultPriority
	}
	if task.IsPersonal {
		task.AssignedTo = actor.UserID()
	} else {
		task.AssignedTo = shape.Assignee.ID
	}

	if err := c.tasks.CreateTask(ctx, task); err != nil {
		return domain.Task{}, unavailableError("create task", err)
	}

	slog.Debug("task created",
		"task_id", task.ID,
		"user_id", actor.UserID(),
		"is_personal", task.IsPersonal)

	c.afterCreate(ctx, actor, task)
	return task, nil
}

// Get returns a task the actor may read.
func (c *Coordinator) Get(ctx context.Context, actor domain.AuthContext, id string) (domain.Task, error) {
	task, err := c.loadTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := decisionError(authz.CanPerform(actor, &task, domain.ActionRead, nil)); err != nil {
		c.logRejected(actor, domain.ActionRead, id, err)
		return domain.Task{}, err
	}
	return task, nil
}

// Update applies patch to a task the actor may modify.
//
// A status change is checked against the lifecycle table only when it
// differs from the stored status. A change of assignee is checked with the
// team assignee rule; personal tasks cannot be reassigned.
func (c *Coordinator) Update(ctx context.Context, actor domain.AuthContext, id string, patch domain.TaskPatch) (domain.Task, error) {
	if patch.IsEmpty() {
		return domain.Task{}, validationError("no fields to update")
	}
	patch, err := c.validator.Patch(patch)
	if err != nil {
		return domain.Task{}, validationFrom(err)
	}

	before, err := c.loadTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := decisionError(authz.CanPerform(actor, &before, domain.ActionUpdate, nil)); err != nil {
		c.logRejected(actor, domain.ActionUpdate, id, err)
		return domain.Task{}, err
	}

	if patch.Status != nil && *patch.Status != before.Status {
		if err := lifecycle.ValidateTransition(before.Status, *patch.Status); err != nil {
			return domain.Task{}, transitionError(before.Status, *patch.Status)
		}
	}

	if patch.AssignedTo != nil && *patch.AssignedTo != before.AssignedTo {
		if before.IsPersonal {
			return domain.Task{}, validationError("personal tasks cannot be reassigned")
		}
		assignee, err := c.lookupUser(ctx, *patch.AssignedTo)
		if err != nil {
			return domain.Task{}, err
		}
		if err := decisionError(authz.CheckAssignee(actor, assignee)); err != nil {
			return domain.Task{}, err
		}
	}

	after, err := c.tasks.UpdateTask(ctx, id, patch, actor.UserID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Task{}, notFoundError("task", id)
		}
		// The status moved on between the read above and the write.
		var te *lifecycle.TransitionError
		if errors.As(err, &te) {
			return domain.Task{}, transitionError(te.From, te.To)
		}
		return domain.Task{}, unavailableError("update task", err)
	}

	slog.Debug("task updated", "task_id", id, "user_id", actor.UserID())

	c.afterUpdate(ctx, actor, before, after)
	return after, nil
}

// Delete removes a task the actor may modify.
func (c *Coordinator) Delete(ctx context.Context, actor domain.AuthContext, id string) error {
	task, err := c.loadTask(ctx, id)
	if err != nil {
		return err
	}
	if err := decisionError(authz.CanPerform(actor, &task, domain.ActionDelete, nil)); err != nil {
		c.logRejected(actor, domain.ActionDelete, id, err)
		return err
	}

	if err := c.tasks.DeleteTask(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("task", id)
		}
		return unavailableError("delete task", err)
	}

	slog.Debug("task deleted", "task_id", id, "user_id", actor.UserID())

	c.afterDelete(ctx, actor, task)
	return nil
}

func (c *Coordinator) loadTask(ctx context.Context, id string) (domain.Task, error) {
	if id == "" {
		return domain.Task{}, validationError("task id is required")
	}
	task, err := c.tasks.FindTaskByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Task{}, notFoundError("task", id)
		}
		return domain.Task{}, unavailableError("find task", err)
	}
	return task, nil
}

// lookupUser resolves id, returning nil when no such user exists.
func (c *Coordinator) lookupUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := c.users.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, unavailableError("find user", err)
	}
	return &u, nil
}

func (c *Coordinator) logRejected(actor domain.AuthContext, action domain.Action, taskID string, err error) {
	slog.Debug("task action rejected",
		"user_id", actor.UserID(),
		"role", actor.Role(),
		"action", action,
		"task_id", taskID,
		"error", err)
}

// decisionError maps an authorization decision onto the error taxonomy.
// Shape problems are validation errors, not denials.
func decisionError(d authz.Decision) error {
	if d.Allowed {
		return nil
	}
	if d.Code == authz.DenyInvalidShape {
		return validationError(d.Reason)
	}
	return deniedError(d.Reason)
}

func validationFrom(err error) error {
	var fe *schema.FieldError
	if errors.As(err, &fe) {
		return &Error{Code: ErrCodeValidation, Message: fe.Error(), Err: err}
	}
	return &Error{Code: ErrCodeValidation, Message: "invalid payload", Err: err}
}
