package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/teamtask/internal/analytics"
	"github.com/roach88/teamtask/internal/domain"
)

type metadataKey struct{}

// WithMetadata attaches request metadata to ctx. Events recorded for
// mutations made under ctx carry it.
func WithMetadata(ctx context.Context, meta domain.EventMetadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, meta)
}

// MetadataFrom returns the request metadata attached to ctx, if any.
func MetadataFrom(ctx context.Context) domain.EventMetadata {
	meta, _ := ctx.Value(metadataKey{}).(domain.EventMetadata)
	return meta
}

// RecordEvent archives and counts a non-task event (logins, failed logins,
// admin actions). It returns the record as submitted; archiving and
// counting happen in a background job.
func (c *Coordinator) RecordEvent(ctx context.Context, eventType domain.EventType, data domain.EventData, userID string) domain.EventRecord {
	rec := c.newEvent(ctx, eventType, userID, data)
	c.submitEvents(string(eventType), []domain.EventRecord{rec})
	return rec
}

func (c *Coordinator) newEvent(ctx context.Context, eventType domain.EventType, userID string, data domain.EventData) domain.EventRecord {
	return domain.EventRecord{
		ID:        c.ids.Generate(),
		EventType: eventType,
		EventData: data,
		Metadata:  MetadataFrom(ctx),
		UserID:    userID,
		Timestamp: c.now().UTC(),
	}
}

func (c *Coordinator) afterCreate(ctx context.Context, actor domain.AuthContext, task domain.Task) {
	events := []domain.EventRecord{
		c.newEvent(ctx, domain.EventTaskCreated, actor.UserID(), domain.EventData{
			"task_id":     task.ID,
			"title":       task.Title,
			"is_personal": task.IsPersonal,
			"team_id":     task.TeamID,
		}),
	}
	if !task.IsPersonal {
		events = append(events, c.newEvent(ctx, domain.EventTaskAssigned, actor.UserID(), domain.EventData{
			"task_id":                task.ID,
			analytics.DataAssignedTo: task.AssignedTo,
		}))
	}
	c.submitEvents("task created", events)

	// Personal tasks are private to their creator; nobody else is told.
	if task.IsPersonal || c.notifier == nil {
		return
	}
	c.jobs.Submit("notify task created", func(context.Context) error {
		c.notifier.TaskCreated(task.TeamID, task, actor.UserID())
		c.notifier.TaskAssigned(task.AssignedTo, task, actor.UserID())
		return nil
	})
}

func (c *Coordinator) afterUpdate(ctx context.Context, actor domain.AuthContext, before, after domain.Task) {
	changes := diff(before, after)

	events := []domain.EventRecord{
		c.newEvent(ctx, domain.EventTaskUpdated, actor.UserID(), domain.EventData{
			"task_id": after.ID,
			"changes": changes,
		}),
	}
	statusChanged := before.Status != after.Status
	if statusChanged {
		events = append(events, c.newEvent(ctx, domain.EventTaskStatusChanged, actor.UserID(), domain.EventData{
			"task_id":               after.ID,
			"old_status":            string(before.Status),
			analytics.DataNewStatus: string(after.Status),
		}))
	}
	reassigned := before.AssignedTo != after.AssignedTo
	if reassigned {
		events = append(events, c.newEvent(ctx, domain.EventTaskAssigned, actor.UserID(), domain.EventData{
			"task_id":                after.ID,
			"previous_assignee":      before.AssignedTo,
			analytics.DataAssignedTo: after.AssignedTo,
		}))
	}
	c.submitEvents("task updated", events)

	if after.IsPersonal || c.notifier == nil {
		return
	}
	c.jobs.Submit("notify task updated", func(context.Context) error {
		if statusChanged {
			c.notifier.TaskStatusChanged(after.TeamID, after, before.Status, actor.UserID())
		}
		if reassigned {
			c.notifier.TaskAssigned(after.AssignedTo, after, actor.UserID())
		}
		c.notifier.TaskUpdated(after.TeamID, after, actor.UserID(), changes)
		return nil
	})
}

func (c *Coordinator) afterDelete(ctx context.Context, actor domain.AuthContext, task domain.Task) {
	c.submitEvents("task deleted", []domain.EventRecord{
		c.newEvent(ctx, domain.EventTaskDeleted, actor.UserID(), domain.EventData{
			"task_id": task.ID,
			"title":   task.Title,
		}),
	})

	if task.IsPersonal || c.notifier == nil {
		return
	}
	c.jobs.Submit("notify task deleted", func(context.Context) error {
		c.notifier.TaskDeleted(task.TeamID, task.ID, task.Title, actor.UserID())
		return nil
	})
}

// submitEvents queues one job that archives and counts the records in
// order. A sink failure does not stop the remaining records or counters.
func (c *Coordinator) submitEvents(name string, events []domain.EventRecord) {
	c.jobs.Submit("events "+name, func(ctx context.Context) error {
		var errs []error
		for _, rec := range events {
			if err := c.sink.AppendEvent(ctx, rec); err != nil {
				errs = append(errs, fmt.Errorf("append %s: %w", rec.EventType, err))
			}
			if c.recorder != nil {
				c.recorder.Record(ctx, rec.EventType, rec.EventData, rec.UserID)
			}
		}
		return errors.Join(errs...)
	})
}

// diff lists the fields that differ between two versions of a task,
// keyed by JSON name, with the new values.
func diff(before, after domain.Task) map[string]any {
	changes := map[string]any{}
	if before.Title != after.Title {
		changes["title"] = after.Title
	}
	if before.Description != after.Description {
		changes["description"] = after.Description
	}
	if before.Status != after.Status {
		changes["status"] = string(after.Status)
	}
	if before.Priority != after.Priority {
		changes["priority"] = string(after.Priority)
	}
	if !sameDue(before.DueDate, after.DueDate) {
		changes["due_date"] = after.DueDate
	}
	if before.AssignedTo != after.AssignedTo {
		changes["assigned_to"] = after.AssignedTo
	}
	return changes
}

func sameDue(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
