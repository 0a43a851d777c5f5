package notify

import (
	"github.com/roach88/teamtask/internal/domain"
)

// Event names sent to clients.
const (
	EventTaskAssigned      = "task:assigned"
	EventTaskStatusChanged = "task:status-changed"
	EventTaskCreated       = "task:created"
	EventTaskUpdated       = "task:updated"
	EventTaskDeleted       = "task:deleted"
)

// TaskAssigned tells the assignee about a new assignment.
func (h *Hub) TaskAssigned(assigneeID string, task domain.Task, assignedBy string) int {
	return h.Dispatch(EventTaskAssigned, map[string]any{
		"type":        "task_assigned",
		"task":        task,
		"assigned_by": assignedBy,
		"message":     "You have been assigned a new task: " + task.Title,
	}, ToUser(assigneeID))
}

// TaskStatusChanged tells the task's team about a status change.
func (h *Hub) TaskStatusChanged(teamID string, task domain.Task, oldStatus domain.Status, changedBy string) int {
	return h.Dispatch(EventTaskStatusChanged, map[string]any{
		"type":       "status_changed",
		"task":       task,
		"old_status": oldStatus,
		"new_status": task.Status,
		"changed_by": changedBy,
		"message":    "Task \"" + task.Title + "\" status changed from " + string(oldStatus) + " to " + string(task.Status),
	}, ToTeam(teamID))
}

// TaskCreated tells the task's team about a new task.
func (h *Hub) TaskCreated(teamID string, task domain.Task, createdBy string) int {
	return h.Dispatch(EventTaskCreated, map[string]any{
		"type":       "task_created",
		"task":       task,
		"created_by": createdBy,
		"message":    "New task created: " + task.Title,
	}, ToTeam(teamID))
}

// TaskUpdated tells the task's team about field changes.
func (h *Hub) TaskUpdated(teamID string, task domain.Task, updatedBy string, changes map[string]any) int {
	return h.Dispatch(EventTaskUpdated, map[string]any{
		"type":       "task_updated",
		"task":       task,
		"updated_by": updatedBy,
		"changes":    changes,
		"message":    "Task \"" + task.Title + "\" has been updated",
	}, ToTeam(teamID))
}

// TaskDeleted tells the task's team that a task is gone.
func (h *Hub) TaskDeleted(teamID, taskID, title, deletedBy string) int {
	return h.Dispatch(EventTaskDeleted, map[string]any{
		"type":       "task_deleted",
		"task_id":    taskID,
		"task_title": title,
		"deleted_by": deletedBy,
		"message":    "Task \"" + title + "\" has been deleted",
	}, ToTeam(teamID))
}
