package domain

import "time"

// TaskDraft is the intended shape of a task to create.
type TaskDraft struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	IsPersonal  bool       `json:"is_personal,omitempty"`
}

// TaskPatch is a partial update. Nil fields are left unchanged.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	AssignedTo  *string    `json:"assigned_to,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.DueDate == nil && p.AssignedTo == nil
}

// TaskView selects a predefined listing.
type TaskView string

const (
	ViewDefault         TaskView = ""
	ViewMyTasks         TaskView = "my-tasks"
	ViewMyPersonalTasks TaskView = "my-personal-tasks"
	ViewCreatedByMe     TaskView = "created-by-me"
	ViewTeamTasks       TaskView = "team-tasks"
)

// TaskQuery is a caller's list request.
type TaskQuery struct {
	View       TaskView `json:"view,omitempty"`
	Status     Status   `json:"status,omitempty"`
	Priority   Priority `json:"priority,omitempty"`
	AssignedTo string   `json:"assigned_to,omitempty"`
	IsPersonal *bool    `json:"is_personal,omitempty"`
}

// TaskFilter is a resolved store predicate. Empty fields do not filter.
// When CreatedOrAssigned is set, tasks match if created_by or assigned_to
// equals it.
type TaskFilter struct {
	AssignedTo        string
	CreatedBy         string
	CreatedOrAssigned string
	TeamID            string
	Status            Status
	Priority          Priority
	IsPersonal        *bool
}
