package domain

import "time"

// EventType names an observed event. Values match the archived event log.
type EventType string

const (
	EventUserLogin           EventType = "USER_LOGIN"
	EventUserLogout          EventType = "USER_LOGOUT"
	EventUserRegister        EventType = "USER_REGISTER"
	EventUserProfileUpdated  EventType = "USER_PROFILE_UPDATED"
	EventUserPasswordChanged EventType = "USER_PASSWORD_CHANGED"

	EventTaskCreated       EventType = "TASK_CREATED"
	EventTaskUpdated       EventType = "TASK_UPDATED"
	EventTaskDeleted       EventType = "TASK_DELETED"
	EventTaskStatusChanged EventType = "TASK_STATUS_CHANGED"
	EventTaskAssigned      EventType = "TASK_ASSIGNED"

	EventTeamJoined      EventType = "TEAM_JOINED"
	EventTeamLeft        EventType = "TEAM_LEFT"
	EventTeamRoleChanged EventType = "TEAM_ROLE_CHANGED"

	EventAdminUserCreated     EventType = "ADMIN_USER_CREATED"
	EventAdminUserSuspended   EventType = "ADMIN_USER_SUSPENDED"
	EventAdminUserRoleChanged EventType = "ADMIN_USER_ROLE_CHANGED"

	EventSecurityFailedLogin        EventType = "SECURITY_FAILED_LOGIN"
	EventSecuritySuspiciousActivity EventType = "SECURITY_SUSPICIOUS_ACTIVITY"
)

// EventData is the opaque payload of an event.
type EventData map[string]any

// EventMetadata is the request context captured with an event.
type EventMetadata struct {
	IP         string `json:"ip,omitempty" bson:"ip,omitempty"`
	UserAgent  string `json:"user_agent,omitempty" bson:"user_agent,omitempty"`
	Method     string `json:"method,omitempty" bson:"method,omitempty"`
	URL        string `json:"url,omitempty" bson:"url,omitempty"`
	StatusCode int    `json:"status_code,omitempty" bson:"status_code,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty" bson:"duration_ms,omitempty"`
	RequestID  string `json:"request_id,omitempty" bson:"request_id,omitempty"`
}

// EventRecord is an append-only audit entry. Never mutated after creation.
type EventRecord struct {
	ID        string        `json:"id"`
	EventType EventType     `json:"event_type"`
	EventData EventData     `json:"event_data"`
	Metadata  EventMetadata `json:"metadata"`
	UserID    string        `json:"user_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// EventFilter narrows an event log read. Zero fields do not filter.
type EventFilter struct {
	EventType EventType
	UserID    string
	Since     time.Time
	Until     time.Time
}
