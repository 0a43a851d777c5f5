package analytics

import (
	"time"

	"github.com/roach88/teamtask/internal/domain"
)

// Counter keys. Names are shared with any other reader of the cache, so
// they must not change.
const (
	KeyTasksTotal           = "analytics:tasks:total"
	KeyTasksCompleted       = "analytics:tasks:completed"
	KeyUsersLogins          = "analytics:users:logins"
	KeyUsersRegistrations   = "analytics:users:registrations"
	KeyUsersTotal           = "analytics:users:total"
	KeyActiveUsers          = "analytics:active_users"
	KeyFailedLogins         = "analytics:security:failed_logins"
	KeySuspiciousActivities = "analytics:security:suspicious_activities"
	KeyAdminUsersCreated    = "analytics:admin:users_created"
	KeyAdminUsersSuspended  = "analytics:admin:users_suspended"
)

// DateKey formats t as the UTC calendar date used in dated keys.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// EventTotalKey counts every occurrence of an event type.
func EventTotalKey(t domain.EventType) string {
	return "analytics:events:" + string(t) + ":total"
}

// EventDateKey counts an event type on one day.
func EventDateKey(t domain.EventType, date string) string {
	return "analytics:events:" + string(t) + ":" + date
}

// UserEventTotalKey counts an event type for one user.
func UserEventTotalKey(userID string, t domain.EventType) string {
	return "user:" + userID + ":events:" + string(t) + ":total"
}

// UserEventDateKey counts an event type for one user on one day.
func UserEventDateKey(userID string, t domain.EventType, date string) string {
	return "user:" + userID + ":events:" + string(t) + ":" + date
}

// ActiveUsersDateKey is the set of users seen on one day.
func ActiveUsersDateKey(date string) string {
	return KeyActiveUsers + ":" + date
}

// TasksDateKey counts tasks created on one day.
func TasksDateKey(date string) string {
	return "analytics:tasks:" + date
}

// TasksByStatusKey counts transitions into a status.
func TasksByStatusKey(s domain.Status) string {
	return "analytics:tasks:by_status:" + string(s)
}

// UserTasksKey counts a per-user task metric: created, completed, assigned.
func UserTasksKey(userID, metric string) string {
	return "user:" + userID + ":tasks:" + metric
}

// FailedLoginsIPKey counts failed logins from one address.
func FailedLoginsIPKey(ip string) string {
	return KeyFailedLogins + ":ip:" + ip
}
