// Package analytics derives usage counters from observed events.
//
// Counters are best-effort: there is no idempotency, no atomicity across
// the several keys one event touches, and an unreachable cache silently
// drops writes and reads as zero. Nothing here ever fails a caller.
package analytics

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/teamtask/internal/cache"
	"github.com/roach88/teamtask/internal/domain"
)

// DefaultTimeout bounds each cache call.
const DefaultTimeout = 3 * time.Second

// Event data keys read by the aggregator.
const (
	DataNewStatus  = "new_status"
	DataAssignedTo = "assigned_to"
	DataIP         = "ip"
)

// Aggregator writes and reads counters in a cache.Store.
type Aggregator struct {
	store   cache.Store
	timeout time.Duration
	now     func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTimeout sets the per-call cache timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithClock sets the time source for dated keys and snapshots.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// New creates an Aggregator over store.
func New(store cache.Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:   store,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// recorder applies counter updates for one event and stops at the first
// unavailable error, so an outage costs one timeout rather than one per key.
type recorder struct {
	a         *Aggregator
	ctx       context.Context
	eventType domain.EventType
	err       error
}

func (r *recorder) incr(key string) {
	if r.err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, r.a.timeout)
	defer cancel()
	if _, err := r.a.store.Incr(ctx, key, 1); err != nil {
		r.fail(key, err)
	}
}

func (r *recorder) sadd(key, member string) {
	if r.err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, r.a.timeout)
	defer cancel()
	if _, err := r.a.store.SAdd(ctx, key, member); err != nil {
		r.fail(key, err)
	}
}

func (r *recorder) fail(key string, err error) {
	if errors.Is(err, cache.ErrUnavailable) {
		r.err = err
		return
	}
	// A single bad key (e.g. wrong type) does not stop the others.
	slog.Warn("analytics counter update failed",
		"event_type", r.eventType,
		"key", key,
		"error", err)
}

// Record updates every counter derived from one event. It never returns an
// error and never panics on cache failures.
//
// ctx only carries cancellation; each cache call gets its own timeout.
func (a *Aggregator) Record(ctx context.Context, eventType domain.EventType, data domain.EventData, userID string) {
	date := DateKey(a.now())
	r := &recorder{a: a, ctx: ctx, eventType: eventType}

	r.incr(EventTotalKey(eventType))
	r.incr(EventDateKey(eventType, date))

	if userID != "" {
		r.incr(UserEventTotalKey(userID, eventType))
		r.incr(UserEventDateKey(userID, eventType, date))
		r.sadd(ActiveUsersDateKey(date), userID)
	}

	name := string(eventType)
	switch {
	case strings.HasPrefix(name, "TASK_"):
		a.recordTask(r, eventType, data, userID, date)
	case strings.HasPrefix(name, "USER_"):
		a.recordUser(r, eventType, userID)
	case strings.HasPrefix(name, "SECURITY_"):
		a.recordSecurity(r, eventType, data)
	case strings.HasPrefix(name, "ADMIN_"):
		a.recordAdmin(r, eventType)
	}

	if r.err != nil {
		slog.Warn("analytics skipped: cache unavailable",
			"event_type", eventType,
			"error", r.err)
		return
	}
	slog.Debug("analytics recorded", "event_type", eventType, "user_id", userID)
}

func (a *Aggregator) recordTask(r *recorder, eventType domain.EventType, data domain.EventData, userID, date string) {
	switch eventType {
	case domain.EventTaskCreated:
		r.incr(KeyTasksTotal)
		r.incr(TasksDateKey(date))
		if userID != "" {
			r.incr(UserTasksKey(userID, "created"))
		}

	case domain.EventTaskStatusChanged:
		status := stringField(data, DataNewStatus)
		if status == "" {
			return
		}
		r.incr(TasksByStatusKey(domain.Status(status)))
		if domain.Status(status) == domain.StatusDone {
			r.incr(KeyTasksCompleted)
			if userID != "" {
				r.incr(UserTasksKey(userID, "completed"))
			}
		}

	case domain.EventTaskAssigned:
		if assignee := stringField(data, DataAssignedTo); assignee != "" {
			r.incr(UserTasksKey(assignee, "assigned"))
		}
	}
}

func (a *Aggregator) recordUser(r *recorder, eventType domain.EventType, userID string) {
	switch eventType {
	case domain.EventUserLogin:
		r.incr(KeyUsersLogins)
		if userID != "" {
			r.sadd(KeyActiveUsers, userID)
		}
	case domain.EventUserRegister:
		r.incr(KeyUsersRegistrations)
		r.incr(KeyUsersTotal)
	}
}

func (a *Aggregator) recordSecurity(r *recorder, eventType domain.EventType, data domain.EventData) {
	switch eventType {
	case domain.EventSecurityFailedLogin:
		r.incr(KeyFailedLogins)
		if ip := stringField(data, DataIP); ip != "" {
			r.incr(FailedLoginsIPKey(ip))
		}
	case domain.EventSecuritySuspiciousActivity:
		r.incr(KeySuspiciousActivities)
	}
}

func (a *Aggregator) recordAdmin(r *recorder, eventType domain.EventType) {
	switch eventType {
	case domain.EventAdminUserCreated:
		r.incr(KeyAdminUsersCreated)
	case domain.EventAdminUserSuspended:
		r.incr(KeyAdminUsersSuspended)
	}
}

// stringField reads a string-ish value from event data.
func stringField(data domain.EventData, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case domain.Status:
		return string(v)
	}
	return ""
}

// GetCounter returns the counter at key, or 0 when the key is missing,
// non-numeric or the cache is unavailable.
func (a *Aggregator) GetCounter(ctx context.Context, key string) int64 {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	v, err := a.store.Get(ctx, key)
	if err != nil {
		slog.Debug("analytics read failed", "key", key, "error", err)
		return 0
	}
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// SetSize returns the cardinality of the set at key, 0 on any failure.
func (a *Aggregator) SetSize(ctx context.Context, key string) int64 {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	n, err := a.store.SCard(ctx, key)
	if err != nil {
		slog.Debug("analytics read failed", "key", key, "error", err)
		return 0
	}
	return n
}

// ActiveUsers returns the number of distinct users seen on date
// (YYYY-MM-DD).
func (a *Aggregator) ActiveUsers(ctx context.Context, date string) int64 {
	return a.SetSize(ctx, ActiveUsersDateKey(date))
}

// Snapshot is the realtime dashboard view.
type Snapshot struct {
	Users     UserStats     `json:"users"`
	Tasks     TaskStats     `json:"tasks"`
	Security  SecurityStats `json:"security"`
	Timestamp time.Time     `json:"timestamp"`
}

// UserStats counts users.
type UserStats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// TaskStats counts tasks. CompletionRate is a percentage.
type TaskStats struct {
	Total          int64   `json:"total"`
	Completed      int64   `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
}

// SecurityStats counts security events.
type SecurityStats struct {
	FailedLogins int64 `json:"failed_logins"`
}

// Snapshot reads the realtime counters. Missing or unreachable counters
// read as zero. All reads share one timeout, so a hung cache delays the
// snapshot by one timeout, not one per counter.
func (a *Aggregator) Snapshot(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	s := Snapshot{
		Users: UserStats{
			Total:  a.GetCounter(ctx, KeyUsersTotal),
			Active: a.SetSize(ctx, KeyActiveUsers),
		},
		Tasks: TaskStats{
			Total:     a.GetCounter(ctx, KeyTasksTotal),
			Completed: a.GetCounter(ctx, KeyTasksCompleted),
		},
		Security: SecurityStats{
			FailedLogins: a.GetCounter(ctx, KeyFailedLogins),
		},
		Timestamp: a.now().UTC(),
	}
	if s.Tasks.Total > 0 {
		s.Tasks.CompletionRate = float64(s.Tasks.Completed) / float64(s.Tasks.Total) * 100
	}
	return s
}

// Available reports whether the cache answers a ping.
func (a *Aggregator) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.store.Ping(ctx) == nil
}
