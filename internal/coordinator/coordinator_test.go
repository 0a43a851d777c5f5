package coordinator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/teamtask/internal/analytics"
	"github.com/roach88/teamtask/internal/cache"
	"github.com/roach88/teamtask/internal/dispatch"
	"github.com/roach88/teamtask/internal/domain"
	"github.com/roach88/teamtask/internal/eventlog"
	"github.com/roach88/teamtask/internal/notify"
	"github.com/roach88/teamtask/internal/store"
	"github.com/roach88/teamtask/internal/testutil"
)

var (
	manager  = domain.User{ID: "manager-1", Email: "m1@example.com", Role: domain.RoleManager, TeamID: "team-1", IsActive: true}
	manager2 = domain.User{ID: "manager-2", Email: "m2@example.com", Role: domain.RoleManager, TeamID: "team-2", IsActive: true}
	memberA  = domain.User{ID: "member-a", Email: "a@example.com", Role: domain.RoleMember, TeamID: "team-1", IsActive: true}
	memberB  = domain.User{ID: "member-b", Email: "b@example.com", Role: domain.RoleMember, TeamID: "team-1", IsActive: true}
	memberC  = domain.User{ID: "member-c", Email: "c@example.com", Role: domain.RoleMember, TeamID: "team-2", IsActive: true}
	inactive = domain.User{ID: "member-z", Email: "z@example.com", Role: domain.RoleMember, TeamID: "team-1", IsActive: false}
	admin    = domain.User{ID: "admin-1", Email: "admin@example.com", Role: domain.RoleAdmin, IsActive: true}
)

func as(u domain.User) domain.AuthContext { return domain.AuthContextFor(u) }

type fixture struct {
	c     *Coordinator
	store *store.Store
	hub   *notify.Hub
	cache *cache.MemoryStore
	agg   *analytics.Aggregator

	teamConn *testutil.RecordingConn // in team-1
	aConn    *testutil.RecordingConn // member A's user room
	bConn    *testutil.RecordingConn // member B's user room
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	for _, team := range []domain.Team{
		{ID: "team-1", Name: "Platform", IsActive: true},
		{ID: "team-2", Name: "Mobile", IsActive: true},
	} {
		require.NoError(t, s.CreateTeam(ctx, team))
	}
	for _, u := range []domain.User{manager, manager2, memberA, memberB, memberC, inactive, admin} {
		require.NoError(t, s.CreateUser(ctx, u))
	}

	f := &fixture{
		store:    s,
		hub:      notify.NewHub(),
		cache:    cache.NewMemoryStore(),
		teamConn: testutil.NewRecordingConn(),
		aConn:    testutil.NewRecordingConn(),
		bConn:    testutil.NewRecordingConn(),
	}
	f.agg = analytics.New(f.cache, analytics.WithTimeout(time.Second))

	f.hub.Register("team-conn", f.teamConn)
	f.hub.Register("a-conn", f.aConn)
	f.hub.Register("b-conn", f.bConn)
	require.NoError(t, f.hub.Join("team-conn", notify.TeamRoom("team-1")))
	require.NoError(t, f.hub.Join("a-conn", notify.UserRoom(memberA.ID)))
	require.NoError(t, f.hub.Join("b-conn", notify.UserRoom(memberB.ID)))

	clock := testutil.NewClock(testutil.Epoch, time.Second)
	base := []Option{
		WithNotifier(f.hub),
		WithRecorder(f.agg),
		WithEventSink(s),
		WithIDs(testutil.NewSequentialIDs("id")),
		WithClock(clock.Now),
	}
	f.c, err = New(s, s, append(base, opts...)...)
	require.NoError(t, err)
	return f
}

func teamDraft(title, assignee string) domain.TaskDraft {
	return domain.TaskDraft{Title: title, AssignedTo: assignee}
}

func statusPatch(s domain.Status) domain.TaskPatch {
	return domain.TaskPatch{Status: &s}
}

func (f *fixture) createTeamTask(t *testing.T, title, assignee string) domain.Task {
	t.Helper()
	task, err := f.c.Create(context.Background(), as(manager), teamDraft(title, assignee))
	require.NoError(t, err)
	return task
}

// Creation

func TestCreate_TeamTaskByManager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.c.Create(ctx, as(manager), teamDraft("Ship release", memberA.ID))
	require.NoError(t, err)

	assert.Equal(t, "id-0001", task.ID)
	assert.Equal(t, domain.StatusTodo, task.Status)
	assert.Equal(t, "team-1", task.TeamID)
	assert.Equal(t, memberA.ID, task.AssignedTo)
	assert.Equal(t, manager.ID, task.AssignedBy)
	assert.Equal(t, manager.ID, task.CreatedBy)
	assert.Equal(t, domain.PriorityMedium, task.Priority)
	assert.False(t, task.IsPersonal)
	assert.Equal(t, testutil.Epoch, task.CreatedAt)

	stored, err := f.store.FindTaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Title, stored.Title)

	assert.Equal(t, []string{notify.EventTaskCreated}, f.teamConn.Events())
	assert.Equal(t, []string{notify.EventTaskAssigned}, f.aConn.Events())
	assert.Empty(t, f.bConn.Events())

	assert.Equal(t, int64(1), f.agg.GetCounter(ctx, analytics.KeyTasksTotal))
	assert.Equal(t, int64(1), f.agg.GetCounter(ctx, analytics.UserTasksKey(manager.ID, "created")))
	assert.Equal(t, int64(1), f.agg.GetCounter(ctx, analytics.UserTasksKey(memberA.ID, "assigned")))

	events, err := f.store.ReadEvents(ctx, domain.EventFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	types := []domain.EventType{events[0].EventType, events[1].EventType}
	assert.ElementsMatch(t, []domain.EventType{domain.EventTaskCreated, domain.EventTaskAssigned}, types)
}

func TestCreate_NormalizesPayload(t *testing.T) {
	f := newFixture(t)

	task, err := f.c.Create(context.Background(), as(manager), domain.TaskDraft{
		Title:      "  Café menu  ",
		AssignedTo: memberA.ID,
		Priority:   domain.PriorityHigh,
	})
	require.NoError(t, err)

	assert.Equal(t, "Café menu", task.Title)
	assert.Equal(t, domain.PriorityHigh, task.Priority)
}

func TestCreate_PersonalTaskByMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.c.Create(ctx, as(memberA), domain.TaskDraft{
		Title:      "Dentist",
		IsPersonal: true,
		AssignedTo: memberB.ID, // ignored for personal tasks
	})
	require.NoError(t, err)

	assert.True(t, task.IsPersonal)
	assert.Equal(t, memberA.ID, task.AssignedTo)
	assert.Equal(t, memberA.ID, task.CreatedBy)
	assert.Equal(t, memberA.TeamID, task.TeamID)

	// Personal tasks are never fanned out.
	assert.Empty(t, f.teamConn.Events())
	assert.Empty(t, f.aConn.Events())
	assert.Empty(t, f.bConn.Events())

	_, err = f.c.Get(ctx, as(manager), task.ID)
	assert.True(t, IsDenied(err), "manager read of personal task: %v", err)

	got, err := f.c.Get(ctx, as(memberA), task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		actor domain.User
		draft domain.TaskDraft
		check func(error) bool
	}{
		{"empty title", manager, teamDraft("   ", memberA.ID), IsValidation},
		{"bad priority", manager, domain.TaskDraft{Title: "x", AssignedTo: memberA.ID, Priority: "URGENT"}, IsValidation},
		{"no assignee", manager, teamDraft("x", ""), IsValidation},
		{"unknown assignee", manager, teamDraft("x", "ghost"), IsValidation},
		{"assignee in other team", manager, teamDraft("x", memberC.ID), IsValidation},
		{"inactive assignee", manager, teamDraft("x", inactive.ID), IsValidation},
		{"assignee is a manager", manager, teamDraft("x", manager.ID), IsValidation},
		{"member creates team task", memberA, teamDraft("x", memberB.ID), IsDenied},
		{"manager creates personal task", manager, domain.TaskDraft{Title: "x", IsPersonal: true}, IsDenied},
		{"admin creates team task", admin, teamDraft("x", memberA.ID), IsDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.c.Create(context.Background(), as(tt.actor), tt.draft)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)

			n, err := f.store.FindTasks(context.Background(), domain.TaskFilter{})
			require.NoError(t, err)
			assert.Empty(t, n, "rejected create must not persist")
			assert.Empty(t, f.teamConn.Events())
		})
	}
}

func TestCreate_AnonymousActor(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.Create(context.Background(), domain.AuthContext{}, teamDraft("x", memberA.ID))
	assert.True(t, IsDenied(err))
}

// Reads

func TestGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTeamTask(t, "Review PR", memberA.ID)

	tests := []struct {
		name  string
		actor domain.User
		ok    bool
	}{
		{"assignee", memberA, true},
		{"teammate not assigned", memberB, false},
		{"creator manager", manager, true},
		{"manager of other team", manager2, false},
		{"member of other team", memberC, false},
		{"admin", admin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.c.Get(ctx, as(tt.actor), task.ID)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, task.ID, got.ID)
				return
			}
			assert.True(t, IsDenied(err), "expected denial, got %v", err)
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.Get(context.Background(), as(manager), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "task", ce.Entity)
	assert.Equal(t, "missing", ce.ID)
}

func TestGet_EmptyID(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.Get(context.Background(), as(manager), "")
	assert.True(t, IsValidation(err))
}

// Updates

func TestUpdate_TeammateDenied(t *testing.T) {
	f := newFixture(t)
	task := f.createTeamTask(t, "Fix login", memberA.ID)

	_, err := f.c.Update(context.Background(), as(memberB), task.ID, statusPatch(domain.StatusInProgress))
	require.Error(t, err)
	assert.True(t, IsDenied(err))

	stored, err := f.store.FindTaskByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTodo, stored.Status)
}

func TestUpdate_AssigneeMemberCannotModify(t *testing.T) {
	f := newFixture(t)
	task := f.createTeamTask(t, "Fix login", memberA.ID)

	_, err := f.c.Update(context.Background(), as(memberA), task.ID, statusPatch(domain.StatusInProgress))
	assert.True(t, IsDenied(err))
}

func TestUpdate_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTeamTask(t, "Write docs", memberA.ID)

	for _, next := range []domain.Status{domain.StatusInProgress, domain.StatusReview, domain.StatusDone} {
		updated, err := f.c.Update(ctx, as(manager), task.ID, statusPatch(next))
		require.NoError(t, err, "move to %s", next)
		assert.Equal(t, next, updated.Status)
	}

	_, err := f.c.Update(ctx, as(manager), task.ID, statusPatch(domain.StatusInProgress))
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, domain.StatusDone, ce.From)
	assert.Equal(t, domain.StatusInProgress, ce.To)

	assert.Equal(t, int64(1), f.agg.GetCounter(ctx, analytics.KeyTasksCompleted))
	assert.Equal(t, int64(1), f.agg.GetCounter(ctx, analytics.TasksByStatusKey(domain.StatusReview)))

	// created + 3 x (status-changed, updated)
	assert.Equal(t, []string{
		notify.EventTaskCreated,
		notify.EventTaskStatusChanged, notify.EventTaskUpdated,
		notify.EventTaskStatusChanged, notify.EventTaskUpdated,
		notify.EventTaskStatusChanged, notify.EventTaskUpdated,
	}, f.teamConn.Events())
}

// staleReads serves task reads as they were before the last status change,
// as a concurrent writer would see them.
type staleReads struct {
	*store.Store
	status domain.Status
}

func (s staleReads) FindTaskByID(ctx context.Context, id string) (domain.Task, error) {
	t, err := s.Store.FindTaskByID(ctx, id)
	t.Status = s.status
	return t, err
}

func TestUpdate_TransitionRecheckedAtWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTeamTask(t, "Race", memberA.ID)
	for _, next := range []domain.Status{domain.StatusInProgress, domain.StatusReview, domain.StatusDone} {
		_, err := f.c.Update(ctx, as(manager), task.ID, statusPatch(next))
		require.NoError(t, err)
	}
	events := len(f.teamConn.Events())

	// The reader still sees REVIEW, where IN_PROGRESS is legal.
	c, err := New(staleReads{Store: f.store, status: domain.StatusReview}, f.store, WithNotifier(f.hub))
	require.NoError(t, err)

	_, err = c.Update(ctx, as(manager), task.ID, statusPatch(domain.StatusInProgress))
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.StatusDone, ce.From)
	assert.Equal(t, domain.StatusInProgress, ce.To)

	stored, err := f.store.FindTaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, stored.Status)
	assert.Len(t, f.teamConn.Events(), events)
}

func TestUpdate_IllegalTransitionFromTodo(t *testing.T) {
	f := newFixture(t)
	task := f.createTeamTask(t, "Skip ahead", memberA.ID)

	_, err := f.c.Update(context.Background(), as(manager), task.ID, statusPatch(domain.StatusDone))
	assert.True(t, IsInvalidTransition(err))
}

func TestUpdate_SameStatusIsNotATransition(t *testing.T) {
	f := newFixture(t)
	task := f.createTeamTask(t, "Same", memberA.ID)
	title := "Renamed"

	updated, err := f.c.Update(context.Background(), as(manager), task.ID, domain.TaskPatch{
		Title:  &title,
		Status: ptr(domain.StatusTodo),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, domain.StatusTodo, updated.Status)
}

func TestUpdate_EmptyPatch(t *testing.T) {
	f := newFixture(t)
	task := f.createTeamTask(t, "x", memberA.ID)

	_, err := f.c.Update(context.Background(), as(manager), task.ID, domain.TaskPatch{})
	assert.True(t, IsValidation(err))
}

func TestUpdate_InvalidField(t *testing.T) {
	f := newFixture(t)
	task := f.createTeamTask(t, "x", memberA.ID)

	_, err := f.c.Update(context.Background(), as(manager), task.ID, domain.TaskPatch{Title: ptr("")})
	assert.True(t, IsValidation(err))
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.Update(context.Background(), as(manager), "missing", statusPatch(domain.StatusInProgress))
	assert.True(t, IsNotFound(err))
}

func TestUpdate_Reassign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTeamTask(t, "Handover", memberA.ID)

	updated, err := f.c.Update(ctx, as(manager), task.ID, domain.TaskPatch{AssignedTo: ptr(memberB.ID)})
	require.NoError(t, err)
	assert.Equal(t, memberB.ID, updated.AssignedTo)
	assert.Equal(t, manager.ID, updated.AssignedBy)

	assert.Equal(t, []string{notify.EventTaskAssigned}, f.bConn.Events())
	assert.Equal(t, int64(1), f.agg.GetCounter(ctx, analytics.UserTasksKey(memberB.ID, "assigned")))

	msgs := f.teamConn.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, notify.EventTaskUpdated, last.Event)
	assert.Equal(t, map[string]any{"assigned_to": memberB.ID}, last.Data["changes"])

	// Member A lost read access, member B gained it.
	_, err = f.c.Get(ctx, as(memberA), task.ID)
	assert.True(t, IsDenied(err))
	_, err = f.c.Get(ctx, as(memberB), task.ID)
	assert.NoError(t, err)
}

func TestUpdate_ReassignOutsideTeam(t *testing.T) {
	f := newFixture(t)
	task := f.createTeamTask(t, "Handover", memberA.ID)

	_, err := f.c.Update(context.Background(), as(manager), task.ID, domain.TaskPatch{AssignedTo: ptr(memberC.ID)})
	assert.True(t, IsValidation(err))
}

func TestUpdate_PersonalTaskCannotBeReassigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, err := f.c.Create(ctx, as(memberA), domain.TaskDraft{Title: "Mine", IsPersonal: true})
	require.NoError(t, err)

	_, err = f.c.Update(ctx, as(memberA), task.ID, domain.TaskPatch{AssignedTo: ptr(memberB.ID)})
	assert.True(t, IsValidation(err))

	updated, err := f.c.Update(ctx, as(memberA), task.ID, statusPatch(domain.StatusInProgress))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, updated.Status)
	assert.Empty(t, f.teamConn.Events())
}

func TestUpdate_OtherManagerDenied(t *testing.T) {
	f := newFixture(t)
	task := f.createTeamTask(t, "x", memberA.ID)

	_, err := f.c.Update(context.Background(), as(manager2), task.ID, statusPatch(domain.StatusInProgress))
	assert.True(t, IsDenied(err))
}

// Deletes

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.createTeamTask(t, "Obsolete", memberA.ID)

	err := f.c.Delete(ctx, as(memberA), task.ID)
	assert.True(t, IsDenied(err))

	require.NoError(t, f.c.Delete(ctx, as(manager), task.ID))

	_, err = f.c.Get(ctx, as(manager), task.ID)
	assert.True(t, IsNotFound(err))

	events := f.teamConn.Events()
	assert.Equal(t, notify.EventTaskDeleted, events[len(events)-1])

	err = f.c.Delete(ctx, as(manager), task.ID)
	assert.True(t, IsNotFound(err))
}

// Submit

func TestSubmit_RoutesActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := teamDraft("Via submit", memberA.ID)
	created, err := f.c.Submit(ctx, as(manager), domain.ActionCreate, Payload{Draft: &draft})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, domain.StatusTodo, created.Status)

	read, err := f.c.Submit(ctx, as(memberA), domain.ActionRead, Payload{TaskID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, created.ID, read.ID)

	patch := statusPatch(domain.StatusInProgress)
	updated, err := f.c.Submit(ctx, as(manager), domain.ActionUpdate, Payload{TaskID: created.ID, Patch: &patch})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, updated.Status)

	deleted, err := f.c.Submit(ctx, as(manager), domain.ActionDelete, Payload{TaskID: created.ID})
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestSubmit_MalformedPayloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.c.Submit(ctx, as(manager), domain.ActionCreate, Payload{})
	assert.True(t, IsValidation(err))

	_, err = f.c.Submit(ctx, as(manager), domain.ActionUpdate, Payload{TaskID: "x"})
	assert.True(t, IsValidation(err))

	_, err = f.c.Submit(ctx, as(manager), domain.Action("archive"), Payload{TaskID: "x"})
	assert.True(t, IsValidation(err))
}

// Side effects

func TestSideEffects_CacheUnavailableDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache.SetUnavailable(true)

	task := f.createTeamTask(t, "Still works", memberA.ID)
	assert.Equal(t, domain.StatusTodo, task.Status)
	assert.Equal(t, int64(0), f.agg.GetCounter(ctx, analytics.KeyTasksTotal))

	// Notifications are unaffected by the cache outage.
	assert.Equal(t, []string{notify.EventTaskCreated}, f.teamConn.Events())
}

type failingSink struct{ calls int }

func (s *failingSink) AppendEvent(context.Context, domain.EventRecord) error {
	s.calls++
	return errors.New("archive offline")
}

func TestSideEffects_SinkFailureDoesNotFailMutation(t *testing.T) {
	sink := &failingSink{}
	f := newFixture(t, WithEventSink(sink))
	ctx := context.Background()

	task := f.createTeamTask(t, "Unarchived", memberA.ID)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, 2, sink.calls, "both events attempted")

	// Counters are still derived after an archive failure.
	assert.Equal(t, int64(1), f.agg.GetCounter(ctx, analytics.KeyTasksTotal))
}

type panickingNotifier struct{ Notifier }

func (panickingNotifier) TaskCreated(string, domain.Task, string) int { panic("socket gone") }

func TestSideEffects_NotifierPanicIsContained(t *testing.T) {
	f := newFixture(t)
	f.c.notifier = panickingNotifier{Notifier: f.hub}

	task := f.createTeamTask(t, "Survives", memberA.ID)
	assert.NotEmpty(t, task.ID)
}

func TestSideEffects_RunOnPool(t *testing.T) {
	pool := dispatch.New(dispatch.WithWorkers(2))
	pool.Start(context.Background())

	f := newFixture(t, WithSubmitter(pool))
	ctx := context.Background()
	f.createTeamTask(t, "Async", memberA.ID)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(stopCtx))

	assert.Equal(t, int64(1), f.agg.GetCounter(ctx, analytics.KeyTasksTotal))
	assert.Equal(t, []string{notify.EventTaskCreated}, f.teamConn.Events())
	assert.Equal(t, int64(0), pool.Stats().Failed)
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	f := newFixture(t)
	task := f.createTeamTask(t, "x", memberA.ID)
	require.NoError(t, f.store.Close())

	_, err := f.c.Get(context.Background(), as(manager), task.ID)
	assert.True(t, IsUnavailable(err), "got %v", err)

	_, err = f.c.Create(context.Background(), as(memberA), domain.TaskDraft{Title: "x", IsPersonal: true})
	assert.True(t, IsUnavailable(err), "got %v", err)
}

// RecordEvent

func TestRecordEvent(t *testing.T) {
	f := newFixture(t)
	ctx := WithMetadata(context.Background(), domain.EventMetadata{IP: "10.0.0.7", Method: "POST", URL: "/auth/login"})

	rec := f.c.RecordEvent(ctx, domain.EventUserLogin, domain.EventData{"email": memberA.Email}, memberA.ID)
	assert.Equal(t, domain.EventUserLogin, rec.EventType)
	assert.Equal(t, "10.0.0.7", rec.Metadata.IP)

	assert.Equal(t, int64(1), f.agg.GetCounter(ctx, analytics.KeyUsersLogins))

	activity, err := f.store.ReadUserActivity(ctx, memberA.ID, 0)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, rec.ID, activity[0].ID)
	assert.Equal(t, "/auth/login", activity[0].Metadata.URL)
}

func TestRecordEvent_FailedLoginCountsPerIP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		f.c.RecordEvent(ctx, domain.EventSecurityFailedLogin, domain.EventData{analytics.DataIP: "10.0.0.9"}, "")
	}

	assert.Equal(t, int64(2), f.agg.GetCounter(ctx, analytics.KeyFailedLogins))
	assert.Equal(t, int64(2), f.agg.GetCounter(ctx, analytics.FailedLoginsIPKey("10.0.0.9")))
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(nil, nil)
	require.NoError(t, err)

	assert.IsType(t, eventlog.Discard{}, c.sink)
	assert.IsType(t, dispatch.Inline{}, c.jobs)
	assert.NotNil(t, c.validator)
}

func ptr[T any](v T) *T { return &v }
