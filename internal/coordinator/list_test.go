package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/teamtask/internal/domain"
)

// seedListTasks creates, in order: two team tasks for A, one for B, and a
// personal task for A, plus a team-2 task.
func seedListTasks(t *testing.T, f *fixture) map[string]domain.Task {
	t.Helper()
	ctx := context.Background()
	out := map[string]domain.Task{}

	out["a1"] = f.createTeamTask(t, "A one", memberA.ID)
	out["a2"] = f.createTeamTask(t, "A two", memberA.ID)
	out["b1"] = f.createTeamTask(t, "B one", memberB.ID)

	personal, err := f.c.Create(ctx, as(memberA), domain.TaskDraft{Title: "A personal", IsPersonal: true})
	require.NoError(t, err)
	out["ap"] = personal

	other, err := f.c.Create(ctx, as(manager2), teamDraft("C one", memberC.ID))
	require.NoError(t, err)
	out["c1"] = other

	_, err = f.c.Update(ctx, as(manager), out["a2"].ID, statusPatch(domain.StatusInProgress))
	require.NoError(t, err)
	return out
}

func titles(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.Title
	}
	return out
}

func TestList_Views(t *testing.T) {
	f := newFixture(t)
	seedListTasks(t, f)
	yes, no := true, false

	tests := []struct {
		name  string
		actor domain.User
		query domain.TaskQuery
		want  []string
	}{
		{"member default", memberA, domain.TaskQuery{}, []string{"A personal", "A two", "A one"}},
		{"member my-tasks", memberA, domain.TaskQuery{View: domain.ViewMyTasks}, []string{"A two", "A one"}},
		{"member my-personal-tasks", memberA, domain.TaskQuery{View: domain.ViewMyPersonalTasks}, []string{"A personal"}},
		{"member status filter", memberA, domain.TaskQuery{Status: domain.StatusInProgress}, []string{"A two"}},
		{"member is_personal filter", memberA, domain.TaskQuery{IsPersonal: &yes}, []string{"A personal"}},
		{"member asks for someone else", memberA, domain.TaskQuery{AssignedTo: memberB.ID}, []string{}},
		{"manager default", manager, domain.TaskQuery{}, []string{"B one", "A two", "A one"}},
		{"manager team-tasks", manager, domain.TaskQuery{View: domain.ViewTeamTasks}, []string{"B one", "A two", "A one"}},
		{"manager created-by-me", manager, domain.TaskQuery{View: domain.ViewCreatedByMe}, []string{"B one", "A two", "A one"}},
		{"manager team-tasks for B", manager, domain.TaskQuery{View: domain.ViewTeamTasks, AssignedTo: memberB.ID}, []string{"B one"}},
		{"manager personal contradiction", manager, domain.TaskQuery{View: domain.ViewTeamTasks, IsPersonal: &yes}, []string{}},
		{"manager team filter", manager, domain.TaskQuery{IsPersonal: &no, Priority: domain.PriorityMedium}, []string{"B one", "A two", "A one"}},
		{"other manager", manager2, domain.TaskQuery{View: domain.ViewTeamTasks}, []string{"C one"}},
		{"admin default", admin, domain.TaskQuery{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.c.List(context.Background(), as(tt.actor), tt.query)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, titles(got))
		})
	}
}

func TestList_ManagerOnlyViews(t *testing.T) {
	f := newFixture(t)

	for _, view := range []domain.TaskView{domain.ViewCreatedByMe, domain.ViewTeamTasks} {
		_, err := f.c.List(context.Background(), as(memberA), domain.TaskQuery{View: view})
		assert.True(t, IsDenied(err), "view %s: %v", view, err)
	}
}

func TestList_InvalidQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, q := range []domain.TaskQuery{
		{View: "everything"},
		{Status: "ARCHIVED"},
		{Priority: "URGENT"},
	} {
		_, err := f.c.List(ctx, as(manager), q)
		assert.True(t, IsValidation(err), "query %+v: %v", q, err)
	}
}

func TestList_NeverLeaksUnreadableTasks(t *testing.T) {
	f := newFixture(t)
	seedListTasks(t, f)

	// Member B asking for A's tasks by assignee gets nothing: B's default
	// view is pinned to B.
	got, err := f.c.List(context.Background(), as(memberB), domain.TaskQuery{AssignedTo: memberA.ID})
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, actor := range []domain.User{memberA, memberB, memberC, manager, manager2} {
		tasks, err := f.c.List(context.Background(), as(actor), domain.TaskQuery{})
		require.NoError(t, err)
		for _, task := range tasks {
			_, err := f.c.Get(context.Background(), as(actor), task.ID)
			assert.NoError(t, err, "%s listed %s but cannot read it", actor.ID, task.ID)
		}
	}
}

func TestList_Anonymous(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.List(context.Background(), domain.AuthContext{}, domain.TaskQuery{})
	assert.True(t, IsDenied(err))
}
