package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/teamtask/internal/domain"
	"github.com/roach88/teamtask/internal/lifecycle"
)

func TestTasks_CreateAndFind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	due := time.Date(2024, 4, 1, 17, 0, 0, 0, time.UTC)
	task := newTask("t1", "manager-1", "member-a", "team-1", false, 0)
	task.Description = "Write the runbook"
	task.DueDate = &due
	require.NoError(t, s.CreateTask(ctx, task))

	got, err := s.FindTaskByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestTasks_NotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.FindTaskByID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateTask(ctx, "ghost", domain.TaskPatch{}, "u")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteTask(ctx, "ghost"), ErrNotFound)
}

func TestTasks_FindTasksFilters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tasks := []domain.Task{
		newTask("t1", "manager-1", "member-a", "team-1", false, 1),
		newTask("t2", "manager-1", "member-b", "team-1", false, 2),
		newTask("t3", "member-a", "member-a", "team-1", true, 3),
		newTask("t4", "manager-2", "member-c", "team-2", false, 4),
	}
	tasks[1].Status = domain.StatusInProgress
	tasks[1].Priority = domain.PriorityHigh
	for _, task := range tasks {
		require.NoError(t, s.CreateTask(ctx, task))
	}

	personal, team := true, false
	tests := []struct {
		name   string
		filter domain.TaskFilter
		want   []string
	}{
		{"all newest first", domain.TaskFilter{}, []string{"t4", "t3", "t2", "t1"}},
		{"assigned to", domain.TaskFilter{AssignedTo: "member-a"}, []string{"t3", "t1"}},
		{"assigned team tasks", domain.TaskFilter{AssignedTo: "member-a", IsPersonal: &team}, []string{"t1"}},
		{"personal", domain.TaskFilter{CreatedBy: "member-a", IsPersonal: &personal}, []string{"t3"}},
		{"team", domain.TaskFilter{TeamID: "team-1", IsPersonal: &team}, []string{"t2", "t1"}},
		{"created or assigned", domain.TaskFilter{CreatedOrAssigned: "member-a"}, []string{"t3", "t1"}},
		{"status", domain.TaskFilter{Status: domain.StatusInProgress}, []string{"t2"}},
		{"priority", domain.TaskFilter{Priority: domain.PriorityHigh}, []string{"t2"}},
		{"no match", domain.TaskFilter{TeamID: "team-9"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindTasks(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, task := range got {
				ids = append(ids, task.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestTasks_UpdateAppliesPatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, newTask("t1", "manager-1", "member-a", "team-1", false, 0)))

	title := "Renamed"
	status := domain.StatusInProgress
	got, err := s.UpdateTask(ctx, "t1", domain.TaskPatch{Title: &title, Status: &status}, "member-a")
	require.NoError(t, err)

	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, domain.StatusInProgress, got.Status)
	assert.Equal(t, "manager-1", got.AssignedBy, "assigned_by only changes on reassignment")
	assert.Equal(t, testNow.Add(time.Hour), got.UpdatedAt)
	assert.Equal(t, testNow, got.CreatedAt)

	stored, err := s.FindTaskByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, got, stored)
}

func TestTasks_UpdateReassigns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, newTask("t1", "manager-1", "member-a", "team-1", false, 0)))

	to := "member-b"
	got, err := s.UpdateTask(ctx, "t1", domain.TaskPatch{AssignedTo: &to}, "manager-2")
	require.NoError(t, err)

	assert.Equal(t, "member-b", got.AssignedTo)
	assert.Equal(t, "manager-2", got.AssignedBy)
}

func TestTasks_Delete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, newTask("t1", "manager-1", "member-a", "team-1", false, 0)))

	require.NoError(t, s.DeleteTask(ctx, "t1"))

	_, err := s.FindTaskByID(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTasks_CountTasks(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	done := newTask("t2", "m", "a", "team-1", false, 1)
	done.Status = domain.StatusDone
	require.NoError(t, s.CreateTask(ctx, newTask("t1", "m", "a", "team-1", false, 0)))
	require.NoError(t, s.CreateTask(ctx, done))

	counts, err := s.CountTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Status]int{domain.StatusTodo: 1, domain.StatusDone: 1}, counts)
}

// Concurrent updates to one task all succeed; the last writer wins.
func TestTasks_ConcurrentUpdates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, newTask("t1", "manager-1", "member-a", "team-1", false, 0)))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title := "title"
			_, err := s.UpdateTask(ctx, "t1", domain.TaskPatch{Title: &title}, "manager-1")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.FindTaskByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "title", got.Title)
}

func TestTasks_UpdateRechecksTransition(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	done := newTask("t1", "manager-1", "member-a", "team-1", false, 0)
	done.Status = domain.StatusDone
	require.NoError(t, s.CreateTask(ctx, done))

	reopen := domain.StatusInProgress
	_, err := s.UpdateTask(ctx, "t1", domain.TaskPatch{Status: &reopen}, "manager-1")
	require.Error(t, err)

	var te *lifecycle.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.StatusDone, te.From)
	assert.Equal(t, domain.StatusInProgress, te.To)

	got, err := s.FindTaskByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, got.Status)

	// Restating the current status is not a transition.
	same := domain.StatusDone
	title := "Renamed"
	got, err = s.UpdateTask(ctx, "t1", domain.TaskPatch{Title: &title, Status: &same}, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
}
