package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/teamtask/internal/domain"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore opens a file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(func() time.Time { return testNow.Add(time.Hour) }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedDirectory inserts team-1 with a manager and two members, and team-2
// with one member.
func seedDirectory(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, team := range []domain.Team{
		{ID: "team-1", Name: "Platform", IsActive: true},
		{ID: "team-2", Name: "Mobile", IsActive: true},
	} {
		if err := s.CreateTeam(ctx, team); err != nil {
			t.Fatalf("CreateTeam() failed: %v", err)
		}
	}
	for _, u := range []domain.User{
		{ID: "manager-1", Email: "manager@example.com", Role: domain.RoleManager, TeamID: "team-1", IsActive: true},
		{ID: "member-a", Email: "a@example.com", Role: domain.RoleMember, TeamID: "team-1", IsActive: true},
		{ID: "member-b", Email: "b@example.com", Role: domain.RoleMember, TeamID: "team-1", IsActive: true},
		{ID: "member-c", Email: "c@example.com", Role: domain.RoleMember, TeamID: "team-2", IsActive: true},
		{ID: "admin-1", Email: "admin@example.com", Role: domain.RoleAdmin, IsActive: true},
	} {
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
}

// newTask builds a TODO task created at testNow plus offset minutes.
func newTask(id, createdBy, assignedTo, teamID string, personal bool, offset int) domain.Task {
	at := testNow.Add(time.Duration(offset) * time.Minute)
	return domain.Task{
		ID:         id,
		Title:      "Task " + id,
		Status:     domain.StatusTodo,
		Priority:   domain.PriorityMedium,
		AssignedTo: assignedTo,
		AssignedBy: createdBy,
		CreatedBy:  createdBy,
		TeamID:     teamID,
		IsPersonal: personal,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}
