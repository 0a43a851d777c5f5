package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/teamtask/internal/domain"
)

func TestDirectory_Users(t *testing.T) {
	s := createTestStore(t)
	seedDirectory(t, s)
	ctx := context.Background()

	u, err := s.FindUserByID(ctx, "member-a")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, u.Role)
	assert.Equal(t, "team-1", u.TeamID)
	assert.True(t, u.IsActive)

	byEmail, err := s.FindUserByEmail(ctx, "A@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "member-a", byEmail.ID)

	admin, err := s.FindUserByID(ctx, "admin-1")
	require.NoError(t, err)
	assert.Empty(t, admin.TeamID)

	_, err = s.FindUserByID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindUserByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectory_UpsertUser(t *testing.T) {
	s := createTestStore(t)
	seedDirectory(t, s)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, domain.User{
		ID: "member-a", Email: "a@example.com", Role: domain.RoleMember, TeamID: "team-2", IsActive: false,
	}))

	u, err := s.FindUserByID(ctx, "member-a")
	require.NoError(t, err)
	assert.Equal(t, "team-2", u.TeamID)
	assert.False(t, u.IsActive)
}

func TestDirectory_UserTeamMustExist(t *testing.T) {
	s := createTestStore(t)

	err := s.CreateUser(context.Background(), domain.User{
		ID: "u", Email: "u@example.com", Role: domain.RoleMember, TeamID: "missing", IsActive: true,
	})
	assert.Error(t, err)
}

func TestDirectory_ListUsers(t *testing.T) {
	s := createTestStore(t)
	seedDirectory(t, s)
	ctx := context.Background()

	all, err := s.ListUsers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)

	team1, err := s.ListUsers(ctx, "team-1")
	require.NoError(t, err)
	assert.Len(t, team1, 3)
	assert.Equal(t, "a@example.com", team1[0].Email)
}

func TestDirectory_Teams(t *testing.T) {
	s := createTestStore(t)
	seedDirectory(t, s)
	ctx := context.Background()

	team, err := s.FindTeamByID(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, "Platform", team.Name)

	teams, err := s.ListTeams(ctx)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "Mobile", teams[0].Name)

	_, err = s.FindTeamByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
