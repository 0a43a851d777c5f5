package scenario

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/teamtask/internal/domain"
)

// Fixtures is a directory to seed: teams and their users.
type Fixtures struct {
	Teams []TeamFixture `yaml:"teams"`
	Users []UserFixture `yaml:"users"`
}

// TeamFixture is a team to create.
type TeamFixture struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// UserFixture is a user to create. Password is plain text and is hashed on
// seeding when a hasher is given.
type UserFixture struct {
	ID        string `yaml:"id"`
	Email     string `yaml:"email"`
	FirstName string `yaml:"first_name,omitempty"`
	LastName  string `yaml:"last_name,omitempty"`
	Password  string `yaml:"password,omitempty"`
	Role      string `yaml:"role"`
	Team      string `yaml:"team,omitempty"`
	Inactive  bool   `yaml:"inactive,omitempty"`
}

// User converts the fixture to a directory entry without a password hash.
func (u UserFixture) User() domain.User {
	return domain.User{
		ID:        u.ID,
		Email:     strings.ToLower(strings.TrimSpace(u.Email)),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      domain.Role(strings.ToUpper(u.Role)),
		TeamID:    u.Team,
		IsActive:  !u.Inactive,
	}
}

// Seeder is the part of the store fixtures are written to.
type Seeder interface {
	CreateTeam(ctx context.Context, t domain.Team) error
	CreateUser(ctx context.Context, u domain.User) error
}

// Hasher turns a plain-text password into a stored hash.
type Hasher func(password string) (string, error)

// LoadFixtures reads a fixtures YAML file. Unknown fields are rejected.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}

	var f Fixtures
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures YAML: %w", err)
	}
	if err := validateFixtures(f.Teams, f.Users); err != nil {
		return nil, fmt.Errorf("invalid fixtures: %w", err)
	}
	return &f, nil
}

// Seed writes teams then users. Users with a password are stored with the
// hash returned by hash; a nil hash stores no password and such users
// cannot log in. Seeding is idempotent for the same fixtures.
func Seed(ctx context.Context, s Seeder, teams []TeamFixture, users []UserFixture, hash Hasher) error {
	for _, t := range teams {
		if err := s.CreateTeam(ctx, domain.Team{ID: t.ID, Name: t.Name, IsActive: true}); err != nil {
			return fmt.Errorf("seed team %s: %w", t.ID, err)
		}
	}
	for _, uf := range users {
		u := uf.User()
		if uf.Password != "" && hash != nil {
			h, err := hash(uf.Password)
			if err != nil {
				return fmt.Errorf("hash password for %s: %w", uf.ID, err)
			}
			u.PasswordHash = h
		}
		if err := s.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", uf.ID, err)
		}
	}
	return nil
}

func validateFixtures(teams []TeamFixture, users []UserFixture) error {
	teamIDs := make(map[string]bool, len(teams))
	for i, t := range teams {
		if t.ID == "" {
			return fmt.Errorf("teams[%d]: id is required", i)
		}
		if teamIDs[t.ID] {
			return fmt.Errorf("teams[%d]: duplicate id %q", i, t.ID)
		}
		teamIDs[t.ID] = true
	}

	userIDs := make(map[string]bool, len(users))
	emails := make(map[string]bool, len(users))
	for i, uf := range users {
		u := uf.User()
		if u.ID == "" {
			return fmt.Errorf("users[%d]: id is required", i)
		}
		if userIDs[u.ID] {
			return fmt.Errorf("users[%d]: duplicate id %q", i, u.ID)
		}
		userIDs[u.ID] = true

		if u.Email == "" {
			return fmt.Errorf("users[%d]: email is required", i)
		}
		if emails[u.Email] {
			return fmt.Errorf("users[%d]: duplicate email %q", i, u.Email)
		}
		emails[u.Email] = true

		if !u.Role.Valid() {
			return fmt.Errorf("users[%d]: unknown role %q", i, uf.Role)
		}
		if u.Role != domain.RoleAdmin && u.TeamID == "" {
			return fmt.Errorf("users[%d]: team is required for %s", i, u.Role)
		}
		if u.TeamID != "" && !teamIDs[u.TeamID] {
			return fmt.Errorf("users[%d]: unknown team %q", i, u.TeamID)
		}
	}
	return nil
}
