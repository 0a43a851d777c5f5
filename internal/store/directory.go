package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/teamtask/internal/domain"
)

// CreateTeam inserts a team. Re-inserting an existing ID updates its name
// and active flag, so seeding is repeatable.
func (s *Store) CreateTeam(ctx context.Context, t domain.Team) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, created_by, is_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active
	`, t.ID, t.Name, t.CreatedBy, boolInt(t.IsActive))
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

// FindTeamByID returns the team or ErrNotFound.
func (s *Store) FindTeamByID(ctx context.Context, id string) (domain.Team, error) {
	var t domain.Team
	var active int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_by, is_active FROM teams WHERE id = ?
	`, id).Scan(&t.ID, &t.Name, &t.CreatedBy, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Team{}, fmt.Errorf("find team %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("find team %s: %w", id, err)
	}
	t.IsActive = active != 0
	return t, nil
}

// ListTeams returns all teams ordered by name.
func (s *Store) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_by, is_active FROM teams ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []domain.Team
	for rows.Next() {
		var t domain.Team
		var active int
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedBy, &active); err != nil {
			return nil, fmt.Errorf("list teams: %w", err)
		}
		t.IsActive = active != 0
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// CreateUser inserts a user. Re-inserting an existing ID replaces the
// mutable fields.
func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, password_hash, role, team_id, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			password_hash = excluded.password_hash,
			role = excluded.role,
			team_id = excluded.team_id,
			is_active = excluded.is_active
	`,
		u.ID,
		u.Email,
		u.FirstName,
		u.LastName,
		u.PasswordHash,
		string(u.Role),
		nullString(u.TeamID),
		boolInt(u.IsActive),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const userColumns = `id, email, first_name, last_name, password_hash, role, team_id, is_active`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	var role string
	var team sql.NullString
	var active int
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &role, &team, &active); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	u.TeamID = team.String
	u.IsActive = active != 0
	return u, nil
}

// FindUserByID returns the user or ErrNotFound.
func (s *Store) FindUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("find user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user %s: %w", id, err)
	}
	return u, nil
}

// FindUserByEmail returns the user or ErrNotFound. Matching ignores case.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("find user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user %s: %w", email, err)
	}
	return u, nil
}

// ListUsers returns all users, optionally limited to one team.
func (s *Store) ListUsers(ctx context.Context, teamID string) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if teamID != "" {
		query += ` WHERE team_id = ?`
		args = append(args, teamID)
	}
	query += ` ORDER BY email ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
