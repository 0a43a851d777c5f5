package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/teamtask/internal/domain"
	"github.com/roach88/teamtask/internal/lifecycle"
)

const taskColumns = `id, title, description, status, priority, due_date, assigned_to,
	assigned_by, created_by, team_id, is_personal, created_at, updated_at`

// CreateTask inserts a fully populated task.
func (s *Store) CreateTask(ctx context.Context, t domain.Task) error {
	var due sql.NullString
	if t.DueDate != nil {
		due = sql.NullString{String: formatTime(*t.DueDate), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.Title,
		t.Description,
		string(t.Status),
		string(t.Priority),
		due,
		t.AssignedTo,
		t.AssignedBy,
		t.CreatedBy,
		t.TeamID,
		boolInt(t.IsPersonal),
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var status, priority, createdAt, updatedAt string
	var due sql.NullString
	var personal int
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &status, &priority, &due, &t.AssignedTo,
		&t.AssignedBy, &t.CreatedBy, &t.TeamID, &personal, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.Status(status)
	t.Priority = domain.Priority(priority)
	t.IsPersonal = personal != 0
	if due.Valid {
		d, err := parseTime(due.String)
		if err != nil {
			return domain.Task{}, err
		}
		t.DueDate = &d
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Task{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// FindTaskByID returns the task or ErrNotFound.
func (s *Store) FindTaskByID(ctx context.Context, id string) (domain.Task, error) {
	return findTask(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findTask(ctx context.Context, q queryRower, id string) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("find task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("find task %s: %w", id, err)
	}
	return t, nil
}

// FindTasks returns tasks matching every non-empty filter field, newest
// first.
func (s *Store) FindTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	var where []string
	var args []any

	add := func(clause string, vals ...any) {
		where = append(where, clause)
		args = append(args, vals...)
	}
	if f.AssignedTo != "" {
		add("assigned_to = ?", f.AssignedTo)
	}
	if f.CreatedBy != "" {
		add("created_by = ?", f.CreatedBy)
	}
	if f.CreatedOrAssigned != "" {
		add("(created_by = ? OR assigned_to = ?)", f.CreatedOrAssigned, f.CreatedOrAssigned)
	}
	if f.TeamID != "" {
		add("team_id = ?", f.TeamID)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.Priority != "" {
		add("priority = ?", string(f.Priority))
	}
	if f.IsPersonal != nil {
		add("is_personal = ?", boolInt(*f.IsPersonal))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("find tasks: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask applies patch to the stored task and returns the result.
//
// Nil patch fields are left unchanged. When the patch reassigns the task,
// assigned_by becomes updatedBy. updated_at is stamped from the store's
// clock. The read and write share one transaction; concurrent updates are
// last-write-wins, except that a status change is checked against the
// status read in that transaction and fails with *lifecycle.TransitionError
// when it is no longer legal.
func (s *Store) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch, updatedBy string) (domain.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	defer tx.Rollback()

	t, err := findTask(ctx, tx, id)
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}

	if patch.Status != nil && *patch.Status != t.Status {
		if err := lifecycle.ValidateTransition(t.Status, *patch.Status); err != nil {
			return domain.Task{}, fmt.Errorf("update task %s: %w", id, err)
		}
	}

	applyPatch(&t, patch, updatedBy)
	t.UpdatedAt = s.now().UTC()

	var due sql.NullString
	if t.DueDate != nil {
		due = sql.NullString{String: formatTime(*t.DueDate), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, description = ?, status = ?, priority = ?, due_date = ?,
			assigned_to = ?, assigned_by = ?, updated_at = ?
		WHERE id = ?
	`,
		t.Title,
		t.Description,
		string(t.Status),
		string(t.Priority),
		due,
		t.AssignedTo,
		t.AssignedBy,
		formatTime(t.UpdatedAt),
		id,
	)
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	return t, nil
}

func applyPatch(t *domain.Task, p domain.TaskPatch, updatedBy string) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		d := p.DueDate.UTC()
		t.DueDate = &d
	}
	if p.AssignedTo != nil && *p.AssignedTo != t.AssignedTo {
		t.AssignedTo = *p.AssignedTo
		t.AssignedBy = updatedBy
	}
}

// DeleteTask removes the task. Returns ErrNotFound if it does not exist.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete task %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountTasks returns the number of tasks per status.
func (s *Store) CountTasks(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count tasks: %w", err)
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}
