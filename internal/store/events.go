package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/teamtask/internal/domain"
)

// AppendEvent writes an event record, and its user_activity mirror when
// the record carries a user. Both rows commit together.
func (s *Store) AppendEvent(ctx context.Context, rec domain.EventRecord) error {
	data, err := json.Marshal(rec.EventData)
	if err != nil {
		return fmt.Errorf("append event: marshal data: %w", err)
	}
	if rec.EventData == nil {
		data = []byte("{}")
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("append event: marshal metadata: %w", err)
	}
	ts := formatTime(rec.Timestamp)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO event_log (id, event_type, event_data, metadata, user_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, string(rec.EventType), string(data), string(meta), rec.UserID, ts)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	if rec.UserID != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_activity (event_id, user_id, event_type, event_data, metadata, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.UserID, string(rec.EventType), string(data), string(meta), ts)
		if err != nil {
			return fmt.Errorf("append user activity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ReadEvents returns up to limit events matching f, newest first.
// A limit of zero or less means 100.
func (s *Store) ReadEvents(ctx context.Context, f domain.EventFilter, limit int) ([]domain.EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var where []string
	var args []any
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(f.EventType))
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, formatTime(f.Until))
	}

	query := `SELECT id, event_type, event_data, metadata, user_id, timestamp FROM event_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	return s.readEventRows(ctx, "read events", query, args...)
}

// ReadUserActivity returns up to limit activity entries for a user,
// newest first. A limit of zero or less means 50.
func (s *Store) ReadUserActivity(ctx context.Context, userID string, limit int) ([]domain.EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.readEventRows(ctx, "read user activity", `
		SELECT event_id, event_type, event_data, metadata, user_id, timestamp
		FROM user_activity
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, userID, limit)
}

func (s *Store) readEventRows(ctx context.Context, op, query string, args ...any) ([]domain.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	records := []domain.EventRecord{}
	for rows.Next() {
		var rec domain.EventRecord
		var eventType, data, meta, ts string
		if err := rows.Scan(&rec.ID, &eventType, &data, &meta, &rec.UserID, &ts); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rec.EventType = domain.EventType(eventType)
		if err := json.Unmarshal([]byte(data), &rec.EventData); err != nil {
			return nil, fmt.Errorf("%s: event %s data: %w", op, rec.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("%s: event %s metadata: %w", op, rec.ID, err)
		}
		if rec.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}
