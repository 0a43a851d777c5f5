// Package eventlog archives event records.
//
// A Sink appends records; it never updates or deletes them. Appends are
// issued from background jobs, so a failing sink costs a log line, never
// a request.
package eventlog

import (
	"context"
	"errors"

	"github.com/roach88/teamtask/internal/domain"
)

// Sink appends event records to an archive.
//
// The SQLite store satisfies Sink directly.
type Sink interface {
	AppendEvent(ctx context.Context, rec domain.EventRecord) error
}

// Reader reads archived events back, newest first.
type Reader interface {
	ReadEvents(ctx context.Context, f domain.EventFilter, limit int) ([]domain.EventRecord, error)
	ReadUserActivity(ctx context.Context, userID string, limit int) ([]domain.EventRecord, error)
}

// Multi appends to every sink in order. All sinks are attempted; the
// failures are joined.
type Multi []Sink

// AppendEvent implements Sink.
func (m Multi) AppendEvent(ctx context.Context, rec domain.EventRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.AppendEvent(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a Sink that drops every record.
type Discard struct{}

// AppendEvent implements Sink.
func (Discard) AppendEvent(context.Context, domain.EventRecord) error { return nil }
