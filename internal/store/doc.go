// Package store provides SQLite-backed storage for teamtask.
//
// One Store serves several roles:
//   - Task store: create, read, filter, patch and delete tasks
//   - Directory: users and teams, written by seeding and read by the core
//   - Event sink: the append-only event_log and its per-user mirror,
//     user_activity
//
// # Conventions
//
//   - Timestamps are stored as RFC 3339 text in UTC with a fixed-width
//     nanosecond fraction, so lexical order is chronological order
//   - Task lists are ordered newest first: created_at DESC, id DESC
//   - Event reads are ordered newest first: timestamp DESC, id DESC
//   - Missing rows surface as ErrNotFound
//
// # Pragmas
//
// Every connection runs with journal_mode=WAL, synchronous=NORMAL and
// foreign_keys=ON. Writers wait up to 5s on a locked file (WithBusyTimeout).
//
// schema.sql always creates the latest layout. Files written by an older
// build are brought forward by the migrations table, tracked through
// PRAGMA user_version.
package store
