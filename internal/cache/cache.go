// Package cache provides the key/value counter store used by analytics.
//
// Every Store implementation reports an unreachable backend with
// ErrUnavailable (possibly wrapped) instead of panicking, so callers can
// degrade to defaults. A per-key failure from a reachable backend, such as
// incrementing a non-integer, is a plain error.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the backing store cannot be reached, the
// call timed out, or the store is disabled.
var ErrUnavailable = errors.New("cache unavailable")

// Store is the subset of key/value operations the system needs.
//
// Get returns "" and a nil error for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string, by int64) (int64, error)
	Decr(ctx context.Context, key string, by int64) (int64, error)
	SAdd(ctx context.Context, key, member string) (int64, error)
	SCard(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Disabled is a Store that is always unavailable. Used when no cache is
// configured.
type Disabled struct{}

var _ Store = Disabled{}

func (Disabled) Get(context.Context, string) (string, error) { return "", ErrUnavailable }

func (Disabled) Set(context.Context, string, string, time.Duration) error { return ErrUnavailable }

func (Disabled) Incr(context.Context, string, int64) (int64, error) { return 0, ErrUnavailable }

func (Disabled) Decr(context.Context, string, int64) (int64, error) { return 0, ErrUnavailable }

func (Disabled) SAdd(context.Context, string, string) (int64, error) { return 0, ErrUnavailable }

func (Disabled) SCard(context.Context, string) (int64, error) { return 0, ErrUnavailable }

func (Disabled) Ping(context.Context) error { return ErrUnavailable }

func (Disabled) Close() error { return nil }
