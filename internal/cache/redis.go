package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Host           string
	Port           int
	Password       string
	DB             int
	DialTimeout    time.Duration
	CommandTimeout time.Duration
}

// Addr returns host:port.
func (o RedisOptions) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// RedisStore is a Store backed by Redis.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a client. The connection is established lazily;
// use Ping to check reachability.
//
// Retries are limited to one so an outage surfaces quickly instead of
// queueing commands.
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.CommandTimeout,
		WriteTimeout: opts.CommandTimeout,
		MaxRetries:   1,
	})
	return &RedisStore{client: client}
}

// unavailable classifies a command error. An error reply from the server
// (WRONGTYPE, a non-integer value) means Redis is up and is returned as a
// plain error. Everything else, such as dial and read failures, timeouts
// and a closed client, wraps ErrUnavailable with the cause in the message.
func unavailable(op, key string, err error) error {
	var reply redis.Error
	if errors.As(err, &reply) {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	return fmt.Errorf("%s %s: %w: %v", op, key, ErrUnavailable, err)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", unavailable("get", key, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, by int64) (int64, error) {
	n, err := s.client.IncrBy(ctx, key, by).Result()
	if err != nil {
		return 0, unavailable("incr", key, err)
	}
	return n, nil
}

func (s *RedisStore) Decr(ctx context.Context, key string, by int64) (int64, error) {
	n, err := s.client.DecrBy(ctx, key, by).Result()
	if err != nil {
		return 0, unavailable("decr", key, err)
	}
	return n, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key, member string) (int64, error) {
	n, err := s.client.SAdd(ctx, key, member).Result()
	if err != nil {
		return 0, unavailable("sadd", key, err)
	}
	return n, nil
}

func (s *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, unavailable("scard", key, err)
	}
	return n, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

// Close releases the client's connections.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
