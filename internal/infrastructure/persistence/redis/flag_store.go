// Package redis implements the session flag store on Redis.
// Guard flags are presence-valued keys with a session TTL: a set flag
// exists, a cleared one does not, and the whole namespace expires with
// the browsing session.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cartperks/cartperks-engine/internal/domain/notification"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration

	// SessionTTL is how long guard flags outlive their last write.
	// Flags are session-scoped; the TTL is the session's upper bound.
	SessionTTL time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		SessionTTL:   24 * time.Hour,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// keyPrefix namespaces all engine keys in a shared Redis.
const keyPrefix = "perks:flag:"

// FlagStore is the Redis-backed notification.FlagStore adapter.
type FlagStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFlagStore connects to Redis and verifies the connection.
func NewFlagStore(ctx context.Context, cfg Config) (*FlagStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, shared.WrapError("notification", "Connect", shared.ErrServiceUnavailable, "redis ping failed", err)
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultConfig().SessionTTL
	}
	return &FlagStore{client: client, ttl: ttl}, nil
}

// NewFlagStoreWithClient wraps an existing client (tests, shared pools).
func NewFlagStoreWithClient(client *redis.Client, ttl time.Duration) *FlagStore {
	if ttl <= 0 {
		ttl = DefaultConfig().SessionTTL
	}
	return &FlagStore{client: client, ttl: ttl}
}

// key renders the storage key for one flag:
// perks:flag:{session}:{family}:{kind}:{guardKey}
func key(session shared.SessionToken, k notification.FlagKey) string {
	return fmt.Sprintf("%s%s:%s:%s:%s", keyPrefix, session, k.Family, k.Kind, k.GuardKey)
}

// Has implements notification.FlagStore.
func (s *FlagStore) Has(ctx context.Context, session shared.SessionToken, k notification.FlagKey) (bool, error) {
	if k.GuardKey == "" {
		return false, shared.ErrGuardKeyEmpty
	}
	n, err := s.client.Exists(ctx, key(session, k)).Result()
	if err != nil {
		return false, shared.WrapError("notification", "Has", shared.ErrServiceUnavailable, "redis EXISTS failed", err)
	}
	return n > 0, nil
}

// Set implements notification.FlagStore.
func (s *FlagStore) Set(ctx context.Context, session shared.SessionToken, k notification.FlagKey) error {
	if k.GuardKey == "" {
		return shared.ErrGuardKeyEmpty
	}
	if err := s.client.Set(ctx, key(session, k), "1", s.ttl).Err(); err != nil {
		return shared.WrapError("notification", "Set", shared.ErrServiceUnavailable, "redis SET failed", err)
	}
	return nil
}

// Delete implements notification.FlagStore.
func (s *FlagStore) Delete(ctx context.Context, session shared.SessionToken, k notification.FlagKey) error {
	if k.GuardKey == "" {
		return shared.ErrGuardKeyEmpty
	}
	if err := s.client.Del(ctx, key(session, k)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return shared.WrapError("notification", "Delete", shared.ErrServiceUnavailable, "redis DEL failed", err)
	}
	return nil
}

// Clear implements notification.FlagStore: wipes every flag of a session
// via SCAN so large keyspaces never block the server.
func (s *FlagStore) Clear(ctx context.Context, session shared.SessionToken) error {
	pattern := fmt.Sprintf("%s%s:*", keyPrefix, session)
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return shared.WrapError("notification", "Clear", shared.ErrServiceUnavailable, "redis DEL failed", err)
		}
	}
	if err := iter.Err(); err != nil {
		return shared.WrapError("notification", "Clear", shared.ErrServiceUnavailable, "redis SCAN failed", err)
	}
	return nil
}

// Ping verifies the connection, used by readiness probes.
func (s *FlagStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *FlagStore) Close() error {
	return s.client.Close()
}
