package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyFormat  = "dedup:%s:%s"
	defaultTTL = 72 * time.Hour
)

// Ledger records processed event ids so redelivered events can be acknowledged without work.
// Consumers must stay correct without it: a miss only costs a repeated, idempotent apply.
type Ledger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type redisCommands interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisLedger stores markers as expiring Redis keys.
type RedisLedger struct {
	rdb   redisCommands
	scope string
	ttl   time.Duration
}

// NewClient opens a Redis client for addr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// NewRedisLedger builds a ledger whose keys are namespaced by scope.
func NewRedisLedger(rdb redisCommands, scope string, ttl time.Duration) (*RedisLedger, error) {
	if rdb == nil {
		return nil, errors.New("dedup: redis client is required")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.New("dedup: scope is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLedger{rdb: rdb, scope: scope, ttl: ttl}, nil
}

// Seen reports whether eventID has been marked.
func (l *RedisLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, nil
	}
	n, err := l.rdb.Exists(ctx, l.key(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: exists: %w", err)
	}
	return n > 0, nil
}

// Mark records eventID as processed.
func (l *RedisLedger) Mark(ctx context.Context, eventID string) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil
	}
	if err := l.rdb.Set(ctx, l.key(eventID), "1", l.ttl).Err(); err != nil {
		return fmt.Errorf("dedup: set: %w", err)
	}
	return nil
}

func (l *RedisLedger) key(eventID string) string {
	return fmt.Sprintf(keyFormat, l.scope, eventID)
}

// Noop never reports events as seen.
type Noop struct{}

func (Noop) Seen(context.Context, string) (bool, error) { return false, nil }
func (Noop) Mark(context.Context, string) error         { return nil }
