// Package store is the typed adapter over the Redis K/V store.
//
// It owns connection pooling (delegated to go-redis) and retries commands
// once on transient network faults. Application-level misses (redis.Nil) are
// surfaced as ErrNotFound and never retried.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates the requested key does not exist.
var ErrNotFound = errors.New("key not found")

// Store wraps a Redis client with the operations the pipeline needs:
// plain get/set with TTL, atomic set-if-absent, hash access, and the
// list/sorted-set primitives backing the queue namespace.
type Store struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// Options configures the store connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return &Store{
		rdb:    rdb,
		logger: slog.Default().With("component", "store"),
	}, nil
}

// NewWithClient wraps an existing client. Used by tests with miniredis.
func NewWithClient(rdb *redis.Client) *Store {
	return &Store{
		rdb:    rdb,
		logger: slog.Default().With("component", "store"),
	}
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.rdb.Close() }

// Ping checks connectivity, for health reporting.
func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// retry runs fn and retries once when the failure looks like a network
// fault. redis.Nil and other application errors pass through untouched.
func (s *Store) retry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, redis.Nil) || ctx.Err() != nil {
		return err
	}
	s.logger.Warn("Retrying redis command after network error", "op", op, "error", err)
	return fn()
}

// Get returns the string value at key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := s.retry(ctx, "get", func() error {
		v, err := s.rdb.Get(ctx, key).Result()
		val = v
		return err
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

// Set writes key with a TTL. A zero ttl stores the key without expiry.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.retry(ctx, "set", func() error {
		return s.rdb.Set(ctx, key, value, ttl).Err()
	})
}

// SetNX atomically sets key only if absent, with a TTL.
// Returns true when this caller won the key.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var won bool
	err := s.retry(ctx, "setnx", func() error {
		v, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
		won = v
		return err
	})
	return won, err
}

// Del removes the given keys. Missing keys are not an error.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	return s.retry(ctx, "del", func() error {
		return s.rdb.Del(ctx, keys...).Err()
	})
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := s.retry(ctx, "exists", func() error {
		v, err := s.rdb.Exists(ctx, key).Result()
		n = v
		return err
	})
	return n > 0, err
}

// TTL returns the remaining TTL of key.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	var d time.Duration
	err := s.retry(ctx, "ttl", func() error {
		v, err := s.rdb.TTL(ctx, key).Result()
		d = v
		return err
	})
	return d, err
}

// HSet writes the given field/value pairs into the hash at key and applies
// the TTL to the whole hash.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error {
	return s.retry(ctx, "hset", func() error {
		pipe := s.rdb.TxPipeline()
		pipe.HSet(ctx, key, fields)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

// HGetAll returns all fields of the hash at key. A missing key returns
// ErrNotFound rather than an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var fields map[string]string
	err := s.retry(ctx, "hgetall", func() error {
		v, err := s.rdb.HGetAll(ctx, key).Result()
		fields = v
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

// HIncrBy atomically increments an integer hash field and returns the new value.
func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	var n int64
	err := s.retry(ctx, "hincrby", func() error {
		v, err := s.rdb.HIncrBy(ctx, key, field, delta).Result()
		n = v
		return err
	})
	return n, err
}

// LPush prepends values to the list at key.
func (s *Store) LPush(ctx context.Context, key string, values ...string) error {
	return s.retry(ctx, "lpush", func() error {
		return s.rdb.LPush(ctx, key, values).Err()
	})
}

// RPopLPush atomically moves the tail of src (the oldest LPush) to the
// head of dst and returns it, or ErrNotFound when src is empty.
func (s *Store) RPopLPush(ctx context.Context, src, dst string) (string, error) {
	var val string
	err := s.retry(ctx, "rpoplpush", func() error {
		v, err := s.rdb.RPopLPush(ctx, src, dst).Result()
		val = v
		return err
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

// LRem removes up to count occurrences of value from the list at key.
func (s *Store) LRem(ctx context.Context, key string, count int64, value string) error {
	return s.retry(ctx, "lrem", func() error {
		return s.rdb.LRem(ctx, key, count, value).Err()
	})
}

// LLen returns the length of the list at key.
func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.retry(ctx, "llen", func() error {
		v, err := s.rdb.LLen(ctx, key).Result()
		n = v
		return err
	})
	return n, err
}

// LRange returns list elements in [start, stop].
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var vals []string
	err := s.retry(ctx, "lrange", func() error {
		v, err := s.rdb.LRange(ctx, key, start, stop).Result()
		vals = v
		return err
	})
	return vals, err
}

// ZAdd adds member to the sorted set at key with the given score.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return s.retry(ctx, "zadd", func() error {
		return s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	})
}

// ZPopDue atomically removes and returns members whose score is <= max.
func (s *Store) ZPopDue(ctx context.Context, key string, max float64) ([]string, error) {
	var members []string
	err := s.retry(ctx, "zpopdue", func() error {
		maxArg := fmt.Sprintf("%f", max)
		v, err := s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: "-inf",
			Max: maxArg,
		}).Result()
		if err != nil {
			return err
		}
		if len(v) == 0 {
			members = nil
			return nil
		}
		args := make([]any, len(v))
		for i, m := range v {
			args[i] = m
		}
		if err := s.rdb.ZRem(ctx, key, args...).Err(); err != nil {
			return err
		}
		members = v
		return nil
	})
	return members, err
}

// ZCard returns the cardinality of the sorted set at key.
func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.retry(ctx, "zcard", func() error {
		v, err := s.rdb.ZCard(ctx, key).Result()
		n = v
		return err
	})
	return n, err
}
