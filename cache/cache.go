package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 5 * time.Second

// Store is the minimal shared-state surface the pipeline needs. The
// SetAdd primitive is the only cross-process coordination mechanism:
// its "newly added" answer is what prevents double-processing and
// double-posting, so implementations must make it atomic.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetAdd(ctx context.Context, setKey, member string) (bool, error)
	SetRemove(ctx context.Context, setKey, member string) error
	IncrBy(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error)
	GetInt(ctx context.Context, key string) (int64, error)
	Close() error
}

// Redis implements Store on a single Redis connection.
type Redis struct {
	client *redis.Client
}

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis creates a Redis store and verifies connectivity.
func NewRedis(cfg Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &Redis{client: client}, nil
}

// Get returns the value for key and whether it was present.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

// Set stores value under key with the given TTL. A zero TTL means no expiry.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// SetAdd adds member to the set at setKey and reports whether it was
// newly inserted. SADD's reply is atomic server-side, so two concurrent
// callers adding the same member see exactly one "true".
func (r *Redis) SetAdd(ctx context.Context, setKey, member string) (bool, error) {
	added, err := r.client.SAdd(ctx, setKey, member).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

// SetRemove removes member from the set at setKey. Removing an absent
// member is not an error.
func (r *Redis) SetRemove(ctx context.Context, setKey, member string) error {
	return r.client.SRem(ctx, setKey, member).Err()
}

// IncrBy atomically increments a counter and ensures a TTL on first use.
func (r *Redis) IncrBy(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	val, err := r.client.IncrBy(ctx, key, n).Result()
	if err != nil {
		return 0, err
	}
	if val == n && ttl > 0 {
		// First increment created the key; bound its lifetime.
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			return val, err
		}
	}
	return val, nil
}

// GetInt reads a counter, returning 0 for a missing key.
func (r *Redis) GetInt(ctx context.Context, key string) (int64, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	var n int64
	if _, err := fmt.Sscanf(val, "%d", &n); err != nil {
		return 0, fmt.Errorf("counter %s holds non-numeric value %q", key, val)
	}
	return n, nil
}

// Close closes the underlying Redis client
func (r *Redis) Close() error {
	return r.client.Close()
}

// GetJSON unmarshals a cached JSON value into out, reporting presence.
func GetJSON(ctx context.Context, s Store, key string, out interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals value and stores it under key with the given TTL.
func SetJSON(ctx context.Context, s Store, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, string(raw), ttl)
}
