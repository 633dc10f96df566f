package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/freewilll/splitledger/ledger"

	redis "github.com/go-redis/redis/v8"
)

// Config is the redis configuration
type Config struct {
	Addr     string
	Password string
	Db       int
	TTL      time.Duration
}

// DefaultTTL bounds how long a summary may be served after a missed invalidation
const DefaultTTL = 5 * time.Minute

// RedisCache implements the Cache interface for redis. Each user has one hash
// whose fields are the summary scopes, so invalidating a user is a single DEL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates an instance of RedisCache
func NewRedisCache(config Config) *RedisCache {
	ttl := config.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		rdb: redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.Db,
		}),
		ttl: ttl,
	}
}

// Ping checks the redis server is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the redis client
func (r *RedisCache) Close() error {
	return r.rdb.Close()
}

// makeKey makes a key from a userID
func (r *RedisCache) makeKey(userID int) string {
	return fmt.Sprintf("summary:%d", userID)
}

// genKey is the key of userID's generation counter. It has no TTL so it
// outlives the hash it guards.
func (r *RedisCache) genKey(userID int) string {
	return fmt.Sprintf("summary-gen:%d", userID)
}

// GetSummary gets the summary of userID in a scope. A missing entry is a miss,
// not an error.
func (r *RedisCache) GetSummary(ctx context.Context, userID int, group *ledger.Group) (ledger.Summary, bool, error) {
	val, err := r.rdb.HGet(ctx, r.makeKey(userID), scopeKey(group)).Result()
	if errors.Is(err, redis.Nil) {
		return ledger.Summary{}, false, nil
	} else if err != nil {
		return ledger.Summary{}, false, err
	}

	var summary ledger.Summary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return ledger.Summary{}, false, fmt.Errorf("decode cached summary: %w", err)
	}
	return summary, true, nil
}

// Generation returns how many times userID has been invalidated
func (r *RedisCache) Generation(ctx context.Context, userID int) (int64, error) {
	gen, err := r.rdb.Get(ctx, r.genKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetSummary writes the summary of userID in a scope and refreshes the TTL of
// the user's hash. The generation key is watched: nothing is written if it no
// longer equals gen or changes before the write commits.
func (r *RedisCache) SetSummary(ctx context.Context, userID int, group *ledger.Group, gen int64, summary ledger.Summary) error {
	value, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	key, genKey := r.makeKey(userID), r.genKey(userID)
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, scopeKey(group), value)
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		// Invalidated while writing
		return nil
	}
	return err
}

// Invalidate bumps the generation of the users and drops every cached
// summary of theirs
func (r *RedisCache) Invalidate(ctx context.Context, userIDs ...int) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Incr(ctx, r.genKey(id))
			pipe.Del(ctx, r.makeKey(id))
		}
		return nil
	})
	return err
}
