package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQuotaRepo enforces per-subject daily submission quotas on Redis
// counters keyed by UTC date.
type RedisQuotaRepo struct {
	client       redis.UniversalClient
	timeProvider TimeProvider
	keyPrefix    string
}

// NewRedisQuotaRepo creates a quota repository backed by the given Redis client.
func NewRedisQuotaRepo(client redis.UniversalClient, tp TimeProvider) *RedisQuotaRepo {
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &RedisQuotaRepo{
		client:       client,
		timeProvider: tp,
		keyPrefix:    "kyc:quota:",
	}
}

func (r *RedisQuotaRepo) dailyKey(subjectID string, now time.Time) string {
	return r.keyPrefix + now.UTC().Format("2006-01-02") + ":" + subjectID
}

// Allow consumes one unit of the subject's daily quota and reports whether the
// submission is still within the limit. The counter expires at the end of the
// UTC day, so quotas reset at midnight without a sweep.
//
// INCR then EXPIRE NX is atomic enough here: the counter is created by INCR
// and the NX expire only ever attaches a TTL to a key that lacks one.
func (r *RedisQuotaRepo) Allow(ctx context.Context, subjectID string, limit int) (bool, error) {
	if subjectID == "" {
		return false, errors.New("subject id cannot be empty")
	}
	if limit <= 0 {
		return false, nil
	}

	now := r.timeProvider.Now().UTC()
	key := r.dailyKey(subjectID, now)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}

	if count == 1 {
		midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		if expErr := r.client.ExpireNX(ctx, key, midnight.Sub(now)).Err(); expErr != nil {
			return false, fmt.Errorf("redis expire: %w", expErr)
		}
	}

	return count <= int64(limit), nil
}

// Remaining reports how many submissions the subject has left today.
func (r *RedisQuotaRepo) Remaining(ctx context.Context, subjectID string, limit int) (int, error) {
	if subjectID == "" {
		return 0, errors.New("subject id cannot be empty")
	}

	key := r.dailyKey(subjectID, r.timeProvider.Now())
	val, err := r.client.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return limit, nil
		}
		return 0, fmt.Errorf("redis get: %w", err)
	}

	remaining := limit - val
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Health checks the Redis connection.
func (r *RedisQuotaRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
