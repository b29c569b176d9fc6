package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "rl:"

// RedisBackend is a sliding-window limiter shared between processes through
// Redis sorted sets. Redis failures allow the request.
type RedisBackend struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewRedisBackend connects to the Redis server at url (redis://host:port/db).
func NewRedisBackend(url string, maxRequests int, window time.Duration, logger *zap.Logger) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	return newRedisBackend(redis.NewClient(opts), maxRequests, window, logger), nil
}

func newRedisBackend(client *redis.Client, maxRequests int, window time.Duration, logger *zap.Logger) *RedisBackend {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
		logger:      logger,
		now:         time.Now,
	}
}

// Allow trims the key's window, counts it, and records the request when
// there is room.
func (r *RedisBackend) Allow(ctx context.Context, key string) (Decision, error) {
	d, err := r.check(ctx, key)
	if err != nil {
		r.logger.Warn("Redis error during rate check, allowing request", zap.Error(err))
		return Decision{Allowed: true, Remaining: r.maxRequests - 1, Limit: r.maxRequests}, nil
	}
	return d, nil
}

func (r *RedisBackend) check(ctx context.Context, key string) (Decision, error) {
	nowMs := r.now().UnixMilli()
	windowMs := r.window.Milliseconds()
	rkey := keyPrefix + key

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", strconv.FormatInt(nowMs-windowMs, 10))
	card := pipe.ZCard(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}
	count := int(card.Val())

	if count >= r.maxRequests {
		oldest, err := r.client.ZRangeWithScores(ctx, rkey, 0, 0).Result()
		if err != nil {
			return Decision{}, err
		}
		wait := time.Second
		if len(oldest) > 0 {
			oldestMs := int64(oldest[0].Score)
			wait = retryAfter(time.Duration(oldestMs+windowMs-nowMs) * time.Millisecond)
		}
		return Decision{RetryAfter: wait, Remaining: 0, Limit: r.maxRequests}, nil
	}

	member, err := randomMember(nowMs)
	if err != nil {
		return Decision{}, err
	}
	pipe = r.client.TxPipeline()
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(nowMs), Member: member})
	pipe.Expire(ctx, rkey, r.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   true,
		Remaining: max(0, r.maxRequests-count-1),
		Limit:     r.maxRequests,
	}, nil
}

// Clear deletes every rate-limit key.
func (r *RedisBackend) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the Redis client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func randomMember(nowMs int64) (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return strconv.FormatInt(nowMs, 10) + ":" + hex.EncodeToString(b[:]), nil
}
