/*
Copyright 2026 The Codeheal Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ratelimit implements the per-session sliding-window token
// limiter spec.md §4.10 step 1 and §5 require: a 60-second window of
// attempt timestamps, pruned on every check, that caps how many
// attempts a single orchestrator session may make.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cherrors "github.com/codeheals/codeheal/pkg/shared/errors"
)

// DefaultWindow is the sliding window width spec.md §4.10 names.
const DefaultWindow = 60 * time.Second

// DefaultLimit is the default token budget per window.
const DefaultLimit = 10

// Limiter is the sliding-window rate limiter contract. Implementations
// must prune tokens older than the window before counting.
type Limiter interface {
	// Allow prunes expired tokens for key, counts what remains, and
	// either records a new token and returns true, or returns false
	// without recording one when the window is already at limit.
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter stores each session's token timestamps in a Redis
// sorted set (score = unix nanos), pruned with ZREMRANGEBYSCORE and
// counted with ZCARD, the way the teacher's cache layer drives
// miniredis-backed sorted-set operations in its own tests.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	limit  int
	nowFn  func() time.Time
}

// Option configures a RedisLimiter.
type Option func(*RedisLimiter)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(l *RedisLimiter) { l.window = d }
}

// WithLimit overrides DefaultLimit.
func WithLimit(n int) Option {
	return func(l *RedisLimiter) { l.limit = n }
}

// NewRedisLimiter builds a RedisLimiter against an already-configured
// client (a miniredis-backed client in tests, a real cluster in
// production).
func NewRedisLimiter(client *redis.Client, opts ...Option) *RedisLimiter {
	l := &RedisLimiter{client: client, window: DefaultWindow, limit: DefaultLimit, nowFn: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLimiter) setKey(key string) string {
	return "codeheal:ratelimit:" + key
}

// Allow implements Limiter. The window is enforced server-side: tokens
// older than now-window are pruned before the count, so concurrent
// callers against the same key never observe a stale count.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.setKey(key)
	now := l.nowFn()
	cutoff := now.Add(-l.window)

	if err := l.client.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%d", cutoff.UnixNano())).Err(); err != nil {
		return false, cherrors.NetworkError("prune rate limit window", redisKey, err)
	}

	count, err := l.client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return false, cherrors.NetworkError("count rate limit window", redisKey, err)
	}
	if int(count) >= l.limit {
		return false, nil
	}

	member := fmt.Sprintf("%d-%d", now.UnixNano(), count)
	if err := l.client.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
		return false, cherrors.NetworkError("record rate limit token", redisKey, err)
	}
	if err := l.client.Expire(ctx, redisKey, l.window*2).Err(); err != nil {
		return false, cherrors.NetworkError("set rate limit key expiry", redisKey, err)
	}
	return true, nil
}
