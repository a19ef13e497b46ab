package policy_service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	ec "helper-push-service/service/event_catalog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter 滑动窗口频控，Allow 返回 true 时即占用一个名额
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit ec.RateLimit, now time.Time) (bool, error)
}

// RateLimitKey 频控维度：用户 + 分类，不同分类互不影响
func RateLimitKey(userID string, category ec.Category) string {
	return userID + ":" + string(category)
}

// MemoryRateLimiter 单实例内存频控
type MemoryRateLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{events: make(map[string][]time.Time)}
}

func (m *MemoryRateLimiter) Allow(_ context.Context, key string, limit ec.RateLimit, now time.Time) (bool, error) {
	if limit.Unlimited() {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-limit.Period)
	kept := m.events[key][:0]
	for _, ts := range m.events[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= limit.Ceiling {
		m.events[key] = kept
		return false, nil
	}
	m.events[key] = append(kept, now)
	return true, nil
}

// Sweep 清理窗口外的记录，maxPeriod 取所有分类中最长的周期
func (m *MemoryRateLimiter) Sweep(now time.Time, maxPeriod time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	cutoff := now.Add(-maxPeriod)
	for key, stamps := range m.events {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(m.events, key)
			removed++
		}
	}
	return removed
}

// RedisRateLimiter 多实例共享频控，sorted set 存放窗口内的发送时间
type RedisRateLimiter struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(rdb redis.UniversalClient, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "push:rl:"
	}
	return &RedisRateLimiter{rdb: rdb, prefix: prefix}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit ec.RateLimit, now time.Time) (bool, error) {
	if limit.Unlimited() {
		return true, nil
	}
	redisKey := r.prefix + key
	nowScore := now.UnixNano()
	cutoff := now.Add(-limit.Period).UnixNano()

	// 先占位再计数，超限时撤回占位
	member := strconv.FormatInt(nowScore, 10) + ":" + uuid.NewString()
	pipe := r.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(nowScore), Member: member})
	count := pipe.ZCard(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, limit.Period)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit pipeline %s: %w", key, err)
	}

	if count.Val() > int64(limit.Ceiling) {
		if err := r.rdb.ZRem(ctx, redisKey, member).Err(); err != nil {
			return false, fmt.Errorf("rate limit rollback %s: %w", key, err)
		}
		return false, nil
	}
	return true, nil
}
