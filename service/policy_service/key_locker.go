package policy_service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained 在超时前未能拿到锁
var ErrLockNotObtained = errors.New("could not obtain dedup lock")

// UnlockFunc 释放锁
type UnlockFunc func()

// KeyLocker 按 key 串行化，dedup 检查到投递记录写入之间持有
type KeyLocker interface {
	Lock(ctx context.Context, key string) (UnlockFunc, error)
}

type keyedMutex struct {
	ch   chan struct{}
	refs int
}

// LocalKeyLocker 单实例内按 key 加锁，无人持有时自动回收
type LocalKeyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedMutex
}

func NewLocalKeyLocker() *LocalKeyLocker {
	return &LocalKeyLocker{locks: make(map[string]*keyedMutex)}
}

// Lock 阻塞直到拿到锁或 ctx 结束
func (l *LocalKeyLocker) Lock(ctx context.Context, key string) (UnlockFunc, error) {
	l.mu.Lock()
	m, exists := l.locks[key]
	if !exists {
		m = &keyedMutex{ch: make(chan struct{}, 1)}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	select {
	case m.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, m)
		return nil, fmt.Errorf("%w: %v", ErrLockNotObtained, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-m.ch
			l.release(key, m)
		})
	}, nil
}

func (l *LocalKeyLocker) release(key string, m *keyedMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, key)
	}
}

// Size 当前被持有或等待的 key 数
func (l *LocalKeyLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// RedisKeyLocker 多实例部署时基于 redis 的分布式锁
type RedisKeyLocker struct {
	locker  *redislock.Client
	prefix  string
	ttl     time.Duration
	backoff time.Duration
	wait    time.Duration
}

// RedisLockConfig 分布式锁参数
type RedisLockConfig struct {
	Prefix  string        // key 前缀
	TTL     time.Duration // 锁自动过期时间，需大于一次完整投递耗时
	Backoff time.Duration // 重试间隔
	Wait    time.Duration // 最长等待
}

func NewRedisKeyLocker(rdb redis.UniversalClient, cfg RedisLockConfig) *RedisKeyLocker {
	if cfg.Prefix == "" {
		cfg.Prefix = "push:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 50 * time.Millisecond
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 10 * time.Second
	}
	return &RedisKeyLocker{
		locker:  redislock.New(rdb),
		prefix:  cfg.Prefix,
		ttl:     cfg.TTL,
		backoff: cfg.Backoff,
		wait:    cfg.Wait,
	}
}

func (l *RedisKeyLocker) Lock(ctx context.Context, key string) (UnlockFunc, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lock, err := l.locker.Obtain(waitCtx, l.prefix+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain redis lock %s: %w", key, err)
	}
	return func() {
		// 使用独立 ctx，调用方 ctx 已取消时也要释放
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}
