package receiver_service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultTrackerSize = 512
	DefaultTrackerTTL  = 30 * time.Minute
)

// EventTracker 设备本地已渲染的 dedup_key 集合，按数量和时间双重淘汰
type EventTracker struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, time.Time]
	now  func() time.Time
}

// NewEventTracker size/ttl 非正数时使用默认值
func NewEventTracker(size int, ttl time.Duration) *EventTracker {
	if size <= 0 {
		size = DefaultTrackerSize
	}
	if ttl <= 0 {
		ttl = DefaultTrackerTTL
	}
	return &EventTracker{
		seen: expirable.NewLRU[string, time.Time](size, nil, ttl),
		now:  time.Now,
	}
}

// ShouldRender 首次出现返回 true 并标记，保留期内重复出现返回 false
func (t *EventTracker) ShouldRender(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen.Peek(key); ok {
		return false
	}
	t.seen.Add(key, t.now())
	return true
}

// Len 当前保留的 key 数
func (t *EventTracker) Len() int {
	return t.seen.Len()
}
