package dispatch_service

import (
	"context"
	"sort"
	"sync"
	"time"

	"helper-push-service/models"
)

// MemoryStore 内存存储实现（用于测试和单机开发）
type MemoryStore struct {
	mu         sync.RWMutex
	targets    map[string]*models.DeviceTarget // token -> target
	userTokens map[string]map[string]struct{}  // userID -> tokens
	ledger     map[string]*models.DeliveryRecord
	quiet      map[string]*models.QuietHours
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		targets:    make(map[string]*models.DeviceTarget),
		userTokens: make(map[string]map[string]struct{}),
		ledger:     make(map[string]*models.DeliveryRecord),
		quiet:      make(map[string]*models.QuietHours),
	}
}

// RegisterDevice 注册设备
func (m *MemoryStore) RegisterDevice(_ context.Context, target *models.DeviceTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := target.LastSeenAt
	if now.IsZero() {
		now = time.Now()
	}
	if existing, ok := m.targets[target.Token]; ok {
		if existing.UserID != target.UserID {
			delete(m.userTokens[existing.UserID], target.Token)
		}
		existing.UserID = target.UserID
		existing.Platform = target.Platform
		existing.IsActive = true
		existing.LastSeenAt = now
	} else {
		t := *target
		t.IsActive = true
		t.LastSeenAt = now
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		m.targets[target.Token] = &t
	}
	if m.userTokens[target.UserID] == nil {
		m.userTokens[target.UserID] = make(map[string]struct{})
	}
	m.userTokens[target.UserID][target.Token] = struct{}{}
	return nil
}

// Heartbeat 刷新心跳
func (m *MemoryStore) Heartbeat(_ context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[token]
	if !ok {
		return models.ErrTargetNotFound
	}
	t.LastSeenAt = at
	return nil
}

// UserDevices 用户全部令牌
func (m *MemoryStore) UserDevices(_ context.Context, userID string) ([]models.DeviceTarget, error) {
	return m.collect(userID, false), nil
}

// ActiveTargets 用户有效令牌
func (m *MemoryStore) ActiveTargets(_ context.Context, userID string) ([]models.DeviceTarget, error) {
	return m.collect(userID, true), nil
}

func (m *MemoryStore) collect(userID string, activeOnly bool) []models.DeviceTarget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.DeviceTarget, 0, len(m.userTokens[userID]))
	for token := range m.userTokens[userID] {
		t := m.targets[token]
		if t == nil || (activeOnly && !t.IsActive) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// DeactivateTarget 停用令牌
func (m *MemoryStore) DeactivateTarget(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.targets[token]; ok {
		t.IsActive = false
	}
	return nil
}

// LastDelivery 查询投递记录
func (m *MemoryStore) LastDelivery(_ context.Context, dedupKey string) (*models.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.ledger[dedupKey]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// RecordDelivery 写入投递记录
func (m *MemoryStore) RecordDelivery(_ context.Context, record *models.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger[record.DedupKey] = models.MergeDelivery(m.ledger[record.DedupKey], record)
	return nil
}

// QuietHours 查询免打扰
func (m *MemoryStore) QuietHours(_ context.Context, userID string) (*models.QuietHours, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qh, ok := m.quiet[userID]
	if !ok {
		return nil, nil
	}
	cp := *qh
	return &cp, nil
}

// SetQuietHours 保存免打扰
func (m *MemoryStore) SetQuietHours(_ context.Context, qh *models.QuietHours) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *qh
	m.quiet[qh.UserID] = &cp
	return nil
}

// HealthCheck 内存存储始终可用
func (m *MemoryStore) HealthCheck(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
