package pebble_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"helper-push-service/conf"
	"helper-push-service/models"

	"github.com/cockroachdb/pebble"
	"github.com/sirupsen/logrus"
)

const (
	CollectionDeviceTargets = "device_targets" // 推送目标 key: token
	CollectionUserDevices   = "user_devices"   // 用户令牌集合 key: userId, value: []token
	CollectionDeliveryLog   = "delivery_log"   // 投递记录 key: dedup_key
	CollectionQuietHours    = "quiet_hours"    // 免打扰 key: userId
)

var allCollections = []string{
	CollectionDeviceTargets,
	CollectionUserDevices,
	CollectionDeliveryLog,
	CollectionQuietHours,
}

// PebbleService Pebble 数据库服务
type PebbleService struct {
	collectionMgr *CollectionManager // 集合管理器
	mu            sync.RWMutex
	path          string
	logger        *logrus.Logger

	// 每个集合一把写锁，保护读-改-写
	writeLocks map[string]*sync.Mutex
}

// Config Pebble 配置
type Config struct {
	DBPath string `yaml:"db_path" json:"db_path"` // 数据库文件路径
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		DBPath: "./data/pebble",
	}
}

// CollectionManager 集合管理器
type CollectionManager struct {
	mu          sync.RWMutex
	collections map[string]*pebble.DB
	basePath    string
}

// NewCollectionManager 创建集合管理器
func NewCollectionManager(basePath string) *CollectionManager {
	return &CollectionManager{
		collections: make(map[string]*pebble.DB),
		basePath:    basePath,
	}
}

// GetCollection 获取指定集合的数据库实例
func (cm *CollectionManager) GetCollection(collectionName string) (*pebble.DB, error) {
	cm.mu.RLock()
	if db, exists := cm.collections[collectionName]; exists {
		cm.mu.RUnlock()
		return db, nil
	}
	cm.mu.RUnlock()

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// 双重检查，防止并发创建
	if db, exists := cm.collections[collectionName]; exists {
		return db, nil
	}

	dbPath := filepath.Join(cm.basePath, collectionName)
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(16 << 20), // 16MB 缓存
		FormatMajorVersion:          pebble.FormatNewest,
		L0CompactionThreshold:       2,
		L0StopWritesThreshold:       1000,
		LBaseMaxBytes:               16 << 20,
		MaxOpenFiles:                4096,
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("打开集合 %s 的数据库失败: %w", collectionName, err)
	}

	cm.collections[collectionName] = db
	conf.GetLogger().WithField("path", dbPath).Infof("✅ 集合 %s 数据库初始化成功", collectionName)
	return db, nil
}

// CloseAll 关闭所有集合的数据库
func (cm *CollectionManager) CloseAll() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var errs []string
	for collectionName, db := range cm.collections {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("关闭集合 %s 失败: %v", collectionName, err))
		}
	}
	cm.collections = make(map[string]*pebble.DB)

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("关闭数据库时发生错误: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ListCollections 列出所有已打开的集合
func (cm *CollectionManager) ListCollections() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	names := make([]string, 0, len(cm.collections))
	for name := range cm.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewPebbleService 创建新的 Pebble 服务实例
func NewPebbleService(config *Config) *PebbleService {
	if config == nil {
		config = DefaultConfig()
	}
	locks := make(map[string]*sync.Mutex, len(allCollections))
	for _, name := range allCollections {
		locks[name] = &sync.Mutex{}
	}
	return &PebbleService{
		path:          config.DBPath,
		collectionMgr: NewCollectionManager(config.DBPath),
		logger:        conf.GetLogger(),
		writeLocks:    locks,
	}
}

// Initialize 打开全部集合
func (ps *PebbleService) Initialize() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	dbPath, err := filepath.Abs(ps.path)
	if err != nil {
		return fmt.Errorf("获取数据库路径失败: %w", err)
	}
	for _, name := range allCollections {
		if _, err := ps.collectionMgr.GetCollection(name); err != nil {
			return err
		}
	}
	ps.logger.WithField("path", dbPath).Info("🚀 Pebble 数据库初始化成功")
	return nil
}

// Close 关闭数据库
func (ps *PebbleService) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.collectionMgr != nil {
		if err := ps.collectionMgr.CloseAll(); err != nil {
			ps.logger.WithError(err).Error("❌ 关闭集合数据库失败")
			return fmt.Errorf("关闭集合数据库失败: %w", err)
		}
	}
	ps.logger.Info("🛑 Pebble 数据库已关闭")
	return nil
}

func (ps *PebbleService) getCollectionDB(collectionName string) (*pebble.DB, error) {
	if ps.collectionMgr == nil {
		return nil, errors.New("集合管理器未初始化")
	}
	return ps.collectionMgr.GetCollection(collectionName)
}

func (ps *PebbleService) lockCollection(name string) func() {
	l := ps.writeLocks[name]
	l.Lock()
	return l.Unlock
}

// getJSON 读取并反序列化，不存在时返回 false
func getJSON(db *pebble.DB, key string, out any) (bool, error) {
	value, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	defer closer.Close()

	if err := json.Unmarshal(value, out); err != nil {
		return false, fmt.Errorf("反序列化 %s 失败: %w", key, err)
	}
	return true, nil
}

func putJSON(db *pebble.DB, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化 %s 失败: %w", key, err)
	}
	return db.Set([]byte(key), data, pebble.Sync)
}

// userDeviceSet 用户名下的令牌
type userDeviceSet struct {
	UserID    string   `json:"userId"`
	Tokens    []string `json:"tokens"`
	UpdatedAt int64    `json:"updatedAt"`
}

func (s *userDeviceSet) add(token string) bool {
	for _, t := range s.Tokens {
		if t == token {
			return false
		}
	}
	s.Tokens = append(s.Tokens, token)
	sort.Strings(s.Tokens)
	return true
}

func (s *userDeviceSet) remove(token string) bool {
	for i, t := range s.Tokens {
		if t == token {
			s.Tokens = append(s.Tokens[:i], s.Tokens[i+1:]...)
			return true
		}
	}
	return false
}

// RegisterDevice 注册或重新激活令牌，令牌换绑用户时从原用户集合中移除
func (ps *PebbleService) RegisterDevice(_ context.Context, target *models.DeviceTarget) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if target.UserID == "" || target.Token == "" {
		return errors.New("用户ID和令牌都不能为空")
	}
	targets, err := ps.getCollectionDB(CollectionDeviceTargets)
	if err != nil {
		return err
	}
	users, err := ps.getCollectionDB(CollectionUserDevices)
	if err != nil {
		return err
	}

	defer ps.lockCollection(CollectionDeviceTargets)()
	defer ps.lockCollection(CollectionUserDevices)()

	now := target.LastSeenAt
	if now.IsZero() {
		now = time.Now()
	}

	var existing models.DeviceTarget
	found, err := getJSON(targets, target.Token, &existing)
	if err != nil {
		return fmt.Errorf("获取设备令牌失败: %w", err)
	}

	record := *target
	record.IsActive = true
	record.LastSeenAt = now
	if found {
		record.CreatedAt = existing.CreatedAt
		if existing.UserID != target.UserID {
			var old userDeviceSet
			if ok, err := getJSON(users, existing.UserID, &old); err != nil {
				return fmt.Errorf("获取原用户令牌集合失败: %w", err)
			} else if ok && old.remove(target.Token) {
				old.UpdatedAt = now.Unix()
				if err := putJSON(users, existing.UserID, &old); err != nil {
					return fmt.Errorf("更新原用户令牌集合失败: %w", err)
				}
			}
			ps.logger.WithFields(logrus.Fields{
				"from": existing.UserID,
				"to":   target.UserID,
			}).Info("🔄 令牌换绑用户")
		}
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if err := putJSON(targets, target.Token, &record); err != nil {
		return fmt.Errorf("保存设备令牌失败: %w", err)
	}

	set := userDeviceSet{UserID: target.UserID}
	if _, err := getJSON(users, target.UserID, &set); err != nil {
		return fmt.Errorf("获取用户令牌集合失败: %w", err)
	}
	if set.add(target.Token) || !found {
		set.UpdatedAt = now.Unix()
		if err := putJSON(users, target.UserID, &set); err != nil {
			return fmt.Errorf("保存用户令牌集合失败: %w", err)
		}
	}

	ps.logger.WithFields(logrus.Fields{
		"userId":   target.UserID,
		"platform": target.Platform,
		"devices":  len(set.Tokens),
	}).Info("✅ 已注册设备令牌")
	return nil
}

// Heartbeat 刷新 last_seen_at
func (ps *PebbleService) Heartbeat(_ context.Context, token string, at time.Time) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	db, err := ps.getCollectionDB(CollectionDeviceTargets)
	if err != nil {
		return err
	}
	defer ps.lockCollection(CollectionDeviceTargets)()

	var t models.DeviceTarget
	found, err := getJSON(db, token, &t)
	if err != nil {
		return err
	}
	if !found {
		return models.ErrTargetNotFound
	}
	t.LastSeenAt = at
	return putJSON(db, token, &t)
}

// DeactivateTarget 停用令牌，不删除记录
func (ps *PebbleService) DeactivateTarget(_ context.Context, token string) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	db, err := ps.getCollectionDB(CollectionDeviceTargets)
	if err != nil {
		return err
	}
	defer ps.lockCollection(CollectionDeviceTargets)()

	var t models.DeviceTarget
	found, err := getJSON(db, token, &t)
	if err != nil || !found || !t.IsActive {
		return err
	}
	t.IsActive = false
	return putJSON(db, token, &t)
}

// ActiveTargets 用户有效令牌
func (ps *PebbleService) ActiveTargets(_ context.Context, userID string) ([]models.DeviceTarget, error) {
	return ps.collect(userID, true)
}

// UserDevices 用户全部令牌（含已停用）
func (ps *PebbleService) UserDevices(_ context.Context, userID string) ([]models.DeviceTarget, error) {
	return ps.collect(userID, false)
}

func (ps *PebbleService) collect(userID string, activeOnly bool) ([]models.DeviceTarget, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	users, err := ps.getCollectionDB(CollectionUserDevices)
	if err != nil {
		return nil, err
	}
	targets, err := ps.getCollectionDB(CollectionDeviceTargets)
	if err != nil {
		return nil, err
	}

	var set userDeviceSet
	if _, err := getJSON(users, userID, &set); err != nil {
		return nil, fmt.Errorf("获取用户令牌集合失败: %w", err)
	}

	out := make([]models.DeviceTarget, 0, len(set.Tokens))
	for _, token := range set.Tokens {
		var t models.DeviceTarget
		found, err := getJSON(targets, token, &t)
		if err != nil {
			return nil, fmt.Errorf("获取设备令牌失败: %w", err)
		}
		if !found || t.UserID != userID || (activeOnly && !t.IsActive) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

// LastDelivery 查询投递记录，不存在时返回 nil, nil
func (ps *PebbleService) LastDelivery(_ context.Context, dedupKey string) (*models.DeliveryRecord, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	db, err := ps.getCollectionDB(CollectionDeliveryLog)
	if err != nil {
		return nil, err
	}
	var rec models.DeliveryRecord
	found, err := getJSON(db, dedupKey, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// RecordDelivery 写入或累加投递记录
func (ps *PebbleService) RecordDelivery(_ context.Context, record *models.DeliveryRecord) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	db, err := ps.getCollectionDB(CollectionDeliveryLog)
	if err != nil {
		return err
	}
	defer ps.lockCollection(CollectionDeliveryLog)()

	var existing models.DeliveryRecord
	found, err := getJSON(db, record.DedupKey, &existing)
	if err != nil {
		return err
	}
	var merged *models.DeliveryRecord
	if found {
		merged = models.MergeDelivery(&existing, record)
	} else {
		merged = models.MergeDelivery(nil, record)
	}
	return putJSON(db, record.DedupKey, merged)
}

// QuietHours 未设置时返回 nil, nil
func (ps *PebbleService) QuietHours(_ context.Context, userID string) (*models.QuietHours, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	db, err := ps.getCollectionDB(CollectionQuietHours)
	if err != nil {
		return nil, err
	}
	var qh models.QuietHours
	found, err := getJSON(db, userID, &qh)
	if err != nil || !found {
		return nil, err
	}
	return &qh, nil
}

// SetQuietHours 保存免打扰设置
func (ps *PebbleService) SetQuietHours(_ context.Context, qh *models.QuietHours) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	db, err := ps.getCollectionDB(CollectionQuietHours)
	if err != nil {
		return err
	}
	defer ps.lockCollection(CollectionQuietHours)()
	return putJSON(db, qh.UserID, qh)
}

// HealthCheck 检查各集合可读
func (ps *PebbleService) HealthCheck(_ context.Context) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, name := range allCollections {
		db, err := ps.getCollectionDB(name)
		if err != nil {
			return err
		}
		if _, closer, err := db.Get([]byte("__health__")); err == nil {
			closer.Close()
		} else if !errors.Is(err, pebble.ErrNotFound) {
			return fmt.Errorf("集合 %s 不可用: %w", name, err)
		}
	}
	return nil
}
