package sql_service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"helper-push-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceToken 设备令牌表
type DeviceToken struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     string    `gorm:"size:64;index;not null"`
	Token      string    `gorm:"size:255;uniqueIndex;not null"`
	Platform   string    `gorm:"size:16;not null"`
	IsActive   bool      `gorm:"not null;default:true;index"`
	LastSeenAt time.Time `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (DeviceToken) TableName() string { return "device_tokens" }

// NotificationDeliveryLog 投递记录表，dedup_key 唯一
type NotificationDeliveryLog struct {
	ID           uint      `gorm:"primaryKey"`
	DedupKey     string    `gorm:"size:64;uniqueIndex;not null"`
	EventType    string    `gorm:"size:64;not null"`
	SentAt       time.Time `gorm:"not null;index"`
	SuccessCount int       `gorm:"not null;default:0"`
	FailureCount int       `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (NotificationDeliveryLog) TableName() string { return "notification_delivery_log" }

// UserQuietHours 免打扰表
type UserQuietHours struct {
	UserID      string `gorm:"primaryKey;size:64"`
	StartMinute int    `gorm:"not null"`
	EndMinute   int    `gorm:"not null"`
	Timezone    string `gorm:"size:64"`
	Enabled     bool   `gorm:"not null"`
	UpdatedAt   time.Time
}

func (UserQuietHours) TableName() string { return "user_quiet_hours" }

// SqlStore MySQL 存储实现
type SqlStore struct {
	db *gorm.DB
}

func NewSqlStore(db *gorm.DB) *SqlStore {
	return &SqlStore{db: db}
}

// AutoMigrate 建表
func (s *SqlStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&DeviceToken{}, &NotificationDeliveryLog{}, &UserQuietHours{})
}

func toTarget(row *DeviceToken) models.DeviceTarget {
	return models.DeviceTarget{
		UserID:     row.UserID,
		Token:      row.Token,
		Platform:   models.Platform(row.Platform),
		IsActive:   row.IsActive,
		LastSeenAt: row.LastSeenAt,
		CreatedAt:  row.CreatedAt,
	}
}

func registerQuery(tx *gorm.DB, target *models.DeviceTarget, now time.Time) *gorm.DB {
	row := &DeviceToken{
		UserID:     target.UserID,
		Token:      target.Token,
		Platform:   string(target.Platform),
		IsActive:   true,
		LastSeenAt: now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.Assignments(map[string]any{
			"user_id":      target.UserID,
			"platform":     string(target.Platform),
			"is_active":    true,
			"last_seen_at": now,
			"updated_at":   now,
		}),
	}).Create(row)
}

// RegisterDevice 注册或重新激活令牌，令牌换绑时直接改写 user_id
func (s *SqlStore) RegisterDevice(ctx context.Context, target *models.DeviceTarget) error {
	now := target.LastSeenAt
	if now.IsZero() {
		now = time.Now()
	}
	if err := registerQuery(s.db.WithContext(ctx), target, now).Error; err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

// Heartbeat 刷新 last_seen_at
func (s *SqlStore) Heartbeat(ctx context.Context, token string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&DeviceToken{}).
		Where("token = ?", token).
		Update("last_seen_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// 时间戳未变化时 MySQL 返回 0 行，需要再确认是否存在
	var count int64
	if err := s.db.WithContext(ctx).Model(&DeviceToken{}).Where("token = ?", token).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return models.ErrTargetNotFound
	}
	return nil
}

// DeactivateTarget 停用令牌，幂等
func (s *SqlStore) DeactivateTarget(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Model(&DeviceToken{}).
		Where("token = ? AND is_active = ?", token, true).
		Update("is_active", false).Error
}

// ActiveTargets 用户有效令牌
func (s *SqlStore) ActiveTargets(ctx context.Context, userID string) ([]models.DeviceTarget, error) {
	return s.listTargets(ctx, userID, true)
}

// UserDevices 用户全部令牌
func (s *SqlStore) UserDevices(ctx context.Context, userID string) ([]models.DeviceTarget, error) {
	return s.listTargets(ctx, userID, false)
}

func (s *SqlStore) listTargets(ctx context.Context, userID string, activeOnly bool) ([]models.DeviceTarget, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []DeviceToken
	if err := q.Order("token").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.DeviceTarget, 0, len(rows))
	for i := range rows {
		out = append(out, toTarget(&rows[i]))
	}
	return out, nil
}

// LastDelivery 不存在时返回 nil, nil
func (s *SqlStore) LastDelivery(ctx context.Context, dedupKey string) (*models.DeliveryRecord, error) {
	var row NotificationDeliveryLog
	err := s.db.WithContext(ctx).Where("dedup_key = ?", dedupKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.DeliveryRecord{
		DedupKey:     row.DedupKey,
		EventType:    row.EventType,
		SentAt:       row.SentAt,
		SuccessCount: row.SuccessCount,
		FailureCount: row.FailureCount,
	}, nil
}

func recordQuery(tx *gorm.DB, rec *models.DeliveryRecord) *gorm.DB {
	updates := map[string]any{
		"success_count": gorm.Expr("success_count + ?", rec.SuccessCount),
		"failure_count": gorm.Expr("failure_count + ?", rec.FailureCount),
		"updated_at":    rec.SentAt,
	}
	if rec.EventType != "" {
		updates["event_type"] = rec.EventType
	}
	// 只有成功投递才刷新 sent_at，失败不影响后续去重判断
	if rec.SuccessCount > 0 {
		updates["sent_at"] = rec.SentAt
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&NotificationDeliveryLog{
		DedupKey:     rec.DedupKey,
		EventType:    rec.EventType,
		SentAt:       rec.SentAt,
		SuccessCount: rec.SuccessCount,
		FailureCount: rec.FailureCount,
	})
}

// RecordDelivery 单条语句完成插入或累加，依赖 dedup_key 唯一索引保证并发安全
func (s *SqlStore) RecordDelivery(ctx context.Context, rec *models.DeliveryRecord) error {
	if err := recordQuery(s.db.WithContext(ctx), rec).Error; err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// QuietHours 未设置时返回 nil, nil
func (s *SqlStore) QuietHours(ctx context.Context, userID string) (*models.QuietHours, error) {
	var row UserQuietHours
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.QuietHours{
		UserID:      row.UserID,
		StartMinute: row.StartMinute,
		EndMinute:   row.EndMinute,
		Timezone:    row.Timezone,
		Enabled:     row.Enabled,
	}, nil
}

func quietHoursQuery(tx *gorm.DB, qh *models.QuietHours) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&UserQuietHours{
		UserID:      qh.UserID,
		StartMinute: qh.StartMinute,
		EndMinute:   qh.EndMinute,
		Timezone:    qh.Timezone,
		Enabled:     qh.Enabled,
	})
}

// SetQuietHours 保存免打扰设置
func (s *SqlStore) SetQuietHours(ctx context.Context, qh *models.QuietHours) error {
	return quietHoursQuery(s.db.WithContext(ctx), qh).Error
}

// PruneDeliveryLog 删除 sent_at 早于 before 的投递记录
func (s *SqlStore) PruneDeliveryLog(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("sent_at < ?", before).Delete(&NotificationDeliveryLog{})
	return res.RowsAffected, res.Error
}

// HealthCheck ping 数据库
func (s *SqlStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SqlStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
