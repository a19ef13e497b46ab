package dispatch_service

import (
	"context"
	"time"

	"helper-push-service/models"
	"helper-push-service/service/gateway_service"
)

// DeviceStore 推送目标存储，调度器只读取有效目标，仅在网关证明令牌失效时停用
type DeviceStore interface {
	// ActiveTargets 获取用户所有有效令牌
	ActiveTargets(ctx context.Context, userID string) ([]models.DeviceTarget, error)

	// DeactivateTarget 停用令牌，幂等
	DeactivateTarget(ctx context.Context, token string) error
}

// DeliveryLedger 投递记录，dedup_key 唯一
type DeliveryLedger interface {
	// LastDelivery 查询投递记录，不存在时返回 nil, nil
	LastDelivery(ctx context.Context, dedupKey string) (*models.DeliveryRecord, error)

	// RecordDelivery 写入或累加投递记录
	RecordDelivery(ctx context.Context, record *models.DeliveryRecord) error
}

// QuietHoursStore 用户免打扰设置
type QuietHoursStore interface {
	// QuietHours 未设置时返回 nil, nil
	QuietHours(ctx context.Context, userID string) (*models.QuietHours, error)
}

// DeviceRegistry 设备注册与用户设置，由 HTTP 接口调用
type DeviceRegistry interface {
	// RegisterDevice 注册或重新激活令牌，同一令牌换绑用户时迁移归属
	RegisterDevice(ctx context.Context, target *models.DeviceTarget) error

	// Heartbeat 刷新 last_seen_at，令牌不存在时返回 models.ErrTargetNotFound
	Heartbeat(ctx context.Context, token string, at time.Time) error

	// UserDevices 用户全部令牌（含已停用）
	UserDevices(ctx context.Context, userID string) ([]models.DeviceTarget, error)

	// DeactivateTarget 用户注销设备时停用令牌
	DeactivateTarget(ctx context.Context, token string) error

	QuietHours(ctx context.Context, userID string) (*models.QuietHours, error)

	// SetQuietHours 保存免打扰设置
	SetQuietHours(ctx context.Context, qh *models.QuietHours) error
}

// Store 完整存储实现（pebble / mysql / memory）
type Store interface {
	DeviceStore
	DeliveryLedger
	QuietHoursStore
	DeviceRegistry
	Close() error
}

// Gateway 推送网关
type Gateway interface {
	SendMulticast(ctx context.Context, msg *gateway_service.Message, tokens []string) *gateway_service.MulticastResult
}

// HealthChecker 可选的健康检查
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
