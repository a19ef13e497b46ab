package models

import (
	"time"

	"helper-push-service/service/event_catalog"

	"github.com/shopspring/decimal"
)

// DeviceTarget 设备推送目标，令牌失效时只做停用不做删除
type DeviceTarget struct {
	UserID     string    `json:"userId" binding:"required"`   // 用户ID
	Token      string    `json:"token" binding:"required"`    // 推送令牌（同时作为设备唯一标识）
	Platform   Platform  `json:"platform" binding:"required"` // 平台 android / ios
	IsActive   bool      `json:"isActive"`                    // 是否有效
	LastSeenAt time.Time `json:"lastSeenAt"`                  // 最近一次心跳
	CreatedAt  time.Time `json:"createdAt"`
}

// DeliveryRecord 投递记录，dedup_key 唯一
type DeliveryRecord struct {
	DedupKey     string    `json:"dedupKey"`
	EventType    string    `json:"eventType"`
	SentAt       time.Time `json:"sentAt"`       // 最近一次成功投递时间
	SuccessCount int       `json:"successCount"` // 累计成功数
	FailureCount int       `json:"failureCount"` // 累计失败数
}

// QuietHours 用户免打扰时段，按分钟计（0-1439），Start > End 表示跨零点
type QuietHours struct {
	UserID      string `json:"userId" binding:"required"`
	StartMinute int    `json:"startMinute" binding:"min=0,max=1439"`
	EndMinute   int    `json:"endMinute" binding:"min=0,max=1439"`
	Timezone    string `json:"timezone"` // IANA 时区，如 Asia/Kolkata，为空时按 UTC
	Enabled     bool   `json:"enabled"`
}

// PushPayload 发往设备的推送内容，发送后不可变
type PushPayload struct {
	EventType       event_catalog.EventType `json:"event_type"`
	RecipientUserID string                  `json:"recipient_user_id"`
	Title           string                  `json:"title"`
	Body            string                  `json:"body"`
	Data            map[string]string       `json:"data"`
	DedupKey        string                  `json:"dedup_key"`
	CreatedAt       time.Time               `json:"created_at"`
}

// payload data 中的保留字段
const (
	DataKeyEventType = "event_type"
	DataKeyDedupKey  = "dedup_key"
	DataKeyCreatedAt = "created_at"
)

// WireData 返回网关 data 字段：业务字段 + 保留字段，全部为字符串
func (p *PushPayload) WireData() map[string]string {
	out := make(map[string]string, len(p.Data)+3)
	for k, v := range p.Data {
		out[k] = v
	}
	out[DataKeyEventType] = p.EventType.String()
	out[DataKeyDedupKey] = p.DedupKey
	out[DataKeyCreatedAt] = p.CreatedAt.UTC().Format(time.RFC3339)
	return out
}

// SubjectContext 事件发生方提供的上下文，handler 构建 payload 只能使用这里的数据
type SubjectContext struct {
	SubjectID      string              `json:"subject_id" validate:"required"`
	JobID          string              `json:"job_id,omitempty"`
	JobTitle       string              `json:"job_title,omitempty"`
	ActorID        string              `json:"actor_id,omitempty"`
	ActorName      string              `json:"actor_name,omitempty"`
	Amount         decimal.NullDecimal `json:"amount"` // 未提供时 Valid=false
	Currency       string              `json:"currency,omitempty"`
	LocationLabel  string              `json:"location_label,omitempty"`
	Latitude       *float64            `json:"latitude,omitempty"`
	Longitude      *float64            `json:"longitude,omitempty"`
	DistanceKm     float64             `json:"distance_km,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	Status         string              `json:"status,omitempty"`
	Preview        string              `json:"preview,omitempty"`
	ExpiresAt      time.Time           `json:"expires_at,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at,omitempty"`
	RecipientNames map[string]string   `json:"recipient_names,omitempty"` // 收件人ID -> 对方显示名
	Extra          map[string]string   `json:"extra,omitempty"`
}

// DomainEvent 领域事件，来自 socket / Pub/Sub / HTTP
type DomainEvent struct {
	EventID      string                  `json:"event_id"`
	EventType    event_catalog.EventType `json:"event_type"`
	RecipientIDs []string                `json:"recipient_ids" validate:"required,min=1,dive,required"`
	Subject      SubjectContext          `json:"subject"`
}

// MergeDelivery 将一次投递结果累加到已有记录上
// 只有存在成功投递时才刷新 SentAt，失败记录不会阻止后续重发
func MergeDelivery(existing, next *DeliveryRecord) *DeliveryRecord {
	if existing == nil {
		cp := *next
		return &cp
	}
	merged := *existing
	merged.SuccessCount += next.SuccessCount
	merged.FailureCount += next.FailureCount
	if next.EventType != "" {
		merged.EventType = next.EventType
	}
	if next.SuccessCount > 0 {
		merged.SentAt = next.SentAt
	}
	return &merged
}
