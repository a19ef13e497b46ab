package realtime_service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"helper-push-service/models"
)

var (
	ErrNotConnected     = errors.New("socket client not connected")
	ErrNotRealtimeOwned = errors.New("event type is not owned by the realtime channel")
	ErrMalformedFrame   = errors.New("malformed socket frame")
)

// SocketData WebSocket generic data structure
type SocketData struct {
	M string `json:"M"`           // method
	C any    `json:"C"`           // code
	D any    `json:"D,omitempty"` // data
}

// Method 统一大写
func (s *SocketData) Method() string {
	return strings.ToUpper(s.M)
}

// FeedMessage 发布到实时频道的数据
type FeedMessage struct {
	Feed         string                `json:"feed"`
	EventID      string                `json:"eventId,omitempty"`
	EventType    string                `json:"eventType"`
	RecipientIDs []string              `json:"recipientIds"`
	Subject      models.SubjectContext `json:"subject"`
	Timestamp    int64                 `json:"timestamp"`
}

// WebSocket method constants
const (
	HEART_BEAT                    = "HEART_BEAT"
	PONG                          = "PONG"
	WS_SERVER_NOTIFY_DOMAIN_EVENT = "WS_SERVER_NOTIFY_DOMAIN_EVENT"
	WS_CLIENT_PUBLISH_FEED        = "WS_CLIENT_PUBLISH_FEED"

	WS_RESPONSE_SUCCESS = "WS_RESPONSE_SUCCESS"
	WS_RESPONSE_ERROR   = "WS_RESPONSE_ERROR"
)

// WebSocket code constants
const (
	WS_CODE_HEART_BEAT   = 10
	WS_CODE_SERVER       = 0
	WS_CODE_SEND_SUCCESS = 200
	WS_CODE_SEND_ERROR   = 400
)

// ParseSocketData 解析 message 事件参数，支持 JSON 字符串与 map 两种格式
func ParseSocketData(data []any) (*SocketData, error) {
	if len(data) == 0 || data[0] == nil {
		return nil, fmt.Errorf("%w: empty", ErrMalformedFrame)
	}

	switch v := data[0].(type) {
	case string:
		sd := &SocketData{}
		if err := json.Unmarshal([]byte(v), sd); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return sd, nil
	case []byte:
		sd := &SocketData{}
		if err := json.Unmarshal(v, sd); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return sd, nil
	case map[string]any:
		sd := &SocketData{}
		if m, ok := v["M"].(string); ok {
			sd.M = m
		}
		sd.C = v["C"]
		sd.D = v["D"]
		if sd.M == "" {
			return nil, fmt.Errorf("%w: missing method", ErrMalformedFrame)
		}
		return sd, nil
	}
	return nil, fmt.Errorf("%w: unsupported type %T", ErrMalformedFrame, data[0])
}

// DecodeDomainEvent 将 socketData.D 转换为领域事件
func DecodeDomainEvent(d any) (*models.DomainEvent, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: empty data", ErrMalformedFrame)
	}

	var raw []byte
	switch v := d.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		raw = b
	}

	event := &models.DomainEvent{}
	if err := json.Unmarshal(raw, event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(event.RecipientIDs) == 0 {
		return nil, fmt.Errorf("%w: no recipients", ErrMalformedFrame)
	}
	return event, nil
}
