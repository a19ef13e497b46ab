package realtime_service

import (
	"context"
	"fmt"

	"helper-push-service/conf"
	"helper-push-service/models"
	ec "helper-push-service/service/event_catalog"
	"helper-push-service/tool"

	"github.com/sirupsen/logrus"
)

// Emitter 发送 socket 消息，Client 与 Manager 均实现
type Emitter interface {
	SendMessage(event string, data any) error
}

// Relay 把实时渠道拥有的事件转发到对应的订阅频道
// 推送渠道拥有的事件在这里一律拒绝，保证同一事件不会从两条链路到达
type Relay struct {
	catalog *ec.Catalog
	emitter Emitter
	feeds   map[ec.EventType]string
	logger  *logrus.Logger
}

func NewRelay(catalog *ec.Catalog, emitter Emitter) *Relay {
	if catalog == nil {
		catalog = ec.Default()
	}
	feeds := make(map[ec.EventType]string)
	for _, f := range ec.RealtimeSubscriptions() {
		for _, t := range f.Events {
			feeds[t] = f.Name
		}
	}
	return &Relay{
		catalog: catalog,
		emitter: emitter,
		feeds:   feeds,
		logger:  conf.GetLogger(),
	}
}

// Feeds 返回事件类型到频道名的映射
func (r *Relay) Feeds() map[ec.EventType]string {
	out := make(map[ec.EventType]string, len(r.feeds))
	for k, v := range r.feeds {
		out[k] = v
	}
	return out
}

// Publish 发布到事件所属的实时频道
func (r *Relay) Publish(ctx context.Context, event *models.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.catalog.OwnerOf(event.EventType) != ec.ChannelRealtime {
		return fmt.Errorf("%w: %s", ErrNotRealtimeOwned, event.EventType)
	}
	feed, ok := r.feeds[event.EventType]
	if !ok {
		return fmt.Errorf("%w: %s has no feed", ErrNotRealtimeOwned, event.EventType)
	}

	msg := &SocketData{
		M: WS_CLIENT_PUBLISH_FEED,
		C: WS_CODE_SERVER,
		D: &FeedMessage{
			Feed:         feed,
			EventID:      event.EventID,
			EventType:    event.EventType.String(),
			RecipientIDs: event.RecipientIDs,
			Subject:      event.Subject,
			Timestamp:    tool.MakeTimestamp(),
		},
	}
	if err := r.emitter.SendMessage("message", msg); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"feed":      feed,
			"eventType": event.EventType.String(),
		}).Error("❌ 实时频道发布失败")
		return fmt.Errorf("publish %s to %s: %w", event.EventType, feed, err)
	}
	r.logger.WithFields(logrus.Fields{
		"feed":       feed,
		"eventType":  event.EventType.String(),
		"recipients": len(event.RecipientIDs),
	}).Debug("📡 已发布到实时频道")
	return nil
}
