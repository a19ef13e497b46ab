package realtime_service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"helper-push-service/models"
	ec "helper-push-service/service/event_catalog"
)

type recordingEmitter struct {
	mu     sync.Mutex
	frames []*SocketData
	err    error
}

func (e *recordingEmitter) SendMessage(_ string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.frames = append(e.frames, data.(*SocketData))
	return nil
}

const domainEventJSON = `{"M":"ws_server_notify_domain_event","C":0,"D":{"event_id":"e1","event_type":"job_started","recipient_ids":["U1","U2"],"subject":{"subject_id":"J1","job_title":"Fix kitchen sink","amount":"0"}}}`

func TestParseSocketDataFormats(t *testing.T) {
	sd, err := ParseSocketData([]any{domainEventJSON})
	if err != nil {
		t.Fatal(err)
	}
	if sd.Method() != WS_SERVER_NOTIFY_DOMAIN_EVENT {
		t.Errorf("method = %s", sd.Method())
	}

	sd, err = ParseSocketData([]any{map[string]any{"M": "PONG", "C": 10}})
	if err != nil || sd.Method() != PONG {
		t.Errorf("map frame: %+v %v", sd, err)
	}

	for _, bad := range [][]any{nil, {nil}, {"{"}, {42}, {map[string]any{"C": 1}}} {
		if _, err := ParseSocketData(bad); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("ParseSocketData(%v) err = %v", bad, err)
		}
	}
}

func TestDecodeDomainEvent(t *testing.T) {
	sd, _ := ParseSocketData([]any{domainEventJSON})
	event, err := DecodeDomainEvent(sd.D)
	if err != nil {
		t.Fatal(err)
	}
	if event.EventType != ec.JobStarted || len(event.RecipientIDs) != 2 || event.Subject.JobTitle != "Fix kitchen sink" {
		t.Errorf("event = %+v", event)
	}

	if _, err := DecodeDomainEvent(map[string]any{"event_type": "no_such_event", "recipient_ids": []any{"U1"}}); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("unknown event type: %v", err)
	}
	if _, err := DecodeDomainEvent(`{"event_type":"job_started"}`); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("no recipients: %v", err)
	}
}

func TestClientDispatchesDomainEvent(t *testing.T) {
	c := NewClient(&Config{ServerURL: "http://127.0.0.1:1"})
	got := make(chan *models.DomainEvent, 1)
	c.OnDomainEvent = func(e *models.DomainEvent) { got <- e }
	beats := make(chan struct{}, 1)
	c.OnHeartbeat = func() { beats <- struct{}{} }

	c.handleSocketData([]any{domainEventJSON})
	c.handleSocketData([]any{map[string]any{"M": "HEART_BEAT", "C": 10}})
	c.handleSocketData([]any{"not json"})

	select {
	case e := <-got:
		t.Logf("📨 收到领域事件: %s -> %v", e.EventType, e.RecipientIDs)
	case <-time.After(time.Second):
		t.Fatal("domain event not delivered")
	}
	select {
	case <-beats:
	case <-time.After(time.Second):
		t.Fatal("heartbeat not delivered")
	}
}

func TestRelayPublishesToOwningFeed(t *testing.T) {
	em := &recordingEmitter{}
	r := NewRelay(nil, em)

	err := r.Publish(context.Background(), &models.DomainEvent{
		EventType:    ec.ChatMessage,
		RecipientIDs: []string{"U2"},
		Subject:      models.SubjectContext{SubjectID: "C1", Preview: "hi"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(em.frames) != 1 {
		t.Fatalf("frames = %d", len(em.frames))
	}
	msg := em.frames[0].D.(*FeedMessage)
	if em.frames[0].M != WS_CLIENT_PUBLISH_FEED || msg.Feed != "conversation_feed" || msg.EventType != "chat_message" {
		t.Errorf("frame = %+v %+v", em.frames[0], msg)
	}
}

func TestRelayRefusesPushOwnedEvents(t *testing.T) {
	em := &recordingEmitter{}
	r := NewRelay(nil, em)

	for _, et := range []ec.EventType{ec.JobStarted, ec.PaymentCredited, ec.ApplicationViewed} {
		err := r.Publish(context.Background(), &models.DomainEvent{EventType: et, RecipientIDs: []string{"U1"}})
		if !errors.Is(err, ErrNotRealtimeOwned) {
			t.Errorf("%s: err = %v", et, err)
		}
	}
	if len(em.frames) != 0 {
		t.Errorf("push-owned event reached realtime feed: %d frames", len(em.frames))
	}

	for t2, feed := range r.Feeds() {
		if ec.OwnerOf(t2) != ec.ChannelRealtime {
			t.Errorf("feed %s carries %s owned by %s", feed, t2, ec.OwnerOf(t2))
		}
	}
}

func TestRelayPropagatesEmitError(t *testing.T) {
	r := NewRelay(nil, &recordingEmitter{err: ErrNotConnected})
	err := r.Publish(context.Background(), &models.DomainEvent{EventType: ec.HelperLocationUpdated, RecipientIDs: []string{"U1"}})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v", err)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c := NewClient(&Config{ServerURL: "http://127.0.0.1:1"})
	if err := c.SendMessage("message", &SocketData{M: PONG}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v", err)
	}
}
