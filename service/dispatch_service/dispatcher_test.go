package dispatch_service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"helper-push-service/models"
	ec "helper-push-service/service/event_catalog"
	"helper-push-service/service/gateway_service"
	"helper-push-service/service/handler_service"

	"github.com/shopspring/decimal"
)

// fakeGateway 记录每次调用；bad- 前缀令牌返回未注册
type fakeGateway struct {
	mu    sync.Mutex
	calls []gatewayCall
	delay time.Duration
}

type gatewayCall struct {
	msg    gateway_service.Message
	tokens []string
}

func (f *fakeGateway) SendMulticast(_ context.Context, msg *gateway_service.Message, tokens []string) *gateway_service.MulticastResult {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.calls = append(f.calls, gatewayCall{msg: *msg, tokens: append([]string(nil), tokens...)})
	f.mu.Unlock()

	res := &gateway_service.MulticastResult{Batches: 1}
	for _, token := range tokens {
		r := gateway_service.TokenResult{Token: token, Success: true}
		switch {
		case strings.HasPrefix(token, "bad-"):
			r = gateway_service.TokenResult{Token: token, ErrorCode: gateway_service.ErrorCodeNotRegistered}
		case strings.HasPrefix(token, "down-"):
			r = gateway_service.TokenResult{Token: token, ErrorCode: "unavailable"}
		}
		if r.Success {
			res.SuccessCount++
		} else {
			res.FailureCount++
		}
		res.Results = append(res.Results, r)
	}
	if res.FailureCount > 0 {
		res.PartialBatches = 1
	}
	return res
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store   *MemoryStore
	gateway *fakeGateway
	clock   *clock
	d       *Dispatcher
}

func newHarness(t *testing.T, catalog *ec.Catalog) *harness {
	t.Helper()
	if catalog == nil {
		catalog = ec.Default()
	}
	h := &harness{
		store:   NewMemoryStore(),
		gateway: &fakeGateway{},
		clock:   &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	d, err := NewDispatcher(Options{
		Catalog:    catalog,
		Devices:    h.store,
		Ledger:     h.store,
		QuietHours: h.store,
		Gateway:    h.gateway,
		Now:        h.clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.d = d
	return h
}

func (h *harness) register(t *testing.T, userID string, tokens ...string) {
	t.Helper()
	for _, token := range tokens {
		err := h.store.RegisterDevice(context.Background(), &models.DeviceTarget{
			UserID: userID, Token: token, Platform: models.PlatformAndroid,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func jobSubject(id string) models.SubjectContext {
	lat, lng := 12.97, 77.64
	return models.SubjectContext{
		SubjectID:     id,
		JobID:         id,
		JobTitle:      "Fix kitchen sink",
		ActorID:       "H7",
		ActorName:     "Asha",
		Amount:        decimal.NewNullDecimal(decimal.NewFromInt(800)),
		Currency:      "INR",
		LocationLabel: "Indiranagar",
		Latitude:      &lat,
		Longitude:     &lng,
		ExpiresAt:     time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC),
		OccurredAt:    time.Date(2026, 5, 1, 11, 59, 0, 0, time.UTC),
	}
}

func TestNewDispatcherRequiresDependencies(t *testing.T) {
	if _, err := NewDispatcher(Options{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

// 用户两台设备，job_started 首发送达两台，立即重发去重，窗口过后再次送达并累加成功数
func TestJobStartedScenario(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "U", "tok-a", "tok-b")
	ctx := context.Background()

	first, err := h.d.SendNotification(ctx, ec.JobStarted, "U", jobSubject("J1"))
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != StatusSent || first.Targets != 2 || first.SuccessCount != 2 {
		t.Fatalf("first = %+v", first)
	}

	again, err := h.d.SendNotification(ctx, ec.JobStarted, "U", jobSubject("J1"))
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != StatusDeduplicated {
		t.Fatalf("re-fire status = %s", again.Status)
	}
	if h.gateway.callCount() != 1 {
		t.Fatalf("gateway calls = %d, want 1", h.gateway.callCount())
	}

	h.clock.Advance(ec.Default().MustLookup(ec.JobStarted).DedupWindow + time.Second)
	third, err := h.d.SendNotification(ctx, ec.JobStarted, "U", jobSubject("J1"))
	if err != nil {
		t.Fatal(err)
	}
	if third.Status != StatusSent {
		t.Fatalf("after window status = %s", third.Status)
	}
	rec, _ := h.store.LastDelivery(ctx, first.DedupKey)
	if rec == nil || rec.SuccessCount != 4 {
		t.Fatalf("ledger = %+v, want success_count 4", rec)
	}

	call := h.gateway.calls[0]
	if call.msg.Data[models.DataKeyEventType] != "job_started" || call.msg.Data[models.DataKeyDedupKey] != first.DedupKey {
		t.Errorf("wire data missing reserved keys: %v", call.msg.Data)
	}
	if call.msg.Data[ec.FieldID] != "J1" {
		t.Errorf("wire data id = %q", call.msg.Data[ec.FieldID])
	}
}

func TestDedupKeyIsDeterministic(t *testing.T) {
	a := DedupKey(ec.JobStarted, "J1", "U")
	if a != DedupKey(ec.JobStarted, "J1", "U") {
		t.Fatal("dedup key not deterministic")
	}
	for _, other := range []string{
		DedupKey(ec.JobCompleted, "J1", "U"),
		DedupKey(ec.JobStarted, "J2", "U"),
		DedupKey(ec.JobStarted, "J1", "V"),
	} {
		if other == a {
			t.Error("dedup key collision across distinct inputs")
		}
	}

	// 分隔符出现在 id 中时，不同的 (实体, 收件人) 组合仍需区分
	if DedupKey(ec.JobStarted, "J1|U", "V") == DedupKey(ec.JobStarted, "J1", "U|V") {
		t.Error("dedup key collides when ids contain the separator")
	}
}

func TestSeparatorInRecipientIsNotDeduplicated(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "V", "tok-v")
	h.register(t, "U|V", "tok-uv")
	ctx := context.Background()

	subject := jobSubject("J1|U")
	first, err := h.d.SendNotification(ctx, ec.JobStarted, "V", subject)
	if err != nil || first.Status != StatusSent {
		t.Fatalf("first = %+v err = %v", first, err)
	}
	subject.SubjectID = "J1"
	second, err := h.d.SendNotification(ctx, ec.JobStarted, "U|V", subject)
	if err != nil || second.Status != StatusSent {
		t.Fatalf("distinct recipient deduplicated: %+v err = %v", second, err)
	}
}

func TestConcurrentSameKeyCallsGatewayOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.delay = 10 * time.Millisecond
	h.register(t, "U", "tok-a")

	var wg sync.WaitGroup
	statuses := make([]Status, 10)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.d.SendNotification(context.Background(), ec.BidAccepted, "U", jobSubject("B1"))
			if err != nil {
				t.Error(err)
				return
			}
			statuses[i] = res.Status
		}(i)
	}
	wg.Wait()

	sent := 0
	for _, s := range statuses {
		if s == StatusSent {
			sent++
		} else if s != StatusDeduplicated {
			t.Errorf("unexpected status %s", s)
		}
	}
	if sent != 1 || h.gateway.callCount() != 1 {
		t.Errorf("sent = %d, gateway calls = %d, want 1/1", sent, h.gateway.callCount())
	}
}

func TestQuietHoursSuppressesButSOSPassesThrough(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "U", "tok-a")
	ctx := context.Background()
	// 12:00 UTC 落在 11:00-13:00 免打扰内
	_ = h.store.SetQuietHours(ctx, &models.QuietHours{UserID: "U", StartMinute: 11 * 60, EndMinute: 13 * 60, Enabled: true})

	res, err := h.d.SendNotification(ctx, ec.PaymentReleased, "U", jobSubject("P1"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusSuppressed {
		t.Fatalf("payment during quiet hours = %s", res.Status)
	}

	sos, err := h.d.SendNotification(ctx, ec.SOSRaised, "U", jobSubject("S1"))
	if err != nil {
		t.Fatal(err)
	}
	if sos.Status != StatusSent {
		t.Fatalf("sos during quiet hours = %s", sos.Status)
	}

	alert, err := h.d.SendNotification(ctx, ec.NewJobNearby, "U", jobSubject("J9"))
	if err != nil {
		t.Fatal(err)
	}
	if alert.Status != StatusSent {
		t.Fatalf("job alert during quiet hours = %s", alert.Status)
	}
}

func TestRateLimitBoundaryAndReset(t *testing.T) {
	catalog, err := ec.Default().WithOverrides(ec.Overrides{
		RateLimits: map[ec.Category]ec.RateLimit{ec.CategoryPayment: {Ceiling: 2, Period: time.Hour}},
	})
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, catalog)
	h.register(t, "U", "tok-a")
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		res, err := h.d.SendNotification(ctx, ec.PaymentCredited, "U", jobSubject(fmt.Sprintf("W%d", i)))
		if err != nil || res.Status != StatusSent {
			t.Fatalf("send %d: %+v %v", i, res, err)
		}
	}
	res, _ := h.d.SendNotification(ctx, ec.PaymentCredited, "U", jobSubject("W3"))
	if res.Status != StatusRateLimited {
		t.Fatalf("3rd payment = %s, want rate_limited", res.Status)
	}

	// 其它分类不受影响
	other, _ := h.d.SendNotification(ctx, ec.JobCompleted, "U", jobSubject("J3"))
	if other.Status != StatusSent {
		t.Fatalf("job_activity after payment limit = %s", other.Status)
	}

	h.clock.Advance(time.Hour + time.Minute)
	res, _ = h.d.SendNotification(ctx, ec.PaymentCredited, "U", jobSubject("W4"))
	if res.Status != StatusSent {
		t.Fatalf("after window = %s", res.Status)
	}
}

func TestInvalidTokenPruning(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "U", "tok-a", "bad-b", "down-c")
	ctx := context.Background()

	res, err := h.d.SendNotification(ctx, ec.JobOffered, "U", jobSubject("J1"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusSent || res.SuccessCount != 1 || res.FailureCount != 2 || res.PartialFailures != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.DeactivatedTokens) != 1 || res.DeactivatedTokens[0] != "bad-b" {
		t.Fatalf("deactivated = %v", res.DeactivatedTokens)
	}

	active, _ := h.store.ActiveTargets(ctx, "U")
	for _, target := range active {
		if target.Token == "bad-b" {
			t.Fatal("pruned token still active")
		}
	}
	// 非永久错误不停用
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}

	_, _ = h.d.SendNotification(ctx, ec.JobOffered, "U", jobSubject("J2"))
	last := h.gateway.calls[len(h.gateway.calls)-1]
	for _, token := range last.tokens {
		if token == "bad-b" {
			t.Fatal("pruned token used on next send")
		}
	}
}

func TestNonPushAndNoTarget(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.d.SendNotification(ctx, ec.ChatMessage, "U", jobSubject("C1"))
	if err != nil || res.Status != StatusNotPushOwned {
		t.Fatalf("chat = %+v %v", res, err)
	}
	res, err = h.d.SendNotification(ctx, ec.JobStarted, "nobody", jobSubject("J1"))
	if err != nil || res.Status != StatusNoTarget {
		t.Fatalf("no target = %+v %v", res, err)
	}
	if h.gateway.callCount() != 0 {
		t.Fatal("gateway must not be called")
	}

	if _, err := h.d.SendNotification(ctx, ec.JobStarted, "", jobSubject("J1")); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
	if _, err := h.d.SendNotification(ctx, ec.JobStarted, "U", models.SubjectContext{}); !errors.Is(err, ErrMissingSubject) {
		t.Errorf("expected ErrMissingSubject, got %v", err)
	}
}

func TestAllTargetsFailedIsRetryable(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "U", "down-a")
	ctx := context.Background()

	res, _ := h.d.SendNotification(ctx, ec.JobStarted, "U", jobSubject("J1"))
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	// 没有成功记录，重发不会被去重
	again, _ := h.d.SendNotification(ctx, ec.JobStarted, "U", jobSubject("J1"))
	if again.Status == StatusDeduplicated {
		t.Fatal("failed delivery must not dedup the retry")
	}
}

func TestSendToMultipleUsersAggregates(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "U1", "tok-1")
	h.register(t, "U2", "tok-2", "bad-2")
	h.register(t, "U3", "down-3")
	ctx := context.Background()

	agg, err := h.d.SendToMultipleUsers(ctx, ec.NewJobNearby, []string{"U1", "U2", "U3", "U4", "U1", ""}, jobSubject("J1"))
	if err != nil {
		t.Fatal(err)
	}
	if agg.TotalRecipients != 4 {
		t.Fatalf("recipients = %d, want 4 (deduplicated)", agg.TotalRecipients)
	}
	if agg.ByStatus[StatusSent] != 2 || agg.ByStatus[StatusFailed] != 1 || agg.ByStatus[StatusNoTarget] != 1 {
		t.Errorf("by status = %v", agg.ByStatus)
	}
	if agg.SuccessCount != 2 || agg.FailureCount != 2 || agg.Deactivated != 1 {
		t.Errorf("success = %d failure = %d deactivated = %d", agg.SuccessCount, agg.FailureCount, agg.Deactivated)
	}

	// 收件人无关的事件共享内容，dedup_key 仍按收件人区分
	keys := map[string]bool{}
	for _, call := range h.gateway.calls {
		if call.msg.Title != h.gateway.calls[0].msg.Title {
			t.Error("shared content differs between recipients")
		}
		keys[call.msg.Data[models.DataKeyDedupKey]] = true
	}
	if len(keys) != len(h.gateway.calls) {
		t.Error("dedup keys must be per recipient")
	}

	again, _ := h.d.SendToMultipleUsers(ctx, ec.NewJobNearby, []string{"U1", "U2"}, jobSubject("J1"))
	if again.ByStatus[StatusDeduplicated] != 2 {
		t.Errorf("re-broadcast by status = %v", again.ByStatus)
	}
}

func TestSendToMultipleUsersPerRecipientContent(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "poster", "tok-p")
	h.register(t, "helper", "tok-h")
	subject := jobSubject("J1")
	subject.RecipientNames = map[string]string{"poster": "Asha", "helper": "Ravi"}

	agg, err := h.d.SendToMultipleUsers(context.Background(), ec.JobCompleted, []string{"poster", "helper"}, subject)
	if err != nil {
		t.Fatal(err)
	}
	if agg.ByStatus[StatusSent] != 2 {
		t.Fatalf("by status = %v", agg.ByStatus)
	}
	bodies := map[string]bool{}
	for _, call := range h.gateway.calls {
		bodies[call.msg.Body] = true
	}
	if !bodies["Asha marked Fix kitchen sink as completed"] || !bodies["Ravi marked Fix kitchen sink as completed"] {
		t.Errorf("bodies = %v", bodies)
	}
}

func TestSendToMultipleUsersRejectsInvalidSharedPayload(t *testing.T) {
	h := newHarness(t, nil)
	subject := jobSubject("S1")
	subject.ActorName = ""
	_, err := h.d.SendToMultipleUsers(context.Background(), ec.SOSRaised, []string{"U1"}, subject)
	if !errors.Is(err, handler_service.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestStatsAndHealth(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "U", "tok-a")
	ctx := context.Background()
	_, _ = h.d.SendNotification(ctx, ec.JobStarted, "U", jobSubject("J1"))
	_, _ = h.d.SendNotification(ctx, ec.JobStarted, "U", jobSubject("J1"))

	stats := h.d.Stats()
	if stats[StatusSent] != 1 || stats[StatusDeduplicated] != 1 {
		t.Errorf("stats = %v", stats)
	}
	for name, err := range h.d.HealthCheck(ctx) {
		if err != nil {
			t.Errorf("%s unhealthy: %v", name, err)
		}
	}
}
