package receiver_service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"helper-push-service/models"
	ec "helper-push-service/service/event_catalog"
)

type countingFetcher struct {
	calls []string
	mu    sync.Mutex
}

func (f *countingFetcher) FetchEntity(_ context.Context, kind, id string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind+"/"+id)
	return map[string]string{"status": "in_progress"}, nil
}

type recordingPresenter struct {
	shown int32
}

func (p *recordingPresenter) Present(context.Context, *Notification) error {
	atomic.AddInt32(&p.shown, 1)
	return nil
}

func jobStartedData(key string) map[string]string {
	return map[string]string{
		models.DataKeyEventType: "job_started",
		models.DataKeyDedupKey:  key,
		models.DataKeyCreatedAt: "2026-05-01T12:00:00Z",
		ec.FieldID:              "J1",
		ec.FieldJobTitle:        "Fix kitchen sink",
		ec.FieldCounterpart:     "Ravi",
		ec.FieldOccurredAt:      "2026-05-01T11:59:00Z",
	}
}

func newTestReceiver(t *testing.T) (*Receiver, *MemoryLocalState, *recordingPresenter, *countingFetcher) {
	t.Helper()
	state := NewMemoryLocalState()
	presenter := &recordingPresenter{}
	fetcher := &countingFetcher{}
	r, err := NewReceiver(Options{State: state, Presenter: presenter, Fetcher: fetcher})
	if err != nil {
		t.Fatal(err)
	}
	return r, state, presenter, fetcher
}

func TestTrackerShouldRender(t *testing.T) {
	tr := NewEventTracker(2, time.Hour)
	if !tr.ShouldRender("a") || tr.ShouldRender("a") {
		t.Fatal("first call must render, second must not")
	}
	tr.ShouldRender("b")
	tr.ShouldRender("c") // 超出容量，淘汰 a
	if !tr.ShouldRender("a") {
		t.Error("evicted key should render again")
	}
}

func TestTrackerExpires(t *testing.T) {
	tr := NewEventTracker(10, 30*time.Millisecond)
	tr.ShouldRender("k")
	time.Sleep(60 * time.Millisecond)
	if !tr.ShouldRender("k") {
		t.Error("expired key should render again")
	}
}

func TestTrackerConcurrent(t *testing.T) {
	tr := NewEventTracker(0, 0)
	var (
		wg      sync.WaitGroup
		renders int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.ShouldRender("same") {
				atomic.AddInt32(&renders, 1)
			}
		}()
	}
	wg.Wait()
	if renders != 1 {
		t.Errorf("rendered %d times, want 1", renders)
	}
}

func TestReceiveRendersFromPayloadWithoutFetch(t *testing.T) {
	r, state, presenter, fetcher := newTestReceiver(t)

	n, rendered, err := r.ReceiveData(context.Background(), jobStartedData("k1"))
	if err != nil || !rendered {
		t.Fatalf("rendered=%v err=%v", rendered, err)
	}
	if n.Body != "Ravi started Fix kitchen sink" || n.State != StateNotified {
		t.Errorf("notification = %+v", n)
	}
	if state.Badge(ec.CategoryJobActivity) != 1 {
		t.Errorf("badge = %d", state.Badge(ec.CategoryJobActivity))
	}
	if e, ok := state.Entity("job", "J1"); !ok || e[ec.FieldJobTitle] != "Fix kitchen sink" {
		t.Errorf("entity snapshot = %v", e)
	}
	if len(fetcher.calls) != 0 {
		t.Fatalf("receipt triggered fetch: %v", fetcher.calls)
	}

	// 推送与迟到的重复投递只渲染一次
	_, rendered, err = r.ReceiveData(context.Background(), jobStartedData("k1"))
	if err != nil || rendered {
		t.Fatalf("duplicate rendered=%v err=%v", rendered, err)
	}
	if presenter.shown != 1 || state.Badge(ec.CategoryJobActivity) != 1 {
		t.Errorf("duplicate changed state: shown=%d badge=%d", presenter.shown, state.Badge(ec.CategoryJobActivity))
	}
}

func TestDismissNeverFetches(t *testing.T) {
	r, _, _, fetcher := newTestReceiver(t)
	_, _, _ = r.ReceiveData(context.Background(), jobStartedData("k1"))

	if err := r.Dismiss("k1"); err != nil {
		t.Fatal(err)
	}
	if s, _ := r.State("k1"); s != StateDismissed {
		t.Errorf("state = %s", s)
	}
	if len(fetcher.calls) != 0 {
		t.Fatal("dismiss triggered fetch")
	}
	if _, err := r.Act(context.Background(), "k1", "open"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("act after dismiss: %v", err)
	}
}

func TestActFetchesExactlyTheReferencedEntity(t *testing.T) {
	r, state, _, fetcher := newTestReceiver(t)
	_, _, _ = r.ReceiveData(context.Background(), jobStartedData("k1"))

	fields, err := r.Act(context.Background(), "k1", "view_job")
	if err != nil {
		t.Fatal(err)
	}
	if len(fetcher.calls) != 1 || fetcher.calls[0] != "job/J1" {
		t.Fatalf("fetch calls = %v", fetcher.calls)
	}
	if fields["status"] != "in_progress" {
		t.Errorf("fields = %v", fields)
	}
	if e, _ := state.Entity("job", "J1"); e["status"] != "in_progress" || e[ec.FieldJobTitle] == "" {
		t.Errorf("entity not merged: %v", e)
	}

	if _, err := r.Act(context.Background(), "k1", "view_job"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second act: %v", err)
	}
	if err := r.Dismiss("k1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("dismiss after act: %v", err)
	}
	if len(fetcher.calls) != 1 {
		t.Errorf("fetch calls = %d, want 1", len(fetcher.calls))
	}
}

func TestReceiveRejectsMalformedPayloads(t *testing.T) {
	r, _, _, _ := newTestReceiver(t)
	ctx := context.Background()

	missing := jobStartedData("k2")
	delete(missing, ec.FieldCounterpart)
	if _, _, err := r.ReceiveData(ctx, missing); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("missing field: %v", err)
	}
	if _, _, err := r.ReceiveData(ctx, map[string]string{models.DataKeyEventType: "chat_message", ec.FieldID: "c"}); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("realtime event via push: %v", err)
	}
	if _, _, err := r.Receive(ctx, []byte("{")); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("bad json: %v", err)
	}
	if err := r.Dismiss("nope"); !errors.Is(err, ErrUnknownNotification) {
		t.Errorf("unknown key: %v", err)
	}
}

func TestReceiveClientJSON(t *testing.T) {
	r, _, _, _ := newTestReceiver(t)
	data := jobStartedData("k3")
	delete(data, models.DataKeyEventType)
	raw, _ := json.Marshal(ClientPayload{EventType: "job_started", Data: data})

	n, rendered, err := r.Receive(context.Background(), raw)
	if err != nil || !rendered {
		t.Fatalf("rendered=%v err=%v", rendered, err)
	}
	if n.EventType != ec.JobStarted || n.EntityID != "J1" {
		t.Errorf("notification = %+v", n)
	}
}
