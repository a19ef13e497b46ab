package gateway_service

import (
	"context"
	"encoding/json"
	"fmt"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"helper-push-service/tool"
)

// fakeGateway 模拟网关：bad- 前缀的令牌返回未注册，fail 批次返回 503
type fakeGateway struct {
	mu       sync.Mutex
	requests []MulticastRequest
	inFlight int32
	peak     int32
	failWith string // 批次中包含该令牌时返回 503
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if cur <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	if r.Header.Get("Authorization") != "Bearer secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	body, _ := io.ReadAll(r.Body)
	if r.Header.Get("Content-Encoding") == "gzip" {
		var err error
		if body, err = tool.GunzipBytes(body, 0); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}
	var req MulticastRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	resp := MulticastResponse{}
	for _, token := range req.Tokens {
		if f.failWith != "" && token == f.failWith {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("overloaded"))
			return
		}
	}
	for _, token := range req.Tokens {
		switch {
		case strings.HasPrefix(token, "bad-"):
			resp.Responses = append(resp.Responses, TokenResponse{ErrorCode: ErrorCodeNotRegistered})
		case strings.HasPrefix(token, "quota-"):
			resp.Responses = append(resp.Responses, TokenResponse{ErrorCode: "quota-exceeded"})
		default:
			resp.Responses = append(resp.Responses, TokenResponse{Success: true, MessageID: "m-" + token})
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestService(t *testing.T, gw *fakeGateway, batchSize, concurrency int, gzip bool) *Service {
	t.Helper()
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	s, err := NewService(&Config{
		Endpoint:       srv.URL,
		AccessToken:    "secret",
		BatchSize:      batchSize,
		MaxConcurrency: concurrency,
		GzipRequests:   gzip,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func tokens(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{Endpoint: "https://push.example.com/v1/multicast"}, false},
		{"missing endpoint", Config{}, true},
		{"relative endpoint", Config{Endpoint: "/v1/multicast"}, true},
		{"batch over limit", Config{Endpoint: "https://push.example.com", BatchSize: 501}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.ApplyDefaults()
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := NewClient(nil); err == nil {
		t.Error("NewClient(nil) should fail")
	}
}

func TestSendMulticastBatchesAndResults(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestService(t, gw, 500, 4, false)

	all := append(tokens("ok-", 1100), "bad-1", "quota-1")
	res := s.SendMulticast(context.Background(), &Message{
		Title:    "Job started",
		Body:     "Ravi started Fix kitchen sink",
		Data:     map[string]string{"id": "J1"},
		Priority: "high",
		TTL:      time.Hour,
	}, all)

	if res.Batches != 3 || len(gw.requests) != 3 {
		t.Fatalf("batches = %d, requests = %d", res.Batches, len(gw.requests))
	}
	for _, req := range gw.requests {
		if len(req.Tokens) > MaxTokensPerRequest {
			t.Errorf("batch of %d exceeds limit", len(req.Tokens))
		}
		if req.PlatformOverrides.Android == nil || req.PlatformOverrides.Android.Priority != "high" {
			t.Errorf("android override missing: %+v", req.PlatformOverrides)
		}
		if req.PlatformOverrides.IOS == nil || req.PlatformOverrides.IOS.Expiration == 0 {
			t.Errorf("ios expiration missing: %+v", req.PlatformOverrides.IOS)
		}
	}
	if res.SuccessCount != 1100 || res.FailureCount != 2 {
		t.Errorf("success = %d failure = %d", res.SuccessCount, res.FailureCount)
	}
	if res.PartialBatches != 1 || res.FailedBatches != 0 {
		t.Errorf("partial = %d failed = %d", res.PartialBatches, res.FailedBatches)
	}
	invalid := res.InvalidTokens()
	if len(invalid) != 1 || invalid[0] != "bad-1" {
		t.Errorf("invalid tokens = %v", invalid)
	}
	for i, r := range res.Results {
		if r.Token != all[i] {
			t.Fatalf("result %d token = %s, want %s", i, r.Token, all[i])
		}
	}
}

func TestSendMulticastIsolatesFailedBatch(t *testing.T) {
	gw := &fakeGateway{failWith: "ok-7"}
	s := newTestService(t, gw, 5, 2, false)

	res := s.SendMulticast(context.Background(), &Message{Title: "t", Body: "b"}, tokens("ok-", 15))

	if res.Batches != 3 || res.FailedBatches != 1 {
		t.Fatalf("batches = %d failed = %d", res.Batches, res.FailedBatches)
	}
	if res.SuccessCount != 10 || res.FailureCount != 5 {
		t.Errorf("success = %d failure = %d", res.SuccessCount, res.FailureCount)
	}
	for _, r := range res.Results[5:10] {
		if !IsTransportError(r.Error) {
			t.Errorf("%s: expected transport error, got %v", r.Token, r.Error)
		}
		if r.Permanent() {
			t.Errorf("%s: transport failure must not prune the token", r.Token)
		}
	}
}

func TestSendMulticastBoundedConcurrency(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestService(t, gw, 1, 3, true)

	res := s.SendMulticast(context.Background(), &Message{Title: "t", Body: "b"}, tokens("ok-", 20))
	if res.SuccessCount != 20 {
		t.Fatalf("success = %d", res.SuccessCount)
	}
	if peak := atomic.LoadInt32(&gw.peak); peak > 3 {
		t.Errorf("peak concurrency %d exceeds limit 3", peak)
	}
	t.Logf("📊 批次=%d 峰值并发=%d 耗时=%v", res.Batches, gw.peak, res.Duration)
}

func TestSendMulticastUnauthorizedIsTransportFailure(t *testing.T) {
	gw := &fakeGateway{}
	srv := httptest.NewServer(gw)
	defer srv.Close()
	s, err := NewService(&Config{Endpoint: srv.URL, AccessToken: "wrong"})
	if err != nil {
		t.Fatal(err)
	}
	res := s.SendMulticast(context.Background(), &Message{Title: "t", Body: "b"}, []string{"ok-1"})
	if res.FailedBatches != 1 || res.FailureCount != 1 {
		t.Errorf("failed batches = %d failures = %d", res.FailedBatches, res.FailureCount)
	}
}

func TestSendMulticastTimeoutIsFailedBatchWithoutReplay(t *testing.T) {
	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	s, err := NewService(&Config{Endpoint: srv.URL, Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	all := tokens("ok-", 3)
	res := s.SendMulticast(context.Background(), &Message{Title: "t", Body: "b"}, all)

	if res.Batches != 1 || res.FailedBatches != 1 {
		t.Fatalf("batches = %d failed = %d", res.Batches, res.FailedBatches)
	}
	if res.SuccessCount != 0 || res.FailureCount != len(all) {
		t.Errorf("success = %d failure = %d", res.SuccessCount, res.FailureCount)
	}
	if n := atomic.LoadInt32(&received); n != 1 {
		t.Errorf("gateway received %d requests, want 1", n)
	}
	for _, r := range res.Results {
		var netErr net.Error
		if !IsTransportError(r.Error) || !errors.As(r.Error, &netErr) || !netErr.Timeout() {
			t.Errorf("%s: expected timeout transport error, got %v", r.Token, r.Error)
		}
		if r.Permanent() {
			t.Errorf("%s: timeout must not prune the token", r.Token)
		}
	}
}
