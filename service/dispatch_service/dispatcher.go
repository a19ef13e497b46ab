package dispatch_service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"helper-push-service/conf"
	"helper-push-service/models"
	ec "helper-push-service/service/event_catalog"
	"helper-push-service/service/gateway_service"
	"helper-push-service/service/handler_service"
	"helper-push-service/service/policy_service"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const moduleName = "dispatch_service"

var (
	ErrEmptyRecipient = errors.New("recipient user id is empty")
	ErrMissingSubject = errors.New("subject id is empty")
)

// Status 单个收件人的投递结果
type Status string

const (
	StatusSent         Status = "sent"
	StatusNotPushOwned Status = "not_push_owned"
	StatusDeduplicated Status = "deduplicated"
	StatusSuppressed   Status = "suppressed"
	StatusRateLimited  Status = "rate_limited"
	StatusNoTarget     Status = "no_target"
	StatusFailed       Status = "failed"
)

var allStatuses = []Status{
	StatusSent, StatusNotPushOwned, StatusDeduplicated, StatusSuppressed,
	StatusRateLimited, StatusNoTarget, StatusFailed,
}

// SendResult 单收件人结果；除 failed 外都是正常结果，调用方不应重试
type SendResult struct {
	EventType         string   `json:"eventType"`
	RecipientUserID   string   `json:"recipientUserId"`
	Status            Status   `json:"status"`
	DedupKey          string   `json:"dedupKey,omitempty"`
	Targets           int      `json:"targets"`
	SuccessCount      int      `json:"successCount"`
	FailureCount      int      `json:"failureCount"`
	TransportFailures int      `json:"transportFailures"` // 整批发送失败的批次数
	PartialFailures   int      `json:"partialFailures"`   // 部分令牌被拒的批次数
	DeactivatedTokens []string `json:"deactivatedTokens,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// AggregateSendResult 多收件人汇总
type AggregateSendResult struct {
	EventType         string         `json:"eventType"`
	TotalRecipients   int            `json:"totalRecipients"`
	ByStatus          map[Status]int `json:"byStatus"`
	SuccessCount      int            `json:"successCount"`
	FailureCount      int            `json:"failureCount"`
	TransportFailures int            `json:"transportFailures"`
	PartialFailures   int            `json:"partialFailures"`
	Deactivated       int            `json:"deactivated"`
	Results           []*SendResult  `json:"results"`
	Duration          time.Duration  `json:"duration"`
}

// Options 调度器依赖
type Options struct {
	Catalog     *ec.Catalog
	Devices     DeviceStore
	Ledger      DeliveryLedger
	QuietHours  QuietHoursStore
	Gateway     Gateway
	RateLimiter policy_service.RateLimiter // 默认内存实现
	Locker      policy_service.KeyLocker   // 默认进程内锁
	Logger      *logrus.Logger
	Tracer      trace.Tracer
	Now         func() time.Time
	// FanoutConcurrency 多收件人分发时并行处理的收件人数
	FanoutConcurrency int
}

// Dispatcher 推送调度器，无状态，可并发调用
type Dispatcher struct {
	catalog  *ec.Catalog
	devices  DeviceStore
	ledger   DeliveryLedger
	quiet    QuietHoursStore
	gateway  Gateway
	limiter  policy_service.RateLimiter
	locker   policy_service.KeyLocker
	logger   *logrus.Logger
	tracer   trace.Tracer
	now      func() time.Time
	fanout   int
	counters sync.Map // Status -> *int64
}

// NewDispatcher 创建调度器
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Catalog == nil || opts.Devices == nil || opts.Ledger == nil || opts.QuietHours == nil || opts.Gateway == nil {
		return nil, errors.New("dispatcher requires catalog, device store, ledger, quiet hours store and gateway")
	}
	d := &Dispatcher{
		catalog: opts.Catalog,
		devices: opts.Devices,
		ledger:  opts.Ledger,
		quiet:   opts.QuietHours,
		gateway: opts.Gateway,
		limiter: opts.RateLimiter,
		locker:  opts.Locker,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		now:     opts.Now,
		fanout:  opts.FanoutConcurrency,
	}
	if d.limiter == nil {
		d.limiter = policy_service.NewMemoryRateLimiter()
	}
	if d.locker == nil {
		d.locker = policy_service.NewLocalKeyLocker()
	}
	if d.logger == nil {
		d.logger = conf.GetLogger()
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("helper-push-service/dispatch")
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.fanout <= 0 {
		d.fanout = 16
	}
	for _, s := range allStatuses {
		d.counters.Store(s, new(int64))
	}
	return d, nil
}

// DedupKey 由 (事件类型, 业务实体, 收件人) 确定性生成
// 每段带长度前缀，id 中出现分隔符也不会与其他组合碰撞
func DedupKey(t ec.EventType, subjectID, recipientID string) string {
	h := sha256.New()
	for _, part := range []string{t.String(), subjectID, recipientID} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SendNotification 单收件人发送
func (d *Dispatcher) SendNotification(ctx context.Context, t ec.EventType, recipientID string, subject models.SubjectContext) (*SendResult, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.SendNotification", trace.WithAttributes(
		attribute.String("event_type", t.String()),
		attribute.String("recipient", recipientID),
	))
	defer span.End()

	entry, err := d.catalog.Lookup(t)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if recipientID == "" {
		return nil, ErrEmptyRecipient
	}
	if subject.SubjectID == "" {
		return nil, ErrMissingSubject
	}

	res, err := d.dispatch(ctx, entry, recipientID, subject, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("status", string(res.Status)))
	return res, nil
}

// SendToMultipleUsers 同一事件分发给多个收件人，单个收件人的失败不影响其它收件人
func (d *Dispatcher) SendToMultipleUsers(ctx context.Context, t ec.EventType, recipientIDs []string, subject models.SubjectContext) (*AggregateSendResult, error) {
	start := d.now()
	ctx, span := d.tracer.Start(ctx, "dispatch.SendToMultipleUsers", trace.WithAttributes(
		attribute.String("event_type", t.String()),
		attribute.Int("recipients", len(recipientIDs)),
	))
	defer span.End()

	entry, err := d.catalog.Lookup(t)
	if err != nil {
		return nil, err
	}
	if subject.SubjectID == "" {
		return nil, ErrMissingSubject
	}

	recipients := uniqueRecipients(recipientIDs)
	agg := &AggregateSendResult{
		EventType:       t.String(),
		TotalRecipients: len(recipients),
		ByStatus:        make(map[Status]int),
		Results:         make([]*SendResult, len(recipients)),
	}

	var shared *handler_service.Content
	if entry.Channel == ec.ChannelPush && entry.RecipientInvariant {
		if shared, err = handler_service.Build(d.catalog, t, subject, ""); err != nil {
			return nil, err
		}
	}

	var g errgroup.Group
	g.SetLimit(d.fanout)
	for i, recipient := range recipients {
		g.Go(func() error {
			res, err := d.dispatch(ctx, entry, recipient, subject, shared)
			if err != nil {
				conf.LogError(d.logger, moduleName, "SendToMultipleUsers", "recipient dispatch failed", recipient, err)
				res = &SendResult{
					EventType:       t.String(),
					RecipientUserID: recipient,
					Status:          StatusFailed,
					Error:           err.Error(),
				}
				d.count(StatusFailed)
			}
			agg.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range agg.Results {
		agg.ByStatus[res.Status]++
		agg.SuccessCount += res.SuccessCount
		agg.FailureCount += res.FailureCount
		agg.TransportFailures += res.TransportFailures
		agg.PartialFailures += res.PartialFailures
		agg.Deactivated += len(res.DeactivatedTokens)
	}
	agg.Duration = d.now().Sub(start)

	d.logger.WithFields(logrus.Fields{
		"eventType":  agg.EventType,
		"recipients": agg.TotalRecipients,
		"byStatus":   agg.ByStatus,
		"success":    agg.SuccessCount,
		"failure":    agg.FailureCount,
	}).Info("📊 多用户推送完成")
	return agg, nil
}

// dispatch 单收件人完整流程；shared 非空时直接复用内容
func (d *Dispatcher) dispatch(ctx context.Context, entry ec.Entry, recipientID string, subject models.SubjectContext, shared *handler_service.Content) (*SendResult, error) {
	res := &SendResult{EventType: entry.Type.String(), RecipientUserID: recipientID}

	// (a) 渠道归属
	if entry.Channel != ec.ChannelPush {
		return d.finish(res, StatusNotPushOwned), nil
	}

	// (b) 去重，锁覆盖到投递记录写入
	res.DedupKey = DedupKey(entry.Type, subject.SubjectID, recipientID)
	unlock, err := d.locker.Lock(ctx, res.DedupKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := d.now()
	last, err := d.ledger.LastDelivery(ctx, res.DedupKey)
	if err != nil {
		return nil, fmt.Errorf("read delivery record: %w", err)
	}
	if last != nil && last.SuccessCount > 0 && now.Sub(last.SentAt) < entry.DedupWindow {
		return d.finish(res, StatusDeduplicated), nil
	}

	// (c) 免打扰
	policy, ok := d.catalog.Policy(entry.Category)
	if !ok {
		return nil, fmt.Errorf("no policy for category %q", entry.Category)
	}
	if !policy.UrgencyExempt {
		qh, err := d.quiet.QuietHours(ctx, recipientID)
		if err != nil {
			return nil, fmt.Errorf("read quiet hours: %w", err)
		}
		if policy_service.QuietHoursActive(qh, now) {
			return d.finish(res, StatusSuppressed), nil
		}
	}

	// (d) 频控
	allowed, err := d.limiter.Allow(ctx, policy_service.RateLimitKey(recipientID, entry.Category), policy.RateLimit, now)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	if !allowed {
		return d.finish(res, StatusRateLimited), nil
	}

	// (e) 推送目标
	targets, err := d.devices.ActiveTargets(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("resolve targets: %w", err)
	}
	if len(targets) == 0 {
		return d.finish(res, StatusNoTarget), nil
	}
	res.Targets = len(targets)

	// (f) 构建 payload
	content := shared
	if content == nil {
		if content, err = handler_service.Build(d.catalog, entry.Type, subject, recipientID); err != nil {
			return nil, err
		}
	}
	payload := &models.PushPayload{
		EventType:       entry.Type,
		RecipientUserID: recipientID,
		Title:           content.Title,
		Body:            content.Body,
		Data:            content.Data,
		DedupKey:        res.DedupKey,
		CreatedAt:       now,
	}

	// (g) 分批发送
	tokens := make([]string, len(targets))
	for i, target := range targets {
		tokens[i] = target.Token
	}
	sent := d.gateway.SendMulticast(ctx, &gateway_service.Message{
		Title:          payload.Title,
		Body:           payload.Body,
		Data:           payload.WireData(),
		Priority:       entry.Priority,
		AndroidChannel: entry.AndroidChannel,
		Sound:          entry.Sound,
		TTL:            entry.TTL,
	}, tokens)
	res.SuccessCount = sent.SuccessCount
	res.FailureCount = sent.FailureCount
	res.TransportFailures = sent.FailedBatches
	res.PartialFailures = sent.PartialBatches

	// (h) 投递记录，写入失败只记日志，推送已经发出不能让调用方重试
	if err := d.ledger.RecordDelivery(ctx, &models.DeliveryRecord{
		DedupKey:     res.DedupKey,
		EventType:    entry.Type.String(),
		SentAt:       now,
		SuccessCount: sent.SuccessCount,
		FailureCount: sent.FailureCount,
	}); err != nil {
		conf.LogError(d.logger, moduleName, "dispatch", "record delivery failed", res.DedupKey, err)
	}

	// (i) 停用失效令牌
	for _, token := range sent.InvalidTokens() {
		if err := d.devices.DeactivateTarget(ctx, token); err != nil {
			d.logger.WithFields(logrus.Fields{"recipient": recipientID}).WithError(err).Warn("⚠️ 停用失效令牌失败")
			continue
		}
		res.DeactivatedTokens = append(res.DeactivatedTokens, token)
	}

	status := StatusSent
	if sent.SuccessCount == 0 {
		status = StatusFailed
	}
	d.logger.WithFields(logrus.Fields{
		"eventType":   res.EventType,
		"recipient":   recipientID,
		"targets":     res.Targets,
		"success":     res.SuccessCount,
		"failure":     res.FailureCount,
		"deactivated": len(res.DeactivatedTokens),
	}).Info("✅ 推送已投递")
	return d.finish(res, status), nil
}

func (d *Dispatcher) finish(res *SendResult, status Status) *SendResult {
	res.Status = status
	d.count(status)
	if status != StatusSent {
		d.logger.WithFields(logrus.Fields{
			"eventType": res.EventType,
			"recipient": res.RecipientUserID,
			"status":    status,
		}).Debug("推送未发送")
	}
	return res
}

func (d *Dispatcher) count(status Status) {
	if v, ok := d.counters.Load(status); ok {
		atomic.AddInt64(v.(*int64), 1)
	}
}

// Stats 各状态累计次数
func (d *Dispatcher) Stats() map[Status]int64 {
	out := make(map[Status]int64, len(allStatuses))
	for _, s := range allStatuses {
		if v, ok := d.counters.Load(s); ok {
			out[s] = atomic.LoadInt64(v.(*int64))
		}
	}
	return out
}

// HealthCheck 检查支持健康检查的依赖
func (d *Dispatcher) HealthCheck(ctx context.Context) map[string]error {
	deps := map[string]any{
		"devices":    d.devices,
		"ledger":     d.ledger,
		"quietHours": d.quiet,
		"gateway":    d.gateway,
	}
	results := make(map[string]error)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, dep := range deps {
		checker, ok := dep.(HealthChecker)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(n string, c HealthChecker) {
			defer wg.Done()
			err := c.HealthCheck(ctx)
			mu.Lock()
			results[n] = err
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()
	return results
}

func uniqueRecipients(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
