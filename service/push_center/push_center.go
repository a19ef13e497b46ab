package pushcenter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"helper-push-service/conf"
	"helper-push-service/major"
	"helper-push-service/models"
	"helper-push-service/service/dispatch_service"
	ec "helper-push-service/service/event_catalog"
	"helper-push-service/service/gateway_service"
	"helper-push-service/service/handler_service"
	"helper-push-service/service/pebble_service"
	"helper-push-service/service/policy_service"
	"helper-push-service/service/pubsub_service"
	"helper-push-service/service/realtime_service"
	"helper-push-service/service/sql_service"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const moduleName = "push_center"

var (
	ErrInvalidEvent     = errors.New("invalid domain event")
	ErrRealtimeDisabled = errors.New("realtime channel is not configured")
	ErrDeliveryFailed   = errors.New("push delivery failed for some recipients")
	ErrNotInitialized   = errors.New("push center is not initialized")
)

// EventOutcome 单个领域事件的处理结果
type EventOutcome struct {
	EventType string                                `json:"eventType"`
	Channel   ec.DeliveryChannel                    `json:"channel"`
	Push      *dispatch_service.AggregateSendResult `json:"push,omitempty"`
	Published bool                                  `json:"published"`
	Dropped   bool                                  `json:"dropped"`
}

// Failed 是否存在投递失败的收件人
func (o *EventOutcome) Failed() int {
	if o == nil || o.Push == nil {
		return 0
	}
	return o.Push.ByStatus[dispatch_service.StatusFailed]
}

// ledgerPruner 支持按时间清理投递记录的存储
type ledgerPruner interface {
	PruneDeliveryLog(ctx context.Context, before time.Time) (int64, error)
}

// Option 测试或嵌入时替换依赖
type Option func(*PushCenter)

// WithStore 使用已构建的存储
func WithStore(store dispatch_service.Store) Option {
	return func(pc *PushCenter) { pc.store = store }
}

// WithGateway 使用指定网关
func WithGateway(gw dispatch_service.Gateway) Option {
	return func(pc *PushCenter) { pc.gateway = gw }
}

// WithRealtimeEmitter 使用指定实时发送端，不再建立 socket 连接
func WithRealtimeEmitter(em realtime_service.Emitter) Option {
	return func(pc *PushCenter) { pc.emitter = em }
}

// WithRedis 使用已有的 redis 客户端
func WithRedis(rdb redis.UniversalClient) Option {
	return func(pc *PushCenter) { pc.redis = rdb }
}

// PushCenter 推送中心：事件接入、渠道路由、推送调度
type PushCenter struct {
	config *Config
	opts   []Option
	logger *logrus.Logger
	tracer trace.Tracer

	catalog       *ec.Catalog
	store         dispatch_service.Store
	gateway       dispatch_service.Gateway
	redis         redis.UniversalClient
	limiter       policy_service.RateLimiter
	dispatcher    *dispatch_service.Dispatcher
	emitter       realtime_service.Emitter
	relay         *realtime_service.Relay
	socketManager *realtime_service.Manager
	subscriber    *pubsub_service.Subscriber

	byChannel sync.Map // DeliveryChannel -> *int64

	mu          sync.RWMutex
	initialized bool
	running     bool
	stopLoop    context.CancelFunc
	loopDone    chan struct{}
}

// NewPushCenter 创建推送中心实例
func NewPushCenter(config *Config, opts ...Option) *PushCenter {
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()
	pc := &PushCenter{
		config: config,
		opts:   opts,
		logger: conf.GetLogger(),
		tracer: otel.Tracer("helper-push-service/push_center"),
	}
	for _, ch := range []ec.DeliveryChannel{ec.ChannelPush, ec.ChannelRealtime, ec.ChannelNone} {
		pc.byChannel.Store(ch, new(int64))
	}
	return pc
}

// Initialize 校验目录并构建全部依赖，任何一步失败都直接返回，
// 失败时释放本次打开的存储与 redis，可以修正配置后重新调用
func (pc *PushCenter) Initialize(ctx context.Context) (err error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.initialized {
		return nil
	}
	pc.logger.Info("🚀 正在初始化推送中心...")

	var ownStore, ownRedis bool
	defer func() {
		if err != nil {
			pc.resetLocked(ownStore, ownRedis)
		}
	}()

	if err := pc.config.Validate(); err != nil {
		return err
	}
	catalog, err := pc.config.buildCatalog()
	if err != nil {
		conf.LogError(pc.logger, moduleName, "Initialize", "catalog validation failed", nil, err)
		return fmt.Errorf("事件目录校验失败: %w", err)
	}
	pc.catalog = catalog

	for _, opt := range pc.opts {
		opt(pc)
	}

	if pc.store == nil {
		store, err := openStore(ctx, pc.config.Store)
		if err != nil {
			return fmt.Errorf("初始化存储失败: %w", err)
		}
		pc.store = store
		ownStore = true
	}
	pc.logger.WithField("driver", pc.config.Store.Driver).Info("✅ 存储已初始化")

	if pc.gateway == nil {
		gw, err := gateway_service.NewService(pc.config.Gateway)
		if err != nil {
			return fmt.Errorf("初始化推送网关失败: %w", err)
		}
		pc.gateway = gw
	}

	var locker policy_service.KeyLocker
	if pc.redis == nil && pc.config.Redis.Addr != "" {
		pc.redis = redis.NewClient(&redis.Options{
			Addr:     pc.config.Redis.Addr,
			Password: pc.config.Redis.Password,
			DB:       pc.config.Redis.DB,
		})
		ownRedis = true
	}
	if pc.redis != nil {
		if err := pc.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("连接 redis 失败: %w", err)
		}
		prefix := pc.config.Redis.Prefix
		if prefix == "" {
			prefix = "push:"
		}
		pc.limiter = policy_service.NewRedisRateLimiter(pc.redis, prefix+"rl:")
		locker = policy_service.NewRedisKeyLocker(pc.redis, policy_service.RedisLockConfig{
			Prefix: prefix + "lock:",
			TTL:    pc.config.Redis.LockTTL,
			Wait:   pc.config.Redis.LockWait,
		})
		pc.logger.Info("✅ 频控与去重锁使用 redis")
	} else {
		pc.limiter = policy_service.NewMemoryRateLimiter()
		locker = policy_service.NewLocalKeyLocker()
	}

	dispatcher, err := dispatch_service.NewDispatcher(dispatch_service.Options{
		Catalog:           catalog,
		Devices:           pc.store,
		Ledger:            pc.store,
		QuietHours:        pc.store,
		Gateway:           pc.gateway,
		RateLimiter:       pc.limiter,
		Locker:            locker,
		Logger:            pc.logger,
		FanoutConcurrency: pc.config.FanoutConcurrency,
	})
	if err != nil {
		return err
	}
	pc.dispatcher = dispatcher

	if pc.emitter == nil && pc.config.Socket != nil && pc.config.Socket.ServerURL != "" {
		pc.socketManager = realtime_service.NewManager(pc.config.Socket)
		pc.socketManager.SetDomainEventHandler(pc.onSocketEvent)
		pc.socketManager.SetReconnectHandler(func() {
			pc.logger.Info("🔁 实时通道已重连")
		})
		pc.emitter = pc.socketManager
	}
	if pc.emitter != nil {
		pc.relay = realtime_service.NewRelay(catalog, pc.emitter)
	}

	if pc.config.PubSub != nil && pc.config.PubSub.Subscription != "" {
		sub, err := pubsub_service.NewSubscriber(ctx, *pc.config.PubSub, pc.handleIntake, IsRetryable)
		if err != nil {
			return fmt.Errorf("初始化 Pub/Sub 接入失败: %w", err)
		}
		pc.subscriber = sub
	}

	pc.initialized = true
	pc.logger.Info("✅ 推送中心初始化完成")
	return nil
}

func openStore(ctx context.Context, cfg StoreConfig) (dispatch_service.Store, error) {
	switch cfg.Driver {
	case StoreDriverMemory:
		return dispatch_service.NewMemoryStore(), nil
	case StoreDriverMySQL:
		db, err := major.InitSqlConfig()
		if err != nil {
			return nil, err
		}
		store := sql_service.NewSqlStore(db)
		if err := store.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		return store, nil
	default:
		ps := pebble_service.NewPebbleService(cfg.Pebble)
		if err := ps.Initialize(); err != nil {
			return nil, err
		}
		return ps, nil
	}
}

// Run 启动接入与后台清理
func (pc *PushCenter) Run(ctx context.Context) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if !pc.initialized {
		return ErrNotInitialized
	}
	if pc.running {
		return fmt.Errorf("推送中心已经在运行中")
	}

	if pc.socketManager != nil {
		if err := pc.socketManager.Start(); err != nil {
			return fmt.Errorf("启动 Socket 客户端失败: %w", err)
		}
	}
	if pc.subscriber != nil {
		if err := pc.subscriber.Start(ctx); err != nil {
			return fmt.Errorf("启动 Pub/Sub 接入失败: %w", err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	pc.stopLoop = cancel
	pc.loopDone = make(chan struct{})
	go pc.maintenanceLoop(loopCtx, pc.loopDone)

	pc.running = true
	pc.logger.Info("✅ 推送中心已启动，正在监听事件...")
	return nil
}

// resetLocked 回滚未完成的初始化：关闭自己打开的资源，注入的依赖只解除引用，
// 重试时由 Option 重新注入
func (pc *PushCenter) resetLocked(ownStore, ownRedis bool) {
	if ownStore && pc.store != nil {
		if err := pc.store.Close(); err != nil {
			pc.logger.WithError(err).Warn("⚠️ 回滚初始化时关闭存储失败")
		}
	}
	if ownRedis && pc.redis != nil {
		_ = pc.redis.Close()
	}
	pc.catalog = nil
	pc.store = nil
	pc.gateway = nil
	pc.redis = nil
	pc.limiter = nil
	pc.dispatcher = nil
	pc.emitter = nil
	pc.relay = nil
	pc.socketManager = nil
	pc.subscriber = nil
}

// Stop 停止推送中心并关闭存储
func (pc *PushCenter) Stop() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.logger.Info("🛑 正在停止推送中心...")
	if pc.running {
		pc.stopLoop()
		<-pc.loopDone
		if pc.socketManager != nil {
			pc.socketManager.Stop()
		}
		if pc.subscriber != nil {
			if err := pc.subscriber.Stop(); err != nil {
				pc.logger.WithError(err).Warn("⚠️ 停止 Pub/Sub 接入时出现错误")
			}
		}
		pc.running = false
	}
	if pc.store != nil {
		if err := pc.store.Close(); err != nil {
			pc.logger.WithError(err).Warn("⚠️ 关闭存储时出现错误")
		}
		pc.store = nil
	}
	if pc.redis != nil {
		_ = pc.redis.Close()
		pc.redis = nil
	}
	pc.initialized = false
	pc.logger.Info("✅ 推送中心已停止")
	return nil
}

// IsRunning 检查推送中心是否正在运行
func (pc *PushCenter) IsRunning() bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.running
}

// HandleEvent 按渠道归属路由领域事件：push 交给调度器，realtime 交给实时频道，none 丢弃
func (pc *PushCenter) HandleEvent(ctx context.Context, event *models.DomainEvent) (*EventOutcome, error) {
	pc.mu.RLock()
	initialized := pc.initialized
	pc.mu.RUnlock()
	if !initialized {
		return nil, ErrNotInitialized
	}
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	owner := pc.catalog.OwnerOf(event.EventType)
	ctx, span := pc.tracer.Start(ctx, "push_center.HandleEvent", trace.WithAttributes(
		attribute.String("event_type", event.EventType.String()),
		attribute.String("channel", string(owner)),
		attribute.Int("recipients", len(event.RecipientIDs)),
	))
	defer span.End()
	pc.countChannel(owner)

	outcome := &EventOutcome{EventType: event.EventType.String(), Channel: owner}
	switch owner {
	case ec.ChannelPush:
		agg, err := pc.dispatchPush(ctx, event)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		outcome.Push = agg
	case ec.ChannelRealtime:
		if pc.relay == nil {
			return nil, fmt.Errorf("%w: %s", ErrRealtimeDisabled, event.EventType)
		}
		if err := pc.relay.Publish(ctx, event); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		outcome.Published = true
	default:
		pc.logger.WithField("eventType", event.EventType.String()).Debug("📭 事件无投递渠道，已丢弃")
		outcome.Dropped = true
	}
	return outcome, nil
}

func (pc *PushCenter) dispatchPush(ctx context.Context, event *models.DomainEvent) (*dispatch_service.AggregateSendResult, error) {
	if len(event.RecipientIDs) > 1 {
		return pc.dispatcher.SendToMultipleUsers(ctx, event.EventType, event.RecipientIDs, event.Subject)
	}

	start := time.Now()
	res, err := pc.dispatcher.SendNotification(ctx, event.EventType, event.RecipientIDs[0], event.Subject)
	if err != nil {
		return nil, err
	}
	return &dispatch_service.AggregateSendResult{
		EventType:         res.EventType,
		TotalRecipients:   1,
		ByStatus:          map[dispatch_service.Status]int{res.Status: 1},
		SuccessCount:      res.SuccessCount,
		FailureCount:      res.FailureCount,
		TransportFailures: res.TransportFailures,
		PartialFailures:   res.PartialFailures,
		Deactivated:       len(res.DeactivatedTokens),
		Results:           []*dispatch_service.SendResult{res},
		Duration:          time.Since(start),
	}, nil
}

func validateEvent(event *models.DomainEvent) error {
	if event == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if !event.EventType.Valid() {
		return fmt.Errorf("%w: unknown event type %d", ErrInvalidEvent, int(event.EventType))
	}
	if err := validate.Struct(event); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// handleIntake 异步接入使用：存在失败收件人时返回可重试错误，已成功的收件人会被去重
func (pc *PushCenter) handleIntake(ctx context.Context, event *models.DomainEvent) error {
	outcome, err := pc.HandleEvent(ctx, event)
	if err != nil {
		return err
	}
	if n := outcome.Failed(); n > 0 {
		return fmt.Errorf("%w: %d of %d", ErrDeliveryFailed, n, outcome.Push.TotalRecipients)
	}
	return nil
}

func (pc *PushCenter) onSocketEvent(event *models.DomainEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), pc.config.EventTimeout)
	defer cancel()
	if err := pc.handleIntake(ctx, event); err != nil {
		conf.LogError(pc.logger, moduleName, "onSocketEvent", "handle socket event", event.EventType.String(), err)
	}
}

// IsRetryable 区分可重试错误与永久错误
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidEvent),
		errors.Is(err, ErrRealtimeDisabled),
		errors.Is(err, ec.ErrUnknownEventType),
		errors.Is(err, handler_service.ErrMissingField),
		errors.Is(err, handler_service.ErrNotPushSource),
		errors.Is(err, dispatch_service.ErrEmptyRecipient),
		errors.Is(err, dispatch_service.ErrMissingSubject),
		errors.Is(err, realtime_service.ErrNotRealtimeOwned):
		return false
	}
	return true
}

func (pc *PushCenter) maintenanceLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(pc.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			pc.runMaintenance(ctx, now)
		}
	}
}

func (pc *PushCenter) runMaintenance(ctx context.Context, now time.Time) {
	if p, ok := pc.store.(ledgerPruner); ok {
		n, err := p.PruneDeliveryLog(ctx, now.Add(-pc.config.LedgerRetention))
		if err != nil {
			conf.LogError(pc.logger, moduleName, "runMaintenance", "prune delivery log", nil, err)
		} else if n > 0 {
			pc.logger.WithField("pruned", n).Info("🧹 投递记录清理完成")
		}
	}
	if m, ok := pc.limiter.(*policy_service.MemoryRateLimiter); ok {
		var maxPeriod time.Duration
		for _, e := range pc.catalog.Entries() {
			if p, ok := pc.catalog.Policy(e.Category); ok && p.RateLimit.Period > maxPeriod {
				maxPeriod = p.RateLimit.Period
			}
		}
		m.Sweep(now, maxPeriod)
	}
}

func (pc *PushCenter) countChannel(ch ec.DeliveryChannel) {
	if v, ok := pc.byChannel.Load(ch); ok {
		atomic.AddInt64(v.(*int64), 1)
	}
}

// Catalog 当前生效的事件目录
func (pc *PushCenter) Catalog() *ec.Catalog {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.catalog
}

// Registry 设备注册接口
func (pc *PushCenter) Registry() dispatch_service.DeviceRegistry {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.store
}

// Dispatcher 推送调度器
func (pc *PushCenter) Dispatcher() *dispatch_service.Dispatcher {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.dispatcher
}

// Stats 运行统计
func (pc *PushCenter) Stats() map[string]any {
	channels := make(map[string]int64)
	pc.byChannel.Range(func(k, v any) bool {
		channels[string(k.(ec.DeliveryChannel))] = atomic.LoadInt64(v.(*int64))
		return true
	})
	stats := map[string]any{"events": channels}
	if d := pc.Dispatcher(); d != nil {
		stats["dispatch"] = d.Stats()
	}
	if pc.subscriber != nil {
		stats["pubsub"] = pc.subscriber.Stats()
	}
	return stats
}

// HealthCheck 各依赖的健康状态
func (pc *PushCenter) HealthCheck(ctx context.Context) map[string]error {
	pc.mu.RLock()
	d, rdb, sm := pc.dispatcher, pc.redis, pc.socketManager
	pc.mu.RUnlock()

	if d == nil {
		return map[string]error{"pushCenter": ErrNotInitialized}
	}
	results := d.HealthCheck(ctx)
	if rdb != nil {
		results["redis"] = rdb.Ping(ctx).Err()
	}
	if sm != nil && !sm.IsRunning() {
		results["realtime"] = realtime_service.ErrNotConnected
	}
	return results
}
