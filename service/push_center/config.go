package pushcenter

import (
	"fmt"
	"time"

	ec "helper-push-service/service/event_catalog"
	"helper-push-service/service/gateway_service"
	"helper-push-service/service/pebble_service"
	"helper-push-service/service/pubsub_service"
	"helper-push-service/service/realtime_service"

	"github.com/go-playground/validator/v10"
)

// 存储驱动
const (
	StoreDriverPebble = "pebble"
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory"
)

// Config 推送中心配置
type Config struct {
	Store   StoreConfig                    `yaml:"store" json:"store"`
	Gateway *gateway_service.Config        `yaml:"gateway" json:"gateway"`
	Redis   RedisConfig                    `yaml:"redis" json:"redis"`
	Socket  *realtime_service.Config       `yaml:"socket" json:"socket"` // 为空时不启用实时通道
	PubSub  *pubsub_service.Config         `yaml:"pubsub" json:"pubsub"` // 为空时不启用 Pub/Sub 接入
	Policy  PolicyConfig                   `yaml:"policy" json:"policy"`

	FanoutConcurrency   int           `yaml:"fanout_concurrency" json:"fanout_concurrency"`
	EventTimeout        time.Duration `yaml:"event_timeout" json:"event_timeout"`               // 单个事件处理超时
	LedgerRetention     time.Duration `yaml:"ledger_retention" json:"ledger_retention"`         // 投递记录保留时长
	MaintenanceInterval time.Duration `yaml:"maintenance_interval" json:"maintenance_interval"` // 清理任务间隔
}

// StoreConfig 存储配置
type StoreConfig struct {
	Driver string                 `yaml:"driver" json:"driver" validate:"omitempty,oneof=pebble mysql memory"`
	Pebble *pebble_service.Config `yaml:"pebble" json:"pebble"`
}

// RedisConfig Addr 为空时频控与去重锁使用进程内实现
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	LockTTL  time.Duration `yaml:"lock_ttl" json:"lock_ttl" validate:"gte=0"`
	LockWait time.Duration `yaml:"lock_wait" json:"lock_wait" validate:"gte=0"`
}

// PolicyConfig 策略覆盖，key 为事件类型名 / 分类名
type PolicyConfig struct {
	DedupWindows map[string]time.Duration `yaml:"dedup_windows" json:"dedup_windows" validate:"dive,keys,required,endkeys,gt=0"`
	RateLimits   map[string]ec.RateLimit  `yaml:"rate_limits" json:"rate_limits" validate:"dive,keys,required,endkeys"`
}

var validate = validator.New()

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: StoreDriverPebble,
			Pebble: pebble_service.DefaultConfig(),
		},
		Gateway:             gateway_service.DefaultConfig(),
		FanoutConcurrency:   16,
		EventTimeout:        30 * time.Second,
		LedgerRetention:     7 * 24 * time.Hour,
		MaintenanceInterval: 10 * time.Minute,
	}
}

// ApplyDefaults 填充默认值
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.Store.Driver == "" {
		c.Store.Driver = def.Store.Driver
	}
	if c.Store.Pebble == nil {
		c.Store.Pebble = def.Store.Pebble
	}
	if c.Gateway == nil {
		c.Gateway = def.Gateway
	}
	c.Gateway.ApplyDefaults()
	if c.FanoutConcurrency <= 0 {
		c.FanoutConcurrency = def.FanoutConcurrency
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = def.EventTimeout
	}
	if c.LedgerRetention <= 0 {
		c.LedgerRetention = def.LedgerRetention
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = def.MaintenanceInterval
	}
}

// Validate 校验结构字段
func (c *Config) Validate() error {
	if err := validate.Struct(c.Store); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if err := validate.Struct(c.Redis); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}
	if err := validate.Struct(c.Policy); err != nil {
		return fmt.Errorf("policy config: %w", err)
	}
	for cat, limit := range c.Policy.RateLimits {
		if err := validate.Struct(limit); err != nil {
			return fmt.Errorf("rate limit %s: %w", cat, err)
		}
	}
	return nil
}

// Overrides 转换为目录覆盖项
func (p PolicyConfig) Overrides() (ec.Overrides, error) {
	o := ec.Overrides{
		DedupWindows: make(map[ec.EventType]time.Duration, len(p.DedupWindows)),
		RateLimits:   make(map[ec.Category]ec.RateLimit, len(p.RateLimits)),
	}
	for name, window := range p.DedupWindows {
		t, err := ec.ParseEventType(name)
		if err != nil {
			return o, err
		}
		o.DedupWindows[t] = window
	}
	for name, limit := range p.RateLimits {
		o.RateLimits[ec.Category(name)] = limit
	}
	return o, nil
}

// buildCatalog 应用覆盖后校验目录与渠道归属，任一失败都不允许启动
func (c *Config) buildCatalog() (*ec.Catalog, error) {
	overrides, err := c.Policy.Overrides()
	if err != nil {
		return nil, err
	}
	catalog, err := ec.Default().WithOverrides(overrides)
	if err != nil {
		return nil, err
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	if err := catalog.AssertNoDualOwnership(); err != nil {
		return nil, err
	}

	var maxWindow time.Duration
	for _, e := range catalog.Entries() {
		if e.DedupWindow > maxWindow {
			maxWindow = e.DedupWindow
		}
	}
	if c.LedgerRetention > 0 && c.LedgerRetention < maxWindow {
		return nil, fmt.Errorf("ledger retention %s is shorter than the longest dedup window %s", c.LedgerRetention, maxWindow)
	}
	return catalog, nil
}
