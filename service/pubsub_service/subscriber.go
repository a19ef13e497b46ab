package pubsub_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"helper-push-service/conf"
	"helper-push-service/models"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const moduleName = "pubsub_service"

// Config Pub/Sub 订阅配置
type Config struct {
	ProjectID       string
	Subscription    string
	CredentialsJSON string
	MaxOutstanding  int
	HandleTimeout   time.Duration
}

// ApplyDefaults 填充默认值
func (c *Config) ApplyDefaults() {
	if c.MaxOutstanding <= 0 {
		c.MaxOutstanding = 10
	}
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = 30 * time.Second
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return errors.New("pubsub project id is required")
	}
	if c.Subscription == "" {
		return errors.New("pubsub subscription is required")
	}
	return nil
}

// Handler 处理一条领域事件
type Handler func(ctx context.Context, event *models.DomainEvent) error

// Decision 消息处理结果
type Decision int

const (
	Ack Decision = iota
	Nack
)

func (d Decision) String() string {
	if d == Ack {
		return "ack"
	}
	return "nack"
}

// Subscriber 从 Pub/Sub 订阅领域事件并交给 Handler
type Subscriber struct {
	config    Config
	client    *pubsub.Client
	handler   Handler
	retryable func(error) bool
	logger    *logrus.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	handled map[Decision]int64
}

// NewSubscriber 创建订阅者；retryable 为空时所有处理错误都会 nack 重投
func NewSubscriber(ctx context.Context, cfg Config, handler Handler, retryable func(error) bool) (*Subscriber, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("pubsub handler is required")
	}

	var (
		client *pubsub.Client
		err    error
	)
	if cfg.CredentialsJSON != "" {
		client, err = pubsub.NewClient(ctx, cfg.ProjectID, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	} else {
		client, err = pubsub.NewClient(ctx, cfg.ProjectID)
	}
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	s := newSubscriber(cfg, handler, retryable)
	s.client = client
	return s, nil
}

func newSubscriber(cfg Config, handler Handler, retryable func(error) bool) *Subscriber {
	cfg.ApplyDefaults()
	if retryable == nil {
		retryable = func(error) bool { return true }
	}
	return &Subscriber{
		config:    cfg,
		handler:   handler,
		retryable: retryable,
		logger:    conf.GetLogger(),
		handled:   make(map[Decision]int64),
	}
}

// Start 后台开始接收消息
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	sub := s.client.Subscription(s.config.Subscription)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check subscription %q: %w", s.config.Subscription, err)
	}
	if !exists {
		return fmt.Errorf("subscription %q does not exist", s.config.Subscription)
	}
	sub.ReceiveSettings.MaxOutstandingMessages = s.config.MaxOutstanding

	rctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		err := sub.Receive(rctx, func(ctx context.Context, msg *pubsub.Message) {
			if s.HandleMessage(ctx, msg.ID, msg.Data) == Ack {
				msg.Ack()
			} else {
				msg.Nack()
			}
		})
		if err != nil {
			conf.LogError(s.logger, moduleName, "Start", "Failed to receive messages", s.config.Subscription, err)
		}
	}()

	s.logger.WithField("subscription", s.config.Subscription).Info("📥 Pub/Sub intake started")
	return nil
}

// HandleMessage 解析并处理一条消息，返回 ack/nack
// 无法解析的消息直接 ack，避免毒消息反复投递
func (s *Subscriber) HandleMessage(ctx context.Context, id string, data []byte) Decision {
	decision := s.handleMessage(ctx, id, data)
	s.mu.Lock()
	s.handled[decision]++
	s.mu.Unlock()
	return decision
}

func (s *Subscriber) handleMessage(ctx context.Context, id string, data []byte) Decision {
	event := &models.DomainEvent{}
	if err := json.Unmarshal(data, event); err != nil {
		conf.LogError(s.logger, moduleName, "HandleMessage", "Unmarshaling pubsub message", string(data), err)
		return Ack
	}

	hctx, cancel := context.WithTimeout(ctx, s.config.HandleTimeout)
	defer cancel()

	if err := s.handler(hctx, event); err != nil {
		fields := logrus.Fields{
			"module":     moduleName,
			"message_id": id,
			"event_type": event.EventType.String(),
		}
		if s.retryable(err) {
			s.logger.WithFields(fields).WithError(err).Error("pubsub processing failed, will retry")
			return Nack
		}
		s.logger.WithFields(fields).WithError(err).Warn("pubsub event rejected")
		return Ack
	}
	return Ack
}

// Stats 返回 ack/nack 计数
func (s *Subscriber) Stats() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int64{
		Ack.String():  s.handled[Ack],
		Nack.String(): s.handled[Nack],
	}
}

// Stop 停止接收并关闭客户端
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
