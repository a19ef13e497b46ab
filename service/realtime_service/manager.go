package realtime_service

import (
	"errors"
	"sync"

	"helper-push-service/conf"
	"helper-push-service/models"
)

// Manager Socket.IO 客户端管理器
type Manager struct {
	client *Client
	config *Config
	mu     sync.RWMutex

	everConnected bool
	onReconnect   func()
}

// NewManager 创建管理器
func NewManager(config *Config) *Manager {
	return &Manager{
		config: config,
		client: NewClient(config),
	}
}

// Start 启动客户端，重连成功时触发 reconnect 回调
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger := conf.GetLogger()
	userConnect := m.client.OnConnect
	m.client.OnConnect = func() {
		m.mu.Lock()
		reconnected := m.everConnected
		m.everConnected = true
		onReconnect := m.onReconnect
		m.mu.Unlock()

		if reconnected {
			logger.Info("🔁 Socket.IO client reconnected")
			if onReconnect != nil {
				onReconnect()
			}
		} else {
			logger.WithField("server", m.config.ServerURL).Info("🚀 Socket.IO client connected")
		}
		if userConnect != nil {
			userConnect()
		}
	}

	if m.client.OnDisconnect == nil {
		m.client.OnDisconnect = func() {
			logger.Warn("📴 Socket.IO client disconnected")
		}
	}
	if m.client.OnError == nil {
		m.client.OnError = func(err error) {
			logger.WithError(err).Error("🔥 Socket.IO client error")
		}
	}
	if m.client.OnDomainEvent == nil {
		m.client.OnDomainEvent = func(event *models.DomainEvent) {
			logger.WithField("eventType", event.EventType.String()).Warn("⚠️ 领域事件未设置处理器，已丢弃")
		}
	}

	return m.client.Start()
}

// Stop 停止客户端
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		m.client.Stop()
	}
}

// IsRunning 检查是否运行中
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.client != nil && m.client.IsConnected()
}

// SetDomainEventHandler 设置领域事件处理器
func (m *Manager) SetDomainEventHandler(handler func(*models.DomainEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.client.OnDomainEvent = handler
}

// SetReconnectHandler 设置重连处理器
func (m *Manager) SetReconnectHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onReconnect = handler
}

// SetHeartbeatHandler 设置心跳处理器
func (m *Manager) SetHeartbeatHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.client.OnHeartbeat = handler
}

// SetErrorHandler 设置错误处理器
func (m *Manager) SetErrorHandler(handler func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.client.OnError = handler
}

// SendMessage 发送消息
func (m *Manager) SendMessage(event string, data any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.client == nil {
		return errors.New("client not initialized")
	}
	return m.client.SendMessage(event, data)
}

// GetConfig 获取配置
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.config
}
