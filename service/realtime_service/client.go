package realtime_service

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"helper-push-service/conf"
	"helper-push-service/models"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/socket.io/clients/engine/v3/transports"
	socketio "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

// Config Socket.IO 客户端配置
type Config struct {
	ServerURL         string `yaml:"server_url" json:"server_url"`                 // 服务器地址
	AuthKey           string `yaml:"auth_key" json:"auth_key"`                     // 服务间鉴权 key
	Path              string `yaml:"path" json:"path"`                             // Socket.IO路径，默认 "/socket.io/"
	Timeout           int    `yaml:"timeout" json:"timeout"`                       // 连接超时秒数，默认10秒
	HeartbeatInterval int    `yaml:"heartbeat_interval" json:"heartbeat_interval"` // 心跳间隔秒数，默认5秒
}

// ApplyDefaults 填充默认值
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "/socket.io/"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5
	}
}

// Client Socket.IO 客户端：接收领域事件，并向实时频道发布
type Client struct {
	config    *Config
	socket    *socketio.Socket
	connected bool
	mu        sync.RWMutex
	logger    *logrus.Logger
	stopBeat  chan struct{}

	// 回调
	OnDomainEvent func(*models.DomainEvent)
	OnHeartbeat   func()
	OnConnect     func()
	OnDisconnect  func()
	OnError       func(error)
}

// NewClient 创建新的客户端
func NewClient(config *Config) *Client {
	config.ApplyDefaults()
	return &Client{
		config: config,
		logger: conf.GetLogger(),
	}
}

// Start 启动客户端连接
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.socket != nil && c.connected {
		return nil
	}

	options := socketio.DefaultOptions()
	options.SetTransports(types.NewSet(
		transports.Polling,
		transports.WebSocket,
	))
	options.SetPath(c.config.Path)
	options.SetQuery(url.Values{
		"authKey": {c.config.AuthKey},
	})
	options.SetTimeout(time.Duration(c.config.Timeout) * time.Second)

	socket, err := socketio.Connect(c.config.ServerURL, options)
	if err != nil {
		c.logger.WithError(err).Error("❌ Failed to connect to Socket.IO server")
		if c.OnError != nil {
			go c.OnError(err)
		}
		return err
	}

	c.socket = socket
	c.setupEventHandlers()

	c.logger.WithField("server", c.config.ServerURL).Info("🚀 Socket.IO client connecting")
	return nil
}

// Stop 停止客户端
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.socket != nil {
		c.socket.Disconnect()
		c.socket = nil
	}
	c.stopHeartbeatLocked()
	c.connected = false

	if c.OnDisconnect != nil {
		go c.OnDisconnect()
	}
	c.logger.Info("📴 Socket.IO client stopped")
}

// IsConnected 检查是否已连接
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected || c.socket == nil {
		return false
	}

	connected := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Warnf("⚠️ Panic recovered when checking socket.Connected(): %v", r)
				connected = false
			}
		}()
		connected = c.socket.Connected()
	}()
	return connected
}

func (c *Client) guard(name string) {
	if r := recover(); r != nil {
		c.logger.WithField("handler", name).Warnf("⚠️ Panic recovered: %v", r)
		if c.OnError != nil {
			go c.OnError(fmt.Errorf("%s panic recovered: %v", name, r))
		}
	}
}

// setupEventHandlers 设置事件处理器
func (c *Client) setupEventHandlers() {
	if c.socket == nil {
		return
	}

	c.socket.On("connect", func(data ...any) {
		defer c.guard("connect")

		c.mu.Lock()
		c.connected = true
		c.stopHeartbeatLocked()
		c.stopBeat = make(chan struct{})
		stop := c.stopBeat
		c.mu.Unlock()

		c.logger.Info("✅ Socket.IO connected successfully")
		if c.OnConnect != nil {
			go c.OnConnect()
		}
		go c.startHeartbeat(stop)
	})

	c.socket.On("disconnect", func(data ...any) {
		defer c.guard("disconnect")

		c.mu.Lock()
		c.connected = false
		c.stopHeartbeatLocked()
		c.mu.Unlock()

		c.logger.Warn("❌ Socket.IO disconnected")
		if c.OnDisconnect != nil {
			go c.OnDisconnect()
		}
	})

	onError := func(kind string) func(data ...any) {
		return func(data ...any) {
			defer c.guard(kind)
			err := errors.New(kind + ": unknown error")
			if len(data) > 0 && data[0] != nil {
				if e, ok := data[0].(error); ok {
					err = e
				} else {
					err = fmt.Errorf("%s: %v", kind, data[0])
				}
			}
			c.logger.WithError(err).Errorf("🔥 Socket.IO %s", kind)
			if c.OnError != nil {
				go c.OnError(err)
			}
		}
	}
	c.socket.On("connect_error", onError("connect_error"))
	c.socket.On("error", onError("error"))

	c.socket.On("message", func(data ...any) {
		defer c.guard("message")
		c.handleSocketData(data)
	})
}

// handleSocketData 处理服务端的SocketData格式消息
func (c *Client) handleSocketData(data []any) {
	socketData, err := ParseSocketData(data)
	if err != nil {
		c.logger.WithError(err).Warn("⚠️ Failed to parse SocketData")
		return
	}

	switch socketData.Method() {
	case HEART_BEAT, PONG:
		if c.OnHeartbeat != nil {
			go c.OnHeartbeat()
		}
	case WS_SERVER_NOTIFY_DOMAIN_EVENT:
		event, err := DecodeDomainEvent(socketData.D)
		if err != nil {
			c.logger.WithError(err).Warn("⚠️ 解析领域事件失败")
			return
		}
		c.logger.WithFields(logrus.Fields{
			"eventType":  event.EventType.String(),
			"recipients": len(event.RecipientIDs),
		}).Info("📨 收到领域事件")
		if c.OnDomainEvent != nil {
			go c.OnDomainEvent(event)
		}
	default:
		c.logger.WithField("method", socketData.M).Debug("📨 未知方法")
	}
}

func (c *Client) stopHeartbeatLocked() {
	if c.stopBeat != nil {
		close(c.stopBeat)
		c.stopBeat = nil
	}
}

// startHeartbeat 连接期间定时发送心跳，断开或停止时退出
func (c *Client) startHeartbeat(stop <-chan struct{}) {
	defer c.guard("heartbeat")

	ticker := time.NewTicker(time.Duration(c.config.HeartbeatInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.IsConnected() {
				return
			}
			_ = c.SendMessage("message", &SocketData{M: PONG, C: WS_CODE_HEART_BEAT})
		}
	}
}

// SendMessage 发送自定义消息
func (c *Client) SendMessage(event string, data any) error {
	defer c.guard("SendMessage")

	c.mu.RLock()
	socket := c.socket
	c.mu.RUnlock()

	if socket == nil || !c.IsConnected() {
		return ErrNotConnected
	}
	socket.Emit(event, data)
	return nil
}
