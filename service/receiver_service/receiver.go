package receiver_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"helper-push-service/models"
	ec "helper-push-service/service/event_catalog"
	"helper-push-service/service/handler_service"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	ErrInvalidTransition   = errors.New("invalid notification state transition")
	ErrMalformedPayload    = errors.New("malformed notification payload")
	ErrUnknownNotification = errors.New("unknown notification")
)

// State 单条通知在设备上的状态
type State int

const (
	StateIdle State = iota
	StateNotified
	StateDismissed
	StateActed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNotified:
		return "notified"
	case StateDismissed:
		return "dismissed"
	case StateActed:
		return "acted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ClientPayload 客户端收到的 JSON，所有字段均为字符串
type ClientPayload struct {
	EventType string            `json:"event_type"`
	Data      map[string]string `json:"data"`
}

// Notification 已渲染的通知
type Notification struct {
	DedupKey   string
	EventType  ec.EventType
	Category   ec.Category
	EntityKind string
	EntityID   string
	Title      string
	Body       string
	Data       map[string]string
	State      State
	ReceivedAt time.Time
	Action     string
}

// LocalState 设备本地状态（角标、实体快照）
type LocalState interface {
	IncrementBadge(category ec.Category)
	UpsertEntity(kind, id string, fields map[string]string)
}

// Presenter 展示系统通知
type Presenter interface {
	Present(ctx context.Context, n *Notification) error
}

// Fetcher 用户交互后按需拉取单个实体
type Fetcher interface {
	FetchEntity(ctx context.Context, kind, id string) (map[string]string, error)
}

// Options 接收器依赖
type Options struct {
	Catalog   *ec.Catalog
	Tracker   *EventTracker
	State     LocalState
	Presenter Presenter
	Fetcher   Fetcher
	// 保留的通知数量与时长
	HistorySize int
	HistoryTTL  time.Duration
	Now         func() time.Time
}

// Receiver 设备端接收器：收到即按 payload 渲染，只有用户交互才拉取数据
type Receiver struct {
	catalog   *ec.Catalog
	tracker   *EventTracker
	state     LocalState
	presenter Presenter
	fetcher   Fetcher
	now       func() time.Time

	mu    sync.Mutex
	notes *expirable.LRU[string, *Notification]
}

func NewReceiver(opts Options) (*Receiver, error) {
	if opts.State == nil || opts.Presenter == nil || opts.Fetcher == nil {
		return nil, errors.New("receiver requires local state, presenter and fetcher")
	}
	if opts.Catalog == nil {
		opts.Catalog = ec.Default()
	}
	if opts.Tracker == nil {
		opts.Tracker = NewEventTracker(0, 0)
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 256
	}
	if opts.HistoryTTL <= 0 {
		opts.HistoryTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Receiver{
		catalog:   opts.Catalog,
		tracker:   opts.Tracker,
		state:     opts.State,
		presenter: opts.Presenter,
		fetcher:   opts.Fetcher,
		now:       opts.Now,
		notes:     expirable.NewLRU[string, *Notification](opts.HistorySize, nil, opts.HistoryTTL),
	}, nil
}

// Receive 解析客户端 JSON 后处理
func (r *Receiver) Receive(ctx context.Context, raw []byte) (*Notification, bool, error) {
	var p ClientPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	data := make(map[string]string, len(p.Data)+1)
	for k, v := range p.Data {
		data[k] = v
	}
	if _, ok := data[models.DataKeyEventType]; !ok {
		data[models.DataKeyEventType] = p.EventType
	}
	return r.ReceiveData(ctx, data)
}

// ReceiveData 处理推送 data，返回 false 表示重复投递已忽略
// 这里只更新本地状态并展示，不做任何网络请求
func (r *Receiver) ReceiveData(ctx context.Context, data map[string]string) (*Notification, bool, error) {
	t, err := ec.ParseEventType(data[models.DataKeyEventType])
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	entry, err := r.catalog.Lookup(t)
	if err != nil {
		return nil, false, err
	}
	if entry.Channel != ec.ChannelPush {
		return nil, false, fmt.Errorf("%w: %s is not delivered by push", ErrMalformedPayload, t)
	}
	if err := handler_service.CheckRequired(entry, data); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	key := data[models.DataKeyDedupKey]
	if key == "" {
		key = t.String() + "|" + data[ec.FieldID]
	}
	if !r.tracker.ShouldRender(key) {
		return nil, false, nil
	}

	n := &Notification{
		DedupKey:   key,
		EventType:  t,
		Category:   entry.Category,
		EntityKind: entry.EntityKind,
		EntityID:   data[ec.FieldID],
		Title:      ec.Render(entry.TitleTemplate, data),
		Body:       ec.Render(entry.BodyTemplate, data),
		Data:       data,
		State:      StateNotified,
		ReceivedAt: r.now(),
	}

	r.mu.Lock()
	r.notes.Add(key, n)
	r.state.IncrementBadge(entry.Category)
	if entry.EntityKind != "" {
		r.state.UpsertEntity(entry.EntityKind, n.EntityID, data)
	}
	r.mu.Unlock()

	if err := r.presenter.Present(ctx, n); err != nil {
		return n, true, fmt.Errorf("present notification: %w", err)
	}
	return n, true, nil
}

// Dismiss 用户未交互直接关闭，不拉取数据
func (r *Receiver) Dismiss(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes.Get(key)
	if !ok {
		return ErrUnknownNotification
	}
	if n.State != StateNotified {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, n.State, StateDismissed)
	}
	n.State = StateDismissed
	return nil
}

// Act 用户明确交互，此时才允许拉取，且只拉取 data.id 指向的实体
func (r *Receiver) Act(ctx context.Context, key, action string) (map[string]string, error) {
	r.mu.Lock()
	n, ok := r.notes.Get(key)
	if !ok {
		r.mu.Unlock()
		return nil, ErrUnknownNotification
	}
	if n.State != StateNotified {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, n.State, StateActed)
	}
	n.State = StateActed
	n.Action = action
	kind, id := n.EntityKind, n.EntityID
	r.mu.Unlock()

	if kind == "" {
		return nil, nil
	}
	fields, err := r.fetcher.FetchEntity(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", kind, id, err)
	}
	r.mu.Lock()
	r.state.UpsertEntity(kind, id, fields)
	r.mu.Unlock()
	return fields, nil
}

// State 查询通知状态
func (r *Receiver) State(key string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes.Peek(key)
	if !ok {
		return StateIdle, false
	}
	return n.State, true
}

// MemoryLocalState 内存实现
type MemoryLocalState struct {
	mu       sync.RWMutex
	badges   map[ec.Category]int
	entities map[string]map[string]string
}

func NewMemoryLocalState() *MemoryLocalState {
	return &MemoryLocalState{
		badges:   make(map[ec.Category]int),
		entities: make(map[string]map[string]string),
	}
}

func (m *MemoryLocalState) IncrementBadge(category ec.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badges[category]++
}

func (m *MemoryLocalState) UpsertEntity(kind, id string, fields map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := kind + "/" + id
	cur := m.entities[key]
	if cur == nil {
		cur = make(map[string]string, len(fields))
		m.entities[key] = cur
	}
	for k, v := range fields {
		cur[k] = v
	}
}

func (m *MemoryLocalState) Badge(category ec.Category) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.badges[category]
}

func (m *MemoryLocalState) Entity(kind, id string) (map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[kind+"/"+id]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out, true
}
