package event_catalog

import (
	"fmt"
	"strings"
	"time"
)

// EventType 领域事件类型（封闭枚举）
// 新增类型时必须同时补充 catalog 条目、handler 以及渠道归属，三者缺一不可
type EventType int

const (
	HelperApplied EventType = iota
	BidAccepted
	JobOffered
	JobStarted
	JobCompleted
	JobCancelled
	NewJobNearby
	PaymentPending
	PaymentReleased
	PaymentCredited
	SOSRaised
	ChatMessage
	HelperLocationUpdated
	ApplicationViewed

	eventTypeCount
)

// EventTypeCount 事件类型数量，供其它按类型索引的表做编译期长度校验
const EventTypeCount = int(eventTypeCount)

var eventTypeNames = [...]string{
	HelperApplied:         "helper_applied",
	BidAccepted:           "bid_accepted",
	JobOffered:            "job_offered",
	JobStarted:            "job_started",
	JobCompleted:          "job_completed",
	JobCancelled:          "job_cancelled",
	NewJobNearby:          "new_job_nearby",
	PaymentPending:        "payment_pending",
	PaymentReleased:       "payment_released",
	PaymentCredited:       "payment_credited",
	SOSRaised:             "sos_raised",
	ChatMessage:           "chat_message",
	HelperLocationUpdated: "helper_location_updated",
	ApplicationViewed:     "application_viewed",
}

// 数组长度必须与枚举数量一致，否则编译失败
var _ = [1]struct{}{}[len(eventTypeNames)-int(eventTypeCount)]
var _ = [1]struct{}{}[int(eventTypeCount)-len(eventTypeNames)]

// String 返回事件类型的线上名称
func (t EventType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("event_type(%d)", int(t))
	}
	return eventTypeNames[t]
}

// Valid 判断是否为已知事件类型
func (t EventType) Valid() bool {
	return t >= 0 && t < eventTypeCount
}

// MarshalText 以名称形式序列化
func (t EventType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown event type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText 从名称解析
func (t *EventType) UnmarshalText(text []byte) error {
	parsed, err := ParseEventType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseEventType 根据名称解析事件类型
func ParseEventType(name string) (EventType, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	for i, n := range eventTypeNames {
		if n == name {
			return EventType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEventType, name)
}

// AllEventTypes 返回所有事件类型
func AllEventTypes() []EventType {
	types := make([]EventType, 0, eventTypeCount)
	for t := EventType(0); t < eventTypeCount; t++ {
		types = append(types, t)
	}
	return types
}

// Category 事件分类，频控和免打扰按分类生效
type Category string

const (
	CategoryJobActivity Category = "job_activity"
	CategoryJobAlert    Category = "job_alert"
	CategoryPayment     Category = "payment"
	CategorySOS         Category = "sos"
	CategoryChat        Category = "chat"
	CategoryEngagement  Category = "engagement"
)

// RateLimit 滑动窗口频控参数
type RateLimit struct {
	Ceiling int           `json:"ceiling" validate:"gte=0"`
	Period  time.Duration `json:"period" validate:"gte=0"`
}

// Unlimited 是否不限流
func (r RateLimit) Unlimited() bool {
	return r.Ceiling <= 0 || r.Period <= 0
}

// CategoryPolicy 分类策略
type CategoryPolicy struct {
	Category      Category
	UrgencyExempt bool // 免打扰时段仍然投递
	RateLimit     RateLimit
}

// 推送优先级
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Entry 事件目录条目
type Entry struct {
	Type          EventType
	Category      Category
	Channel       DeliveryChannel
	TitleTemplate string
	BodyTemplate  string
	// RequiredFields 客户端无需额外请求即可渲染所需的 data 字段
	RequiredFields []string
	DedupWindow    time.Duration
	Priority       string
	AndroidChannel string
	Sound          string
	TTL            time.Duration
	// RecipientInvariant 为 true 时多用户分发共享同一份 payload
	RecipientInvariant bool
	// EntityKind 客户端交互后按需拉取的实体类型
	EntityKind string
}

// Requires 判断字段是否为必填
func (e Entry) Requires(field string) bool {
	for _, f := range e.RequiredFields {
		if f == field {
			return true
		}
	}
	return false
}

// Catalog 事件目录：条目 + 分类策略
// 构建后只读，可并发访问
type Catalog struct {
	entries    [eventTypeCount]Entry
	categories map[Category]CategoryPolicy
}

// Default 返回内置目录
func Default() *Catalog {
	c := &Catalog{
		entries:    defaultEntries,
		categories: make(map[Category]CategoryPolicy, len(defaultCategories)),
	}
	for _, p := range defaultCategories {
		c.categories[p.Category] = p
	}
	return c
}

// Lookup 查询事件条目
func (c *Catalog) Lookup(t EventType) (Entry, error) {
	if !t.Valid() {
		return Entry{}, fmt.Errorf("%w: %d", ErrUnknownEventType, int(t))
	}
	return c.entries[t], nil
}

// MustLookup 查询事件条目，未知类型直接 panic（仅用于枚举常量）
func (c *Catalog) MustLookup(t EventType) Entry {
	e, err := c.Lookup(t)
	if err != nil {
		panic(err)
	}
	return e
}

// Policy 查询分类策略
func (c *Catalog) Policy(cat Category) (CategoryPolicy, bool) {
	p, ok := c.categories[cat]
	return p, ok
}

// OwnerOf 查询事件归属渠道
func (c *Catalog) OwnerOf(t EventType) DeliveryChannel {
	if !t.Valid() {
		return ChannelNone
	}
	return c.entries[t].Channel
}

// Entries 返回全部条目的副本
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries[:])
	return out
}

// Overrides 来自配置的策略覆盖
type Overrides struct {
	DedupWindows map[EventType]time.Duration
	RateLimits   map[Category]RateLimit
}

// WithOverrides 返回应用了覆盖项的新目录，原目录不变
func (c *Catalog) WithOverrides(o Overrides) (*Catalog, error) {
	next := &Catalog{
		entries:    c.entries,
		categories: make(map[Category]CategoryPolicy, len(c.categories)),
	}
	for k, v := range c.categories {
		next.categories[k] = v
	}
	for t, window := range o.DedupWindows {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownEventType, int(t))
		}
		if window <= 0 {
			return nil, fmt.Errorf("dedup window for %s must be positive", t)
		}
		next.entries[t].DedupWindow = window
	}
	for cat, limit := range o.RateLimits {
		p, ok := next.categories[cat]
		if !ok {
			return nil, fmt.Errorf("unknown category %q", cat)
		}
		p.RateLimit = limit
		next.categories[cat] = p
	}
	return next, nil
}

// Validate 启动时校验目录完整性
func (c *Catalog) Validate() error {
	var problems []string
	for i, e := range c.entries {
		t := EventType(i)
		if e.Type != t {
			problems = append(problems, fmt.Sprintf("%s: missing catalog entry", t))
			continue
		}
		if !e.Channel.Valid() {
			problems = append(problems, fmt.Sprintf("%s: no delivery channel", t))
		}
		if _, ok := c.categories[e.Category]; !ok {
			problems = append(problems, fmt.Sprintf("%s: unknown category %q", t, e.Category))
		}
		if e.Channel != ChannelPush {
			continue
		}
		if e.TitleTemplate == "" || e.BodyTemplate == "" {
			problems = append(problems, fmt.Sprintf("%s: empty title/body template", t))
		}
		if !e.Requires(FieldID) {
			problems = append(problems, fmt.Sprintf("%s: %q must be a required field", t, FieldID))
		}
		for _, f := range append(TemplateFields(e.TitleTemplate), TemplateFields(e.BodyTemplate)...) {
			if !e.Requires(f) {
				problems = append(problems, fmt.Sprintf("%s: template field {%s} is not required", t, f))
			}
		}
		if e.DedupWindow <= 0 {
			problems = append(problems, fmt.Sprintf("%s: dedup window must be positive", t))
		}
		if e.Priority != PriorityHigh && e.Priority != PriorityNormal {
			problems = append(problems, fmt.Sprintf("%s: bad priority %q", t, e.Priority))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}
	return nil
}

// Render 模板替换，{field} 替换为 data 中的值，未知字段保持原样
func Render(template string, data map[string]string) string {
	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); i++ {
		if template[i] == '{' {
			if end := strings.IndexByte(template[i:], '}'); end > 0 {
				key := template[i+1 : i+end]
				if v, ok := data[key]; ok {
					b.WriteString(v)
					i += end
					continue
				}
			}
		}
		b.WriteByte(template[i])
	}
	return b.String()
}

// TemplateFields 提取模板中引用的字段
func TemplateFields(template string) []string {
	var fields []string
	for {
		start := strings.IndexByte(template, '{')
		if start < 0 {
			return fields
		}
		end := strings.IndexByte(template[start:], '}')
		if end < 0 {
			return fields
		}
		if f := template[start+1 : start+end]; f != "" {
			fields = append(fields, f)
		}
		template = template[start+end+1:]
	}
}
