package event_catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrInvalidCatalog   = errors.New("invalid event catalog")
	ErrDualOwnership    = errors.New("event reachable through more than one delivery channel")
)

// DeliveryChannel 事件投递渠道，每个事件类型有且仅有一个
type DeliveryChannel string

const (
	ChannelPush     DeliveryChannel = "push"
	ChannelRealtime DeliveryChannel = "realtime"
	ChannelNone     DeliveryChannel = "none"
)

// Valid 是否为合法渠道
func (c DeliveryChannel) Valid() bool {
	switch c {
	case ChannelPush, ChannelRealtime, ChannelNone:
		return true
	}
	return false
}

// RealtimeFeed 实时订阅频道定义
type RealtimeFeed struct {
	Name   string
	Events []EventType
}

var realtimeFeeds = []RealtimeFeed{
	{Name: "conversation_feed", Events: []EventType{ChatMessage}},
	{Name: "job_tracking_feed", Events: []EventType{HelperLocationUpdated}},
}

// RealtimeSubscriptions 实时通道的订阅定义，实时链路只允许订阅这些事件
func RealtimeSubscriptions() []RealtimeFeed {
	out := make([]RealtimeFeed, len(realtimeFeeds))
	for i, f := range realtimeFeeds {
		out[i] = RealtimeFeed{Name: f.Name, Events: append([]EventType(nil), f.Events...)}
	}
	return out
}

// FeedFor 查询事件所属的实时频道
func FeedFor(t EventType) (string, bool) {
	for _, f := range realtimeFeeds {
		for _, e := range f.Events {
			if e == t {
				return f.Name, true
			}
		}
	}
	return "", false
}

// OwnerOf 使用内置目录查询事件归属渠道
func OwnerOf(t EventType) DeliveryChannel {
	return defaultCatalog.OwnerOf(t)
}

var defaultCatalog = Default()

// AssertNoDualOwnership 启动时检查渠道归属唯一性，任何事件都不能同时被推送和实时两条链路投递
func AssertNoDualOwnership() error {
	return checkOwnership(defaultCatalog, realtimeFeeds)
}

// AssertNoDualOwnership 针对指定目录做检查（配置覆盖后的目录）
func (c *Catalog) AssertNoDualOwnership() error {
	return checkOwnership(c, realtimeFeeds)
}

func checkOwnership(c *Catalog, feeds []RealtimeFeed) error {
	var problems []string

	subscribed := make(map[EventType][]string)
	for _, f := range feeds {
		for _, t := range f.Events {
			if !t.Valid() {
				problems = append(problems, fmt.Sprintf("feed %s subscribes unknown event %d", f.Name, int(t)))
				continue
			}
			subscribed[t] = append(subscribed[t], f.Name)
		}
	}

	for _, t := range AllEventTypes() {
		owner := c.OwnerOf(t)
		feedsOf := subscribed[t]
		switch owner {
		case ChannelPush, ChannelNone:
			if len(feedsOf) > 0 {
				problems = append(problems, fmt.Sprintf("%s is owned by %s but subscribed by realtime feed(s) %s",
					t, owner, strings.Join(feedsOf, ",")))
			}
		case ChannelRealtime:
			if len(feedsOf) == 0 {
				problems = append(problems, fmt.Sprintf("%s is owned by realtime but no feed subscribes it", t))
			} else if len(feedsOf) > 1 {
				problems = append(problems, fmt.Sprintf("%s is subscribed by %d realtime feeds: %s",
					t, len(feedsOf), strings.Join(feedsOf, ",")))
			}
		default:
			problems = append(problems, fmt.Sprintf("%s has no delivery channel", t))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrDualOwnership, strings.Join(problems, "; "))
	}
	return nil
}
