package event_catalog

import (
	"errors"
	"testing"
)

func TestSingleOwnership(t *testing.T) {
	if err := AssertNoDualOwnership(); err != nil {
		t.Fatalf("内置归属表不满足唯一性: %v", err)
	}

	for _, et := range AllEventTypes() {
		feed, subscribed := FeedFor(et)
		switch OwnerOf(et) {
		case ChannelPush, ChannelNone:
			if subscribed {
				t.Errorf("%s is not realtime-owned but feed %s subscribes it", et, feed)
			}
		case ChannelRealtime:
			if !subscribed {
				t.Errorf("%s is realtime-owned but has no feed", et)
			}
		}
	}
}

func TestCheckOwnershipDetectsDualPath(t *testing.T) {
	feeds := append(RealtimeSubscriptions(), RealtimeFeed{
		Name:   "job_status_feed",
		Events: []EventType{JobStarted},
	})
	err := checkOwnership(Default(), feeds)
	if !errors.Is(err, ErrDualOwnership) {
		t.Fatalf("expected ErrDualOwnership, got %v", err)
	}
}

func TestCheckOwnershipDetectsOrphanRealtimeEvent(t *testing.T) {
	err := checkOwnership(Default(), []RealtimeFeed{{Name: "conversation_feed", Events: []EventType{ChatMessage}}})
	if !errors.Is(err, ErrDualOwnership) {
		t.Fatalf("expected error for unsubscribed realtime event, got %v", err)
	}
}

func TestCheckOwnershipDetectsDoubleFeed(t *testing.T) {
	feeds := append(RealtimeSubscriptions(), RealtimeFeed{Name: "inbox_feed", Events: []EventType{ChatMessage}})
	if err := checkOwnership(Default(), feeds); !errors.Is(err, ErrDualOwnership) {
		t.Fatalf("expected error for double subscription, got %v", err)
	}
}

func TestRealtimeSubscriptionsReturnsCopy(t *testing.T) {
	subs := RealtimeSubscriptions()
	subs[0].Events[0] = JobStarted
	if err := AssertNoDualOwnership(); err != nil {
		t.Fatalf("mutating the returned subscriptions leaked into the table: %v", err)
	}
}
