package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(KindConversationsUpdated, 10)
	defer unsub()

	b.Publish(Event{Kind: KindConversationsUpdated, Payload: 3})

	select {
	case evt := <-ch:
		if evt.Kind != KindConversationsUpdated {
			t.Errorf("got kind %q, want %q", evt.Kind, KindConversationsUpdated)
		}
		if evt.Timestamp.IsZero() {
			t.Error("expected timestamp to be filled")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(ThreadKind("user-2"), 10)
	defer unsub()

	b.Publish(Event{Kind: ThreadKind("user-9")})
	b.Publish(Event{Kind: ThreadKind("user-2")})

	select {
	case evt := <-ch:
		if evt.Kind != ThreadKind("user-2") {
			t.Errorf("got kind %q, want thread event for user-2", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	unsub()

	b.Publish(Event{Kind: KindCountersUpdated})

	select {
	case evt := <-ch:
		t.Errorf("unexpected event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFullSubscriberDoesNotBlock(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("", 0)
	defer unsub()

	done := make(chan struct{})
	go func() {
		b.Publish(Event{Kind: KindCountersUpdated})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber")
	}
}
