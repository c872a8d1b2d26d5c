package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe(4)
	defer bus.Unsubscribe(ch)

	bus.Publish(Event{
		Timestamp: time.Now(),
		Source:    SourceAgent,
		Kind:      KindRequestStart,
		Data:      map[string]any{"thread_id": "t1"},
	})

	select {
	case e := <-ch:
		if e.Source != SourceAgent || e.Kind != KindRequestStart {
			t.Errorf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestNilBusPublish(t *testing.T) {
	var bus *Bus
	// Must not panic.
	bus.Publish(Event{Kind: KindToolCall})
	if bus.SubscriberCount() != 0 {
		t.Error("nil bus should report zero subscribers")
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	bus := New()
	ch := bus.Subscribe(1)
	defer bus.Unsubscribe(ch)

	// Fill the buffer, then publish more. Publish must not block.
	bus.Publish(Event{Kind: KindToolCall})
	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Kind: KindToolDone})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	ch := bus.Subscribe(1)
	bus.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after Unsubscribe")
	}
	if bus.SubscriberCount() != 0 {
		t.Error("subscriber not removed")
	}

	// Double-unsubscribe is a no-op.
	bus.Unsubscribe(ch)
}
