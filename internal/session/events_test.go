package session

import (
	"context"
	"testing"
)

func TestBusDelivers(t *testing.T) {
	bus := NewBus()
	a, unsubA := bus.Subscribe(4)
	b, unsubB := bus.Subscribe(4)
	defer unsubA()
	defer unsubB()

	bus.Publish(Event{Type: EventTick, Data: Tick{Duration: 1}})

	for i, ch := range []<-chan Event{a, b} {
		ev := <-ch
		if ev.Type != EventTick || ev.Time.IsZero() {
			t.Errorf("subscriber %d: unexpected event %+v", i, ev)
		}
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe(2)
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: EventTick, Data: Tick{Duration: i}})
	}

	if len(ch) != 2 {
		t.Fatalf("Expected 2 buffered events, got %d", len(ch))
	}
	if ev := <-ch; ev.Data.(Tick).Duration != 0 {
		t.Errorf("Expected oldest event first, got %+v", ev)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe(1)
	if bus.Subscribers() != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", bus.Subscribers())
	}

	unsubscribe()
	unsubscribe()

	if bus.Subscribers() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", bus.Subscribers())
	}
	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed")
	}

	bus.Publish(Event{Type: EventTick})
}

func TestTokenCancel(t *testing.T) {
	parent := newToken(context.Background())
	if parent.Cancelled() {
		t.Fatal("new token should be live")
	}
	parent.Cancel()
	if !parent.Cancelled() || parent.Context().Err() == nil {
		t.Error("Expected token to be cancelled")
	}
	parent.Cancel()
}
