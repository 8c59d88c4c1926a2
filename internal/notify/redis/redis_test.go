package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/TF-SoftwareEmergentes/livecall/internal/notify"
)

func testCall() *notify.CallCompleted {
	return &notify.CallCompleted{
		Event:        notify.EventCallFinalized,
		SessionID:    "session-1",
		SegmentCount: 3,
		Transcript:   "hello world",
		Alerts:       []string{},
		Audio:        []byte{1, 2, 3},
	}
}

// asyncReceive must be called before publishing: miniredis delivers
// pub/sub messages synchronously.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{}
	}
}

func TestNotifyPublishes(t *testing.T) {
	mr := miniredis.RunT(t)

	n, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = n.Close() }()

	if n.Channel() != DefaultChannel {
		t.Errorf("Expected default channel, got %q", n.Channel())
	}

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	if err := n.Notify(context.Background(), testCall()); err != nil {
		t.Fatalf("notify: %v", err)
	}

	msg := waitMessage(t, ch)
	var received notify.CallCompleted
	if err := json.Unmarshal([]byte(msg.Message), &received); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if received.SessionID != "session-1" || received.SegmentCount != 3 {
		t.Errorf("Unexpected event %+v", received)
	}
	if received.Audio != nil {
		t.Error("Audio must not be published")
	}
}

func TestNotifyCustomChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	n, err := New(Config{URL: "redis://" + mr.Addr(), Channel: "calls"})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = n.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe("calls")
	ch := asyncReceive(sub)

	if err := n.Notify(context.Background(), testCall()); err != nil {
		t.Fatal(err)
	}
	if msg := waitMessage(t, ch); msg.Channel != "calls" {
		t.Errorf("Expected channel calls, got %q", msg.Channel)
	}
}

func TestNotifyUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	n, err := New(Config{URL: "redis://" + addr, Retries: 1, Backoff: time.Millisecond, Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = n.Close() }()

	if err := n.Notify(context.Background(), testCall()); err == nil {
		t.Error("Expected error when redis is down")
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing url", Config{}},
		{"invalid url", Config{URL: "http://not-redis"}},
		{"negative retries", Config{URL: "redis://localhost:6379", Retries: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestPing(t *testing.T) {
	mr := miniredis.RunT(t)
	n, _ := New(Config{URL: "redis://" + mr.Addr()})
	defer func() { _ = n.Close() }()

	if err := n.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
