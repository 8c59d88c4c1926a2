package session

import (
	"sync"
	"time"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
)

// EventType names a session event
type EventType string

const (
	EventState        EventType = "state"
	EventSegment      EventType = "segment"
	EventChunk        EventType = "chunk"
	EventChunkError   EventType = "chunk_error"
	EventLevel        EventType = "level"
	EventTick         EventType = "tick"
	EventCaptureEnded EventType = "capture_ended"
	EventFinalized    EventType = "finalized"
)

// Event is published to subscribers as the session progresses
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Time      time.Time `json:"time"`
	Data      any       `json:"data,omitempty"`
}

// StateChange is the payload of EventState
type StateChange struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

// SegmentInfo is the payload of EventSegment
type SegmentInfo struct {
	Index    int     `json:"index"`
	Bytes    int     `json:"bytes"`
	Seconds  float64 `json:"seconds"`
	Uploaded bool    `json:"uploaded"`
}

// ChunkUpdate is the payload of EventChunk: the merged result and the
// running aggregates after it was applied.
type ChunkUpdate struct {
	Index      int                    `json:"index"`
	Result     *analytics.ChunkResult `json:"result"`
	ChunkCount int                    `json:"chunk_count"`
	Transcript string                 `json:"transcript"`
	Alerts     []string               `json:"alerts"`
	AlertCount int                    `json:"alert_count"`
}

// ChunkFailure is the payload of EventChunkError
type ChunkFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Tick is the payload of EventTick
type Tick struct {
	Duration int `json:"duration"`
}

// Bus fans events out to subscribers without ever blocking the publisher.
// A subscriber that falls behind loses events.
type Bus struct {
	subs   map[int]chan Event
	nextID int
	mu     sync.RWMutex
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer. The returned
// function unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber with buffer room.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
