package events

import (
	"sync"
	"time"
)

// EventType identifies what happened.
type EventType int

const (
	EventConnecting EventType = iota
	EventConnected
	EventDisconnected
	EventSnapshot
	EventVoteCast
	EventRequestStart
	EventRequestComplete
)

func (t EventType) String() string {
	switch t {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventSnapshot:
		return "snapshot"
	case EventVoteCast:
		return "vote_cast"
	case EventRequestStart:
		return "request_start"
	case EventRequestComplete:
		return "request_complete"
	default:
		return "unknown"
	}
}

// Event is a single notification on the bus.
type Event struct {
	Type      EventType
	Data      interface{}
	Timestamp time.Time
}

// ConnectedData accompanies EventConnected for the live socket.
type ConnectedData struct {
	URL     string
	Latency time.Duration // dial time
}

// SnapshotData accompanies EventSnapshot: an applied results snapshot.
type SnapshotData struct {
	PollID  string
	Seq     uint64
	Origin  string // "poll" or "socket"
	Results map[int64]int64
	Total   int64
}

// VoteData accompanies EventVoteCast.
type VoteData struct {
	PollID   string
	ChoiceID int64
	Results  map[int64]int64
}

// RequestData accompanies EventRequestComplete.
type RequestData struct {
	Method   string
	Path     string
	Status   int
	Duration time.Duration
	Bytes    int64
}

const defaultBuffer = 256

// Bus fans events out to subscribers. Publish never blocks; a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	buffer      int
	closed      bool
}

func NewBus() *Bus {
	return NewBusWithBuffer(defaultBuffer)
}

func NewBusWithBuffer(size int) *Bus {
	if size <= 0 {
		size = defaultBuffer
	}
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
		buffer:      size,
	}
}

// Subscribe returns a channel receiving every subsequent event. On a closed
// bus the returned channel is already closed.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		if ch == sub {
			delete(b.subscribers, ch)
			close(ch)
			return
		}
	}
}

func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
