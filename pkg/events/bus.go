package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type identifies an attendance mutation.
type Type string

const (
	TypeCheckedIn     Type = "checked-in"
	TypeCheckedOut    Type = "checked-out"
	TypeCheckedOutAll Type = "checked-out-all"
	TypeDeleted       Type = "deleted"
)

// Event carries the payload broadcast after a mutation.
type Event struct {
	Type           Type        `json:"type"`
	StudentID      string      `json:"student_id,omitempty"`
	RegisterNumber string      `json:"register_number,omitempty"`
	RecordID       string      `json:"record_id,omitempty"`
	Count          int         `json:"count,omitempty"`
	At             time.Time   `json:"at"`
	Payload        interface{} `json:"payload,omitempty"`
}

// Bus is an in-process publish/subscribe dispatcher. Delivery is best-effort:
// a subscriber whose buffer is full misses the event and must rely on its
// polling fallback.
type Bus struct {
	mu         sync.Mutex
	subs       map[int]chan Event
	nextID     int
	bufferSize int
	closed     bool
	logger     *zap.Logger
}

// NewBus builds a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int, logger *zap.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:       make(map[int]chan Event),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe registers a listener and returns its channel plus a cancel func.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish fans the event out without blocking the caller.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, sub := range b.subs {
		select {
		case sub <- evt:
		default:
			b.logger.Warn("event dropped for slow subscriber",
				zap.Int("subscriber", id), zap.String("type", string(evt.Type)))
		}
	}
}

// SubscriberCount reports active listeners.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
}
