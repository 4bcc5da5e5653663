package emitter

import (
	"sync"
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// EventType names the progress notifications carried by the bus.
type EventType string

const (
	EventStepChange        EventType = "step_change"
	EventStepProgress      EventType = "step_progress"
	EventStepComplete      EventType = "step_complete"
	EventStepError         EventType = "step_error"
	EventIndexingComplete  EventType = "indexing_complete"
	EventIndexingCancelled EventType = "indexing_cancelled"
)

// Event is one progress notification. Every event is tagged with the
// SessionID of the run that emitted it so concurrent subscribers can filter
// out cross-talk.
type Event struct {
	Type        EventType
	SessionID   string
	Step        domain.Step
	Percent     float64              // step_progress only, 0-100
	Message     string               // step_error only
	Kind        domain.ErrorKind     // step_error only, set by the emitting worker
	Recoverable bool                 // step_error only
	Artifact    any                  // step_complete: the step's partial output
	Result      *domain.AccountStats // indexing_complete only
	At          time.Time
}

// Listener receives events synchronously on the publishing goroutine.
type Listener func(Event)

// Bus is a pure fan-out channel between the pipeline worker and anything
// interested in its progress. It holds no business state.
type Bus struct {
	mu     sync.Mutex
	subs   []subscription
	nextID int
}

type subscription struct {
	id int
	fn Listener
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe attaches a listener and returns its unsubscribe function.
// Unsubscribing twice is a no-op and never affects other subscribers.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to all listeners in subscription order.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// SubscriberCount returns the number of attached listeners.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
