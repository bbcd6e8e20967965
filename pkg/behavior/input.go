package behavior

import (
	"fmt"
	"sync"
	"time"
)

// EventKind is the type of a raw interaction event.
type EventKind int

// Interaction event kinds.
const (
	EventMove EventKind = iota
	EventClick
	EventScroll
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventMove:
		return "move"
	case EventClick:
		return "click"
	case EventScroll:
		return "scroll"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *EventKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "move", "mousemove":
		*k = EventMove
	case "click":
		*k = EventClick
	case "scroll", "wheel":
		*k = EventScroll
	default:
		return fmt.Errorf("behavior: unknown event kind %q", b)
	}
	return nil
}

// Event is one raw pointer, click or scroll event. Pointer and click events
// carry a position; scroll events carry DeltaY.
type Event struct {
	Kind      EventKind `json:"kind"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	DeltaY    float64   `json:"delta_y,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Move builds a pointer-move event.
func Move(x, y float64, ts time.Time) Event {
	return Event{Kind: EventMove, X: x, Y: y, Timestamp: ts}
}

// Click builds a click event.
func Click(x, y float64, ts time.Time) Event {
	return Event{Kind: EventClick, X: x, Y: y, Timestamp: ts}
}

// Scroll builds a scroll event.
func Scroll(deltaY float64, ts time.Time) Event {
	return Event{Kind: EventScroll, DeltaY: deltaY, Timestamp: ts}
}

// InputSource delivers raw interaction events to subscribers.
type InputSource interface {
	// Subscribe registers fn and returns a function that removes it.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// InputBus is an in-process InputSource. External collaborators publish
// events into it (the web layer does this for /ws/input and /api/input).
type InputBus struct {
	mu   sync.RWMutex
	subs map[int]func(Event)
	next int
}

// NewInputBus creates an empty bus.
func NewInputBus() *InputBus {
	return &InputBus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn.
func (b *InputBus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber synchronously.
func (b *InputBus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Subscribers returns the number of registered subscribers.
func (b *InputBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
