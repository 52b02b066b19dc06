package eventbus

import "sync"

// Emitter is the capability consumed by the Session Engine and Pipeline
// Runner: emit is non-blocking and never fails, and subscribe returns a
// lazy sequence of events.
type Emitter interface {
	Emit(e Event)
	Subscribe() (events <-chan Event, unsubscribe func())
}

// NoopEmitter discards every event; Subscribe returns a closed channel.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

func (NoopEmitter) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}

// BufferedEmitter stores every event it has ever seen and fans out to
// currently-subscribed consumers. A new subscriber first receives a
// replay of all prior events, then live events, preserving global
// order. A consumer whose channel would block is
// dropped rather than allowed to stall the bus.
type BufferedEmitter struct {
	mu          sync.Mutex
	history     []Event
	subscribers map[int]chan Event
	nextID      int
	bufferSize  int
}

// NewBufferedEmitter returns a BufferedEmitter whose per-subscriber
// channel has the given buffer size (default 256 when <= 0).
func NewBufferedEmitter(bufferSize int) *BufferedEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &BufferedEmitter{
		subscribers: make(map[int]chan Event),
		bufferSize:  bufferSize,
	}
}

// Emit appends e to history and fans it out to every live subscriber.
func (b *BufferedEmitter) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, e)
	for id, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// Slow consumer: drop it rather than block the bus.
			close(ch)
			delete(b.subscribers, id)
		}
	}
}

// Subscribe returns a channel that first replays all events emitted
// before this call, then streams live events in order, and an
// unsubscribe function that stops delivery and closes the channel.
func (b *BufferedEmitter) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	replay := make([]Event, len(b.history))
	copy(replay, b.history)
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufferSize+len(replay))
	for _, e := range replay {
		ch <- e
	}
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if live, ok := b.subscribers[id]; ok {
			close(live)
			delete(b.subscribers, id)
		}
	}
	return ch, unsubscribe
}

// History returns a copy of every event emitted so far.
func (b *BufferedEmitter) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}
