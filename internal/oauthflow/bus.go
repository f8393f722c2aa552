package oauthflow

import "sync"

const subscriberBuffer = 4

// MessageBus carries callback messages to waiting controllers and tracks
// the state values of flows currently in progress.
type MessageBus struct {
	mu     sync.Mutex
	subs   map[int]chan Message
	next   int
	states map[string]struct{}
}

// NewMessageBus creates an empty bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		subs:   make(map[int]chan Message),
		states: make(map[string]struct{}),
	}
}

// Subscribe registers a receiver. The returned func unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *MessageBus) Subscribe() (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Message, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Post delivers msg to every subscriber without blocking. Subscribers
// whose buffer is full miss the message.
func (b *MessageBus) Post(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// ExpectState registers state as belonging to a flow in progress.
func (b *MessageBus) ExpectState(state string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[state] = struct{}{}
}

// ForgetState removes state once its flow ends.
func (b *MessageBus) ForgetState(state string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, state)
}

// ValidState reports whether state belongs to a flow in progress.
func (b *MessageBus) ValidState(state string) bool {
	if state == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.states[state]
	return ok
}
