package api

import "sync"

// SSEEvent is one live dispatch event fanned out to stream consumers.
type SSEEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// TopicDispatch carries fleet-wide events (batch plans); every other
// topic is a ride id.
const TopicDispatch = "dispatch"

// EventBroker fans dispatch events out to SSE and WebSocket consumers.
type EventBroker interface {
	Subscribe(topic string) chan SSEEvent
	Unsubscribe(topic string, ch chan SSEEvent)
	Publish(topic string, evt SSEEvent)
}

// Broker is the in-process EventBroker.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan SSEEvent]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan SSEEvent) {
	b.mu.Lock()
	if m := b.subs[topic]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
	close(ch)
}

// Publish never blocks; slow consumers drop events.
func (b *Broker) Publish(topic string, evt SSEEvent) {
	b.mu.Lock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
