package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("ride-1")

	evt := SSEEvent{Type: "ride.assigned", Data: map[string]any{"rideId": "ride-1"}}
	b.Publish("ride-1", evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["rideId"] != "ride-1" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe("ride-1", ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// drained and closed
	}
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe("ride-a")
	defer b.Unsubscribe("ride-a", a)

	b.Publish("ride-b", SSEEvent{Type: "ride.assigned"})
	select {
	case evt := <-a:
		t.Fatalf("event leaked across topics: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerSlowConsumerDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("ride-1")
	defer b.Unsubscribe("ride-1", ch)

	done := make(chan struct{})
	go func() {
		// More events than the channel buffers; Publish must not block.
		for i := 0; i < 100; i++ {
			b.Publish("ride-1", SSEEvent{Type: "ride.assigned"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}
}
