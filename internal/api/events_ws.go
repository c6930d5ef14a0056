package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type  string    `json:"type"`
	ID    string    `json:"id,omitempty"`
	Topic string    `json:"topic,omitempty"`
	Event *SSEEvent `json:"event,omitempty"`
	Error string    `json:"error,omitempty"`
}

// EventsWSHandler handles GET /v1/events/ws. Clients subscribe to ride
// topics (or "dispatch" for fleet-wide events) and receive every event
// published while subscribed. Protocol: subscribe/unsubscribe messages
// keyed by client-chosen id, ping/pong keepalive, server-initiated ping
// every 20s.
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		topic string
		ch    chan SSEEvent
		done  chan struct{}
	}
	subs := map[string]sub{}
	defer func() {
		for _, sb := range subs {
			close(sb.done)
			s.Broker.Unsubscribe(sb.topic, sb.ch)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := write(wsMessage{Type: "ping"}); err != nil {
				return
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if msg.Topic == "" || msg.ID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Error: "id and topic are required"})
				continue
			}
			if _, exists := subs[msg.ID]; exists {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Error: "id already subscribed"})
				continue
			}
			ch := s.Broker.Subscribe(msg.Topic)
			done := make(chan struct{})
			subs[msg.ID] = sub{topic: msg.Topic, ch: ch, done: done}
			_ = write(wsMessage{Type: "subscribed", ID: msg.ID, Topic: msg.Topic})
			go func(id string) {
				for {
					select {
					case <-done:
						return
					case evt, ok := <-ch:
						if !ok {
							return
						}
						if err := write(wsMessage{Type: "event", ID: id, Event: &evt}); err != nil {
							return
						}
					}
				}
			}(msg.ID)
		case "unsubscribe":
			if sb, ok := subs[msg.ID]; ok {
				close(sb.done)
				s.Broker.Unsubscribe(sb.topic, sb.ch)
				delete(subs, msg.ID)
				_ = write(wsMessage{Type: "unsubscribed", ID: msg.ID})
			}
		}
	}
}
