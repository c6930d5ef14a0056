// Package main runs a demo WebSocket client for live dispatch events:
// it requests a ride, subscribes to its event topic, assigns it to a
// driver and prints the events pushed over the socket.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Topic string          `json:"topic,omitempty"`
	Event json.RawMessage `json:"event,omitempty"`
	Error string          `json:"error,omitempty"`
}

func postJSON(base, path string, body []byte, out any) error {
	req, err := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Request a ride
	rideBody := []byte(`{"originAddress":"Rothschild 1, Tel Aviv","destinationAddress":"Dizengoff 100, Tel Aviv","requiredArrivalTime":"14:30","numPassengers":2,"clientName":"demo"}`)
	var created struct {
		Ride struct {
			ID string `json:"id"`
		} `json:"ride"`
		Suggestions []struct {
			DriverID string `json:"driverId"`
		} `json:"suggestedDrivers"`
	}
	if err := postJSON(base, "/v1/rides", rideBody, &created); err != nil {
		log.Fatal(err)
	}
	log.Printf("Ride ID: %s", created.Ride.ID)
	driverID := "driver-1"
	if len(created.Suggestions) > 0 {
		driverID = created.Suggestions[0].DriverID
	}

	// Connect and subscribe to this ride's topic
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Topic: created.Ride.ID}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Event))
		}
	}()

	// Assign the ride so the server publishes ride.assigned
	time.Sleep(500 * time.Millisecond)
	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	assignBody := []byte(fmt.Sprintf(`{"driverId":%q,"estimatedStartTime":%q}`, driverID, start))
	var assigned map[string]any
	if err := postJSON(base, "/v1/rides/"+created.Ride.ID+"/assign", assignBody, &assigned); err != nil {
		log.Printf("assign: %v", err)
	}

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
