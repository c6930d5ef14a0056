package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ridedispatch/internal/buildinfo"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/model"
)

// OptimizeHandler handles POST /v1/optimize.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	res, err := s.Dispatch.Optimize(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MatrixHandler handles POST /v1/matrix (diagnostic).
func (s *Server) MatrixHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.MatrixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	res, err := s.Dispatch.MatrixPreview(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RidesHandler handles POST/GET /v1/rides.
func (s *Server) RidesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.RideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		ride, suggestions, err := s.Dispatch.RequestRide(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ride": ride, "suggestedDrivers": suggestions})
	case http.MethodGet:
		rides, err := s.Store.ListRides(r.Context(), r.URL.Query().Get("status"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": rides})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RideByIDHandler handles /v1/rides/{id} and its subresources:
// POST {id}/assign, POST {id}/validate, GET {id}/events/stream.
func (s *Server) RideByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/rides/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ride, err := s.Store.GetRide(r.Context(), id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Ride not found", id, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, ride)
		return
	}

	switch parts[1] {
	case "assign":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req model.AssignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		ride, day, err := s.Dispatch.AssignRide(r.Context(), id, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ride": ride, "driverDaySchedule": day})
	case "validate":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req model.ValidateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TaskID == "" {
			req.TaskID = id
		}
		res, err := s.Dispatch.Validate(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case "events":
		if len(parts) < 3 || parts[2] != "stream" {
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
			return
		}
		s.streamEvents(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// streamEvents serves an SSE stream for one topic with heartbeats.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, topic string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"topic\":%q,\"ts\":%q}\n\n", topic, time.Now().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			heartbeat()
		}
	}
}

// DriversHandler handles GET /v1/drivers.
func (s *Server) DriversHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	drivers, err := s.Store.ListDrivers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": drivers})
}

// SuggestHandler handles POST /v1/drivers/suggest.
func (s *Server) SuggestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	candidates, err := s.Dispatch.Suggest(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

// AutocompleteHandler handles GET /v1/addresses/autocomplete?query=.
func (s *Server) AutocompleteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid request", "query is required", r.URL.Path)
		return
	}
	sg, ok := s.Geo.(geo.Suggester)
	if !ok {
		writeProblem(w, http.StatusNotImplemented, "Autocomplete unavailable", "", r.URL.Path)
		return
	}
	suggestions, err := sg.Autocomplete(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		sub.Secret = ""
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		subs, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		for i := range subs {
			subs[i].Secret = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": subs})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		writeProblem(w, http.StatusNotFound, "Subscription not found", id, r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
	})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// The memory store has no dependencies to probe; readiness means the
	// handler graph is wired.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
