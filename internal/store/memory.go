package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridedispatch/internal/model"
)

// Memory holds all dispatch state behind a single mutex. It is the
// default backend; every method is safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	drivers   map[string]model.Driver
	driverIDs []string
	rides     map[string]model.Ride
	rideIDs   []string
	subs      map[string]model.Subscription
	subIDs    []string
	// Webhook queue state
	deliveries  map[string]*memDelivery
	deliveryIDs []string
}

func NewMemory() *Memory {
	return &Memory{
		drivers:    map[string]model.Driver{},
		rides:      map[string]model.Ride{},
		subs:       map[string]model.Subscription{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) CreateDriver(ctx context.Context, d model.Driver) (model.Driver, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Schedule == nil {
		d.Schedule = map[string][]model.ScheduleEntry{}
	}
	m.drivers[d.ID] = d
	m.driverIDs = append(m.driverIDs, d.ID)
	return d, nil
}

func (m *Memory) ListDrivers(ctx context.Context) ([]model.Driver, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	out := make([]model.Driver, 0, len(m.driverIDs))
	for _, id := range m.driverIDs {
		out = append(out, copyDriver(m.drivers[id]))
	}
	return out, nil
}

func (m *Memory) GetDriver(ctx context.Context, id string) (model.Driver, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return model.Driver{}, ErrNotFound
	}
	return copyDriver(d), nil
}

func (m *Memory) CreateRide(ctx context.Context, r model.Ride) (model.Ride, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = "pending"
	}
	m.rides[r.ID] = r
	m.rideIDs = append(m.rideIDs, r.ID)
	return r, nil
}

func (m *Memory) GetRide(ctx context.Context, id string) (model.Ride, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return model.Ride{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRides(ctx context.Context, status string) ([]model.Ride, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	out := []model.Ride{}
	for _, id := range m.rideIDs {
		r := m.rides[id]
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

// AssignRide commits the entry to the driver's calendar day derived
// from the entry's start time and flips the ride to assigned. The day
// stays sorted by start time. Overlapping entries are accepted as-is;
// capacity screening happens before the commit, not here.
func (m *Memory) AssignRide(ctx context.Context, rideID, driverID string, entry model.ScheduleEntry) (model.Ride, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return model.Ride{}, ErrNotFound
	}
	d, ok := m.drivers[driverID]
	if !ok {
		return model.Ride{}, ErrNotFound
	}
	if d.Schedule == nil {
		d.Schedule = map[string][]model.ScheduleEntry{}
	}
	day := model.Weekday(entry.StartTime)
	entries := append(d.Schedule[day], entry)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartTime.Before(entries[j].StartTime)
	})
	d.Schedule[day] = entries
	m.drivers[driverID] = d

	r.Status = "assigned"
	r.AssignedDriverID = d.ID
	r.AssignedDriverName = d.Name
	r.EstStart = entry.StartTime
	r.EstEnd = entry.EndTime
	m.rides[rideID] = r
	return r, nil
}

func (m *Memory) ScheduleFor(ctx context.Context, driverID, weekday string) ([]model.ScheduleEntry, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]model.ScheduleEntry(nil), d.Schedule[weekday]...), nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[s.ID] = s
	m.subIDs = append(m.subIDs, s.ID)
	return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	out := make([]model.Subscription, 0, len(m.subIDs))
	for _, id := range m.subIDs {
		out = append(out, m.subs[id])
	}
	return out, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	for i, sid := range m.subIDs {
		if sid == id {
			m.subIDs = append(m.subIDs[:i], m.subIDs[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	var out []model.Subscription
	for _, id := range m.subIDs {
		s := m.subs[id]
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"},
		NextAttemptAt:   time.Now(),
	}
	m.deliveryIDs = append(m.deliveryIDs, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryIDs {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock(); defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(1 * time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if d := m.deliveries[id]; d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}

// copyDriver deep-copies the schedule map so callers can mutate their
// view without racing the store.
func copyDriver(d model.Driver) model.Driver {
	if d.Schedule == nil {
		return d
	}
	sched := make(map[string][]model.ScheduleEntry, len(d.Schedule))
	for day, entries := range d.Schedule {
		sched[day] = append([]model.ScheduleEntry(nil), entries...)
	}
	d.Schedule = sched
	return d
}
