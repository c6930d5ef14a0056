package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ridedispatch/internal/model"
	"ridedispatch/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}

type markRec struct {
	ID      string
	Success bool
	Code    int
	LastErr string
}

type failRec struct {
	ID      string
	Code    int
	LastErr string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}

func (r *recordStore) FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerDeliversWithSignature(t *testing.T) {
	var gotSig, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	body := []byte(`{"id":"evt1"}`)
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "sub1", EventRideAssigned, srv.URL, "secret", body)
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotType != EventRideAssigned {
		t.Fatalf("event type header = %q", gotType)
	}
	if !VerifyHMAC("secret", body, gotSig) {
		t.Fatalf("signature %q does not verify", gotSig)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerDeadLettersAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "sub1", EventPlanCompleted, srv.URL, "", []byte(`{}`))
	w.processOnce()
	if len(rs.fails) == 0 {
		t.Fatalf("expected fail recorded")
	}
	if len(rs.marks) != 0 {
		t.Fatalf("dead-lettered delivery should not be rescheduled: %+v", rs.marks)
	}
}

func TestPublisherFansOutPerSubscription(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://a.example/hook", Events: []string{EventRideAssigned}})
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://b.example/hook", Events: []string{EventRideAssigned}})
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://c.example/hook", Events: []string{EventPlanCompleted}})

	NewPublisher(m).Emit(ctx, EventRideAssigned, map[string]string{"rideId": "r1"})

	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 2 {
		t.Fatalf("enqueued %d deliveries, want 2", len(due))
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second {
		t.Errorf("unexpected early backoff: %v %v", nextBackoff(0), nextBackoff(3))
	}
	if nextBackoff(30) > time.Hour {
		t.Errorf("backoff exceeds cap: %v", nextBackoff(30))
	}
}
