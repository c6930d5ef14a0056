package store

import (
	"context"
	"errors"
	"time"

	"ridedispatch/internal/model"
)

// Store is the state boundary used by the API server and the dispatch
// service. The in-memory implementation is the only one shipped;
// durable backends can be added behind this interface.
type Store interface {
	// Drivers
	CreateDriver(ctx context.Context, d model.Driver) (model.Driver, error)
	ListDrivers(ctx context.Context) ([]model.Driver, error)
	GetDriver(ctx context.Context, id string) (model.Driver, error)

	// Rides
	CreateRide(ctx context.Context, r model.Ride) (model.Ride, error)
	GetRide(ctx context.Context, id string) (model.Ride, error)
	ListRides(ctx context.Context, status string) ([]model.Ride, error)
	// AssignRide commits a ride to a driver: it appends the schedule
	// entry to the driver's day, re-sorts that day by start time, and
	// marks the ride assigned, all under one lock.
	AssignRide(ctx context.Context, rideID, driverID string, entry model.ScheduleEntry) (model.Ride, error)
	ScheduleFor(ctx context.Context, driverID, weekday string) ([]model.ScheduleEntry, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)

	// Webhook delivery queue
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error
}

var ErrNotFound = errors.New("not found")
