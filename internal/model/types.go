// Package model holds the domain types and API request/response shapes.
package model

import "time"

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Task is one delivery/ride stop submitted to a batch optimization.
// Immutable once submitted to a solve.
type Task struct {
	ID                 string  `json:"id"`
	Address            string  `json:"address"`
	ServiceDurationMin float64 `json:"serviceDurationMinutes"`
}

// Driver is a fleet member eligible for batch solving and ad-hoc ranking.
type Driver struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	BaseAddress string                     `json:"baseAddress"`
	BaseCoords  *GeoPoint                  `json:"baseCoords,omitempty"`
	MaxDailyHrs float64                    `json:"maxDailyHours"`
	Available   bool                       `json:"isAvailable"`
	Schedule    map[string][]ScheduleEntry `json:"schedule"`
}

// ScheduleEntry is one committed work block on a driver's calendar day.
// Entries for one driver-day are kept ascending by StartTime. Overlap is
// not rejected on commit; capacity is enforced prospectively before the
// commit, never retroactively.
type ScheduleEntry struct {
	RideID             string     `json:"rideId"`
	OriginAddress      string     `json:"originAddress"`
	DestinationAddress string     `json:"destinationAddress"`
	OriginCoords       *GeoPoint  `json:"originCoords,omitempty"`
	DestinationCoords  *GeoPoint  `json:"destinationCoords,omitempty"`
	StartTime          time.Time  `json:"startTime"`
	EndTime            time.Time  `json:"endTime"`
	DurationMinutes    float64    `json:"durationMinutes"`
	ClientName         string     `json:"clientName,omitempty"`
	Path               []GeoPoint `json:"path,omitempty"`
}

// Weekday returns the schedule map key for t.
func Weekday(t time.Time) string { return t.Weekday().String() }

// Weekdays lists all schedule map keys, Monday first.
var Weekdays = []string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// Ride is an ad-hoc transport request handled outside batch optimization.
type Ride struct {
	ID                 string     `json:"id"`
	OriginAddress      string     `json:"originAddress"`
	DestinationAddress string     `json:"destinationAddress"`
	OriginCoords       GeoPoint   `json:"originCoords"`
	DestinationCoords  GeoPoint   `json:"destinationCoords"`
	RequiredArrival    string     `json:"requiredArrivalTime"`
	Passengers         int        `json:"numPassengers"`
	ClientName         string     `json:"clientName"`
	Recurring          bool       `json:"isRecurring"`
	RecurringDays      []string   `json:"recurringDays,omitempty"`
	EstTravelSec       float64    `json:"estimatedTravelTimeSeconds"`
	EstDistanceM       float64    `json:"estimatedDistanceMeters"`
	Path               []GeoPoint `json:"path,omitempty"`
	EstStart           time.Time  `json:"estimatedStartTime"`
	EstEnd             time.Time  `json:"estimatedEndTime"`
	AssignedDriverID   string     `json:"assignedDriverId,omitempty"`
	AssignedDriverName string     `json:"assignedDriverName,omitempty"`
	Status             string     `json:"status"` // pending, assigned
}

// RouteAssignment is one vehicle's share of a batch solve result.
// Immutable once returned.
type RouteAssignment struct {
	DriverID         string     `json:"driverId"`
	DriverName       string     `json:"driverName,omitempty"`
	TaskIDs          []string   `json:"assignedTaskIds"`
	Path             []GeoPoint `json:"path"`
	TotalDistanceKm  float64    `json:"totalDistanceKm"`
	TotalDurationMin float64    `json:"totalDurationMinutes"`
}

// OptimizeRequest is the batch-optimization input. Empty task/driver
// lists fall back to the documented demo defaults.
type OptimizeRequest struct {
	Tasks   []Task   `json:"tasks"`
	Drivers []Driver `json:"drivers"`
	// DepotAddress overrides the configured fleet start point.
	DepotAddress string `json:"depotAddress,omitempty"`
}

type OptimizeResult struct {
	BatchID         string            `json:"batchId"`
	Assignments     []RouteAssignment `json:"driverAssignedRoutes"`
	UnassignedTasks []string          `json:"unassignedTaskIds"`
}

// SuggestRequest asks for a ranked driver list for one task.
type SuggestRequest struct {
	TaskID           string   `json:"taskId"`
	TaskAddress      string   `json:"taskAddress"`
	TaskStartTime    string   `json:"taskStartTime,omitempty"` // RFC3339; defaults to now
	ServiceMinutes   float64  `json:"serviceMinutes,omitempty"`
	ExcludeDriverIDs []string `json:"excludeDriverIds,omitempty"`
}

// DriverCandidate is one ranked suggestion. Source records whether the
// travel estimate came from the routing provider or the approximation
// fallback. Eligible is always true on returned candidates; drivers who
// do not fit the slot are filtered out before ranking.
type DriverCandidate struct {
	DriverID    string    `json:"driverId"`
	DriverName  string    `json:"driverName"`
	DistanceKm  float64   `json:"distanceToStartKm"`
	DurationMin float64   `json:"timeToStartMinutes"`
	Eligible    bool      `json:"isAvailableForSlot"`
	Source      string    `json:"estimateSource"`
	BaseCoords  *GeoPoint `json:"baseCoords,omitempty"`
}

// RideRequest creates a new ride.
type RideRequest struct {
	OriginAddress      string   `json:"originAddress"`
	DestinationAddress string   `json:"destinationAddress"`
	RequiredArrival    string   `json:"requiredArrivalTime"` // HH:MM
	Passengers         int      `json:"numPassengers"`
	ClientName         string   `json:"clientName"`
	Recurring          bool     `json:"isRecurring"`
	RecurringDays      []string `json:"recurringDays,omitempty"`
}

// AssignRequest commits a ride to a driver at a chosen start time.
type AssignRequest struct {
	DriverID  string `json:"driverId"`
	StartTime string `json:"estimatedStartTime"` // RFC3339
}

// MatrixRequest asks for raw travel matrices over a list of addresses.
// Diagnostic surface; per-address geocoding failures become warnings.
type MatrixRequest struct {
	Addresses []string `json:"addresses"`
}

type MatrixPreview struct {
	Resolved     []string    `json:"resolvedAddresses"`
	Locations    []GeoPoint  `json:"locations"`
	DurationsSec [][]float64 `json:"durationsSeconds"`
	DistancesM   [][]float64 `json:"distancesMeters"`
	Warnings     []string    `json:"warnings,omitempty"`
}

// ValidateRequest checks a single named driver against a task.
type ValidateRequest struct {
	DriverID    string `json:"driverId"`
	TaskID      string `json:"taskId,omitempty"`
	TaskAddress string `json:"taskAddress"`
}

type ValidateResult struct {
	Available   bool    `json:"isAvailable"`
	DistanceKm  float64 `json:"distanceToStartKm"`
	DurationMin float64 `json:"timeToStartMinutes"`
	Source      string  `json:"estimateSource"`
	Message     string  `json:"message"`
}

// SubscriptionRequest registers a webhook endpoint for dispatch events.
type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
