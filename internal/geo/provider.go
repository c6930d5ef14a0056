// Package geo talks to the external geocoding/routing provider and
// supplies the deterministic approximation used when it is unreachable.
package geo

import (
	"context"
	"errors"

	"ridedispatch/internal/model"
)

var (
	// ErrNotFound means the provider answered but had no result for the
	// address. Distinct from transport failures.
	ErrNotFound = errors.New("geo: address not found")
	// ErrUnavailable covers network errors, timeouts and provider-side
	// failures. Callers either retry, degrade to an approximation, or
	// escalate depending on the operation.
	ErrUnavailable = errors.New("geo: provider unavailable")
)

// Matrix holds pairwise travel metrics indexed identically to the
// location list passed to the provider. Not guaranteed symmetric.
type Matrix struct {
	DurationsSec [][]float64
	DistancesM   [][]float64
}

// RouteInfo is point-to-point geometry plus summary metrics.
type RouteInfo struct {
	Path        []model.GeoPoint
	DurationSec float64
	DistanceM   float64
}

// Estimate sources. Carried in results so tests and callers can tell a
// provider answer from the flat-earth fallback.
const (
	SourceProvider     = "provider"
	SourceApproximated = "approximated"
)

// Estimate is a travel prediction between two points.
type Estimate struct {
	DistanceKm  float64
	DurationMin float64
	Source      string
}

// Provider is the external geocoding/routing capability consumed by the
// core. Implementations must honor context deadlines.
type Provider interface {
	// Resolve turns an address into coordinates, ErrNotFound when the
	// provider has no match.
	Resolve(ctx context.Context, address string) (model.GeoPoint, error)
	// TravelMatrix returns full NxN duration and distance matrices for
	// the given locations in one batched call.
	TravelMatrix(ctx context.Context, locations []model.GeoPoint) (Matrix, error)
	// Route returns drivable geometry and metrics between two points.
	Route(ctx context.Context, from, to model.GeoPoint) (RouteInfo, error)
}

// Suggester is the optional address-autocomplete capability.
type Suggester interface {
	Autocomplete(ctx context.Context, query string) ([]string, error)
}
