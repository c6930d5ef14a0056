package geo

import (
	"context"
	"math"

	"ridedispatch/internal/model"
)

const (
	// kmPerDegree is the flat-earth approximation of one degree of
	// latitude; longitude degrees are scaled by cos(latitude).
	kmPerDegree = 111.32
	// approxSpeedKmPerMin converts approximated distance to travel time.
	approxSpeedKmPerMin = 0.8
)

// Approximate estimates travel between two points without the provider.
// Used as the deterministic fallback when a point-to-point route call
// fails; the result is tagged SourceApproximated.
func Approximate(from, to model.GeoPoint) Estimate {
	dLat := (from.Lat - to.Lat) * kmPerDegree
	dLng := (from.Lng - to.Lng) * kmPerDegree * math.Cos(from.Lat*math.Pi/180)
	km := math.Sqrt(dLat*dLat + dLng*dLng)
	return Estimate{
		DistanceKm:  round2(km),
		DurationMin: round2(km / approxSpeedKmPerMin),
		Source:      SourceApproximated,
	}
}

// EstimateBetween asks the provider for a route and degrades to the
// approximation on any provider failure.
func EstimateBetween(ctx context.Context, p Provider, from, to model.GeoPoint) Estimate {
	info, err := p.Route(ctx, from, to)
	if err != nil {
		return Approximate(from, to)
	}
	return Estimate{
		DistanceKm:  round2(info.DistanceM / 1000),
		DurationMin: round2(info.DurationSec / 60),
		Source:      SourceProvider,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
