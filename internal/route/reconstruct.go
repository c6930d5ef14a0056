// Package route stitches per-leg road geometry into one polyline per
// vehicle route.
package route

import (
	"context"

	"github.com/rs/zerolog"

	"ridedispatch/internal/geo"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/model"
)

type Reconstructor struct {
	geo geo.Provider
	log zerolog.Logger
}

func NewReconstructor(p geo.Provider) *Reconstructor {
	return &Reconstructor{geo: p, log: logging.Component("route")}
}

// Path concatenates the road geometry of each consecutive leg. Interior
// boundaries share a point between legs, so every leg but the last is
// trimmed of its final point. A leg whose geometry cannot be fetched
// degrades to a straight line between its two stops; the rest of the
// path is unaffected.
func (r *Reconstructor) Path(ctx context.Context, stops []model.GeoPoint) []model.GeoPoint {
	if len(stops) < 2 {
		return append([]model.GeoPoint(nil), stops...)
	}
	var path []model.GeoPoint
	for i := 0; i < len(stops)-1; i++ {
		from, to := stops[i], stops[i+1]
		leg := r.leg(ctx, from, to)
		if i < len(stops)-2 && len(leg) > 0 {
			leg = leg[:len(leg)-1]
		}
		path = append(path, leg...)
	}
	return path
}

func (r *Reconstructor) leg(ctx context.Context, from, to model.GeoPoint) []model.GeoPoint {
	info, err := r.geo.Route(ctx, from, to)
	if err != nil || len(info.Path) == 0 {
		r.log.Warn().
			Float64("fromLat", from.Lat).Float64("fromLng", from.Lng).
			Float64("toLat", to.Lat).Float64("toLng", to.Lng).
			Err(err).Msg("leg geometry unavailable, using straight line")
		return []model.GeoPoint{from, to}
	}
	return info.Path
}
