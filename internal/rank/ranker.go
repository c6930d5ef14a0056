// Package rank suggests drivers for a single task by proximity and
// remaining daily capacity.
package rank

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"ridedispatch/internal/apperr"
	"ridedispatch/internal/config"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/model"
)

type Ranker struct {
	geo geo.Provider
	cfg config.RankConfig
	log zerolog.Logger
}

func NewRanker(p geo.Provider, cfg config.RankConfig) *Ranker {
	return &Ranker{geo: p, cfg: cfg, log: logging.Component("rank")}
}

// Suggest resolves the task's start address, estimates each available
// driver's approach from their base, and returns the closest candidates
// first. A driver whose committed minutes plus approach plus the task's
// assumed duration would exceed their daily ceiling is dropped from the
// list entirely.
func (r *Ranker) Suggest(ctx context.Context, req model.SuggestRequest, drivers []model.Driver) ([]model.DriverCandidate, error) {
	if req.TaskAddress == "" {
		return nil, apperr.Validation("taskAddress", "must not be empty")
	}
	startAt := time.Now()
	if req.TaskStartTime != "" {
		t, err := time.Parse(time.RFC3339, req.TaskStartTime)
		if err != nil {
			return nil, apperr.Validation("taskStartTime", "must be RFC3339")
		}
		startAt = t
	}
	start, err := r.geo.Resolve(ctx, req.TaskAddress)
	if err != nil {
		if errors.Is(err, geo.ErrUnavailable) {
			return nil, apperr.Wrap(err, apperr.CodeProviderUnavailable, "geocoding service unreachable")
		}
		return nil, apperr.Geocoding(req.TaskAddress)
	}

	serviceMin := req.ServiceMinutes
	if serviceMin <= 0 {
		serviceMin = r.cfg.AssumedServiceMin
	}
	excluded := make(map[string]bool, len(req.ExcludeDriverIDs))
	for _, id := range req.ExcludeDriverIDs {
		excluded[id] = true
	}
	weekday := model.Weekday(startAt)

	candidates := make([]model.DriverCandidate, 0, len(drivers))
	for _, d := range drivers {
		if !d.Available || excluded[d.ID] {
			continue
		}
		base, ok := r.baseOf(ctx, d)
		if !ok {
			continue
		}
		est := geo.EstimateBetween(ctx, r.geo, base, start)
		committed := committedMinutes(d, weekday)
		if committed+est.DurationMin+serviceMin > d.MaxDailyHrs*60 {
			continue
		}
		basePt := base
		candidates = append(candidates, model.DriverCandidate{
			DriverID:    d.ID,
			DriverName:  d.Name,
			DistanceKm:  est.DistanceKm,
			DurationMin: est.DurationMin,
			Eligible:    true,
			Source:      est.Source,
			BaseCoords:  &basePt,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DistanceKm < candidates[j].DistanceKm
	})
	if n := r.cfg.MaxSuggestions; n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates, nil
}

// baseOf returns the driver's base coordinates, geocoding the base
// address when none are stored. Drivers whose base cannot be placed are
// skipped rather than failing the whole suggestion.
func (r *Ranker) baseOf(ctx context.Context, d model.Driver) (model.GeoPoint, bool) {
	if d.BaseCoords != nil {
		return *d.BaseCoords, true
	}
	pt, err := r.geo.Resolve(ctx, d.BaseAddress)
	if err != nil {
		r.log.Warn().Str("driverId", d.ID).Str("address", d.BaseAddress).Err(err).
			Msg("driver base unresolvable, skipping")
		return model.GeoPoint{}, false
	}
	return pt, true
}

func committedMinutes(d model.Driver, weekday string) float64 {
	total := 0.0
	for _, entry := range d.Schedule[weekday] {
		total += entry.DurationMinutes
	}
	return total
}
