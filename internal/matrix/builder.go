// Package matrix turns a depot address and a task list into the travel
// matrices the solver consumes. Location 0 is always the depot; task i
// maps to location i+1.
package matrix

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ridedispatch/internal/apperr"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/model"
)

// Data is a fully resolved routing instance: coordinates in task order
// behind the depot, square duration and distance matrices over them,
// and per-location service seconds (0 for the depot).
type Data struct {
	Locations    []model.GeoPoint
	DurationsSec [][]float64
	DistancesM   [][]float64
	ServiceSec   []float64
}

// Builder resolves addresses and fetches matrices through a Provider.
type Builder struct {
	geo geo.Provider
	log zerolog.Logger
}

func NewBuilder(p geo.Provider) *Builder {
	return &Builder{geo: p, log: logging.Component("matrix")}
}

// Build geocodes the depot and every task, then issues a single matrix
// request. Every address is load-bearing: a single unresolvable one
// aborts the build, since a partial matrix silently misroutes whatever
// survives.
func (b *Builder) Build(ctx context.Context, depot string, tasks []model.Task) (*Data, error) {
	if depot == "" {
		return nil, apperr.Validation("depotAddress", "must not be empty")
	}
	data := &Data{
		Locations:  make([]model.GeoPoint, 0, len(tasks)+1),
		ServiceSec: make([]float64, 0, len(tasks)+1),
	}

	origin, err := b.resolve(ctx, depot)
	if err != nil {
		return nil, err
	}
	data.Locations = append(data.Locations, origin)
	data.ServiceSec = append(data.ServiceSec, 0)

	for _, t := range tasks {
		pt, err := b.resolve(ctx, t.Address)
		if err != nil {
			return nil, err
		}
		data.Locations = append(data.Locations, pt)
		data.ServiceSec = append(data.ServiceSec, t.ServiceDurationMin*60)
	}

	m, err := b.geo.TravelMatrix(ctx, data.Locations)
	if err != nil {
		if errors.Is(err, geo.ErrUnavailable) {
			return nil, apperr.Wrap(err, apperr.CodeProviderUnavailable, "travel matrix request failed")
		}
		return nil, err
	}
	n := len(data.Locations)
	if err := checkSquare(m.DurationsSec, n); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeProviderUnavailable, "malformed duration matrix")
	}
	if err := checkSquare(m.DistancesM, n); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeProviderUnavailable, "malformed distance matrix")
	}
	data.DurationsSec = m.DurationsSec
	data.DistancesM = m.DistancesM

	b.log.Debug().Int("locations", n).Msg("matrix built")
	return data, nil
}

func (b *Builder) resolve(ctx context.Context, address string) (model.GeoPoint, error) {
	pt, err := b.geo.Resolve(ctx, address)
	if err == nil {
		return pt, nil
	}
	b.log.Warn().Str("address", address).Err(err).Msg("geocoding failed")
	if errors.Is(err, geo.ErrUnavailable) {
		return model.GeoPoint{}, apperr.Wrap(err, apperr.CodeProviderUnavailable, "geocoding service unreachable")
	}
	return model.GeoPoint{}, apperr.Geocoding(address)
}

func checkSquare(m [][]float64, n int) error {
	if len(m) != n {
		return fmt.Errorf("%d rows for %d locations", len(m), n)
	}
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(row), n)
		}
	}
	return nil
}
