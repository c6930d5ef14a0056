package rank

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ridedispatch/internal/config"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/model"
)

type fakeGeo struct {
	points   map[string]model.GeoPoint
	routeErr error
}

func (f *fakeGeo) Resolve(_ context.Context, address string) (model.GeoPoint, error) {
	pt, ok := f.points[address]
	if !ok {
		return model.GeoPoint{}, geo.ErrNotFound
	}
	return pt, nil
}

func (f *fakeGeo) TravelMatrix(context.Context, []model.GeoPoint) (geo.Matrix, error) {
	return geo.Matrix{}, geo.ErrUnavailable
}

func (f *fakeGeo) Route(_ context.Context, from, to model.GeoPoint) (geo.RouteInfo, error) {
	if f.routeErr != nil {
		return geo.RouteInfo{}, f.routeErr
	}
	// Scale straight-line degrees into plausible road figures.
	dLat := to.Lat - from.Lat
	dLng := to.Lng - from.Lng
	if dLat < 0 {
		dLat = -dLat
	}
	if dLng < 0 {
		dLng = -dLng
	}
	m := (dLat + dLng) * 120_000
	return geo.RouteInfo{DurationSec: m / 10, DistanceM: m}, nil
}

func rankCfg() config.RankConfig {
	return config.RankConfig{AssumedServiceMin: 30, MaxSuggestions: 5}
}

func driverAt(id string, lat, lng float64) model.Driver {
	return model.Driver{
		ID:          id,
		Name:        "Driver " + id,
		BaseCoords:  &model.GeoPoint{Lat: lat, Lng: lng},
		MaxDailyHrs: 8,
		Available:   true,
	}
}

func TestSuggestCapsAndSortsByDistance(t *testing.T) {
	g := &fakeGeo{points: map[string]model.GeoPoint{"start": {Lat: 32.0, Lng: 34.0}}}
	var drivers []model.Driver
	for i := 1; i <= 7; i++ {
		drivers = append(drivers, driverAt(fmt.Sprintf("d%d", i), 32.0+float64(i)*0.01, 34.0))
	}
	got, err := NewRanker(g, rankCfg()).Suggest(context.Background(), model.SuggestRequest{TaskAddress: "start"}, drivers)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d candidates, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistanceKm < got[i-1].DistanceKm {
			t.Errorf("candidates not sorted by distance: %v before %v", got[i-1].DistanceKm, got[i].DistanceKm)
		}
	}
	if got[0].DriverID != "d1" {
		t.Errorf("closest driver = %s, want d1", got[0].DriverID)
	}
}

func TestSuggestSkipsUnavailableAndExcluded(t *testing.T) {
	g := &fakeGeo{points: map[string]model.GeoPoint{"start": {Lat: 32, Lng: 34}}}
	off := driverAt("off", 32.01, 34)
	off.Available = false
	drivers := []model.Driver{off, driverAt("skip", 32.02, 34), driverAt("ok", 32.03, 34)}
	req := model.SuggestRequest{TaskAddress: "start", ExcludeDriverIDs: []string{"skip"}}
	got, err := NewRanker(g, rankCfg()).Suggest(context.Background(), req, drivers)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 1 || got[0].DriverID != "ok" {
		t.Fatalf("candidates = %+v, want only ok", got)
	}
}

func TestSuggestFallsBackToApproximation(t *testing.T) {
	g := &fakeGeo{
		points:   map[string]model.GeoPoint{"start": {Lat: 32, Lng: 34}},
		routeErr: geo.ErrUnavailable,
	}
	got, err := NewRanker(g, rankCfg()).Suggest(context.Background(),
		model.SuggestRequest{TaskAddress: "start"}, []model.Driver{driverAt("d1", 32.05, 34.05)})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 1 || got[0].Source != geo.SourceApproximated {
		t.Fatalf("candidates = %+v, want one approximated estimate", got)
	}
	if got[0].DistanceKm <= 0 || got[0].DurationMin <= 0 {
		t.Errorf("approximation produced empty estimate: %+v", got[0])
	}
}

func TestSuggestFiltersFullDayDriver(t *testing.T) {
	g := &fakeGeo{points: map[string]model.GeoPoint{"start": {Lat: 32, Lng: 34}}}
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // a Monday
	// The nearest driver has no headroom left on the task's day; they
	// must be dropped entirely, not listed behind the fitting driver.
	busy := driverAt("busy", 32.01, 34)
	busy.Schedule = map[string][]model.ScheduleEntry{
		"Monday": {{RideID: "r1", DurationMinutes: 8 * 60}},
	}
	mid := driverAt("mid", 32.10, 34)
	far := driverAt("far", 32.30, 34)
	req := model.SuggestRequest{TaskAddress: "start", TaskStartTime: start.Format(time.RFC3339)}
	got, err := NewRanker(g, rankCfg()).Suggest(context.Background(), req, []model.Driver{far, busy, mid})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2: %+v", len(got), got)
	}
	for _, c := range got {
		if c.DriverID == "busy" {
			t.Fatalf("over-committed driver returned: %+v", c)
		}
		if !c.Eligible {
			t.Errorf("returned candidate not flagged available: %+v", c)
		}
	}
	if got[0].DriverID != "mid" || got[1].DriverID != "far" {
		t.Errorf("order = [%s %s], want nearest fitting driver first", got[0].DriverID, got[1].DriverID)
	}
	if got[0].DistanceKm > got[1].DistanceKm {
		t.Errorf("distances not non-decreasing: %+v", got)
	}
}

func TestSuggestSkipsUnresolvableBase(t *testing.T) {
	g := &fakeGeo{points: map[string]model.GeoPoint{"start": {Lat: 32, Lng: 34}}}
	lost := model.Driver{ID: "lost", BaseAddress: "nowhere", MaxDailyHrs: 8, Available: true}
	got, err := NewRanker(g, rankCfg()).Suggest(context.Background(),
		model.SuggestRequest{TaskAddress: "start"}, []model.Driver{lost, driverAt("d1", 32.01, 34)})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 1 || got[0].DriverID != "d1" {
		t.Fatalf("candidates = %+v, want only d1", got)
	}
}
