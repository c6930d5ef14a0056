package dispatch

import (
	"context"
	"testing"
	"time"

	"ridedispatch/internal/apperr"
	"ridedispatch/internal/config"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/model"
	"ridedispatch/internal/store"
	"ridedispatch/internal/webhooks"
)

type fakeGeo struct {
	points   map[string]model.GeoPoint
	hop      float64 // seconds per off-diagonal matrix cell
	routeErr error
}

func (f *fakeGeo) Resolve(_ context.Context, address string) (model.GeoPoint, error) {
	pt, ok := f.points[address]
	if !ok {
		return model.GeoPoint{}, geo.ErrNotFound
	}
	return pt, nil
}

func (f *fakeGeo) TravelMatrix(_ context.Context, locations []model.GeoPoint) (geo.Matrix, error) {
	n := len(locations)
	durations := make([][]float64, n)
	distances := make([][]float64, n)
	for i := range durations {
		durations[i] = make([]float64, n)
		distances[i] = make([]float64, n)
		for j := range durations[i] {
			if i != j {
				durations[i][j] = f.hop
				distances[i][j] = f.hop * 10
			}
		}
	}
	return geo.Matrix{DurationsSec: durations, DistancesM: distances}, nil
}

func (f *fakeGeo) Route(_ context.Context, from, to model.GeoPoint) (geo.RouteInfo, error) {
	if f.routeErr != nil {
		return geo.RouteInfo{}, f.routeErr
	}
	return geo.RouteInfo{Path: []model.GeoPoint{from, to}, DurationSec: 600, DistanceM: 5000}, nil
}

type captureSink struct {
	topics []string
	types  []string
}

func (c *captureSink) Publish(topic, eventType string, _ map[string]any) {
	c.topics = append(c.topics, topic)
	c.types = append(c.types, eventType)
}

func testCfg() config.Config {
	cfg := config.Default()
	cfg.Solver.TimeBudget = 50 * time.Millisecond
	cfg.Solver.Seed = 1
	return cfg
}

func testGeo() *fakeGeo {
	pts := map[string]model.GeoPoint{
		"depot": {Lat: 32.08, Lng: 34.78},
	}
	for _, t := range store.DemoTasks() {
		pts[t.Address] = model.GeoPoint{Lat: 32.05, Lng: 34.77}
	}
	for _, d := range store.DemoDrivers() {
		pts[d.BaseAddress] = *d.BaseCoords
	}
	return &fakeGeo{points: pts, hop: 300}
}

func newService(t *testing.T, g *fakeGeo) (*Service, *store.Memory, *captureSink) {
	t.Helper()
	m := store.NewMemory()
	if err := store.SeedDemo(context.Background(), m); err != nil {
		t.Fatalf("SeedDemo: %v", err)
	}
	sink := &captureSink{}
	return New(m, g, testCfg(), webhooks.NewPublisher(m), sink), m, sink
}

func TestOptimizeCoversEveryTask(t *testing.T) {
	svc, _, _ := newService(t, testGeo())
	req := model.OptimizeRequest{DepotAddress: "depot"}
	res, err := svc.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if res.BatchID == "" {
		t.Error("missing batch id")
	}
	assigned := map[string]bool{}
	for _, a := range res.Assignments {
		for _, id := range a.TaskIDs {
			if assigned[id] {
				t.Errorf("task %s assigned twice", id)
			}
			assigned[id] = true
		}
		if len(a.TaskIDs) > 0 && len(a.Path) == 0 {
			t.Errorf("driver %s has stops but no path", a.DriverID)
		}
	}
	for _, id := range res.UnassignedTasks {
		if assigned[id] {
			t.Errorf("task %s both assigned and unassigned", id)
		}
		assigned[id] = true
	}
	for _, task := range store.DemoTasks() {
		if !assigned[task.ID] {
			t.Errorf("task %s missing from both sets", task.ID)
		}
	}
}

func TestOptimizeRoundsTotals(t *testing.T) {
	svc, _, _ := newService(t, testGeo())
	res, err := svc.Optimize(context.Background(), model.OptimizeRequest{DepotAddress: "depot"})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	for _, a := range res.Assignments {
		for _, v := range []float64{a.TotalDistanceKm, a.TotalDurationMin} {
			if v != float64(int64(v*100))/100 {
				t.Errorf("total %v not rounded to 2 decimals", v)
			}
		}
	}
}

func TestOptimizeNoFeasibleSolution(t *testing.T) {
	svc, _, _ := newService(t, testGeo())
	req := model.OptimizeRequest{
		DepotAddress: "depot",
		Drivers: []model.Driver{
			{ID: "tiny", Name: "Tiny", MaxDailyHrs: 0.01, Available: true},
		},
	}
	_, err := svc.Optimize(context.Background(), req)
	if apperr.CodeOf(err) != apperr.CodeNoFeasibleSolution {
		t.Fatalf("err = %v, want no-feasible-solution", err)
	}
}

func TestOptimizeGeocodeFailureAborts(t *testing.T) {
	g := testGeo()
	delete(g.points, store.DemoTasks()[0].Address)
	svc, _, _ := newService(t, g)
	_, err := svc.Optimize(context.Background(), model.OptimizeRequest{DepotAddress: "depot"})
	if apperr.CodeOf(err) != apperr.CodeGeocoding {
		t.Fatalf("err = %v, want geocoding failure", err)
	}
}

func TestOptimizeRejectsEmptyFleet(t *testing.T) {
	svc, _, _ := newService(t, testGeo())
	req := model.OptimizeRequest{
		DepotAddress: "depot",
		Drivers:      []model.Driver{{ID: "off", Available: false, MaxDailyHrs: 8}},
	}
	_, err := svc.Optimize(context.Background(), req)
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestRequestRideStoresAndSuggests(t *testing.T) {
	g := testGeo()
	g.points["Origin St 1"] = model.GeoPoint{Lat: 32.07, Lng: 34.79}
	g.points["Dest Ave 2"] = model.GeoPoint{Lat: 32.10, Lng: 34.83}
	svc, m, _ := newService(t, g)

	ride, suggestions, err := svc.RequestRide(context.Background(), model.RideRequest{
		OriginAddress:      "Origin St 1",
		DestinationAddress: "Dest Ave 2",
		RequiredArrival:    "14:30",
		Passengers:         2,
		ClientName:         "Noa",
	})
	if err != nil {
		t.Fatalf("RequestRide: %v", err)
	}
	if ride.Status != "pending" || ride.EstTravelSec != 600 {
		t.Errorf("ride = %+v", ride)
	}
	if !ride.EstEnd.Equal(ride.EstStart.Add(10 * time.Minute)) {
		t.Errorf("window [%v %v] does not span the travel estimate", ride.EstStart, ride.EstEnd)
	}
	if len(suggestions) == 0 || len(suggestions) > 5 {
		t.Errorf("got %d suggestions", len(suggestions))
	}
	for _, c := range suggestions {
		if c.DriverID == "driver-4" {
			t.Errorf("unavailable driver suggested")
		}
	}
	if stored, err := m.GetRide(context.Background(), ride.ID); err != nil || stored.Status != "pending" {
		t.Errorf("stored ride = %+v, err %v", stored, err)
	}
}

func TestRequestRideRejectsBadArrival(t *testing.T) {
	g := testGeo()
	g.points["a"] = model.GeoPoint{Lat: 32, Lng: 34}
	g.points["b"] = model.GeoPoint{Lat: 32.1, Lng: 34.1}
	svc, _, _ := newService(t, g)
	_, _, err := svc.RequestRide(context.Background(), model.RideRequest{
		OriginAddress: "a", DestinationAddress: "b", RequiredArrival: "half past two",
	})
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestAssignRideCommitsLedgerAndEmits(t *testing.T) {
	g := testGeo()
	g.points["a"] = model.GeoPoint{Lat: 32, Lng: 34}
	g.points["b"] = model.GeoPoint{Lat: 32.1, Lng: 34.1}
	svc, m, sink := newService(t, g)
	ctx := context.Background()

	_, err := m.CreateSubscription(ctx, model.SubscriptionRequest{
		URL: "http://example.com/hook", Events: []string{webhooks.EventRideAssigned},
	})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	ride, _, err := svc.RequestRide(ctx, model.RideRequest{OriginAddress: "a", DestinationAddress: "b"})
	if err != nil {
		t.Fatalf("RequestRide: %v", err)
	}
	start := time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)
	updated, day, err := svc.AssignRide(ctx, ride.ID, model.AssignRequest{
		DriverID: "driver-2", StartTime: start.Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("AssignRide: %v", err)
	}
	if updated.Status != "assigned" || updated.AssignedDriverID != "driver-2" {
		t.Errorf("ride = %+v", updated)
	}
	if len(day) != 1 || day[0].RideID != ride.ID || day[0].DurationMinutes != 10 {
		t.Errorf("day schedule = %+v", day)
	}
	// Wednesday comes from the chosen start time, not from today.
	if entries, _ := m.ScheduleFor(ctx, "driver-2", "Wednesday"); len(entries) != 1 {
		t.Errorf("Wednesday entries = %+v", entries)
	}

	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].EventType != webhooks.EventRideAssigned {
		t.Errorf("webhook queue = %+v", due)
	}
	found := false
	for _, topic := range sink.topics {
		if topic == ride.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("no live event published for ride %s (topics %v)", ride.ID, sink.topics)
	}
}

func TestAssignRideUnknownIDs(t *testing.T) {
	svc, _, _ := newService(t, testGeo())
	ctx := context.Background()
	start := time.Now().Format(time.RFC3339)
	if _, _, err := svc.AssignRide(ctx, "ghost", model.AssignRequest{DriverID: "driver-1", StartTime: start}); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("unknown ride: err = %v", err)
	}
	g := testGeo()
	g.points["a"] = model.GeoPoint{Lat: 32, Lng: 34}
	g.points["b"] = model.GeoPoint{Lat: 32.1, Lng: 34.1}
	svc2, _, _ := newService(t, g)
	ride, _, _ := svc2.RequestRide(ctx, model.RideRequest{OriginAddress: "a", DestinationAddress: "b"})
	if _, _, err := svc2.AssignRide(ctx, ride.ID, model.AssignRequest{DriverID: "ghost", StartTime: start}); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("unknown driver: err = %v", err)
	}
}

func TestValidateDriver(t *testing.T) {
	g := testGeo()
	g.points["task spot"] = model.GeoPoint{Lat: 32.06, Lng: 34.78}
	svc, _, _ := newService(t, g)
	ctx := context.Background()

	res, err := svc.Validate(ctx, model.ValidateRequest{DriverID: "driver-1", TaskAddress: "task spot"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Available || res.Source != geo.SourceProvider {
		t.Errorf("result = %+v", res)
	}

	res, err = svc.Validate(ctx, model.ValidateRequest{DriverID: "driver-4", TaskAddress: "task spot"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Available || res.Message == "" {
		t.Errorf("unavailable driver result = %+v", res)
	}

	if _, err := svc.Validate(ctx, model.ValidateRequest{DriverID: "ghost", TaskAddress: "task spot"}); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("unknown driver: err = %v", err)
	}
}
