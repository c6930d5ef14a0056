// Package dispatch orchestrates the core flows: batch optimization,
// ride intake, driver suggestion, and assignment commits.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ridedispatch/internal/apperr"
	"ridedispatch/internal/config"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/matrix"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/model"
	"ridedispatch/internal/opt"
	"ridedispatch/internal/rank"
	"ridedispatch/internal/route"
	"ridedispatch/internal/store"
	"ridedispatch/internal/webhooks"
)

// EventSink receives in-process dispatch events for live streaming.
// Topics are ride ids, or "dispatch" for fleet-wide events.
type EventSink interface {
	Publish(topic, eventType string, data map[string]any)
}

type noopSink struct{}

func (noopSink) Publish(string, string, map[string]any) {}

type Service struct {
	store   store.Store
	geo     geo.Provider
	builder *matrix.Builder
	recon   *route.Reconstructor
	ranker  *rank.Ranker
	pub     *webhooks.Publisher
	sink    EventSink
	cfg     config.Config
	log     zerolog.Logger
}

func New(s store.Store, g geo.Provider, cfg config.Config, pub *webhooks.Publisher, sink EventSink) *Service {
	if sink == nil {
		sink = noopSink{}
	}
	return &Service{
		store:   s,
		geo:     g,
		builder: matrix.NewBuilder(g),
		recon:   route.NewReconstructor(g),
		ranker:  rank.NewRanker(g, cfg.Rank),
		pub:     pub,
		sink:    sink,
		cfg:     cfg,
		log:     logging.Component("dispatch"),
	}
}

// Optimize runs one batch solve: geocode and matrix build, routing, and
// path reconstruction. Empty task or driver lists fall back to the demo
// fleet so the endpoint is explorable out of the box.
func (s *Service) Optimize(ctx context.Context, req model.OptimizeRequest) (model.OptimizeResult, error) {
	tasks := req.Tasks
	if len(tasks) == 0 {
		tasks = store.DemoTasks()
	}
	for i, t := range tasks {
		if t.Address == "" {
			return model.OptimizeResult{}, apperr.Validation(fmt.Sprintf("tasks[%d].address", i), "must not be empty")
		}
		if t.ID == "" {
			tasks[i].ID = fmt.Sprintf("task-%d", i+1)
		}
	}

	drivers := req.Drivers
	if len(drivers) == 0 {
		all, err := s.store.ListDrivers(ctx)
		if err != nil {
			return model.OptimizeResult{}, err
		}
		drivers = all
	}
	avail := drivers[:0:0]
	for _, d := range drivers {
		if d.Available {
			avail = append(avail, d)
		}
	}
	if len(avail) == 0 {
		return model.OptimizeResult{}, apperr.Validation("drivers", "no available drivers")
	}

	depot := req.DepotAddress
	if depot == "" {
		depot = s.cfg.Solver.DepotAddress
	}
	data, err := s.builder.Build(ctx, depot, tasks)
	if err != nil {
		return model.OptimizeResult{}, err
	}

	budgets := make([]float64, len(avail))
	for i, d := range avail {
		budgets[i] = d.MaxDailyHrs * 3600
	}
	problem := opt.Problem{
		DurationsSec: data.DurationsSec,
		DistancesM:   data.DistancesM,
		Depot:        0,
		Vehicles:     len(avail),
		ServiceSec:   data.ServiceSec,
		BudgetSec:    budgets,
		DropPenalty:  s.cfg.Solver.DropPenalty,
	}
	sol, met, err := opt.Solve(problem, opt.Params{TimeBudget: s.cfg.Solver.TimeBudget, Seed: s.cfg.Solver.Seed})
	if err != nil {
		return model.OptimizeResult{}, apperr.Wrap(err, apperr.CodeValidation, "routing instance rejected")
	}
	metrics.SolveDuration.Observe(met.Elapsed.Seconds())
	metrics.SolveIterations.Observe(float64(met.Iterations))
	metrics.TasksDropped.Add(float64(len(sol.Dropped)))
	s.log.Info().
		Int("tasks", len(tasks)).Int("vehicles", len(avail)).
		Int("dropped", len(sol.Dropped)).Int("iterations", met.Iterations).
		Dur("elapsed", met.Elapsed).Msg("batch solve finished")

	unassigned := make([]string, 0, len(sol.Dropped))
	for _, node := range sol.Dropped {
		unassigned = append(unassigned, tasks[node-1].ID)
	}
	if len(tasks) > 0 && len(unassigned) == len(tasks) {
		return model.OptimizeResult{}, apperr.Newf(apperr.CodeNoFeasibleSolution,
			"no vehicle can serve any task within its time budget (unassigned: %s)", strings.Join(unassigned, ", "))
	}

	result := model.OptimizeResult{
		BatchID:         uuid.New().String(),
		Assignments:     make([]model.RouteAssignment, 0, len(avail)),
		UnassignedTasks: unassigned,
	}
	for v, r := range sol.Routes {
		d := avail[v]
		taskIDs := make([]string, 0, len(r.Stops))
		stops := []model.GeoPoint{data.Locations[0]}
		for _, node := range r.Stops {
			taskIDs = append(taskIDs, tasks[node-1].ID)
			stops = append(stops, data.Locations[node])
		}
		var path []model.GeoPoint
		if len(r.Stops) > 0 {
			path = s.recon.Path(ctx, stops)
		}
		result.Assignments = append(result.Assignments, model.RouteAssignment{
			DriverID:         d.ID,
			DriverName:       d.Name,
			TaskIDs:          taskIDs,
			Path:             path,
			TotalDistanceKm:  round2(r.TravelM / 1000),
			TotalDurationMin: round2((r.TravelSec + r.ServiceSec) / 60),
		})
	}

	if s.pub != nil {
		s.pub.Emit(ctx, webhooks.EventPlanCompleted, map[string]any{
			"batchId":    result.BatchID,
			"routes":     len(result.Assignments),
			"unassigned": result.UnassignedTasks,
		})
	}
	s.sink.Publish("dispatch", "plan.completed", map[string]any{"batchId": result.BatchID})
	return result, nil
}

// MatrixPreview geocodes a raw address list and returns the provider
// matrices over the addresses that resolved. Unresolvable addresses are
// reported as warnings; the call fails only when nothing resolves.
func (s *Service) MatrixPreview(ctx context.Context, req model.MatrixRequest) (model.MatrixPreview, error) {
	if len(req.Addresses) < 2 {
		return model.MatrixPreview{}, apperr.Validation("addresses", "need at least two addresses")
	}
	out := model.MatrixPreview{}
	for _, addr := range req.Addresses {
		pt, err := s.geo.Resolve(ctx, addr)
		if err != nil {
			if errors.Is(err, geo.ErrUnavailable) {
				return model.MatrixPreview{}, apperr.Wrap(err, apperr.CodeProviderUnavailable, "geocoding service unreachable")
			}
			out.Warnings = append(out.Warnings, fmt.Sprintf("could not geocode %q", addr))
			continue
		}
		out.Resolved = append(out.Resolved, addr)
		out.Locations = append(out.Locations, pt)
	}
	if len(out.Locations) < 2 {
		return model.MatrixPreview{}, apperr.Validation("addresses", "fewer than two addresses resolved")
	}
	m, err := s.geo.TravelMatrix(ctx, out.Locations)
	if err != nil {
		return model.MatrixPreview{}, apperr.Wrap(err, apperr.CodeProviderUnavailable, "travel matrix request failed")
	}
	out.DurationsSec = m.DurationsSec
	out.DistancesM = m.DistancesM
	return out, nil
}

// RequestRide geocodes the ride endpoints, estimates the trip, stores
// the ride as pending, and returns it with ranked driver suggestions.
func (s *Service) RequestRide(ctx context.Context, req model.RideRequest) (model.Ride, []model.DriverCandidate, error) {
	if req.OriginAddress == "" {
		return model.Ride{}, nil, apperr.Validation("originAddress", "must not be empty")
	}
	if req.DestinationAddress == "" {
		return model.Ride{}, nil, apperr.Validation("destinationAddress", "must not be empty")
	}
	origin, err := s.resolveCritical(ctx, req.OriginAddress)
	if err != nil {
		return model.Ride{}, nil, err
	}
	dest, err := s.resolveCritical(ctx, req.DestinationAddress)
	if err != nil {
		return model.Ride{}, nil, err
	}

	var travelSec, distanceM float64
	var path []model.GeoPoint
	if info, err := s.geo.Route(ctx, origin, dest); err == nil {
		travelSec, distanceM, path = info.DurationSec, info.DistanceM, info.Path
	} else {
		est := geo.Approximate(origin, dest)
		travelSec, distanceM = est.DurationMin*60, est.DistanceKm*1000
		path = []model.GeoPoint{origin, dest}
		s.log.Warn().Str("origin", req.OriginAddress).Str("destination", req.DestinationAddress).
			Err(err).Msg("directions unavailable, ride estimated by approximation")
	}

	estStart, estEnd, err := rideWindow(req.RequiredArrival, travelSec)
	if err != nil {
		return model.Ride{}, nil, err
	}

	ride, err := s.store.CreateRide(ctx, model.Ride{
		OriginAddress:      req.OriginAddress,
		DestinationAddress: req.DestinationAddress,
		OriginCoords:       origin,
		DestinationCoords:  dest,
		RequiredArrival:    req.RequiredArrival,
		Passengers:         req.Passengers,
		ClientName:         req.ClientName,
		Recurring:          req.Recurring,
		RecurringDays:      req.RecurringDays,
		EstTravelSec:       travelSec,
		EstDistanceM:       distanceM,
		Path:               path,
		EstStart:           estStart,
		EstEnd:             estEnd,
		Status:             "pending",
	})
	if err != nil {
		return model.Ride{}, nil, err
	}

	suggestions, err := s.Suggest(ctx, model.SuggestRequest{
		TaskID:        ride.ID,
		TaskAddress:   ride.OriginAddress,
		TaskStartTime: estStart.Format(time.RFC3339),
	})
	if err != nil {
		// The ride is already stored; suggestions are advisory.
		s.log.Warn().Str("rideId", ride.ID).Err(err).Msg("driver suggestion failed after ride intake")
		suggestions = nil
	}
	return ride, suggestions, nil
}

// Suggest ranks the fleet for one task.
func (s *Service) Suggest(ctx context.Context, req model.SuggestRequest) ([]model.DriverCandidate, error) {
	drivers, err := s.store.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	return s.ranker.Suggest(ctx, req, drivers)
}

// AssignRide commits a ride to a driver at the chosen start time and
// returns the updated ride plus the driver's schedule for that day.
func (s *Service) AssignRide(ctx context.Context, rideID string, req model.AssignRequest) (model.Ride, []model.ScheduleEntry, error) {
	if req.DriverID == "" {
		return model.Ride{}, nil, apperr.Validation("driverId", "must not be empty")
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return model.Ride{}, nil, apperr.Validation("estimatedStartTime", "must be RFC3339")
	}
	ride, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return model.Ride{}, nil, apperr.NotFound("ride", rideID)
	}
	if _, err := s.store.GetDriver(ctx, req.DriverID); err != nil {
		return model.Ride{}, nil, apperr.NotFound("driver", req.DriverID)
	}

	durationMin := round2(ride.EstTravelSec / 60)
	entry := model.ScheduleEntry{
		RideID:             ride.ID,
		OriginAddress:      ride.OriginAddress,
		DestinationAddress: ride.DestinationAddress,
		OriginCoords:       &ride.OriginCoords,
		DestinationCoords:  &ride.DestinationCoords,
		StartTime:          start,
		EndTime:            start.Add(time.Duration(durationMin * float64(time.Minute))),
		DurationMinutes:    durationMin,
		ClientName:         ride.ClientName,
		Path:               ride.Path,
	}
	updated, err := s.store.AssignRide(ctx, rideID, req.DriverID, entry)
	if err != nil {
		return model.Ride{}, nil, apperr.Wrap(err, apperr.CodeNotFound, "assignment commit failed")
	}
	day, err := s.store.ScheduleFor(ctx, req.DriverID, model.Weekday(start))
	if err != nil {
		return model.Ride{}, nil, err
	}

	if s.pub != nil {
		s.pub.Emit(ctx, webhooks.EventRideAssigned, map[string]any{
			"rideId":   updated.ID,
			"driverId": updated.AssignedDriverID,
			"startAt":  start.UTC().Format(time.RFC3339),
		})
	}
	s.sink.Publish(updated.ID, "ride.assigned", map[string]any{
		"rideId":   updated.ID,
		"driverId": updated.AssignedDriverID,
	})
	s.log.Info().Str("rideId", updated.ID).Str("driverId", updated.AssignedDriverID).
		Time("startAt", start).Msg("ride assigned")
	return updated, day, nil
}

// Validate checks whether one named driver could take a task right now.
func (s *Service) Validate(ctx context.Context, req model.ValidateRequest) (model.ValidateResult, error) {
	if req.TaskAddress == "" {
		return model.ValidateResult{}, apperr.Validation("taskAddress", "must not be empty")
	}
	driver, err := s.store.GetDriver(ctx, req.DriverID)
	if err != nil {
		return model.ValidateResult{}, apperr.NotFound("driver", req.DriverID)
	}
	if !driver.Available {
		return model.ValidateResult{Available: false, Message: "driver is marked unavailable"}, nil
	}
	start, err := s.resolveCritical(ctx, req.TaskAddress)
	if err != nil {
		return model.ValidateResult{}, err
	}
	var base model.GeoPoint
	if driver.BaseCoords != nil {
		base = *driver.BaseCoords
	} else {
		base, err = s.geo.Resolve(ctx, driver.BaseAddress)
		if err != nil {
			return model.ValidateResult{Available: false, Message: "driver base address could not be resolved"}, nil
		}
	}
	est := geo.EstimateBetween(ctx, s.geo, base, start)

	now := time.Now()
	committed := 0.0
	for _, e := range driver.Schedule[model.Weekday(now)] {
		committed += e.DurationMinutes
	}
	fits := committed+est.DurationMin+s.cfg.Rank.AssumedServiceMin <= driver.MaxDailyHrs*60
	res := model.ValidateResult{
		Available:   fits,
		DistanceKm:  est.DistanceKm,
		DurationMin: est.DurationMin,
		Source:      est.Source,
	}
	if fits {
		res.Message = "driver can take this task"
	} else {
		res.Message = "driver's daily capacity would be exceeded"
	}
	return res, nil
}

func (s *Service) resolveCritical(ctx context.Context, address string) (model.GeoPoint, error) {
	pt, err := s.geo.Resolve(ctx, address)
	if err == nil {
		return pt, nil
	}
	if errors.Is(err, geo.ErrUnavailable) {
		return model.GeoPoint{}, apperr.Wrap(err, apperr.CodeProviderUnavailable, "geocoding service unreachable")
	}
	return model.GeoPoint{}, apperr.Geocoding(address)
}

// rideWindow derives the estimated start/end from a required arrival
// time of day, working back from arrival by the travel estimate. An
// empty arrival starts the ride now.
func rideWindow(arrival string, travelSec float64) (time.Time, time.Time, error) {
	now := time.Now()
	if arrival == "" {
		return now, now.Add(time.Duration(travelSec) * time.Second), nil
	}
	at, err := time.Parse("15:04", arrival)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("requiredArrivalTime", "must be HH:MM")
	}
	end := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	start := end.Add(-time.Duration(travelSec) * time.Second)
	return start, end, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
