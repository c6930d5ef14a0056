// Package opt solves the single-depot, multi-vehicle routing problem
// over precomputed travel matrices. Every non-depot location is an
// optional visit carrying a large fixed drop penalty, so the search is
// always feasible and tasks are omitted only when no vehicle can fit
// them within its time budget.
package opt

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// DefaultDropPenalty is deliberately far above any plausible route cost.
const DefaultDropPenalty = 10_000_000_000

var (
	ErrNoLocations  = errors.New("opt: no locations")
	ErrNoVehicles   = errors.New("opt: no vehicles")
	ErrDepotRange   = errors.New("opt: depot index out of range")
	ErrMatrixShape  = errors.New("opt: matrix dimensions do not match location count")
	ErrServiceShape = errors.New("opt: service durations do not match location count")
	ErrBudgetShape  = errors.New("opt: vehicle budgets do not match vehicle count")
)

// Problem is one routing instance. Durations drive both the objective
// and the cumulative time dimension; Distances are reporting-only.
type Problem struct {
	DurationsSec [][]float64
	DistancesM   [][]float64
	Depot        int
	Vehicles     int
	// ServiceSec is indexed like the location list; depot entry is 0.
	ServiceSec []float64
	// BudgetSec caps travel+service accumulation per vehicle. The time
	// dimension starts at 0 at each vehicle start and is open-ended: no
	// return leg to the depot is charged.
	BudgetSec   []float64
	DropPenalty float64
}

// Params bounds the search.
type Params struct {
	// TimeBudget caps the improvement phase wall clock. The construction
	// phase always runs to completion first.
	TimeBudget time.Duration
	Seed       int64
	// MaxIterations optionally caps improvement iterations (testing aid).
	MaxIterations int
}

// VehicleRoute is one vehicle's ordered visit list, depot markers
// excluded, with running travel totals.
type VehicleRoute struct {
	Stops      []int
	TravelSec  float64
	TravelM    float64
	ServiceSec float64
}

// Solution is the solver output. Dropped holds location indices that no
// vehicle could accommodate.
type Solution struct {
	Routes  []VehicleRoute
	Dropped []int
	Cost    float64
}

// Metrics describes one solve for observability.
type Metrics struct {
	Iterations   int
	Improvements int
	Penalized    int
	BestCost     float64
	Elapsed      time.Duration
}

func (p *Problem) validate() error {
	n := len(p.DurationsSec)
	if n == 0 {
		return ErrNoLocations
	}
	if p.Vehicles <= 0 {
		return ErrNoVehicles
	}
	if p.Depot < 0 || p.Depot >= n {
		return fmt.Errorf("%w: depot %d with %d locations", ErrDepotRange, p.Depot, n)
	}
	for _, row := range p.DurationsSec {
		if len(row) != n {
			return ErrMatrixShape
		}
	}
	if len(p.DistancesM) != n {
		return ErrMatrixShape
	}
	for _, row := range p.DistancesM {
		if len(row) != n {
			return ErrMatrixShape
		}
	}
	if len(p.ServiceSec) != n {
		return ErrServiceShape
	}
	if len(p.BudgetSec) != p.Vehicles {
		return ErrBudgetShape
	}
	return nil
}

// Solve validates the instance, builds a first feasible solution with
// cheapest-arc insertion, then improves it with guided local search
// until the wall-clock budget expires. The best solution found by the
// deadline is returned even if not provably optimal.
func Solve(p Problem, params Params) (Solution, Metrics, error) {
	if err := p.validate(); err != nil {
		return Solution{}, Metrics{}, err
	}
	if p.DropPenalty <= 0 {
		p.DropPenalty = DefaultDropPenalty
	}
	if params.TimeBudget <= 0 {
		params.TimeBudget = 5 * time.Second
	}
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	start := time.Now()
	st := newSearch(&p, rand.New(rand.NewSource(seed)))
	st.construct()

	best := st.snapshot()
	bestCost := st.trueCost()

	m := Metrics{BestCost: bestCost}
	deadline := start.Add(params.TimeBudget)
	for time.Now().Before(deadline) {
		if params.MaxIterations > 0 && m.Iterations >= params.MaxIterations {
			break
		}
		m.Iterations++
		if st.improveOnce() {
			m.Improvements++
			if c := st.trueCost(); c < bestCost {
				bestCost = c
				best = st.snapshot()
				m.BestCost = bestCost
			}
			continue
		}
		// Local optimum under the augmented objective: penalize the
		// highest-utility arcs and keep searching.
		if !st.penalize() {
			break
		}
		m.Penalized++
	}
	m.Elapsed = time.Since(start)

	return st.extract(best, bestCost), m, nil
}

// extract converts internal route slices to the reported Solution.
func (st *search) extract(routes [][]int, cost float64) Solution {
	p := st.p
	out := Solution{Routes: make([]VehicleRoute, p.Vehicles), Cost: cost}
	visited := make(map[int]bool)
	for v, route := range routes {
		vr := VehicleRoute{Stops: append([]int(nil), route...)}
		prev := p.Depot
		for _, node := range route {
			vr.TravelSec += p.DurationsSec[prev][node]
			vr.TravelM += p.DistancesM[prev][node]
			vr.ServiceSec += p.ServiceSec[node]
			visited[node] = true
			prev = node
		}
		out.Routes[v] = vr
	}
	for node := range len(p.DurationsSec) {
		if node != p.Depot && !visited[node] {
			out.Dropped = append(out.Dropped, node)
		}
	}
	return out
}
