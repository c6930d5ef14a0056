package opt

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

// grid builds an n x n matrix where every off-diagonal hop costs v.
func grid(n int, v float64) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = v
			}
		}
	}
	return m
}

func params() Params {
	return Params{TimeBudget: 100 * time.Millisecond, Seed: 42}
}

func TestSolveAssignsEveryTaskOnce(t *testing.T) {
	p := Problem{
		DurationsSec: grid(5, 600),
		DistancesM:   grid(5, 4000),
		Depot:        0,
		Vehicles:     2,
		ServiceSec:   []float64{0, 1800, 1800, 1800, 1800},
		BudgetSec:    []float64{8 * 3600, 8 * 3600},
	}
	sol, _, err := Solve(p, params())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.Dropped) != 0 {
		t.Fatalf("dropped %v, want none", sol.Dropped)
	}
	seen := map[int]int{}
	for _, r := range sol.Routes {
		for _, node := range r.Stops {
			seen[node]++
		}
	}
	for node := 1; node <= 4; node++ {
		if seen[node] != 1 {
			t.Errorf("location %d visited %d times", node, seen[node])
		}
	}
	if seen[0] != 0 {
		t.Errorf("depot appeared in stop list")
	}
}

func TestSolveDropsWhatNoBudgetFits(t *testing.T) {
	// One hop costs 40 min; a single one-hour vehicle fits one stop
	// (40 travel + 10 service) and must leave the rest behind.
	p := Problem{
		DurationsSec: grid(4, 2400),
		DistancesM:   grid(4, 20000),
		Depot:        0,
		Vehicles:     1,
		ServiceSec:   []float64{0, 600, 600, 600},
		BudgetSec:    []float64{3600},
	}
	sol, _, err := Solve(p, params())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.Dropped) != 2 {
		t.Fatalf("dropped %v, want exactly 2 locations", sol.Dropped)
	}
	if sol.Cost < 2*DefaultDropPenalty {
		t.Errorf("cost %v does not carry drop penalties", sol.Cost)
	}
	for v, r := range sol.Routes {
		if r.TravelSec+r.ServiceSec > p.BudgetSec[v] {
			t.Errorf("vehicle %d over budget: travel %v service %v", v, r.TravelSec, r.ServiceSec)
		}
	}
}

func TestSolvePrefersRoomierVehicle(t *testing.T) {
	// Vehicle 0 has one hour, vehicle 1 has eight. All four stops fit
	// only if the larger budget carries most of the load.
	p := Problem{
		DurationsSec: grid(5, 1200),
		DistancesM:   grid(5, 10000),
		Depot:        0,
		Vehicles:     2,
		ServiceSec:   []float64{0, 1200, 1200, 1200, 1200},
		BudgetSec:    []float64{3600, 8 * 3600},
	}
	sol, _, err := Solve(p, params())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.Dropped) != 0 {
		t.Fatalf("dropped %v, want none", sol.Dropped)
	}
	if got := len(sol.Routes[0].Stops); got > 1 {
		t.Errorf("one-hour vehicle carries %d stops, fits at most 1", got)
	}
	if got := len(sol.Routes[1].Stops); got < 3 {
		t.Errorf("eight-hour vehicle carries %d stops, want at least 3", got)
	}
}

func TestSolveDeterministicWithFixedSeed(t *testing.T) {
	p := Problem{
		DurationsSec: [][]float64{
			{0, 300, 900, 600, 1500},
			{300, 0, 450, 800, 1200},
			{900, 450, 0, 350, 700},
			{600, 800, 350, 0, 500},
			{1500, 1200, 700, 500, 0},
		},
		DistancesM: grid(5, 5000),
		Depot:      0,
		Vehicles:   2,
		ServiceSec: []float64{0, 600, 600, 600, 600},
		BudgetSec:  []float64{4 * 3600, 4 * 3600},
	}
	// Generous wall clock so the iteration cap is what ends the search.
	pr := Params{TimeBudget: 2 * time.Second, Seed: 7, MaxIterations: 300}
	a, _, err := Solve(p, pr)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	b, _, err := Solve(p, pr)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !reflect.DeepEqual(a.Routes, b.Routes) || !reflect.DeepEqual(a.Dropped, b.Dropped) {
		t.Errorf("repeated solves diverged:\n%+v\n%+v", a, b)
	}
}

func TestSolveValidation(t *testing.T) {
	base := func() Problem {
		return Problem{
			DurationsSec: grid(3, 100),
			DistancesM:   grid(3, 100),
			Depot:        0,
			Vehicles:     1,
			ServiceSec:   []float64{0, 60, 60},
			BudgetSec:    []float64{3600},
		}
	}
	cases := []struct {
		name   string
		mutate func(*Problem)
		want   error
	}{
		{"empty matrix", func(p *Problem) { p.DurationsSec = nil }, ErrNoLocations},
		{"no vehicles", func(p *Problem) { p.Vehicles = 0 }, ErrNoVehicles},
		{"depot out of range", func(p *Problem) { p.Depot = 9 }, ErrDepotRange},
		{"ragged matrix", func(p *Problem) { p.DurationsSec[1] = []float64{1} }, ErrMatrixShape},
		{"distance shape", func(p *Problem) { p.DistancesM = grid(2, 100) }, ErrMatrixShape},
		{"service shape", func(p *Problem) { p.ServiceSec = []float64{0} }, ErrServiceShape},
		{"budget shape", func(p *Problem) { p.BudgetSec = nil }, ErrBudgetShape},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base()
			tc.mutate(&p)
			_, _, err := Solve(p, params())
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSolveEmptyTaskSet(t *testing.T) {
	p := Problem{
		DurationsSec: grid(1, 0),
		DistancesM:   grid(1, 0),
		Depot:        0,
		Vehicles:     2,
		ServiceSec:   []float64{0},
		BudgetSec:    []float64{3600, 3600},
	}
	sol, _, err := Solve(p, params())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.Dropped) != 0 || sol.Cost != 0 {
		t.Fatalf("want empty zero-cost solution, got %+v", sol)
	}
	for _, r := range sol.Routes {
		if len(r.Stops) != 0 {
			t.Errorf("unexpected stops %v", r.Stops)
		}
	}
}
