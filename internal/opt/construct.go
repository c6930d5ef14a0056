package opt

import (
	"math/rand"
	"sort"
)

// search carries the mutable solver state: one stop list per vehicle
// (depot excluded), the set of dropped locations, and per-arc penalty
// counters for the guided phase.
type search struct {
	p       *Problem
	rng     *rand.Rand
	routes  [][]int
	dropped map[int]bool
	penalty map[[2]int]float64
	lambda  float64
}

func newSearch(p *Problem, rng *rand.Rand) *search {
	st := &search{
		p:       p,
		rng:     rng,
		routes:  make([][]int, p.Vehicles),
		dropped: make(map[int]bool),
		penalty: make(map[[2]int]float64),
	}
	for node := range len(p.DurationsSec) {
		if node != p.Depot {
			st.dropped[node] = true
		}
	}
	return st
}

// construct greedily inserts each location at its cheapest feasible
// position across all vehicles, cheapest candidate first. Locations
// with no feasible slot stay dropped.
func (st *search) construct() {
	pending := make([]int, 0, len(st.dropped))
	for node := range st.dropped {
		pending = append(pending, node)
	}
	sort.Ints(pending)

	for len(pending) > 0 {
		bestIdx, bestVeh, bestPos := -1, -1, -1
		bestDelta := 0.0
		for i, node := range pending {
			veh, pos, delta, ok := st.cheapestInsertion(node)
			if !ok {
				continue
			}
			if bestIdx < 0 || delta < bestDelta {
				bestIdx, bestVeh, bestPos, bestDelta = i, veh, pos, delta
			}
		}
		if bestIdx < 0 {
			break
		}
		node := pending[bestIdx]
		st.insert(bestVeh, bestPos, node)
		delete(st.dropped, node)
		pending = append(pending[:bestIdx], pending[bestIdx+1:]...)
	}
	st.initLambda()
}

// cheapestInsertion scans every position in every route for the lowest
// travel-time increase that keeps the route within its vehicle budget.
func (st *search) cheapestInsertion(node int) (veh, pos int, delta float64, ok bool) {
	for v := range st.routes {
		for i := 0; i <= len(st.routes[v]); i++ {
			d := st.insertionDelta(v, i, node)
			if !st.insertionFeasible(v, i, node) {
				continue
			}
			if !ok || d < delta {
				veh, pos, delta, ok = v, i, d, true
			}
		}
	}
	return
}

// insertionDelta is the travel-time increase of placing node before
// position i of vehicle v's route.
func (st *search) insertionDelta(v, i, node int) float64 {
	d := st.p.DurationsSec
	route := st.routes[v]
	prev := st.p.Depot
	if i > 0 {
		prev = route[i-1]
	}
	if i == len(route) {
		// Open route: appending adds only the arc in.
		return d[prev][node]
	}
	next := route[i]
	return d[prev][node] + d[node][next] - d[prev][next]
}

func (st *search) insertionFeasible(v, i, node int) bool {
	used := st.routeTravel(v) + st.routeService(v)
	return used+st.insertionDelta(v, i, node)+st.p.ServiceSec[node] <= st.p.BudgetSec[v]
}

func (st *search) insert(v, i, node int) {
	route := st.routes[v]
	route = append(route, 0)
	copy(route[i+1:], route[i:])
	route[i] = node
	st.routes[v] = route
}

func (st *search) remove(v, i int) int {
	route := st.routes[v]
	node := route[i]
	st.routes[v] = append(route[:i], route[i+1:]...)
	return node
}

func (st *search) routeTravel(v int) float64 {
	d := st.p.DurationsSec
	total := 0.0
	prev := st.p.Depot
	for _, node := range st.routes[v] {
		total += d[prev][node]
		prev = node
	}
	return total
}

func (st *search) routeService(v int) float64 {
	total := 0.0
	for _, node := range st.routes[v] {
		total += st.p.ServiceSec[node]
	}
	return total
}

func (st *search) routeFeasible(v int) bool {
	return st.routeTravel(v)+st.routeService(v) <= st.p.BudgetSec[v]
}

// trueCost is the unaugmented objective: total travel seconds plus one
// drop penalty per unvisited location.
func (st *search) trueCost() float64 {
	total := float64(len(st.dropped)) * st.p.DropPenalty
	for v := range st.routes {
		total += st.routeTravel(v)
	}
	return total
}

func (st *search) snapshot() [][]int {
	out := make([][]int, len(st.routes))
	for v, route := range st.routes {
		out[v] = append([]int(nil), route...)
	}
	return out
}
