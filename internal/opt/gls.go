package opt

import "sort"

const improveEps = 1e-9

// initLambda scales arc penalties relative to the constructed
// solution's mean arc cost, so penalties are felt without drowning the
// real objective.
func (st *search) initLambda() {
	travel, arcs := 0.0, 0
	for v := range st.routes {
		travel += st.routeTravel(v)
		if n := len(st.routes[v]); n > 0 {
			arcs += n
		}
	}
	if arcs == 0 {
		st.lambda = 1
		return
	}
	st.lambda = 0.2 * travel / float64(arcs)
}

// augArc is the penalized arc cost used by the improvement phase.
func (st *search) augArc(a, b int) float64 {
	return st.p.DurationsSec[a][b] + st.lambda*st.penalty[[2]int{a, b}]
}

func (st *search) augTravelOf(route []int) float64 {
	total := 0.0
	prev := st.p.Depot
	for _, node := range route {
		total += st.augArc(prev, node)
		prev = node
	}
	return total
}

func (st *search) augTravel(v int) float64 {
	return st.augTravelOf(st.routes[v])
}

// improveOnce applies the first improving move found across the
// neighborhoods, in fixed order: reinsertion of dropped locations, then
// relocate, swap, and intra-route 2-opt. Returns false at a local
// optimum of the augmented objective.
func (st *search) improveOnce() bool {
	return st.tryReinsert() || st.tryRelocate() || st.trySwap() || st.tryTwoOpt()
}

// tryReinsert places a dropped location at its cheapest feasible slot.
// Any feasible placement beats the drop penalty, so the move is always
// improving when available.
func (st *search) tryReinsert() bool {
	if len(st.dropped) == 0 {
		return false
	}
	nodes := make([]int, 0, len(st.dropped))
	for node := range st.dropped {
		nodes = append(nodes, node)
	}
	sort.Ints(nodes)
	for _, node := range nodes {
		if veh, pos, _, ok := st.cheapestInsertion(node); ok {
			st.insert(veh, pos, node)
			delete(st.dropped, node)
			return true
		}
	}
	return false
}

func (st *search) tryRelocate() bool {
	for v := range st.routes {
		for i := 0; i < len(st.routes[v]); i++ {
			before := st.augTravel(v)
			node := st.remove(v, i)
			removedGain := before - st.augTravel(v)
			for w := range st.routes {
				limit := len(st.routes[w])
				for j := 0; j <= limit; j++ {
					if w == v && j == i {
						continue
					}
					st.insert(w, j, node)
					cost := st.augTravel(w) - st.augTravelOf(st.removedFrom(w, j))
					if cost < removedGain-improveEps && st.routeFeasible(w) && st.routeFeasible(v) {
						return true
					}
					st.remove(w, j)
				}
			}
			st.insert(v, i, node)
		}
	}
	return false
}

// removedFrom returns route w with position j excised, without
// mutating state. Used to price an in-place trial insertion.
func (st *search) removedFrom(w, j int) []int {
	route := st.routes[w]
	out := make([]int, 0, len(route)-1)
	out = append(out, route[:j]...)
	return append(out, route[j+1:]...)
}

func (st *search) trySwap() bool {
	for v := range st.routes {
		for i := range st.routes[v] {
			for w := v; w < len(st.routes); w++ {
				for j := range st.routes[w] {
					if w == v && j <= i {
						continue
					}
					before := st.augTravel(v) + st.augTravel(w)
					if w == v {
						before = st.augTravel(v)
					}
					st.routes[v][i], st.routes[w][j] = st.routes[w][j], st.routes[v][i]
					after := st.augTravel(v) + st.augTravel(w)
					if w == v {
						after = st.augTravel(v)
					}
					if after < before-improveEps && st.routeFeasible(v) && st.routeFeasible(w) {
						return true
					}
					st.routes[v][i], st.routes[w][j] = st.routes[w][j], st.routes[v][i]
				}
			}
		}
	}
	return false
}

// tryTwoOpt reverses a segment within one route. Matrices may be
// asymmetric, so the reversed segment is repriced in full.
func (st *search) tryTwoOpt() bool {
	for v := range st.routes {
		route := st.routes[v]
		if len(route) < 3 {
			continue
		}
		before := st.augTravel(v)
		for i := 0; i < len(route)-1; i++ {
			for j := i + 1; j < len(route); j++ {
				reverse(route, i, j)
				if st.augTravel(v) < before-improveEps && st.routeFeasible(v) {
					return true
				}
				reverse(route, i, j)
			}
		}
	}
	return false
}

func reverse(route []int, i, j int) {
	for i < j {
		route[i], route[j] = route[j], route[i]
		i++
		j--
	}
}

// penalize increments the penalty of the highest-utility arcs in the
// current solution, where utility favors expensive, lightly penalized
// arcs. Returns false when no routed arcs exist to penalize.
func (st *search) penalize() bool {
	type arc struct{ a, b int }
	bestUtil := -1.0
	var bestArcs []arc
	for v := range st.routes {
		prev := st.p.Depot
		for _, node := range st.routes[v] {
			util := st.p.DurationsSec[prev][node] / (1 + st.penalty[[2]int{prev, node}])
			if util > bestUtil+improveEps {
				bestUtil = util
				bestArcs = bestArcs[:0]
			}
			if util > bestUtil-improveEps {
				bestArcs = append(bestArcs, arc{prev, node})
			}
			prev = node
		}
	}
	if len(bestArcs) == 0 {
		return false
	}
	for _, a := range bestArcs {
		st.penalty[[2]int{a.a, a.b}]++
	}
	return true
}
