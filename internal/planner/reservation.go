package planner

import "github.com/2020134026LWJ/TU-Capstone-Design/internal/core"

// nodeAt keys a vertex reservation: some robot occupies Node at time T.
type nodeAt struct {
	Node core.NodeID
	T    int
}

// edgeAt keys an edge reservation: some robot traverses From->To during
// the interval [T, T+1].
type edgeAt struct {
	From, To core.NodeID
	T        int
}

// Reservations is the shared table prioritized planning accumulates.
// It lives only across one multi-robot planning call.
type Reservations struct {
	nodes map[nodeAt]bool
	edges map[edgeAt]bool
}

// NewReservations creates an empty table.
func NewReservations() *Reservations {
	return &Reservations{
		nodes: make(map[nodeAt]bool),
		edges: make(map[edgeAt]bool),
	}
}

// NodeReserved reports whether the vertex is taken at time t.
func (r *Reservations) NodeReserved(n core.NodeID, t int) bool {
	return r != nil && r.nodes[nodeAt{Node: n, T: t}]
}

// EdgeReserved reports whether some robot traverses from->to during
// [t, t+1].
func (r *Reservations) EdgeReserved(from, to core.NodeID, t int) bool {
	return r != nil && r.edges[edgeAt{From: from, To: to, T: t}]
}

// ReservePath registers a planned path: every (node, t) state, every
// true move as an edge reservation, and the goal node for stayAtGoal
// extra ticks so later robots cannot step onto a parked robot.
func (r *Reservations) ReservePath(p core.Path, stayAtGoal int) {
	for i, tn := range p {
		r.nodes[nodeAt{Node: tn.Node, T: tn.T}] = true
		if i > 0 && p[i-1].Node != tn.Node {
			r.edges[edgeAt{From: p[i-1].Node, To: tn.Node, T: p[i-1].T}] = true
		}
	}
	goal := p[len(p)-1]
	for dt := 1; dt <= stayAtGoal; dt++ {
		r.nodes[nodeAt{Node: goal.Node, T: goal.T + dt}] = true
	}
}
