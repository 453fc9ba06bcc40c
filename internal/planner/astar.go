// Package planner computes collision-free space-time paths over the
// warehouse graph: time-expanded A* against a reservation table, plus
// prioritized multi-robot planning on top of it.
package planner

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/core"
)

// ErrNoPath is returned when the open set empties before the goal is
// reached within the time horizon.
var ErrNoPath = errors.New("no path")

// Default horizon and goal-parking duration.
const (
	DefaultMaxTime    = 50
	DefaultStayAtGoal = 3
	waitCost          = 1.0
)

// Planner runs time-expanded A* over a fixed graph.
type Planner struct {
	graph *core.Graph

	// MaxTime is the horizon T_max: states with t >= MaxTime are not
	// expanded unless they are the goal.
	MaxTime int

	// StayAtGoal is how many ticks a robot blocks its goal node after
	// arrival during prioritized planning.
	StayAtGoal int
}

// New creates a planner over g. Non-positive maxTime or stayAtGoal
// fall back to the defaults.
func New(g *core.Graph, maxTime, stayAtGoal int) *Planner {
	if maxTime <= 0 {
		maxTime = DefaultMaxTime
	}
	if stayAtGoal <= 0 {
		stayAtGoal = DefaultStayAtGoal
	}
	return &Planner{graph: g, MaxTime: maxTime, StayAtGoal: stayAtGoal}
}

// Graph returns the graph the planner plans over.
func (p *Planner) Graph() *core.Graph { return p.graph }

// spaceTimeState is one vertex of the time-expanded graph.
type spaceTimeState struct {
	Node core.NodeID
	T    int
}

// astarNode is an open-set entry.
type astarNode struct {
	state  spaceTimeState
	g      float64 // cost so far
	f      float64 // g + h
	parent *astarNode
	index  int // heap index
}

// astarHeap implements heap.Interface ordered by f, then g, then
// earlier time.
type astarHeap []*astarNode

func (h astarHeap) Len() int { return len(h) }
func (h astarHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	if h[i].g != h[j].g {
		return h[i].g < h[j].g
	}
	return h[i].state.T < h[j].state.T
}
func (h astarHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *astarHeap) Push(x any) {
	n := x.(*astarNode)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *astarHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}

// PlanSingle finds a space-time path from start to goal with no
// reservation table. Used for per-event robot dispatch.
func (p *Planner) PlanSingle(start, goal core.NodeID) (core.Path, error) {
	return p.Plan(start, goal, nil)
}

// Plan finds a space-time path from start to goal avoiding every
// reservation in res. A nil table means an empty one.
func (p *Planner) Plan(start, goal core.NodeID, res *Reservations) (core.Path, error) {
	if !p.graph.IsValid(start) {
		return nil, fmt.Errorf("plan %d->%d: %w: unknown start", start, goal, ErrNoPath)
	}
	if !p.graph.IsValid(goal) {
		return nil, fmt.Errorf("plan %d->%d: %w: unknown goal", start, goal, ErrNoPath)
	}

	open := &astarHeap{}
	heap.Init(open)
	heap.Push(open, &astarNode{
		state: spaceTimeState{Node: start, T: 0},
		g:     0,
		f:     p.graph.Heuristic(start, goal),
	})

	// Best known g per state; a strictly lower g re-opens the state.
	gScore := map[spaceTimeState]float64{{Node: start, T: 0}: 0}

	relax := func(current *astarNode, next spaceTimeState, stepCost float64) {
		tentative := current.g + stepCost
		if best, seen := gScore[next]; seen && tentative >= best {
			return
		}
		gScore[next] = tentative
		heap.Push(open, &astarNode{
			state:  next,
			g:      tentative,
			f:      tentative + p.graph.Heuristic(next.Node, goal),
			parent: current,
		})
	}

	for open.Len() > 0 {
		current := heap.Pop(open).(*astarNode)

		if current.state.Node == goal {
			return reconstruct(current), nil
		}
		if current.g > gScore[current.state] {
			continue // stale entry, re-opened with a better g
		}
		if current.state.T >= p.MaxTime {
			continue
		}

		t := current.state.T

		// Wait in place.
		if !res.NodeReserved(current.state.Node, t+1) {
			relax(current, spaceTimeState{Node: current.state.Node, T: t + 1}, waitCost)
		}

		// Move to a neighbor. Rejected on a vertex conflict at t+1 or
		// a swap conflict against an opposing traversal during [t, t+1].
		for _, edge := range p.graph.Neighbors(current.state.Node) {
			if res.NodeReserved(edge.To, t+1) {
				continue
			}
			if res.EdgeReserved(edge.To, current.state.Node, t) {
				continue
			}
			relax(current, spaceTimeState{Node: edge.To, T: t + 1}, edge.Cost)
		}
	}

	return nil, fmt.Errorf("plan %d->%d: %w", start, goal, ErrNoPath)
}

func reconstruct(node *astarNode) core.Path {
	depth := 0
	for n := node; n != nil; n = n.parent {
		depth++
	}
	path := make(core.Path, depth)
	for n := node; n != nil; n = n.parent {
		depth--
		path[depth] = core.TimedNode{Node: n.state.Node, T: n.state.T}
	}
	return path
}
