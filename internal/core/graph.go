package core

import (
	"fmt"
	"math"
	"sort"
)

// Node is a grid position with planar coordinates.
type Node struct {
	ID   NodeID
	X, Y float64
}

// Edge is a directed connection between two nodes.
type Edge struct {
	From, To NodeID
	Cost     float64
}

// Graph is the warehouse grid: nodes with coordinates and directed
// weighted edges. Adjacency lists are kept sorted by destination id so
// planning is reproducible across runs.
type Graph struct {
	nodes map[NodeID]*Node
	adj   map[NodeID][]Edge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[NodeID]*Node),
		adj:   make(map[NodeID][]Edge),
	}
}

// AddNode registers a node. Re-adding an id overwrites its coordinates.
func (g *Graph) AddNode(id NodeID, x, y float64) {
	g.nodes[id] = &Node{ID: id, X: x, Y: y}
	if g.adj[id] == nil {
		g.adj[id] = []Edge{}
	}
}

// AddEdge inserts a directed edge. Both endpoints must already exist.
func (g *Graph) AddEdge(from, to NodeID, cost float64) error {
	if !g.IsValid(from) {
		return fmt.Errorf("edge %d->%d: unknown node %d", from, to, from)
	}
	if !g.IsValid(to) {
		return fmt.Errorf("edge %d->%d: unknown node %d", from, to, to)
	}
	edges := g.adj[from]
	i := sort.Search(len(edges), func(k int) bool { return edges[k].To >= to })
	edges = append(edges, Edge{})
	copy(edges[i+1:], edges[i:])
	edges[i] = Edge{From: from, To: to, Cost: cost}
	g.adj[from] = edges
	return nil
}

// Neighbors returns the outgoing edges of n in ascending destination order.
func (g *Graph) Neighbors(n NodeID) []Edge {
	return g.adj[n]
}

// IsValid reports whether the node exists.
func (g *Graph) IsValid(n NodeID) bool {
	_, ok := g.nodes[n]
	return ok
}

// Node returns the node record for id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// Heuristic returns the Euclidean distance between two nodes. Every
// edge in this domain costs at least the straight-line distance between
// its endpoints, so the heuristic is admissible. Unknown nodes yield 0.
func (g *Graph) Heuristic(a, b NodeID) float64 {
	na, okA := g.nodes[a]
	nb, okB := g.nodes[b]
	if !okA || !okB {
		return 0
	}
	return math.Hypot(nb.X-na.X, nb.Y-na.Y)
}

// Grid builds a w x h 4-connected unit grid. Ids are assigned row-major
// starting at 1, node i at coordinates ((i-1)%w, (i-1)/w). Matches the
// layouts the layout generator emits.
func Grid(w, h int) *Graph {
	g := NewGraph()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.AddNode(NodeID(y*w+x+1), float64(x), float64(y))
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			id := NodeID(y*w + x + 1)
			if x < w-1 {
				g.AddEdge(id, id+1, 1)
				g.AddEdge(id+1, id, 1)
			}
			if y < h-1 {
				g.AddEdge(id, id+NodeID(w), 1)
				g.AddEdge(id+NodeID(w), id, 1)
			}
		}
	}
	return g
}
