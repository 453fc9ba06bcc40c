package core

import (
	"math"
	"testing"
)

func TestAddEdge_UnknownNode(t *testing.T) {
	g := NewGraph()
	g.AddNode(1, 0, 0)

	if err := g.AddEdge(1, 2, 1); err == nil {
		t.Error("expected error for unknown destination")
	}
	if err := g.AddEdge(3, 1, 1); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestNeighbors_SortedByDestination(t *testing.T) {
	g := NewGraph()
	for id := NodeID(1); id <= 4; id++ {
		g.AddNode(id, float64(id), 0)
	}
	g.AddEdge(1, 4, 1)
	g.AddEdge(1, 2, 1)
	g.AddEdge(1, 3, 1)

	edges := g.Neighbors(1)
	want := []NodeID{2, 3, 4}
	if len(edges) != len(want) {
		t.Fatalf("got %d edges, want %d", len(edges), len(want))
	}
	for i, e := range edges {
		if e.To != want[i] {
			t.Errorf("edge %d goes to %d, want %d", i, e.To, want[i])
		}
	}
}

func TestHeuristic(t *testing.T) {
	g := NewGraph()
	g.AddNode(1, 0, 0)
	g.AddNode(2, 3, 4)

	if d := g.Heuristic(1, 2); math.Abs(d-5) > 1e-9 {
		t.Errorf("Heuristic(1,2) = %v, want 5", d)
	}
	if d := g.Heuristic(1, 1); d != 0 {
		t.Errorf("Heuristic(1,1) = %v, want 0", d)
	}
	if d := g.Heuristic(1, 99); d != 0 {
		t.Errorf("Heuristic to unknown node = %v, want 0", d)
	}
}

func TestGrid(t *testing.T) {
	g := Grid(9, 6)
	if g.NodeCount() != 54 {
		t.Fatalf("NodeCount = %d, want 54", g.NodeCount())
	}
	// Node 1 is a corner: two neighbors.
	if n := len(g.Neighbors(1)); n != 2 {
		t.Errorf("corner node 1 has %d neighbors, want 2", n)
	}
	// Node 50 is interior on the last row: three neighbors.
	if n := len(g.Neighbors(50)); n != 3 {
		t.Errorf("node 50 has %d neighbors, want 3", n)
	}
	// Row-major coordinates: node 50 is (4, 5).
	n, ok := g.Node(50)
	if !ok || n.X != 4 || n.Y != 5 {
		t.Errorf("node 50 at (%v, %v), want (4, 5)", n.X, n.Y)
	}
}
