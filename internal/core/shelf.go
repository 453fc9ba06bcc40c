package core

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownShelf    = errors.New("unknown shelf")
	ErrUnknownItem     = errors.New("item on no shelf")
	ErrShelfCarried    = errors.New("shelf already carried")
	ErrShelfNotCarried = errors.New("shelf not carried")
	ErrSlotOccupied    = errors.New("parking slot occupied")
	ErrNotParkingSlot  = errors.New("not a parking slot")
)

// Shelf is a mobile storage unit. Its id equals its home node.
type Shelf struct {
	ID          ShelfID
	Label       string
	Items       []string
	HomeNode    NodeID
	CurrentNode NodeID
	Status      ShelfStatus
	CarriedBy   RobotID // 0 when not carried
}

// ShelfRegistry tracks every shelf, the item index, shelf-parking
// slots, and the advisory per-shelf demand ledger.
type ShelfRegistry struct {
	graph   *Graph
	shelves map[ShelfID]*Shelf
	byItem  map[string]ShelfID
	parking []NodeID // sorted; the home nodes of all shelves
	demand  map[ShelfID]map[TaskID]bool
}

// NewShelfRegistry creates an empty registry over the given graph.
func NewShelfRegistry(g *Graph) *ShelfRegistry {
	return &ShelfRegistry{
		graph:   g,
		shelves: make(map[ShelfID]*Shelf),
		byItem:  make(map[string]ShelfID),
		demand:  make(map[ShelfID]map[TaskID]bool),
	}
}

// Add registers a shelf at rest on its home node. Item names must be
// unique across shelves: the item index is many-to-one.
func (r *ShelfRegistry) Add(id ShelfID, label string, home NodeID, items []string) error {
	if !r.graph.IsValid(home) {
		return fmt.Errorf("shelf %d: home node %d not in map", id, home)
	}
	if _, dup := r.shelves[id]; dup {
		return fmt.Errorf("shelf %d: duplicate id", id)
	}
	for _, item := range items {
		if prev, dup := r.byItem[item]; dup {
			return fmt.Errorf("shelf %d: item %q already on shelf %d", id, item, prev)
		}
	}
	r.shelves[id] = &Shelf{
		ID:          id,
		Label:       label,
		Items:       append([]string(nil), items...),
		HomeNode:    home,
		CurrentNode: home,
		Status:      ShelfAtRest,
	}
	for _, item := range items {
		r.byItem[item] = id
	}
	i := sort.Search(len(r.parking), func(k int) bool { return r.parking[k] >= home })
	r.parking = append(r.parking, 0)
	copy(r.parking[i+1:], r.parking[i:])
	r.parking[i] = home
	return nil
}

// Get returns the shelf record for id.
func (r *ShelfRegistry) Get(id ShelfID) (*Shelf, bool) {
	s, ok := r.shelves[id]
	return s, ok
}

// All returns every shelf ordered by id.
func (r *ShelfRegistry) All() []*Shelf {
	out := make([]*Shelf, 0, len(r.shelves))
	for _, s := range r.shelves {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ShelfOf returns the shelf holding the named item.
func (r *ShelfRegistry) ShelfOf(item string) (ShelfID, bool) {
	id, ok := r.byItem[item]
	return id, ok
}

// ShelvesFor maps each shelf to the subset of the requested items it
// holds, preserving the requested order within each subset. Items on no
// shelf are reported in the error.
func (r *ShelfRegistry) ShelvesFor(items []string) (map[ShelfID][]string, error) {
	out := make(map[ShelfID][]string)
	for _, item := range items {
		id, ok := r.byItem[item]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownItem, item)
		}
		out[id] = append(out[id], item)
	}
	return out, nil
}

// MarkPickedUp transitions AT_REST -> CARRIED.
func (r *ShelfRegistry) MarkPickedUp(id ShelfID, rid RobotID) error {
	s, ok := r.shelves[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownShelf, id)
	}
	if s.Status == ShelfCarried {
		return fmt.Errorf("%w: shelf %d by robot %d", ErrShelfCarried, id, s.CarriedBy)
	}
	for _, other := range r.shelves {
		if other.Status == ShelfCarried && other.CarriedBy == rid {
			return fmt.Errorf("%w: robot %d already carries shelf %d", ErrShelfCarried, rid, other.ID)
		}
	}
	s.Status = ShelfCarried
	s.CarriedBy = rid
	return nil
}

// MarkAtStation transitions CARRIED -> AT_STATION at the given station.
// The carrying robot keeps holding the shelf while picking happens.
func (r *ShelfRegistry) MarkAtStation(id ShelfID, station NodeID) error {
	s, ok := r.shelves[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownShelf, id)
	}
	if s.Status != ShelfCarried {
		return fmt.Errorf("%w: shelf %d is %s", ErrShelfNotCarried, id, s.Status)
	}
	s.Status = ShelfAtStation
	s.CurrentNode = station
	return nil
}

// MarkReturned transitions {CARRIED, AT_STATION} -> AT_REST on a free
// parking slot and clears the carrier.
func (r *ShelfRegistry) MarkReturned(id ShelfID, park NodeID) error {
	s, ok := r.shelves[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownShelf, id)
	}
	if s.Status == ShelfAtRest {
		return fmt.Errorf("%w: shelf %d already at rest", ErrShelfNotCarried, id)
	}
	if !r.isParkingSlot(park) {
		return fmt.Errorf("%w: node %d", ErrNotParkingSlot, park)
	}
	for _, other := range r.shelves {
		if other.ID != id && other.Status == ShelfAtRest && other.CurrentNode == park {
			return fmt.Errorf("%w: node %d holds shelf %d", ErrSlotOccupied, park, other.ID)
		}
	}
	s.Status = ShelfAtRest
	s.CurrentNode = park
	s.CarriedBy = 0
	return nil
}

func (r *ShelfRegistry) isParkingSlot(n NodeID) bool {
	i := sort.Search(len(r.parking), func(k int) bool { return r.parking[k] >= n })
	return i < len(r.parking) && r.parking[i] == n
}

// NearestEmptyParking returns the free parking slot closest to from by
// Euclidean distance, ties broken by lower node id. A slot is free when
// no at-rest shelf occupies it.
func (r *ShelfRegistry) NearestEmptyParking(from NodeID) (NodeID, bool) {
	occupied := make(map[NodeID]bool, len(r.shelves))
	for _, s := range r.shelves {
		if s.Status == ShelfAtRest {
			occupied[s.CurrentNode] = true
		}
	}
	best := NodeID(-1)
	bestDist := 0.0
	for _, slot := range r.parking { // ascending id, so ties keep the lower id
		if occupied[slot] {
			continue
		}
		d := r.graph.Heuristic(from, slot)
		if best < 0 || d < bestDist {
			best = slot
			bestDist = d
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// NoteDemand records that a task wants items from a shelf.
func (r *ShelfRegistry) NoteDemand(id ShelfID, task TaskID) {
	m := r.demand[id]
	if m == nil {
		m = make(map[TaskID]bool)
		r.demand[id] = m
	}
	m[task] = true
}

// ClearDemand removes a task from every shelf's demand ledger.
func (r *ShelfRegistry) ClearDemand(task TaskID) {
	for id, m := range r.demand {
		delete(m, task)
		if len(m) == 0 {
			delete(r.demand, id)
		}
	}
}

// Demands returns the task ids currently wanting items from the shelf,
// sorted for stable reporting.
func (r *ShelfRegistry) Demands(id ShelfID) []TaskID {
	m := r.demand[id]
	if len(m) == 0 {
		return nil
	}
	out := make([]TaskID, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
