package core

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownTask    = errors.New("unknown task")
	ErrDuplicateTask  = errors.New("duplicate task id")
	ErrUnknownStation = errors.New("unknown workstation")
	ErrNoItems        = errors.New("task has no items")
	ErrNotWaitingPick = errors.New("no wait-pick active for item")
	ErrUnexpectedItem = errors.New("item not expected at this stop")
	ErrTaskFinished   = errors.New("task already finished")
)

// SubTask is one sub-operation of a task's chain.
type SubTask struct {
	Kind       OpKind
	Shelf      ShelfID
	TargetNode NodeID
	Items      []string // OpWaitPick: items to pick at this stop
	ForTask    TaskID   // OpWaitPick: order the picks count toward
}

// Task is a picking order decomposed into a flat sub-operation chain:
// per shelf GO_TO_SHELF, LIFT, DELIVER, WAIT_PICK, RETURN, where the
// final RETURN may mutate to FORWARD at execution time.
type Task struct {
	ID            TaskID
	StationNode   NodeID
	Items         []string
	ShelfSequence []ShelfID
	ShelfItems    map[ShelfID][]string
	SubTasks      []SubTask
	Cursor        int
	Picked        map[string]bool
	AssignedRobot RobotID
	Status        TaskStatus
}

// Current returns the active sub-operation, nil when the chain is spent.
func (t *Task) Current() *SubTask {
	if t.Cursor < 0 || t.Cursor >= len(t.SubTasks) {
		return nil
	}
	return &t.SubTasks[t.Cursor]
}

// Advance moves the cursor to the next sub-operation.
func (t *Task) Advance() *SubTask {
	t.Cursor++
	return t.Current()
}

// PickedAll reports whether every requested item has been picked.
func (t *Task) PickedAll() bool {
	for _, item := range t.Items {
		if !t.Picked[item] {
			return false
		}
	}
	return true
}

// RemainingItems returns the requested items not yet picked, in
// request order.
func (t *Task) RemainingItems() []string {
	var out []string
	for _, item := range t.Items {
		if !t.Picked[item] {
			out = append(out, item)
		}
	}
	return out
}

// segmentStart returns the index of the shelf's GO_TO_SHELF at or after
// the cursor, or -1 when the segment is behind or absent.
func (t *Task) segmentStart(shelf ShelfID) int {
	for i := t.Cursor; i < len(t.SubTasks); i++ {
		if t.SubTasks[i].Kind == OpGoToShelf && t.SubTasks[i].Shelf == shelf {
			return i
		}
	}
	return -1
}

// PickAction is the outcome class of a pick-completion.
type PickAction int

const (
	PickContinue  PickAction = iota // more items to pick at this stop
	PickShelfDone                   // stop finished; shelf returns or forwards
)

// PickOutcome is what a recorded pick resolved to.
type PickOutcome struct {
	Action      PickAction
	Remaining   []string // PickContinue: items still to pick at this stop
	Next        OpKind   // PickShelfDone: OpReturn or OpForward
	Target      NodeID   // PickShelfDone: parking slot or other station
	Shelf       ShelfID
	ServingTask TaskID   // task whose chain advanced
	DoneTasks   []TaskID // tasks finished as a side effect
}

// TaskStore owns every picking order, decomposes new ones, and applies
// the pick-completion policy including the forward-vs-return decision.
type TaskStore struct {
	graph    *Graph
	shelves  *ShelfRegistry
	stations map[NodeID]bool
	tasks    map[TaskID]*Task
	order    []TaskID // submission order
}

// NewTaskStore creates an empty store over the graph, shelf registry,
// and the set of pick-station nodes.
func NewTaskStore(g *Graph, shelves *ShelfRegistry, stations []NodeID) *TaskStore {
	set := make(map[NodeID]bool, len(stations))
	for _, n := range stations {
		set[n] = true
	}
	return &TaskStore{
		graph:    g,
		shelves:  shelves,
		stations: set,
		tasks:    make(map[TaskID]*Task),
	}
}

// IsStation reports whether the node is a pick station.
func (s *TaskStore) IsStation(n NodeID) bool { return s.stations[n] }

// Create registers a picking order and decomposes it: shelves are
// visited in ascending Euclidean distance from the station (ties by
// shelf id), each contributing a GO_TO_SHELF, LIFT, DELIVER, WAIT_PICK,
// RETURN segment. Fails without side effects when an item is on no
// shelf or the station is unknown.
func (s *TaskStore) Create(id TaskID, station NodeID, items []string) (*Task, error) {
	if _, dup := s.tasks[id]; dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, id)
	}
	if !s.stations[station] {
		return nil, fmt.Errorf("%w: node %d", ErrUnknownStation, station)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoItems, id)
	}
	shelfItems, err := s.shelves.ShelvesFor(items)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}

	seq := make([]ShelfID, 0, len(shelfItems))
	for sid := range shelfItems {
		seq = append(seq, sid)
	}
	sort.Slice(seq, func(i, j int) bool {
		di := s.graph.Heuristic(station, NodeID(seq[i]))
		dj := s.graph.Heuristic(station, NodeID(seq[j]))
		if di != dj {
			return di < dj
		}
		return seq[i] < seq[j]
	})

	task := &Task{
		ID:            id,
		StationNode:   station,
		Items:         append([]string(nil), items...),
		ShelfSequence: seq,
		ShelfItems:    shelfItems,
		Picked:        make(map[string]bool),
		Status:        TaskPending,
	}
	for _, sid := range seq {
		shelf, _ := s.shelves.Get(sid)
		task.SubTasks = append(task.SubTasks,
			SubTask{Kind: OpGoToShelf, Shelf: sid, TargetNode: shelf.CurrentNode},
			SubTask{Kind: OpLift, Shelf: sid, TargetNode: shelf.CurrentNode},
			SubTask{Kind: OpDeliver, Shelf: sid, TargetNode: station},
			SubTask{Kind: OpWaitPick, Shelf: sid, TargetNode: station, Items: shelfItems[sid], ForTask: id},
			SubTask{Kind: OpReturn, Shelf: sid, TargetNode: shelf.HomeNode},
		)
		s.shelves.NoteDemand(sid, id)
	}

	s.tasks[id] = task
	s.order = append(s.order, id)
	return task, nil
}

// Get returns the task record for id.
func (s *TaskStore) Get(id TaskID) (*Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// All returns every task in submission order. Completed tasks stay in
// the store for audit.
func (s *TaskStore) All() []*Task {
	out := make([]*Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id])
	}
	return out
}

// Pending returns unassigned tasks with work left, in submission order.
func (s *TaskStore) Pending() []*Task {
	var out []*Task
	for _, id := range s.order {
		t := s.tasks[id]
		if t.Status == TaskPending && t.Current() != nil {
			out = append(out, t)
		}
	}
	return out
}

// RecordPick applies a pick-completion report for an order. The serving
// wait-pick may belong to another task's chain when the shelf was
// forwarded here. Returns the resolved outcome; the caller moves the
// carrying robot.
func (s *TaskStore) RecordPick(id TaskID, item string) (*PickOutcome, error) {
	order, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if order.Status == TaskDone || order.Status == TaskFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrTaskFinished, id, order.Status)
	}

	serving, wait := s.servingWait(id, item)
	if serving == nil {
		return nil, fmt.Errorf("%w: task %s item %q", ErrNotWaitingPick, id, item)
	}
	if !contains(wait.Items, item) {
		return nil, fmt.Errorf("%w: %q at station %d", ErrUnexpectedItem, item, wait.TargetNode)
	}

	order.Picked[item] = true

	remaining := remainingOf(wait.Items, order.Picked)
	if len(remaining) > 0 {
		return &PickOutcome{
			Action:      PickContinue,
			Remaining:   remaining,
			Shelf:       wait.Shelf,
			ServingTask: serving.ID,
		}, nil
	}
	return s.resolveShelfDone(serving, order, wait.Shelf), nil
}

// servingWait finds the task whose current sub-operation is the
// wait-pick serving this order's item: normally the order itself, or
// the chain that forwarded its shelf here.
func (s *TaskStore) servingWait(order TaskID, item string) (*Task, *SubTask) {
	shelf, ok := s.shelves.ShelfOf(item)
	if !ok {
		return nil, nil
	}
	if t := s.tasks[order]; t != nil {
		if cur := t.Current(); cur != nil && cur.Kind == OpWaitPick && cur.Shelf == shelf && cur.ForTask == order {
			return t, cur
		}
	}
	for _, tid := range s.order {
		t := s.tasks[tid]
		if t.Status != TaskActive {
			continue
		}
		if cur := t.Current(); cur != nil && cur.Kind == OpWaitPick && cur.Shelf == shelf && cur.ForTask == order {
			return t, cur
		}
	}
	return nil, nil
}

// resolveShelfDone advances past the finished wait-pick and decides
// forward vs return for the shelf.
func (s *TaskStore) resolveShelfDone(serving, order *Task, shelf ShelfID) *PickOutcome {
	station := serving.Current().TargetNode
	ret := serving.Advance() // the RETURN written at decomposition

	out := &PickOutcome{
		Action:      PickShelfDone,
		Shelf:       shelf,
		ServingTask: serving.ID,
	}

	if cand := s.forwardCandidate(shelf, station, order.ID); cand != nil {
		ret.Kind = OpForward
		ret.TargetNode = cand.StationNode
		s.spliceForwardStop(serving, shelf, cand)
		s.pruneSegment(cand, shelf, out)
		out.Next = OpForward
		out.Target = cand.StationNode
	} else {
		park, ok := s.shelves.NearestEmptyParking(station)
		if !ok {
			sh, _ := s.shelves.Get(shelf)
			park = sh.HomeNode
		}
		ret.TargetNode = park
		out.Next = OpReturn
		out.Target = park
	}

	if s.maybeFinish(order) {
		out.DoneTasks = append(out.DoneTasks, order.ID)
	}
	return out
}

// forwardCandidate picks the task the shelf should be forwarded to:
// an unfinished task at another station that still needs items on the
// shelf and has not started its own segment for it. Nearest station
// wins, ties broken by lower station id.
func (s *TaskStore) forwardCandidate(shelf ShelfID, station NodeID, exclude TaskID) *Task {
	var best *Task
	bestDist := 0.0
	for _, tid := range s.order {
		t := s.tasks[tid]
		if t.ID == exclude || t.StationNode == station {
			continue
		}
		if t.Status != TaskPending && t.Status != TaskActive {
			continue
		}
		if len(remainingOf(t.ShelfItems[shelf], t.Picked)) == 0 {
			continue
		}
		if t.Status == TaskActive && t.segmentStart(shelf) < 0 {
			continue // mid-segment or already past it
		}
		d := s.graph.Heuristic(station, t.StationNode)
		if best == nil || d < bestDist || (d == bestDist && t.StationNode < best.StationNode) {
			best = t
			bestDist = d
		}
	}
	return best
}

// spliceForwardStop inserts a wait-pick for the candidate's items and a
// fresh return after the serving task's FORWARD, so the same chain
// serves the next station and still brings the shelf back.
func (s *TaskStore) spliceForwardStop(serving *Task, shelf ShelfID, cand *Task) {
	sh, _ := s.shelves.Get(shelf)
	stop := []SubTask{
		{
			Kind:       OpWaitPick,
			Shelf:      shelf,
			TargetNode: cand.StationNode,
			Items:      remainingOf(cand.ShelfItems[shelf], cand.Picked),
			ForTask:    cand.ID,
		},
		{Kind: OpReturn, Shelf: shelf, TargetNode: sh.HomeNode},
	}
	at := serving.Cursor + 1
	rest := append([]SubTask(nil), serving.SubTasks[at:]...)
	serving.SubTasks = append(serving.SubTasks[:at], append(stop, rest...)...)
}

// pruneSegment drops the candidate's own segment for the shelf: its
// items arrive by forwarding instead. A pruned-empty pending task
// finishes as soon as its picks complete.
func (s *TaskStore) pruneSegment(cand *Task, shelf ShelfID, out *PickOutcome) {
	start := cand.segmentStart(shelf)
	if start < 0 {
		return
	}
	end := start
	for end < len(cand.SubTasks) && cand.SubTasks[end].Shelf == shelf {
		end++
	}
	cand.SubTasks = append(cand.SubTasks[:start], cand.SubTasks[end:]...)
	for i, sid := range cand.ShelfSequence {
		if sid == shelf {
			cand.ShelfSequence = append(cand.ShelfSequence[:i], cand.ShelfSequence[i+1:]...)
			break
		}
	}
	if s.maybeFinish(cand) {
		out.DoneTasks = append(out.DoneTasks, cand.ID)
	}
}

// maybeFinish marks a task DONE once its chain is spent and every item
// is picked. A spent chain with picks outstanding stays open: the picks
// arrive at a forwarded stop served by another chain.
func (s *TaskStore) maybeFinish(t *Task) bool {
	if t.Status == TaskDone || t.Status == TaskFailed {
		return false
	}
	if t.Current() != nil || !t.PickedAll() {
		return false
	}
	t.Status = TaskDone
	s.shelves.ClearDemand(t.ID)
	return true
}

// Fail marks a task FAILED and clears its shelf demand.
func (s *TaskStore) Fail(id TaskID) error {
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	t.Status = TaskFailed
	s.shelves.ClearDemand(id)
	return nil
}

// Finish runs the spent-chain check after the orchestrator advances a
// task to the end of its chain. Reports whether the task is now DONE.
func (s *TaskStore) Finish(t *Task) bool { return s.maybeFinish(t) }

func contains(items []string, item string) bool {
	for _, i := range items {
		if i == item {
			return true
		}
	}
	return false
}

func remainingOf(items []string, picked map[string]bool) []string {
	var out []string
	for _, i := range items {
		if !picked[i] {
			out = append(out, i)
		}
	}
	return out
}
