package core

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownRobot = errors.New("unknown robot")

// Robot is an AGV. Relationships are stored by id and resolved through
// the registries: Carrying names a shelf, CurrentTask names a task.
type Robot struct {
	ID          RobotID
	Name        string
	HomeNode    NodeID
	CurrentNode NodeID
	Status      RobotStatus
	Carrying    ShelfID // 0 when empty-handed
	CurrentTask TaskID  // "" when unassigned
	Queue       []TaskID
}

// RobotRegistry tracks every AGV in the fleet.
type RobotRegistry struct {
	robots map[RobotID]*Robot
}

// NewRobotRegistry creates an empty registry.
func NewRobotRegistry() *RobotRegistry {
	return &RobotRegistry{robots: make(map[RobotID]*Robot)}
}

// Add registers a robot idle at its home node.
func (r *RobotRegistry) Add(id RobotID, name string, home NodeID) *Robot {
	robot := &Robot{
		ID:          id,
		Name:        name,
		HomeNode:    home,
		CurrentNode: home,
		Status:      RobotIdle,
	}
	r.robots[id] = robot
	return robot
}

// Get returns the robot record for id.
func (r *RobotRegistry) Get(id RobotID) (*Robot, bool) {
	robot, ok := r.robots[id]
	return robot, ok
}

// All returns every robot ordered by id.
func (r *RobotRegistry) All() []*Robot {
	out := make([]*Robot, 0, len(r.robots))
	for _, robot := range r.robots {
		out = append(out, robot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Available returns the idle robot nearest to target by the planning
// heuristic, ties broken by lower robot id. Nil when all are busy.
func (r *RobotRegistry) Available(target NodeID, g *Graph) *Robot {
	var best *Robot
	bestDist := 0.0
	for _, robot := range r.All() {
		if robot.Status != RobotIdle {
			continue
		}
		d := g.Heuristic(robot.CurrentNode, target)
		if best == nil || d < bestDist {
			best = robot
			bestDist = d
		}
	}
	return best
}

// Assign binds a task to a robot. An idle robot starts it immediately,
// taking the status implied by the task's first sub-operation; a busy
// robot queues it.
func (r *RobotRegistry) Assign(id RobotID, task TaskID, first OpKind) error {
	robot, ok := r.robots[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRobot, id)
	}
	if robot.Status == RobotIdle {
		robot.CurrentTask = task
		robot.Status = first.RobotStatus()
		return nil
	}
	robot.Queue = append(robot.Queue, task)
	return nil
}

// Complete clears the robot's current task. If its queue is non-empty
// the next task id is popped and returned; otherwise the robot goes
// idle at its last known node.
func (r *RobotRegistry) Complete(id RobotID) (TaskID, bool, error) {
	robot, ok := r.robots[id]
	if !ok {
		return "", false, fmt.Errorf("%w: %d", ErrUnknownRobot, id)
	}
	robot.CurrentTask = ""
	if len(robot.Queue) > 0 {
		next := robot.Queue[0]
		robot.Queue = robot.Queue[1:]
		robot.CurrentTask = next
		return next, true, nil
	}
	robot.Status = RobotIdle
	return "", false, nil
}

// UpdatePosition records the robot's current node.
func (r *RobotRegistry) UpdatePosition(id RobotID, node NodeID) error {
	robot, ok := r.robots[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRobot, id)
	}
	robot.CurrentNode = node
	return nil
}

// SetStatus overwrites the robot's status.
func (r *RobotRegistry) SetStatus(id RobotID, s RobotStatus) error {
	robot, ok := r.robots[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRobot, id)
	}
	robot.Status = s
	return nil
}

// SetCarrying records the shelf a robot holds; 0 clears it.
func (r *RobotRegistry) SetCarrying(id RobotID, shelf ShelfID) error {
	robot, ok := r.robots[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRobot, id)
	}
	robot.Carrying = shelf
	return nil
}

// CarrierOf returns the robot currently carrying the shelf.
func (r *RobotRegistry) CarrierOf(shelf ShelfID) (*Robot, bool) {
	for _, robot := range r.All() {
		if robot.Carrying == shelf {
			return robot, true
		}
	}
	return nil, false
}
