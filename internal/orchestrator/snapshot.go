package orchestrator

import (
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/core"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/transport/wire"
)

func (o *Orchestrator) robotSnapshot(r *core.Robot) wire.RobotSnapshot {
	snap := wire.RobotSnapshot{
		RID:         int(r.ID),
		Name:        r.Name,
		CurrentNode: int(r.CurrentNode),
		Status:      r.Status.String(),
		CurrentTask: string(r.CurrentTask),
	}
	if r.Carrying != 0 {
		carrying := int(r.Carrying)
		snap.Carrying = &carrying
	}
	for _, id := range r.Queue {
		snap.Queue = append(snap.Queue, string(id))
	}
	return snap
}

func (o *Orchestrator) taskSnapshot(t *core.Task) wire.TaskSnapshot {
	snap := wire.TaskSnapshot{
		TaskID:        string(t.ID),
		WorkstationID: int(t.StationNode),
		Items:         t.Items,
		Status:        t.Status.String(),
		Cursor:        t.Cursor,
		SubTasks:      len(t.SubTasks),
	}
	// Request order, not map order.
	for _, item := range t.Items {
		if t.Picked[item] {
			snap.Picked = append(snap.Picked, item)
		}
	}
	if t.AssignedRobot != 0 {
		rid := int(t.AssignedRobot)
		snap.AssignedRobot = &rid
	}
	return snap
}

func (o *Orchestrator) shelfSnapshot(s *core.Shelf) wire.ShelfSnapshot {
	snap := wire.ShelfSnapshot{
		ShelfID:     int(s.ID),
		Label:       s.Label,
		Items:       s.Items,
		HomeNode:    int(s.HomeNode),
		CurrentNode: int(s.CurrentNode),
		Status:      s.Status.String(),
	}
	if s.CarriedBy != 0 {
		rid := int(s.CarriedBy)
		snap.CarriedBy = &rid
	}
	for _, id := range o.shelves.Demands(s.ID) {
		snap.WantedBy = append(snap.WantedBy, string(id))
	}
	return snap
}
