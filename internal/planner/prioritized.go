package planner

import (
	"fmt"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/core"
)

// PlannerName is the algorithm tag published on the motion fabric.
const PlannerName = "prioritized_astar_with_time_on_graph"

// Request is one robot's start and goal for a prioritized batch. The
// position in the request slice is the priority: lower index wins.
type Request struct {
	Start, Goal core.NodeID
}

// PlanPrioritized plans every request in priority order against a
// shared reservation table. Each planned path reserves its (node, t)
// states, its move edges, and its goal for StayAtGoal extra ticks.
//
// The first failure aborts the whole batch: prioritized planning does
// not reorder or fall back, so a feasible global solution can be
// missed. The operator must adjust priorities or stagger tasks.
func (p *Planner) PlanPrioritized(reqs []Request) ([]core.Path, error) {
	res := NewReservations()
	paths := make([]core.Path, 0, len(reqs))
	for i, req := range reqs {
		path, err := p.Plan(req.Start, req.Goal, res)
		if err != nil {
			return nil, fmt.Errorf("robot %d of %d: %w", i+1, len(reqs), err)
		}
		res.ReservePath(path, p.StayAtGoal)
		paths = append(paths, path)
	}
	return paths, nil
}
