package orchestrator

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/core"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/planner"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/transport/wire"
)

func itoa(n int) string { return strconv.Itoa(n) }

// planTimed runs one planning call with instrumentation.
func (o *Orchestrator) planTimed(start, goal core.NodeID, res *planner.Reservations) (core.Path, error) {
	began := time.Now()
	path, err := o.planner.Plan(start, goal, res)
	o.metrics.PlanDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		o.metrics.PlansComputed.WithLabelValues("no_path").Inc()
		return nil, err
	}
	o.metrics.PlansComputed.WithLabelValues("ok").Inc()
	return path, nil
}

// startLeg arms the robot's motion target and watchdog for a planned
// path, publishes the first low-level command, and returns the plan
// entry for the fabric.
func (o *Orchestrator) startLeg(robot *core.Robot, path core.Path) wire.PlanRobot {
	nodes := path.Nodes()
	goal := path.Goal()

	o.targets[robot.ID] = goal
	o.deadlines[robot.ID] = o.now().Add(time.Duration(len(nodes)) * o.hopTimeout)

	if err := o.fabric.PublishLowCmd(wire.LowCmd{
		RID: int(robot.ID), V: o.speed, W: 0, TargetNode: int(goal),
	}); err != nil {
		o.log.Warn("lowcmd publish failed", "rid", robot.ID, "err", err)
	}

	entry := wire.PlanRobot{
		RID:      int(robot.ID),
		Start:    int(path.Start()),
		Goal:     int(goal),
		NodePath: make([]int, len(nodes)),
	}
	for i, n := range nodes {
		entry.NodePath[i] = int(n)
	}
	entry.TimedPath = make([]wire.TimedStep, len(path))
	for i, tn := range path {
		entry.TimedPath[i] = wire.TimedStep{Node: int(tn.Node), T: tn.T}
	}
	return entry
}

// publishPlan emits one job on /agv/plan for a set of planned robots.
func (o *Orchestrator) publishPlan(robots []wire.PlanRobot) {
	msg := wire.PlanMessage{
		JobID:   uuid.NewString(),
		Planner: planner.PlannerName,
		Robots:  robots,
		Speed:   o.speed,
	}
	if err := o.fabric.PublishPlan(msg); err != nil {
		// The next tick re-issues targets; dropped plans self-heal.
		o.log.Warn("plan publish failed", "job", msg.JobID, "err", err)
	}
}

// sendRobotTo plans a single-robot leg to goal and publishes it.
// Returns false when no path exists; the caller aborts the task.
func (o *Orchestrator) sendRobotTo(robot *core.Robot, goal core.NodeID) bool {
	path, err := o.planTimed(robot.CurrentNode, goal, nil)
	if err != nil {
		o.log.Error("planning failed", "rid", robot.ID, "start", robot.CurrentNode, "goal", goal, "err", err)
		return false
	}
	o.publishPlan([]wire.PlanRobot{o.startLeg(robot, path)})
	return true
}

func (o *Orchestrator) publishShelfCmd(rid core.RobotID, command string, shelf core.ShelfID) {
	if err := o.fabric.PublishShelfCmd(wire.ShelfCmd{
		RID: int(rid), Command: command, ShelfID: int(shelf), TS: o.now().Unix(),
	}); err != nil {
		o.log.Warn("shelf command publish failed", "rid", rid, "cmd", command, "err", err)
	}
}

func (o *Orchestrator) clearWatch(rid core.RobotID) {
	delete(o.targets, rid)
	delete(o.deadlines, rid)
}

// failTask marks a task FAILED.
func (o *Orchestrator) failTask(task *core.Task, reason string) {
	o.log.Warn("task failed", "task", task.ID, "reason", reason)
	o.tasks.Fail(task.ID)
	o.metrics.TasksFailed.Inc()
}

// abortActive fails the robot's active task after a planning failure,
// parks carried-shelf bookkeeping, and returns the robot to service.
func (o *Orchestrator) abortActive(robot *core.Robot, task *core.Task) wire.ErrorResponse {
	if task != nil {
		o.failTask(task, PlanFailedMsg)
	}
	if robot.Carrying != 0 {
		if shelf, ok := o.shelves.Get(robot.Carrying); ok {
			if err := o.shelves.MarkReturned(shelf.ID, shelf.HomeNode); err != nil {
				o.log.Warn("abort could not park shelf", "shelf", shelf.ID, "err", err)
			}
		}
		o.robots.SetCarrying(robot.ID, 0)
	}
	o.clearWatch(robot.ID)
	next, queued, _ := o.robots.Complete(robot.ID)
	if queued {
		o.startQueued(robot, next)
	} else {
		o.tryAssignPending()
	}
	return wire.Errorf("%s", PlanFailedMsg)
}

// finishTask closes out a spent chain: announce, release the robot,
// and put it back to work.
func (o *Orchestrator) finishTask(robot *core.Robot, task *core.Task) {
	if o.tasks.Finish(task) {
		o.announceDone(task.ID, robot.ID)
	}
	next, queued, _ := o.robots.Complete(robot.ID)
	if queued {
		o.startQueued(robot, next)
	} else {
		o.tryAssignPending()
	}
}

// startQueued begins a task popped from the robot's own queue.
func (o *Orchestrator) startQueued(robot *core.Robot, id core.TaskID) {
	task, ok := o.tasks.Get(id)
	if !ok || task.Current() == nil {
		o.log.Warn("queued task unusable", "task", id, "rid", robot.ID)
		o.robots.Complete(robot.ID)
		return
	}
	first := task.Current()
	task.Status = core.TaskActive
	task.AssignedRobot = robot.ID
	o.robots.SetStatus(robot.ID, first.Kind.RobotStatus())
	if !o.sendRobotTo(robot, first.TargetNode) {
		o.abortActive(robot, task)
	}
}

// announceDone broadcasts a finished task.
func (o *Orchestrator) announceDone(id core.TaskID, rid core.RobotID) {
	o.log.Info("task complete", "task", id, "rid", rid)
	o.metrics.TasksCompleted.Inc()
	o.broadcast.Broadcast(wire.TaskCompleteBroadcast{
		Type:   wire.TypeTaskComplete,
		TaskID: string(id),
		RID:    int(rid),
	})
}

func (o *Orchestrator) updateGauges() {
	counts := make(map[core.RobotStatus]int)
	for _, r := range o.robots.All() {
		counts[r.Status]++
	}
	for st := core.RobotIdle; st <= core.RobotError; st++ {
		o.metrics.RobotsByStatus.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
	o.metrics.PendingTasks.Set(float64(len(o.tasks.Pending())))
}
