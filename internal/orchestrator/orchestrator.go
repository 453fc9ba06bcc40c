// Package orchestrator is the event-driven heart of the control plane.
// One logical loop owns all mutable state; transports enqueue typed
// events and the loop drives every robot through its task's state
// machine, calling the planner and emitting motion and shelf commands.
package orchestrator

import (
	"log/slog"
	"sort"
	"time"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/core"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/journal"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/metrics"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/planner"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/transport/wire"
)

// PlanFailedMsg is the operator-facing text for a planning failure.
// Prioritized planning is not complete; staggering tasks or changing
// submission order can succeed where one batch fails.
const PlanFailedMsg = "planning failed - operator must adjust priorities or stagger tasks"

// MotionFabric publishes motion and shelf commands. Implemented by the
// MQTT transport; fakes stand in for it in tests.
type MotionFabric interface {
	PublishPlan(wire.PlanMessage) error
	PublishLowCmd(wire.LowCmd) error
	PublishShelfCmd(wire.ShelfCmd) error
}

// Broadcaster pushes an event message to every connected operator
// client.
type Broadcaster interface {
	Broadcast(msg any)
}

// Options wires an Orchestrator.
type Options struct {
	Log       *slog.Logger
	Graph     *core.Graph
	Planner   *planner.Planner
	Shelves   *core.ShelfRegistry
	Robots    *core.RobotRegistry
	Tasks     *core.TaskStore
	Fabric    MotionFabric
	Broadcast Broadcaster
	Metrics   *metrics.Metrics
	Journal   journal.Recorder

	// Speed is the v published in low-level motion commands.
	Speed float64

	// ArrivalTimeoutPerHop is the watchdog budget per node of a
	// published path.
	ArrivalTimeoutPerHop time.Duration

	// Now is the clock; nil means time.Now. Tests inject their own.
	Now func() time.Time
}

// Orchestrator owns the registries and serializes every mutation. Not
// safe for concurrent use: all calls must come from the loop.
type Orchestrator struct {
	log       *slog.Logger
	graph     *core.Graph
	planner   *planner.Planner
	shelves   *core.ShelfRegistry
	robots    *core.RobotRegistry
	tasks     *core.TaskStore
	fabric    MotionFabric
	broadcast Broadcaster
	metrics   *metrics.Metrics
	journal   journal.Recorder

	speed      float64
	hopTimeout time.Duration
	now        func() time.Time

	// Active motion target and arrival deadline per robot.
	targets   map[core.RobotID]core.NodeID
	deadlines map[core.RobotID]time.Time

	legacySeq int
}

// New builds an orchestrator from options.
func New(opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rec := opts.Journal
	if rec == nil {
		rec = journal.Nop{}
	}
	return &Orchestrator{
		log:        opts.Log,
		graph:      opts.Graph,
		planner:    opts.Planner,
		shelves:    opts.Shelves,
		robots:     opts.Robots,
		tasks:      opts.Tasks,
		fabric:     opts.Fabric,
		broadcast:  opts.Broadcast,
		metrics:    opts.Metrics,
		journal:    rec,
		speed:      opts.Speed,
		hopTimeout: opts.ArrivalTimeoutPerHop,
		now:        now,
		targets:    make(map[core.RobotID]core.NodeID),
		deadlines:  make(map[core.RobotID]time.Time),
	}
}

// Dispatch processes one event to completion. A panic in a handler is
// converted into an error response; the loop survives.
func (o *Orchestrator) Dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("event handler panicked", "kind", ev.Kind(), "panic", r)
			o.reply(ev.replyTo(), wire.Errorf("internal error handling %s", ev.Kind()))
		}
	}()

	o.metrics.EventsProcessed.WithLabelValues(ev.Kind()).Inc()
	o.journal.Append(ev.Kind(), ev)

	switch e := ev.(type) {
	case BatchEvent:
		o.reply(e.Reply, o.handleBatch(e.Req.Tasks))
	case LegacyTaskEvent:
		o.reply(e.Reply, o.handleLegacyTask(e.Req))
	case PickEvent:
		o.reply(e.Reply, o.handlePick(e.Req))
	case ArrivedEvent:
		o.reply(e.Reply, o.handleArrived(core.RobotID(e.RID), core.NodeID(e.Node)))
	case StatusUpdateEvent:
		o.reply(e.Reply, o.handleStatusUpdate(e.Req))
	case QueryEvent:
		o.reply(e.Reply, o.handleQuery(e.Which))
	case TickEvent:
		o.handleTick()
	default:
		o.log.Warn("unhandled event", "kind", ev.Kind())
	}
}

func (o *Orchestrator) reply(fn ReplyFunc, msg any) {
	if fn == nil || msg == nil {
		return
	}
	o.journal.Append("response", msg)
	fn(msg)
}

// handleBatch registers every order in the batch, then pairs idle
// robots to pending tasks. A task that fails to register or to plan is
// reported per-task; the rest of the batch proceeds.
func (o *Orchestrator) handleBatch(specs []wire.TaskSpec) wire.BatchTaskResponse {
	results := make([]wire.TaskResult, 0, len(specs))

	for _, spec := range specs {
		_, err := o.tasks.Create(core.TaskID(spec.TaskID), core.NodeID(spec.WorkstationID), spec.Items)
		if err != nil {
			o.log.Warn("task rejected", "task", spec.TaskID, "err", err)
			results = append(results, wire.TaskResult{TaskID: spec.TaskID, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, wire.TaskResult{TaskID: spec.TaskID, Success: true})
	}

	failed := o.tryAssignPending()

	all := true
	for i := range results {
		if !results[i].Success {
			all = false
			continue
		}
		id := core.TaskID(results[i].TaskID)
		if reason, bad := failed[id]; bad {
			results[i].Success = false
			results[i].Error = reason
			all = false
			continue
		}
		if task, ok := o.tasks.Get(id); ok && task.AssignedRobot != 0 {
			rid := int(task.AssignedRobot)
			results[i].RID = &rid
		}
	}
	return wire.BatchTaskResponse{Type: wire.TypeBatchTaskResponse, Success: all, Results: results}
}

// handleLegacyTask maps the single-shelf request onto a synthetic
// order: the whole shelf at shelf_marker is wanted at worker_marker.
func (o *Orchestrator) handleLegacyTask(req *wire.TaskRequest) wire.BatchTaskResponse {
	o.legacySeq++
	id := core.TaskID("legacy-" + itoa(req.WorkerID) + "-" + itoa(o.legacySeq))

	shelf, ok := o.shelves.Get(core.ShelfID(req.ShelfMarker))
	if !ok {
		return wire.BatchTaskResponse{
			Type: wire.TypeBatchTaskResponse,
			Results: []wire.TaskResult{{
				TaskID: string(id), Success: false,
				Error: core.ErrUnknownShelf.Error(),
			}},
		}
	}
	return o.handleBatch([]wire.TaskSpec{{
		TaskID:        string(id),
		WorkstationID: req.WorkerMarker,
		Items:         shelf.Items,
	}})
}

// tryAssignPending pairs pending tasks (submission order) with idle
// robots (nearest first) until one side runs out. All dispatches of
// one call share a reservation table so simultaneously started robots
// avoid each other; a task whose plan fails is marked FAILED and
// reported, later tasks still proceed.
func (o *Orchestrator) tryAssignPending() map[core.TaskID]string {
	failed := make(map[core.TaskID]string)
	res := planner.NewReservations()
	var planned []wire.PlanRobot

	for _, task := range o.tasks.Pending() {
		first := task.Current()
		robot := o.robots.Available(first.TargetNode, o.graph)
		if robot == nil {
			break
		}
		path, err := o.planTimed(robot.CurrentNode, first.TargetNode, res)
		if err != nil {
			o.log.Warn("dispatch planning failed", "task", task.ID, "rid", robot.ID, "err", err)
			o.failTask(task, PlanFailedMsg)
			failed[task.ID] = PlanFailedMsg
			continue
		}
		res.ReservePath(path, o.planner.StayAtGoal)

		o.robots.Assign(robot.ID, task.ID, first.Kind)
		task.Status = core.TaskActive
		task.AssignedRobot = robot.ID
		planned = append(planned, o.startLeg(robot, path))
		o.log.Info("task assigned", "task", task.ID, "rid", robot.ID, "goal", first.TargetNode)
	}

	if len(planned) > 0 {
		o.publishPlan(planned)
	}
	return failed
}

// handleArrived advances the robot's state machine when it reaches the
// active sub-operation's target. Arrivals elsewhere only update the
// position.
func (o *Orchestrator) handleArrived(rid core.RobotID, node core.NodeID) any {
	robot, ok := o.robots.Get(rid)
	if !ok {
		return wire.Errorf("%s: %d", core.ErrUnknownRobot.Error(), rid)
	}
	if robot.Status == core.RobotError {
		return wire.Errorf("robot %d is in ERROR; operator reset required", rid)
	}
	o.robots.UpdatePosition(rid, node)

	ack := func(action string) wire.RobotArrivedAck {
		return wire.RobotArrivedAck{Type: wire.TypeRobotArrivedAck, Success: true, RID: int(rid), Node: int(node), Action: action}
	}

	if robot.CurrentTask == "" {
		return ack(wire.ActionNone)
	}
	task, ok := o.tasks.Get(robot.CurrentTask)
	if !ok {
		return wire.Errorf("robot %d references unknown task %s", rid, robot.CurrentTask)
	}
	cur := task.Current()
	if cur == nil || node != cur.TargetNode {
		return ack(wire.ActionNone) // intermediate hop
	}
	o.clearWatch(rid)

	switch cur.Kind {
	case core.OpGoToShelf:
		// Lift, then advance through the synthetic LIFT to DELIVER on
		// this same event.
		if err := o.shelves.MarkPickedUp(cur.Shelf, rid); err != nil {
			return wire.Errorf("lift at node %d: %v", node, err)
		}
		o.publishShelfCmd(rid, wire.ShelfPickup, cur.Shelf)
		task.Advance() // LIFT
		deliver := task.Advance()
		o.robots.SetCarrying(rid, cur.Shelf)
		o.robots.SetStatus(rid, core.RobotDelivering)
		if !o.sendRobotTo(robot, deliver.TargetNode) {
			return o.abortActive(robot, task)
		}
		return ack(wire.ActionLiftShelf)

	case core.OpDeliver:
		if err := o.shelves.MarkAtStation(cur.Shelf, node); err != nil {
			return wire.Errorf("deliver at node %d: %v", node, err)
		}
		waitPick := task.Advance()
		o.robots.SetStatus(rid, core.RobotWaitPick)
		o.broadcast.Broadcast(wire.ShelfAtStationBroadcast{
			Type:        wire.TypeShelfAtStation,
			ShelfID:     int(cur.Shelf),
			Station:     int(node),
			ItemsToPick: waitPick.Items,
		})
		return ack(wire.ActionWaitPick)

	case core.OpReturn:
		o.publishShelfCmd(rid, wire.ShelfPutdown, cur.Shelf)
		if err := o.shelves.MarkReturned(cur.Shelf, node); err != nil {
			return wire.Errorf("return at node %d: %v", node, err)
		}
		o.robots.SetCarrying(rid, 0)
		next := task.Advance()
		if next != nil {
			o.robots.SetStatus(rid, core.RobotMovingToShelf)
			if !o.sendRobotTo(robot, next.TargetNode) {
				return o.abortActive(robot, task)
			}
			return ack(wire.ActionReturnShelf)
		}
		o.finishTask(robot, task)
		return ack(wire.ActionTaskComplete)

	case core.OpForward:
		if err := o.shelves.MarkAtStation(cur.Shelf, node); err != nil {
			return wire.Errorf("forward at node %d: %v", node, err)
		}
		waitPick := task.Advance()
		o.robots.SetStatus(rid, core.RobotWaitPick)
		o.broadcast.Broadcast(wire.ShelfAtStationBroadcast{
			Type:        wire.TypeShelfAtStation,
			ShelfID:     int(cur.Shelf),
			Station:     int(node),
			ItemsToPick: waitPick.Items,
		})
		return ack(wire.ActionWaitPick)

	default:
		// LIFT is synthetic and WAIT_PICK ends on pick events, not
		// arrivals.
		return wire.Errorf("unexpected arrival for %s of task %s", cur.Kind, task.ID)
	}
}

// handlePick records one picked item and, once a shelf's stop is
// finished, routes the carrying robot to storage or onward to the next
// station that needs the shelf.
func (o *Orchestrator) handlePick(req *wire.PickComplete) any {
	shelfID, ok := o.shelves.ShelfOf(req.Item)
	if ok {
		if carrier, has := o.robots.CarrierOf(shelfID); has && carrier.Status == core.RobotError {
			return wire.Errorf("robot %d is in ERROR; operator reset required", carrier.ID)
		}
	}

	outcome, err := o.tasks.RecordPick(core.TaskID(req.TaskID), req.Item)
	if err != nil {
		return wire.Errorf("pick_complete: %v", err)
	}

	resp := wire.PickCompleteResponse{
		Type:    wire.TypePickCompleteResp,
		Success: true,
		TaskID:  req.TaskID,
		Item:    req.Item,
	}
	if outcome.Action == core.PickContinue {
		resp.Action = wire.PickActionContinue
		resp.Remaining = outcome.Remaining
		return resp
	}
	resp.Action = wire.PickActionShelfDone

	robot, ok := o.robots.CarrierOf(outcome.Shelf)
	if !ok {
		return wire.Errorf("no robot carries shelf %d", outcome.Shelf)
	}
	serving, _ := o.tasks.Get(outcome.ServingTask)

	if outcome.Next == core.OpForward {
		o.metrics.ShelvesForwarded.Inc()
		o.robots.SetStatus(robot.ID, core.RobotForwarding)
		o.log.Info("forwarding shelf", "shelf", outcome.Shelf, "to", outcome.Target, "task", outcome.ServingTask)
	} else {
		o.publishShelfCmd(robot.ID, wire.ShelfPutdown, outcome.Shelf)
		o.robots.SetStatus(robot.ID, core.RobotReturning)
	}
	// The shelf leaves the station on the robot's back either way.
	if err := o.shelves.MarkPickedUp(outcome.Shelf, robot.ID); err != nil {
		o.log.Warn("shelf re-lift failed", "shelf", outcome.Shelf, "err", err)
	}
	if !o.sendRobotTo(robot, outcome.Target) {
		return o.abortActive(robot, serving)
	}

	for _, id := range outcome.DoneTasks {
		o.announceDone(id, robot.ID)
	}
	return resp
}

// handleStatusUpdate applies a position/status ping. A status of IDLE
// on a robot in ERROR is the operator reset.
func (o *Orchestrator) handleStatusUpdate(req *wire.RobotStatus) any {
	rid := core.RobotID(req.RID)
	robot, ok := o.robots.Get(rid)
	if !ok {
		return wire.Errorf("%s: %d", core.ErrUnknownRobot.Error(), rid)
	}

	if req.Status != nil {
		status, ok := core.ParseRobotStatus(*req.Status)
		if !ok {
			return wire.Errorf("unknown status %q", *req.Status)
		}
		switch {
		case robot.Status == core.RobotError && status == core.RobotIdle:
			o.resetRobot(robot)
		case robot.Status == core.RobotError:
			return wire.Errorf("robot %d is in ERROR; operator reset required", rid)
		default:
			o.robots.SetStatus(rid, status)
		}
	} else if robot.Status == core.RobotError {
		return wire.Errorf("robot %d is in ERROR; operator reset required", rid)
	}

	if req.CurrentNode != nil {
		o.robots.UpdatePosition(rid, core.NodeID(*req.CurrentNode))
	}
	return wire.StatusResponse{
		Type:    wire.TypeStatusResponse,
		Success: true,
		Robots:  []wire.RobotSnapshot{o.robotSnapshot(robot)},
	}
}

// resetRobot clears an ERROR robot: the task fails, carried-shelf
// bookkeeping goes back to the shelf's home slot, and the robot
// returns to service.
func (o *Orchestrator) resetRobot(robot *core.Robot) {
	o.log.Info("operator reset", "rid", robot.ID, "task", robot.CurrentTask)
	if robot.CurrentTask != "" {
		if err := o.tasks.Fail(robot.CurrentTask); err == nil {
			o.metrics.TasksFailed.Inc()
		}
	}
	if robot.Carrying != 0 {
		if shelf, ok := o.shelves.Get(robot.Carrying); ok {
			if err := o.shelves.MarkReturned(shelf.ID, shelf.HomeNode); err != nil {
				o.log.Warn("reset could not park shelf", "shelf", shelf.ID, "err", err)
			}
		}
		o.robots.SetCarrying(robot.ID, 0)
	}
	robot.CurrentTask = ""
	robot.Queue = nil
	o.robots.SetStatus(robot.ID, core.RobotIdle)
	o.clearWatch(robot.ID)
	o.tryAssignPending()
}

// handleTick fires watchdogs and re-emits every active motion target
// for stateless motion controllers.
func (o *Orchestrator) handleTick() {
	now := o.now()

	var late []core.RobotID
	for rid, deadline := range o.deadlines {
		if now.After(deadline) {
			late = append(late, rid)
		}
	}
	sort.Slice(late, func(i, j int) bool { return late[i] < late[j] })
	for _, rid := range late {
		o.log.Error("arrival deadline missed", "rid", rid, "target", o.targets[rid])
		o.robots.SetStatus(rid, core.RobotError)
		o.clearWatch(rid)
	}

	rids := make([]core.RobotID, 0, len(o.targets))
	for rid := range o.targets {
		rids = append(rids, rid)
	}
	sort.Slice(rids, func(i, j int) bool { return rids[i] < rids[j] })
	for _, rid := range rids {
		if err := o.fabric.PublishLowCmd(wire.LowCmd{
			RID: int(rid), V: o.speed, W: 0, TargetNode: int(o.targets[rid]),
		}); err != nil {
			o.log.Warn("lowcmd publish failed", "rid", rid, "err", err)
		}
	}

	o.updateGauges()
}

func (o *Orchestrator) handleQuery(which string) any {
	switch which {
	case wire.TypeStatusRequest:
		robots := o.robots.All()
		out := wire.StatusResponse{Type: wire.TypeStatusResponse, Success: true}
		for _, r := range robots {
			out.Robots = append(out.Robots, o.robotSnapshot(r))
		}
		return out
	case wire.TypeTaskStatusRequest:
		out := wire.TaskStatusResponse{Type: wire.TypeTaskStatusResponse, Success: true}
		for _, t := range o.tasks.All() {
			out.Tasks = append(out.Tasks, o.taskSnapshot(t))
		}
		return out
	case wire.TypeShelfStatusRequest:
		out := wire.ShelfStatusResponse{Type: wire.TypeShelfStatusResponse, Success: true}
		for _, s := range o.shelves.All() {
			out.Shelves = append(out.Shelves, o.shelfSnapshot(s))
		}
		return out
	default:
		return wire.Errorf("%s: %q", wire.ErrUnknownType.Error(), which)
	}
}
