package orchestrator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/core"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/metrics"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/planner"
	"github.com/2020134026LWJ/TU-Capstone-Design/internal/transport/wire"
)

type fakeFabric struct {
	plans     []wire.PlanMessage
	lowCmds   []wire.LowCmd
	shelfCmds []wire.ShelfCmd
}

func (f *fakeFabric) PublishPlan(m wire.PlanMessage) error  { f.plans = append(f.plans, m); return nil }
func (f *fakeFabric) PublishLowCmd(m wire.LowCmd) error     { f.lowCmds = append(f.lowCmds, m); return nil }
func (f *fakeFabric) PublishShelfCmd(m wire.ShelfCmd) error { f.shelfCmds = append(f.shelfCmds, m); return nil }

func (f *fakeFabric) lastShelfCmd() *wire.ShelfCmd {
	if len(f.shelfCmds) == 0 {
		return nil
	}
	return &f.shelfCmds[len(f.shelfCmds)-1]
}

type fakeBroadcast struct {
	msgs []any
}

func (b *fakeBroadcast) Broadcast(msg any) { b.msgs = append(b.msgs, msg) }

func (b *fakeBroadcast) taskCompletes() []wire.TaskCompleteBroadcast {
	var out []wire.TaskCompleteBroadcast
	for _, m := range b.msgs {
		if tc, ok := m.(wire.TaskCompleteBroadcast); ok {
			out = append(out, tc)
		}
	}
	return out
}

// env is a fully wired orchestrator over the 9x6 test warehouse:
// shelves 3 (Z, D), 8 (X, U, I), 9 (A, B, C); stations 50 and 51.
type env struct {
	orch    *Orchestrator
	fab     *fakeFabric
	bc      *fakeBroadcast
	graph   *core.Graph
	shelves *core.ShelfRegistry
	robots  *core.RobotRegistry
	tasks   *core.TaskStore
	clock   time.Time
}

type envOpts struct {
	maxTime    int
	robotHomes map[core.RobotID]core.NodeID
}

func newEnv(t *testing.T, opts envOpts) *env {
	t.Helper()
	if opts.maxTime == 0 {
		opts.maxTime = 50
	}
	if opts.robotHomes == nil {
		opts.robotHomes = map[core.RobotID]core.NodeID{1: 1}
	}

	g := core.Grid(9, 6)
	shelves := core.NewShelfRegistry(g)
	require.NoError(t, shelves.Add(3, "S3", 3, []string{"Z", "D"}))
	require.NoError(t, shelves.Add(8, "S8", 8, []string{"X", "U", "I"}))
	require.NoError(t, shelves.Add(9, "S9", 9, []string{"A", "B", "C"}))
	robots := core.NewRobotRegistry()
	for rid := core.RobotID(1); rid <= 9; rid++ {
		if home, ok := opts.robotHomes[rid]; ok {
			robots.Add(rid, "agv-"+itoa(int(rid)), home)
		}
	}
	tasks := core.NewTaskStore(g, shelves, []core.NodeID{50, 51})

	e := &env{
		fab:     &fakeFabric{},
		bc:      &fakeBroadcast{},
		graph:   g,
		shelves: shelves,
		robots:  robots,
		tasks:   tasks,
		clock:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	e.orch = New(Options{
		Log:                  slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError})),
		Graph:                g,
		Planner:              planner.New(g, opts.maxTime, 3),
		Shelves:              shelves,
		Robots:               robots,
		Tasks:                tasks,
		Fabric:               e.fab,
		Broadcast:            e.bc,
		Metrics:              metrics.New(),
		Speed:                0.3,
		ArrivalTimeoutPerHop: 10 * time.Second,
		Now:                  func() time.Time { return e.clock },
	})
	return e
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// dispatch runs one event and returns the captured reply.
func (e *env) dispatch(ev Event) any {
	var got any
	switch v := ev.(type) {
	case BatchEvent:
		v.Reply = func(m any) { got = m }
		e.orch.Dispatch(v)
	case LegacyTaskEvent:
		v.Reply = func(m any) { got = m }
		e.orch.Dispatch(v)
	case PickEvent:
		v.Reply = func(m any) { got = m }
		e.orch.Dispatch(v)
	case ArrivedEvent:
		v.Reply = func(m any) { got = m }
		e.orch.Dispatch(v)
	case StatusUpdateEvent:
		v.Reply = func(m any) { got = m }
		e.orch.Dispatch(v)
	case QueryEvent:
		v.Reply = func(m any) { got = m }
		e.orch.Dispatch(v)
	default:
		e.orch.Dispatch(ev)
	}
	return got
}

func (e *env) submit(specs ...wire.TaskSpec) wire.BatchTaskResponse {
	got := e.dispatch(BatchEvent{Req: &wire.BatchTaskRequest{Type: wire.TypeBatchTaskRequest, Tasks: specs}})
	return got.(wire.BatchTaskResponse)
}

// arriveAtTarget reports the robot reaching its current motion target.
func (e *env) arriveAtTarget(t *testing.T, rid core.RobotID) wire.RobotArrivedAck {
	t.Helper()
	target, ok := e.orch.targets[rid]
	require.True(t, ok, "robot %d has no motion target", rid)
	got := e.dispatch(ArrivedEvent{RID: int(rid), Node: int(target)})
	ack, ok := got.(wire.RobotArrivedAck)
	require.True(t, ok, "arrival reply was %T: %v", got, got)
	return ack
}

func (e *env) pick(taskID, item string) any {
	return e.dispatch(PickEvent{Req: &wire.PickComplete{Type: wire.TypePickComplete, TaskID: taskID, Item: item}})
}

func TestSingleRetrieval(t *testing.T) {
	e := newEnv(t, envOpts{})

	resp := e.submit(wire.TaskSpec{TaskID: "T1", WorkstationID: 50, Items: []string{"A"}})
	require.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	require.NotNil(t, resp.Results[0].RID)
	assert.Equal(t, 1, *resp.Results[0].RID)

	robot, _ := e.robots.Get(1)
	assert.Equal(t, core.RobotMovingToShelf, robot.Status)
	require.Len(t, e.fab.plans, 1)
	require.Len(t, e.fab.plans[0].Robots, 1)
	assert.Equal(t, 1, e.fab.plans[0].Robots[0].Start)
	assert.Equal(t, 9, e.fab.plans[0].Robots[0].Goal)
	assert.Equal(t, planner.PlannerName, e.fab.plans[0].Planner)
	assert.NotEmpty(t, e.fab.plans[0].JobID)

	// At the shelf: lift, then head for the station.
	ack := e.arriveAtTarget(t, 1)
	assert.Equal(t, wire.ActionLiftShelf, ack.Action)
	require.NotNil(t, e.fab.lastShelfCmd())
	assert.Equal(t, wire.ShelfPickup, e.fab.lastShelfCmd().Command)
	assert.Equal(t, core.RobotDelivering, robot.Status)
	assert.Equal(t, core.ShelfID(9), robot.Carrying)
	shelf, _ := e.shelves.Get(9)
	assert.Equal(t, core.ShelfCarried, shelf.Status)

	// At the station: wait for picks.
	ack = e.arriveAtTarget(t, 1)
	assert.Equal(t, wire.ActionWaitPick, ack.Action)
	assert.Equal(t, core.RobotWaitPick, robot.Status)
	assert.Equal(t, core.ShelfAtStation, shelf.Status)
	require.NotEmpty(t, e.bc.msgs)
	station, ok := e.bc.msgs[len(e.bc.msgs)-1].(wire.ShelfAtStationBroadcast)
	require.True(t, ok)
	assert.Equal(t, 9, station.ShelfID)
	assert.Equal(t, []string{"A"}, station.ItemsToPick)

	// One pick finishes the stop; the shelf returns to its own slot.
	got := e.pick("T1", "A").(wire.PickCompleteResponse)
	assert.Equal(t, wire.PickActionShelfDone, got.Action)
	assert.Equal(t, core.RobotReturning, robot.Status)
	assert.Equal(t, core.NodeID(9), e.orch.targets[1])

	ack = e.arriveAtTarget(t, 1)
	assert.Equal(t, wire.ActionTaskComplete, ack.Action)
	assert.Equal(t, core.RobotIdle, robot.Status)
	assert.Equal(t, core.NodeID(9), robot.CurrentNode)
	assert.Equal(t, core.ShelfID(0), robot.Carrying)
	assert.Equal(t, core.ShelfAtRest, shelf.Status)
	assert.Equal(t, core.NodeID(9), shelf.CurrentNode)

	task, _ := e.tasks.Get("T1")
	assert.Equal(t, core.TaskDone, task.Status)
	completes := e.bc.taskCompletes()
	require.Len(t, completes, 1)
	assert.Equal(t, "T1", completes[0].TaskID)
}

func TestForwardingBetweenStations(t *testing.T) {
	e := newEnv(t, envOpts{})

	resp := e.submit(
		wire.TaskSpec{TaskID: "T1", WorkstationID: 50, Items: []string{"A", "B"}},
		wire.TaskSpec{TaskID: "T2", WorkstationID: 51, Items: []string{"C"}},
	)
	require.True(t, resp.Success)

	// One robot: T1 active, T2 pending.
	t2, _ := e.tasks.Get("T2")
	assert.Equal(t, core.TaskPending, t2.Status)

	e.arriveAtTarget(t, 1) // shelf 9
	e.arriveAtTarget(t, 1) // station 50

	got := e.pick("T1", "A").(wire.PickCompleteResponse)
	assert.Equal(t, wire.PickActionContinue, got.Action)
	assert.Equal(t, []string{"B"}, got.Remaining)

	putdownsBefore := len(e.fab.shelfCmds)
	got = e.pick("T1", "B").(wire.PickCompleteResponse)
	assert.Equal(t, wire.PickActionShelfDone, got.Action)

	// T2 still needs C from shelf 9: forward to 51, shelf stays up.
	robot, _ := e.robots.Get(1)
	assert.Equal(t, core.RobotForwarding, robot.Status)
	assert.Equal(t, core.NodeID(51), e.orch.targets[1])
	for _, cmd := range e.fab.shelfCmds[putdownsBefore:] {
		assert.NotEqual(t, wire.ShelfPutdown, cmd.Command, "shelf lowered during forwarding")
	}

	ack := e.arriveAtTarget(t, 1) // station 51
	assert.Equal(t, wire.ActionWaitPick, ack.Action)
	assert.Equal(t, core.RobotWaitPick, robot.Status)

	got = e.pick("T2", "C").(wire.PickCompleteResponse)
	assert.Equal(t, wire.PickActionShelfDone, got.Action)
	assert.Equal(t, core.TaskDone, t2.Status)
	assert.Equal(t, core.RobotReturning, robot.Status)

	ack = e.arriveAtTarget(t, 1) // parking
	assert.Equal(t, wire.ActionTaskComplete, ack.Action)

	t1, _ := e.tasks.Get("T1")
	assert.Equal(t, core.TaskDone, t1.Status)
	assert.Equal(t, core.RobotIdle, robot.Status)
	shelf, _ := e.shelves.Get(9)
	assert.Equal(t, core.ShelfAtRest, shelf.Status)
	require.Len(t, e.bc.taskCompletes(), 2)
}

func TestRedispatchAfterCompletion(t *testing.T) {
	e := newEnv(t, envOpts{robotHomes: map[core.RobotID]core.NodeID{1: 1, 2: 2}})

	resp := e.submit(
		wire.TaskSpec{TaskID: "T1", WorkstationID: 50, Items: []string{"A"}},
		wire.TaskSpec{TaskID: "T2", WorkstationID: 50, Items: []string{"Z"}},
		wire.TaskSpec{TaskID: "T3", WorkstationID: 51, Items: []string{"X"}},
	)
	require.True(t, resp.Success)

	t3, _ := e.tasks.Get("T3")
	require.Equal(t, core.TaskPending, t3.Status, "no third robot for T3")

	// Robot 1 runs T1 to completion; robot 2 never moves.
	r1task, _ := e.tasks.Get("T1")
	rid := r1task.AssignedRobot
	e.arriveAtTarget(t, rid)
	e.arriveAtTarget(t, rid)
	e.pick("T1", "A")
	ack := e.arriveAtTarget(t, rid)
	assert.Equal(t, wire.ActionTaskComplete, ack.Action)

	// The freed robot takes T3 immediately.
	assert.Equal(t, core.TaskActive, t3.Status)
	assert.Equal(t, rid, t3.AssignedRobot)
	robot, _ := e.robots.Get(rid)
	assert.Equal(t, core.RobotMovingToShelf, robot.Status)

	t2task, _ := e.tasks.Get("T2")
	other := t2task.AssignedRobot
	require.NotEqual(t, rid, other)
	busy, _ := e.robots.Get(other)
	assert.NotEqual(t, core.RobotIdle, busy.Status)
}

func TestUnknownItemRejectsOnlyThatTask(t *testing.T) {
	e := newEnv(t, envOpts{})

	resp := e.submit(
		wire.TaskSpec{TaskID: "T1", WorkstationID: 50, Items: []string{"PLUTONIUM"}},
		wire.TaskSpec{TaskID: "T2", WorkstationID: 50, Items: []string{"A"}},
	)
	assert.False(t, resp.Success)
	require.Len(t, resp.Results, 2)
	assert.False(t, resp.Results[0].Success)
	assert.Contains(t, resp.Results[0].Error, "no shelf")
	assert.True(t, resp.Results[1].Success)

	if _, ok := e.tasks.Get("T1"); ok {
		t.Error("rejected task stayed in the store")
	}
	t2, _ := e.tasks.Get("T2")
	assert.Equal(t, core.TaskActive, t2.Status)
}

func TestBatchPartialFailureOnPlanning(t *testing.T) {
	// Horizon 2: robot 2 sits one hop from shelf 9, robot 1 sits far
	// from everything. T1 plans inside the horizon, T2 cannot.
	e := newEnv(t, envOpts{maxTime: 2, robotHomes: map[core.RobotID]core.NodeID{1: 28, 2: 8}})

	resp := e.submit(
		wire.TaskSpec{TaskID: "T1", WorkstationID: 50, Items: []string{"A"}}, // shelf 9
		wire.TaskSpec{TaskID: "T2", WorkstationID: 50, Items: []string{"Z"}}, // shelf 3
	)
	assert.False(t, resp.Success)

	byID := map[string]wire.TaskResult{}
	for _, r := range resp.Results {
		byID[r.TaskID] = r
	}
	require.True(t, byID["T1"].Success)
	require.NotNil(t, byID["T1"].RID)
	assert.Equal(t, 2, *byID["T1"].RID)

	assert.False(t, byID["T2"].Success)
	assert.Equal(t, PlanFailedMsg, byID["T2"].Error)
	failed, _ := e.tasks.Get("T2")
	assert.Equal(t, core.TaskFailed, failed.Status)

	// The far robot is untouched and still dispatchable.
	r1, _ := e.robots.Get(1)
	assert.Equal(t, core.RobotIdle, r1.Status)
}

func TestArrivalTimeoutAndOperatorReset(t *testing.T) {
	e := newEnv(t, envOpts{})

	e.submit(wire.TaskSpec{TaskID: "T1", WorkstationID: 50, Items: []string{"A"}})
	robot, _ := e.robots.Get(1)
	require.Equal(t, core.RobotMovingToShelf, robot.Status)

	// Within the deadline nothing happens.
	e.dispatch(TickEvent{})
	assert.Equal(t, core.RobotMovingToShelf, robot.Status)

	// The watchdog budget is 10 s per hop; blow well past it.
	e.clock = e.clock.Add(24 * time.Hour)
	e.dispatch(TickEvent{})
	assert.Equal(t, core.RobotError, robot.Status)

	// Every event for the robot now fails.
	got := e.dispatch(ArrivedEvent{RID: 1, Node: 9})
	_, isErr := got.(wire.ErrorResponse)
	assert.True(t, isErr, "arrival on ERROR robot got %T", got)

	// Operator reset: robot back to IDLE, task failed.
	idle := core.RobotIdle.String()
	got = e.dispatch(StatusUpdateEvent{Req: &wire.RobotStatus{RID: 1, Status: &idle}})
	_, isErr = got.(wire.ErrorResponse)
	assert.False(t, isErr, "reset got %v", got)
	assert.Equal(t, core.RobotIdle, robot.Status)
	task, _ := e.tasks.Get("T1")
	assert.Equal(t, core.TaskFailed, task.Status)
}

func TestPickOutsideWaitPickIsRejected(t *testing.T) {
	e := newEnv(t, envOpts{})
	e.submit(wire.TaskSpec{TaskID: "T1", WorkstationID: 50, Items: []string{"A"}})

	got := e.pick("T1", "A")
	errResp, ok := got.(wire.ErrorResponse)
	require.True(t, ok, "got %T", got)
	assert.Contains(t, errResp.Error, "no wait-pick")

	robot, _ := e.robots.Get(1)
	assert.Equal(t, core.RobotMovingToShelf, robot.Status, "state changed by rejected pick")
}

func TestTickRepublishesMotionTargets(t *testing.T) {
	e := newEnv(t, envOpts{})
	e.submit(wire.TaskSpec{TaskID: "T1", WorkstationID: 50, Items: []string{"A"}})

	before := len(e.fab.lowCmds)
	e.dispatch(TickEvent{})
	require.Greater(t, len(e.fab.lowCmds), before)
	cmd := e.fab.lowCmds[len(e.fab.lowCmds)-1]
	assert.Equal(t, 1, cmd.RID)
	assert.Equal(t, 9, cmd.TargetNode)
	assert.InDelta(t, 0.3, cmd.V, 1e-9)
}

func TestLegacyTaskRequest(t *testing.T) {
	e := newEnv(t, envOpts{})

	got := e.dispatch(LegacyTaskEvent{Req: &wire.TaskRequest{
		Type: wire.TypeTaskRequest, WorkerID: 7, WorkerMarker: 50, ShelfMarker: 3,
	}})
	resp := got.(wire.BatchTaskResponse)
	require.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "legacy-7-1", resp.Results[0].TaskID)

	task, ok := e.tasks.Get("legacy-7-1")
	require.True(t, ok)
	assert.Equal(t, []string{"Z", "D"}, task.Items)
	assert.Equal(t, core.NodeID(50), task.StationNode)
}

func TestStatusQueries(t *testing.T) {
	e := newEnv(t, envOpts{robotHomes: map[core.RobotID]core.NodeID{1: 1, 2: 2}})
	e.submit(wire.TaskSpec{TaskID: "T1", WorkstationID: 50, Items: []string{"A", "Z"}})

	got := e.dispatch(QueryEvent{Which: wire.TypeStatusRequest}).(wire.StatusResponse)
	require.Len(t, got.Robots, 2)
	assert.Equal(t, 1, got.Robots[0].RID)

	tasksResp := e.dispatch(QueryEvent{Which: wire.TypeTaskStatusRequest}).(wire.TaskStatusResponse)
	require.Len(t, tasksResp.Tasks, 1)
	assert.Equal(t, "ACTIVE", tasksResp.Tasks[0].Status)
	assert.Equal(t, 10, tasksResp.Tasks[0].SubTasks)

	shelvesResp := e.dispatch(QueryEvent{Which: wire.TypeShelfStatusRequest}).(wire.ShelfStatusResponse)
	require.Len(t, shelvesResp.Shelves, 3)
	var s9 wire.ShelfSnapshot
	for _, s := range shelvesResp.Shelves {
		if s.ShelfID == 9 {
			s9 = s
		}
	}
	assert.Contains(t, s9.WantedBy, "T1")
}

func TestLoopProcessesSubmissions(t *testing.T) {
	e := newEnv(t, envOpts{})
	loop := NewLoop(e.orch, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	replies := make(chan any, 1)
	loop.Submit(BatchEvent{
		Req:   &wire.BatchTaskRequest{Type: wire.TypeBatchTaskRequest, Tasks: []wire.TaskSpec{{TaskID: "T1", WorkstationID: 50, Items: []string{"A"}}}},
		Reply: func(m any) { replies <- m },
	})

	select {
	case m := <-replies:
		resp, ok := m.(wire.BatchTaskResponse)
		require.True(t, ok)
		assert.True(t, resp.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("loop never replied")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never stopped")
	}
}
