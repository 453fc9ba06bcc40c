package wire

// MQTT topics of the motion fabric.
const (
	TopicPlan     = "/agv/plan"
	TopicLowCmd   = "/agv/lowcmd"
	TopicShelfCmd = "/agv/shelf_cmd"
	TopicState    = "/agv/state"
	TopicArrived  = "/agv/arrived"
)

// TimedStep is one (node, t) entry of a published space-time path.
type TimedStep struct {
	Node int `json:"node"`
	T    int `json:"t"`
}

// PlanRobot is one robot's route inside a plan message.
type PlanRobot struct {
	RID       int         `json:"rid"`
	Start     int         `json:"start"`
	Goal      int         `json:"goal"`
	NodePath  []int       `json:"node_path"`
	TimedPath []TimedStep `json:"timed_path"`
}

// PlanMessage is published on /agv/plan for each dispatch.
type PlanMessage struct {
	JobID   string      `json:"job_id"`
	Planner string      `json:"planner"`
	Robots  []PlanRobot `json:"robots"`
	Speed   float64     `json:"speed"`
}

// LowCmd is the per-tick motion target for one robot.
type LowCmd struct {
	RID        int     `json:"rid"`
	V          float64 `json:"v"`
	W          float64 `json:"w"`
	TargetNode int     `json:"target_node"`
}

// Shelf commands.
const (
	ShelfPickup  = "pickup"
	ShelfPutdown = "putdown"
)

// ShelfCmd lifts or lowers a shelf.
type ShelfCmd struct {
	RID     int    `json:"rid"`
	Command string `json:"command"`
	ShelfID int    `json:"shelf_id"`
	TS      int64  `json:"timestamp"`
}

// StateMessage is a robot's periodic position report on /agv/state.
type StateMessage struct {
	RID         int    `json:"rid"`
	CurrentNode int    `json:"current_node"`
	State       string `json:"state,omitempty"`
	TS          int64  `json:"ts"`
}

// ArrivedMessage reports a robot reaching its motion target on
// /agv/arrived.
type ArrivedMessage struct {
	RID  int   `json:"rid"`
	Node int   `json:"node"`
	TS   int64 `json:"ts"`
}
