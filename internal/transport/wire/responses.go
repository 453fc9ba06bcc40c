package wire

import "fmt"

// Outbound operator message types.
const (
	TypeBatchTaskResponse   = "batch_task_response"
	TypePickCompleteResp    = "pick_complete_response"
	TypeRobotArrivedAck     = "robot_arrived_ack"
	TypeStatusResponse      = "status_response"
	TypeTaskStatusResponse  = "task_status_response"
	TypeShelfStatusResponse = "shelf_status_response"
	TypeError               = "error"
	TypeTaskComplete        = "task_complete"
	TypeShelfAtStation      = "shelf_at_station"
)

// Actions reported in a RobotArrivedAck.
const (
	ActionLiftShelf    = "lift_shelf"
	ActionDeliver      = "deliver"
	ActionWaitPick     = "wait_pick"
	ActionReturnShelf  = "return_shelf"
	ActionForwardShelf = "forward_shelf"
	ActionTaskComplete = "task_complete"
	ActionNone         = "none"
)

// TaskResult is the per-task outcome inside a batch response.
type TaskResult struct {
	TaskID  string `json:"task_id"`
	Success bool   `json:"success"`
	RID     *int   `json:"rid,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchTaskResponse answers a batch_task_request. Success is the AND
// of every per-task result.
type BatchTaskResponse struct {
	Type    string       `json:"type"`
	Success bool         `json:"success"`
	Results []TaskResult `json:"results"`
}

// PickCompleteResponse answers a pick_complete report.
type PickCompleteResponse struct {
	Type      string   `json:"type"`
	Success   bool     `json:"success"`
	TaskID    string   `json:"task_id"`
	Item      string   `json:"item"`
	Action    string   `json:"action"` // "continue_picking" or "shelf_done"
	Remaining []string `json:"remaining,omitempty"`
}

// Pick actions.
const (
	PickActionContinue  = "continue_picking"
	PickActionShelfDone = "shelf_done"
)

// RobotArrivedAck answers a robot_arrived report with the sub-operation
// the arrival triggered.
type RobotArrivedAck struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	RID     int    `json:"rid"`
	Node    int    `json:"node"`
	Action  string `json:"action"`
}

// RobotSnapshot is one robot in a status_response.
type RobotSnapshot struct {
	RID         int    `json:"rid"`
	Name        string `json:"name"`
	CurrentNode int    `json:"current_node"`
	Status      string `json:"status"`
	Carrying    *int   `json:"carrying_shelf,omitempty"`
	CurrentTask string `json:"current_task,omitempty"`
	Queue       []string `json:"queue,omitempty"`
}

// StatusResponse is the robot registry snapshot.
type StatusResponse struct {
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Robots  []RobotSnapshot `json:"robots"`
}

// TaskSnapshot is one task in a task_status_response.
type TaskSnapshot struct {
	TaskID        string   `json:"task_id"`
	WorkstationID int      `json:"workstation_id"`
	Items         []string `json:"items"`
	Picked        []string `json:"picked"`
	Status        string   `json:"status"`
	AssignedRobot *int     `json:"assigned_robot,omitempty"`
	Cursor        int      `json:"cursor"`
	SubTasks      int      `json:"subtasks"`
}

// TaskStatusResponse is the task store snapshot.
type TaskStatusResponse struct {
	Type    string         `json:"type"`
	Success bool           `json:"success"`
	Tasks   []TaskSnapshot `json:"tasks"`
}

// ShelfSnapshot is one shelf in a shelf_status_response.
type ShelfSnapshot struct {
	ShelfID     int      `json:"shelf_id"`
	Label       string   `json:"label"`
	Items       []string `json:"items"`
	HomeNode    int      `json:"home_node"`
	CurrentNode int      `json:"current_node"`
	Status      string   `json:"status"`
	CarriedBy   *int     `json:"carried_by,omitempty"`
	WantedBy    []string `json:"wanted_by,omitempty"`
}

// ShelfStatusResponse is the shelf registry snapshot.
type ShelfStatusResponse struct {
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Shelves []ShelfSnapshot `json:"shelves"`
}

// ErrorResponse reports a malformed message, unknown type, or handler
// failure.
type ErrorResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Errorf builds an error response.
func Errorf(format string, args ...any) ErrorResponse {
	return ErrorResponse{Type: TypeError, Success: false, Error: fmt.Sprintf(format, args...)}
}

// TaskCompleteBroadcast goes to every connected operator client when a
// task finishes.
type TaskCompleteBroadcast struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
	RID    int    `json:"rid"`
}

// ShelfAtStationBroadcast goes to every connected operator client when
// a shelf is presented at a pick station.
type ShelfAtStationBroadcast struct {
	Type        string   `json:"type"`
	ShelfID     int      `json:"shelf_id"`
	Station     int      `json:"station"`
	ItemsToPick []string `json:"items_to_pick"`
}
