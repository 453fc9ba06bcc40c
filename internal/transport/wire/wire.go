// Package wire defines the JSON messages crossing the two external
// boundaries: the operator websocket and the MQTT motion fabric. It is
// shape only; no policy lives here.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType is returned for an inbound message whose type tag is
// not recognized.
var ErrUnknownType = errors.New("unknown message type")

// Inbound operator message types.
const (
	TypeBatchTaskRequest   = "batch_task_request"
	TypeTaskRequest        = "task_request"
	TypePickComplete       = "pick_complete"
	TypeRobotArrived       = "robot_arrived"
	TypeRobotStatus        = "robot_status"
	TypeStatusRequest      = "status_request"
	TypeTaskStatusRequest  = "task_status_request"
	TypeShelfStatusRequest = "shelf_status_request"
)

// Request is an inbound operator message decoded by type tag.
type Request interface{ requestType() string }

// TaskSpec is one picking order inside a batch.
type TaskSpec struct {
	TaskID        string   `json:"task_id"`
	WorkstationID int      `json:"workstation_id"`
	Items         []string `json:"items"`
}

// BatchTaskRequest registers a batch of picking orders.
type BatchTaskRequest struct {
	Type  string     `json:"type"`
	Tasks []TaskSpec `json:"tasks"`
}

// TaskRequest is the legacy single-shelf request: bring the shelf at
// shelf_marker to the worker at worker_marker.
type TaskRequest struct {
	Type         string `json:"type"`
	WorkerID     int    `json:"worker_id"`
	WorkerMarker int    `json:"worker_marker"`
	ShelfMarker  int    `json:"shelf_marker"`
}

// PickComplete reports one item removed from a delivered shelf.
type PickComplete struct {
	Type          string `json:"type"`
	TaskID        string `json:"task_id"`
	Item          string `json:"item"`
	WorkstationID int    `json:"workstation_id"`
}

// RobotArrived reports a robot reaching a node.
type RobotArrived struct {
	Type string `json:"type"`
	RID  int    `json:"rid"`
	Node int    `json:"node"`
}

// RobotStatus is an asynchronous position or status ping. A status of
// "IDLE" on a robot in ERROR is the operator reset.
type RobotStatus struct {
	Type        string  `json:"type"`
	RID         int     `json:"rid"`
	CurrentNode *int    `json:"current_node,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// StatusRequest asks for the robot registry snapshot.
type StatusRequest struct {
	Type string `json:"type"`
}

// TaskStatusRequest asks for the task store snapshot.
type TaskStatusRequest struct {
	Type string `json:"type"`
}

// ShelfStatusRequest asks for the shelf registry snapshot.
type ShelfStatusRequest struct {
	Type string `json:"type"`
}

func (BatchTaskRequest) requestType() string   { return TypeBatchTaskRequest }
func (TaskRequest) requestType() string        { return TypeTaskRequest }
func (PickComplete) requestType() string       { return TypePickComplete }
func (RobotArrived) requestType() string       { return TypeRobotArrived }
func (RobotStatus) requestType() string        { return TypeRobotStatus }
func (StatusRequest) requestType() string      { return TypeStatusRequest }
func (TaskStatusRequest) requestType() string  { return TypeTaskStatusRequest }
func (ShelfStatusRequest) requestType() string { return TypeShelfStatusRequest }

// Decode reads the type tag first, then decodes the full payload into
// the matching request struct.
func Decode(data []byte) (Request, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	var req Request
	switch tag.Type {
	case TypeBatchTaskRequest:
		req = &BatchTaskRequest{}
	case TypeTaskRequest:
		req = &TaskRequest{}
	case TypePickComplete:
		req = &PickComplete{}
	case TypeRobotArrived:
		req = &RobotArrived{}
	case TypeRobotStatus:
		req = &RobotStatus{}
	case TypeStatusRequest:
		req = &StatusRequest{}
	case TypeTaskStatusRequest:
		req = &TaskStatusRequest{}
	case TypeShelfStatusRequest:
		req = &ShelfStatusRequest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag.Type)
	}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("decode %s: %w", tag.Type, err)
	}
	return req, nil
}
