package orchestrator

import (
	"fmt"

	"github.com/2020134026LWJ/TU-Capstone-Design/internal/transport/wire"
)

// ReplyFunc delivers the response for one inbound message back to its
// transport. Nil for events with no requester, e.g. ticks.
type ReplyFunc func(msg any)

// Event is one unit of work on the loop queue. Transports construct
// events; only the loop goroutine consumes them.
type Event interface {
	Kind() string
	replyTo() ReplyFunc
}

// BatchEvent registers a batch of picking orders.
type BatchEvent struct {
	Req   *wire.BatchTaskRequest
	Reply ReplyFunc
}

// LegacyTaskEvent is the single-shelf task_request.
type LegacyTaskEvent struct {
	Req   *wire.TaskRequest
	Reply ReplyFunc
}

// PickEvent reports one picked item.
type PickEvent struct {
	Req   *wire.PickComplete
	Reply ReplyFunc
}

// ArrivedEvent reports a robot reaching a node. Sourced from the
// operator websocket or from /agv/arrived on the motion fabric.
type ArrivedEvent struct {
	RID   int
	Node  int
	Reply ReplyFunc
}

// StatusUpdateEvent is an asynchronous robot position/status ping.
type StatusUpdateEvent struct {
	Req   *wire.RobotStatus
	Reply ReplyFunc
}

// QueryEvent asks for a registry snapshot.
type QueryEvent struct {
	Which string // wire.TypeStatusRequest, TypeTaskStatusRequest, TypeShelfStatusRequest
	Reply ReplyFunc
}

// TickEvent is the 1 Hz heartbeat.
type TickEvent struct{}

func (e BatchEvent) Kind() string        { return wire.TypeBatchTaskRequest }
func (e LegacyTaskEvent) Kind() string   { return wire.TypeTaskRequest }
func (e PickEvent) Kind() string         { return wire.TypePickComplete }
func (e ArrivedEvent) Kind() string      { return wire.TypeRobotArrived }
func (e StatusUpdateEvent) Kind() string { return wire.TypeRobotStatus }
func (e QueryEvent) Kind() string        { return e.Which }
func (TickEvent) Kind() string           { return "tick" }

func (e BatchEvent) replyTo() ReplyFunc        { return e.Reply }
func (e LegacyTaskEvent) replyTo() ReplyFunc   { return e.Reply }
func (e PickEvent) replyTo() ReplyFunc         { return e.Reply }
func (e ArrivedEvent) replyTo() ReplyFunc      { return e.Reply }
func (e StatusUpdateEvent) replyTo() ReplyFunc { return e.Reply }
func (e QueryEvent) replyTo() ReplyFunc        { return e.Reply }
func (TickEvent) replyTo() ReplyFunc           { return nil }

// EventFor wraps a decoded operator request into its loop event.
func EventFor(req wire.Request, reply ReplyFunc) (Event, error) {
	switch r := req.(type) {
	case *wire.BatchTaskRequest:
		return BatchEvent{Req: r, Reply: reply}, nil
	case *wire.TaskRequest:
		return LegacyTaskEvent{Req: r, Reply: reply}, nil
	case *wire.PickComplete:
		return PickEvent{Req: r, Reply: reply}, nil
	case *wire.RobotArrived:
		return ArrivedEvent{RID: r.RID, Node: r.Node, Reply: reply}, nil
	case *wire.RobotStatus:
		return StatusUpdateEvent{Req: r, Reply: reply}, nil
	case *wire.StatusRequest:
		return QueryEvent{Which: wire.TypeStatusRequest, Reply: reply}, nil
	case *wire.TaskStatusRequest:
		return QueryEvent{Which: wire.TypeTaskStatusRequest, Reply: reply}, nil
	case *wire.ShelfStatusRequest:
		return QueryEvent{Which: wire.TypeShelfStatusRequest, Reply: reply}, nil
	default:
		return nil, fmt.Errorf("no event for request %T", req)
	}
}
