// Package core defines the domain model of the picking fleet: the
// warehouse graph, mobile shelves, AGVs, picking tasks, and the
// registries that own them.
package core

// NodeID identifies a grid node.
type NodeID int

// RobotID identifies an AGV.
type RobotID int

// TaskID identifies a picking order. Operator-chosen, e.g. "T1".
type TaskID string

// ShelfID identifies a mobile shelf. It equals the shelf's home node id.
type ShelfID int

// RobotStatus enumerates the per-robot state machine.
type RobotStatus int

const (
	RobotIdle RobotStatus = iota
	RobotMovingToShelf
	RobotLifting
	RobotDelivering
	RobotWaitPick
	RobotReturning
	RobotForwarding
	RobotError
)

func (s RobotStatus) String() string {
	return [...]string{"IDLE", "MOVING_TO_SHELF", "LIFTING", "DELIVERING", "WAIT_PICK", "RETURNING", "FORWARDING", "ERROR"}[s]
}

// CarriesShelf reports whether a robot in this status holds a shelf.
func (s RobotStatus) CarriesShelf() bool {
	switch s {
	case RobotDelivering, RobotWaitPick, RobotReturning, RobotForwarding:
		return true
	default:
		return false
	}
}

// ParseRobotStatus maps the wire form back to a status.
func ParseRobotStatus(s string) (RobotStatus, bool) {
	for st := RobotIdle; st <= RobotError; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// ShelfStatus enumerates where a shelf can be.
type ShelfStatus int

const (
	ShelfAtRest ShelfStatus = iota
	ShelfCarried
	ShelfAtStation
)

func (s ShelfStatus) String() string {
	return [...]string{"AT_REST", "CARRIED", "AT_STATION"}[s]
}

// TaskStatus enumerates the lifecycle of a picking order.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskActive
	TaskDone
	TaskFailed
)

func (s TaskStatus) String() string {
	return [...]string{"PENDING", "ACTIVE", "DONE", "FAILED"}[s]
}

// OpKind tags the sub-operations a task decomposes into.
type OpKind int

const (
	OpGoToShelf OpKind = iota
	OpLift
	OpDeliver
	OpWaitPick
	OpReturn
	OpForward
)

func (k OpKind) String() string {
	return [...]string{"GO_TO_SHELF", "LIFT", "DELIVER", "WAIT_PICK", "RETURN", "FORWARD"}[k]
}

// RobotStatus returns the robot status that executes this sub-operation.
func (k OpKind) RobotStatus() RobotStatus {
	return [...]RobotStatus{RobotMovingToShelf, RobotLifting, RobotDelivering, RobotWaitPick, RobotReturning, RobotForwarding}[k]
}

// TimedNode is a node occupied at a discrete time step.
type TimedNode struct {
	Node NodeID
	T    int
}

// Path is a space-time path. Consecutive entries are one time step
// apart and either equal (a wait) or adjacent in the graph (a move).
type Path []TimedNode

// Start returns the first node of the path.
func (p Path) Start() NodeID { return p[0].Node }

// Goal returns the last node of the path.
func (p Path) Goal() NodeID { return p[len(p)-1].Node }

// Nodes compresses the path to the ordered sequence of distinct nodes
// visited. Wait loops collapse to a single occurrence. This is what
// the motion controller consumes; waits are enforced by re-issuing the
// current target.
func (p Path) Nodes() []NodeID {
	if len(p) == 0 {
		return nil
	}
	raw := make([]NodeID, len(p))
	for i, tn := range p {
		raw[i] = tn.Node
	}
	return CompressNodes(raw)
}

// CompressNodes collapses consecutive duplicate nodes. Compressing an
// already compressed sequence returns an equal sequence.
func CompressNodes(nodes []NodeID) []NodeID {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]NodeID, 0, len(nodes))
	out = append(out, nodes[0])
	for _, n := range nodes[1:] {
		if n != out[len(out)-1] {
			out = append(out, n)
		}
	}
	return out
}
