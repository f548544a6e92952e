package model

import (
	"fmt"
	"time"
)

// AssignmentState tracks the lifecycle of one (line-item, kitchen) pairing.
type AssignmentState int

const (
	AssignmentPending AssignmentState = iota
	AssignmentPreparing
	AssignmentReady
	AssignmentCompleted
)

// String returns a human-readable representation of the state.
func (s AssignmentState) String() string {
	switch s {
	case AssignmentPending:
		return "pending"
	case AssignmentPreparing:
		return "preparing"
	case AssignmentReady:
		return "ready"
	case AssignmentCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ParseAssignmentState converts the stored string form back to a state.
func ParseAssignmentState(s string) (AssignmentState, error) {
	switch s {
	case "pending":
		return AssignmentPending, nil
	case "preparing":
		return AssignmentPreparing, nil
	case "ready":
		return AssignmentReady, nil
	case "completed":
		return AssignmentCompleted, nil
	default:
		return AssignmentPending, fmt.Errorf("unknown assignment state %q", s)
	}
}

// Terminal reports whether the state admits no further transitions.
func (s AssignmentState) Terminal() bool { return s == AssignmentCompleted }

// CanAdvanceTo reports whether target is a legal transition from s. The walk
// through states is strictly monotonic and never skips a state; re-applying
// the current state is allowed because worker signals are delivered
// at-least-once.
func (s AssignmentState) CanAdvanceTo(target AssignmentState) bool {
	return target == s || target == s+1
}

// Assignment binds one line item to the kitchen chosen to produce it. At most
// one non-terminal assignment exists per (line-item, order) pair; reassignment
// replaces the kitchen on the existing record.
type Assignment struct {
	ID          string
	LineItemID  string
	OrderID     string
	KitchenID   string
	ItemType    string
	Quantity    int
	State       AssignmentState
	AssignedAt  time.Time
	CompletedAt time.Time
}
