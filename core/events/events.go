// Package events defines the typed events published on the internal bus.
package events

import (
	"time"

	"github.com/ovenlight/expeditor/core/model"
)

// OrderObservedEvent is published when the poller sees a new order.
type OrderObservedEvent struct {
	Order model.Order
}

// AssignmentCreatedEvent is published when the dispatcher creates or moves an
// assignment.
type AssignmentCreatedEvent struct {
	Assignment model.Assignment
	Reassigned bool
}

// AssignmentAdvancedEvent is published for every accepted state transition.
type AssignmentAdvancedEvent struct {
	AssignmentID string
	OrderID      string
	From         model.AssignmentState
	To           model.AssignmentState
	At           time.Time
}

// StockAlertEvent is published when the stock monitor raises an alert.
type StockAlertEvent struct {
	Alert  model.Alert
	Record model.StockRecord
}

// ReplenishmentEvent is published when the monitor synthesizes a
// replenishment request.
type ReplenishmentEvent struct {
	Request model.ReplenishmentRequest
}

// CycleCompletedEvent summarizes one dispatch cycle.
type CycleCompletedEvent struct {
	Orders     int
	Dispatched int
	Issues     int
	Duration   time.Duration
}
