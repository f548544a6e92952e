package model

import (
	"fmt"
	"time"
)

// OrderStatus tracks the aggregate lifecycle of a customer order.
type OrderStatus int

const (
	OrderNew OrderStatus = iota
	OrderDispatching
	OrderDispatched
	OrderFulfilling
	OrderCompleted
	OrderCancelled
)

// String returns a human-readable representation of the order status.
func (s OrderStatus) String() string {
	switch s {
	case OrderNew:
		return "new"
	case OrderDispatching:
		return "dispatching"
	case OrderDispatched:
		return "dispatched"
	case OrderFulfilling:
		return "fulfilling"
	case OrderCompleted:
		return "completed"
	case OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseOrderStatus converts the stored string form back to an OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch s {
	case "new":
		return OrderNew, nil
	case "dispatching":
		return OrderDispatching, nil
	case "dispatched":
		return OrderDispatched, nil
	case "fulfilling":
		return OrderFulfilling, nil
	case "completed":
		return OrderCompleted, nil
	case "cancelled":
		return OrderCancelled, nil
	default:
		return OrderNew, fmt.Errorf("unknown order status %q", s)
	}
}

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Order represents a customer request composed of one or more line items.
type Order struct {
	ID        string
	Number    string
	Status    OrderStatus
	Total     float64
	CreatedAt time.Time
}

// LineItem is one item-type/quantity pairing within an order. Immutable once
// created.
type LineItem struct {
	ID       string
	OrderID  string
	ItemType string
	Quantity int
	Price    float64
}

// IssueCode identifies a per-item dispatch failure.
type IssueCode string

const (
	IssueMissingCapability IssueCode = "MISSING_CAPABILITY"
	IssueNoCapableKitchen  IssueCode = "NO_CAPABLE_KITCHEN"
	IssueItemUnavailable   IssueCode = "ITEM_UNAVAILABLE"
)

// ItemIssue records a line item that could not be assigned during a dispatch
// cycle. Issues are attached to the order and surfaced on the next poll.
type ItemIssue struct {
	LineItemID string    `json:"line_item_id"`
	ItemType   string    `json:"item_type"`
	Code       IssueCode `json:"code"`
	At         time.Time `json:"at"`
}
