package store

import (
	"context"
	"errors"
	"time"

	"github.com/ovenlight/expeditor/core/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Snapshot is a lightweight observability view recomputed on every poll.
type Snapshot struct {
	OrdersByStatus map[model.OrderStatus]int
	ItemsToday     int
	RevenueToday   float64
	TakenAt        time.Time
}

// RecordStore is the durable record contract consumed by the dispatcher, the
// load index, the assignment engine and the stock monitor. Implementations
// must be safe for concurrent use; assignment state updates go through
// SwapAssignmentState so concurrent worker signals cannot lose updates.
type RecordStore interface {
	// Orders.
	ScanOrdersByStatus(ctx context.Context, status model.OrderStatus) ([]model.Order, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	SetOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
	AttachOrderIssues(ctx context.Context, id string, issues []model.ItemIssue) error
	OrderIssues(ctx context.Context, id string) ([]model.ItemIssue, error)
	GetLineItems(ctx context.Context, orderID string) ([]model.LineItem, error)

	// Kitchens and capability mapping.
	ListKitchens(ctx context.Context) ([]model.Kitchen, error)
	GetCapableKitchens(ctx context.Context, itemType string) ([]string, error)

	// Assignments.
	GetAssignment(ctx context.Context, id string) (model.Assignment, error)
	FindAssignment(ctx context.Context, orderID, lineItemID string) (model.Assignment, error)
	UpsertAssignment(ctx context.Context, a model.Assignment) error
	ListAssignmentsByOrder(ctx context.Context, orderID string) ([]model.Assignment, error)
	CountNonTerminalAssignments(ctx context.Context, kitchenID string) (int, error)
	// SwapAssignmentState atomically moves the assignment from state `from`
	// to `to`, stamping the given timestamps when non-zero. It returns false
	// without error when the stored state no longer matches `from`.
	SwapAssignmentState(ctx context.Context, id string, from, to model.AssignmentState, assignedAt, completedAt time.Time) (bool, error)

	// Stock, alerts and replenishment.
	GetStockRecord(ctx context.Context, itemType string) (model.StockRecord, error)
	PutStockRecord(ctx context.Context, r model.StockRecord) error
	ListStockRecords(ctx context.Context) ([]model.StockRecord, error)
	InsertAlert(ctx context.Context, a model.Alert) error
	UnresolvedAlerts(ctx context.Context, itemType string) ([]model.Alert, error)
	// ResolveAlerts marks unresolved alerts for the item with severity above
	// the given floor as resolved and returns how many were updated. Passing
	// a negative floor resolves everything.
	ResolveAlerts(ctx context.Context, itemType string, above model.AlertSeverity, at time.Time) (int, error)
	InsertReplenishment(ctx context.Context, r model.ReplenishmentRequest) error
	PendingReplenishments(ctx context.Context, itemType string) ([]model.ReplenishmentRequest, error)
	MarkReplenishmentReceived(ctx context.Context, id string) error

	// Metrics returns the poller snapshot.
	Metrics(ctx context.Context) (Snapshot, error)

	Close() error
}
