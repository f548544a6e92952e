// Package dispatch orchestrates the routing of newly created orders to
// capability-matched, load-balanced kitchens. A change-feed poller discovers
// new orders, a single-flight guard serializes cycles, and the dispatcher
// walks each order item through the stock gate, the load index and the
// allocator.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ovenlight/expeditor/core/allocator"
	"github.com/ovenlight/expeditor/core/events"
	"github.com/ovenlight/expeditor/core/loadindex"
	"github.com/ovenlight/expeditor/core/logger"
	coremetrics "github.com/ovenlight/expeditor/core/metrics"
	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/core/store"
	"github.com/ovenlight/expeditor/internal/eventbus"
)

// Config defines dispatch-related settings.
type Config struct {
	// ReassignMargin is the load gap that justifies moving a pending
	// assignment to a less loaded kitchen.
	ReassignMargin int `json:"reassign_margin"`
	// StoreTimeoutSeconds bounds each record-store call inside a cycle.
	StoreTimeoutSeconds int `json:"store_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ReassignMargin == 0 {
		c.ReassignMargin = allocator.DefaultReassignMargin
	}
	if c.StoreTimeoutSeconds == 0 {
		c.StoreTimeoutSeconds = 10
	}
}

// Gate is the stock availability check consulted before allocation.
type Gate interface {
	Available(ctx context.Context, itemType string) (bool, error)
	ApplyConsumption(ctx context.Context, itemType string, qty float64, reason string) (model.StockRecord, error)
}

// Notifier pushes a created assignment to the kitchen side. Acknowledgements
// come back asynchronously through the assignment engine, so notification is
// fire-and-forget.
type Notifier interface {
	PublishAssignment(ctx context.Context, a model.Assignment) error
}

// CycleResult summarizes one dispatch cycle.
type CycleResult struct {
	Busy       bool
	Orders     int
	Dispatched int
	Assigned   int
	Issues     int
	Duration   time.Duration
}

// Dispatcher routes new orders to kitchens under the single-flight guard.
type Dispatcher struct {
	store    store.RecordStore
	index    *loadindex.Index
	gate     Gate
	guard    *Guard
	notifier Notifier
	cfg      Config
	log      logger.Logger
	bus      eventbus.EventBus
	sink     coremetrics.Sink
	now      func() time.Time
}

// New creates a Dispatcher. Notifier, bus and sink may be nil.
func New(st store.RecordStore, index *loadindex.Index, gate Gate, cfg Config, log logger.Logger, bus eventbus.EventBus, sink coremetrics.Sink, notifier Notifier) (*Dispatcher, error) {
	if st == nil || index == nil || gate == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to New")
	}
	cfg.SetDefaults()
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Dispatcher{
		store:    st,
		index:    index,
		gate:     gate,
		guard:    &Guard{},
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		bus:      bus,
		sink:     sink,
		now:      time.Now,
	}, nil
}

// TryDispatch runs one dispatch cycle if no other cycle is in flight.
// Contention is not an error: the result reports Busy and the trigger source
// drops the signal, relying on the next poll tick.
func (d *Dispatcher) TryDispatch(ctx context.Context) (CycleResult, error) {
	if !d.guard.TryAcquire() {
		busyDrops.Inc()
		d.log.Debugf("dispatch cycle already running, dropping trigger")
		return CycleResult{Busy: true}, nil
	}
	defer d.guard.Release()
	return d.runCycle(ctx)
}

func (d *Dispatcher) runCycle(ctx context.Context) (CycleResult, error) {
	start := d.now()
	cyclesTotal.Inc()

	sctx, cancel := d.storeCtx(ctx)
	orders, err := d.store.ScanOrdersByStatus(sctx, model.OrderNew)
	cancel()
	if err != nil {
		return CycleResult{}, fmt.Errorf("scan new orders: %w", err)
	}
	// Orders left dispatching by an earlier cycle carry unassigned items and
	// are eligible for re-processing.
	sctx, cancel = d.storeCtx(ctx)
	stuck, err := d.store.ScanOrdersByStatus(sctx, model.OrderDispatching)
	cancel()
	if err != nil {
		return CycleResult{}, fmt.Errorf("scan dispatching orders: %w", err)
	}
	orders = append(orders, stuck...)
	if err := d.index.BeginCycle(ctx); err != nil {
		return CycleResult{}, fmt.Errorf("load index: %w", err)
	}

	res := CycleResult{Orders: len(orders)}
	for _, o := range orders {
		assigned, issues, err := d.dispatchOrder(ctx, o)
		if err != nil {
			// Transient store failure: leave the order for the next tick.
			d.log.Errorf("order %s: %v", o.ID, err)
			continue
		}
		res.Assigned += assigned
		res.Issues += len(issues)
		if len(issues) == 0 {
			res.Dispatched++
		}
	}

	res.Duration = d.now().Sub(start)
	cycleDuration.Observe(res.Duration.Seconds())
	d.log.Infof("dispatch cycle: %d order(s), %d dispatched, %d item(s) assigned, %d issue(s) in %s",
		res.Orders, res.Dispatched, res.Assigned, res.Issues, res.Duration)
	if d.bus != nil {
		d.bus.Publish(events.CycleCompletedEvent{
			Orders:     res.Orders,
			Dispatched: res.Dispatched,
			Issues:     res.Issues,
			Duration:   res.Duration,
		})
	}
	return res, nil
}

// dispatchOrder processes the line items of one order in insertion order so
// load-balancing decisions for later items see the load contributed by
// earlier ones. Per-item errors are recorded on the order without aborting
// the remaining items.
func (d *Dispatcher) dispatchOrder(ctx context.Context, o model.Order) (int, []model.ItemIssue, error) {
	sctx, cancel := d.storeCtx(ctx)
	err := d.store.SetOrderStatus(sctx, o.ID, model.OrderDispatching)
	cancel()
	if err != nil {
		return 0, nil, fmt.Errorf("mark dispatching: %w", err)
	}
	if d.bus != nil {
		d.bus.Publish(events.OrderObservedEvent{Order: o})
	}

	sctx, cancel = d.storeCtx(ctx)
	items, err := d.store.GetLineItems(sctx, o.ID)
	cancel()
	if err != nil {
		return 0, nil, fmt.Errorf("line items: %w", err)
	}

	var (
		issues  []model.ItemIssue
		recs    []coremetrics.DispatchRecord
		created int
	)
	for _, item := range items {
		a, issue, err := d.dispatchItem(ctx, o, item)
		if err != nil {
			return created, issues, err
		}
		if issue != nil {
			itemErrors.WithLabelValues(string(issue.Code)).Inc()
			issues = append(issues, *issue)
			continue
		}
		created++
		itemsAssigned.Inc()
		recs = append(recs, coremetrics.DispatchRecord{
			OrderID:    o.ID,
			LineItemID: item.ID,
			ItemType:   item.ItemType,
			KitchenID:  a.KitchenID,
			Quantity:   item.Quantity,
			At:         d.now(),
		})
	}

	if len(recs) > 0 {
		if err := d.sink.RecordDispatch(recs); err != nil {
			d.log.Errorf("metrics error: %v", err)
		}
	}

	// Replace the order's diagnostics wholesale: a clean pass clears issues
	// recorded by an earlier cycle.
	sctx, cancel = d.storeCtx(ctx)
	err = d.store.AttachOrderIssues(sctx, o.ID, issues)
	cancel()
	if err != nil {
		return created, issues, fmt.Errorf("attach issues: %w", err)
	}
	if len(issues) > 0 {
		d.log.Warnf("order %s left dispatching with %d unassigned item(s)", o.ID, len(issues))
		return created, issues, nil
	}

	sctx, cancel = d.storeCtx(ctx)
	err = d.store.SetOrderStatus(sctx, o.ID, model.OrderDispatched)
	cancel()
	if err != nil {
		return created, issues, fmt.Errorf("mark dispatched: %w", err)
	}
	ordersDone.Inc()
	return created, nil, nil
}

// dispatchItem resolves one line item: stock gate, capability lookup, greedy
// allocation, idempotent assignment upsert. The returned issue is nil on
// success; a non-nil error means a transient store failure.
func (d *Dispatcher) dispatchItem(ctx context.Context, o model.Order, item model.LineItem) (model.Assignment, *model.ItemIssue, error) {
	ok, err := d.gate.Available(ctx, item.ItemType)
	if err != nil {
		return model.Assignment{}, nil, fmt.Errorf("stock gate: %w", err)
	}
	if !ok {
		d.log.Warnf("item %s unavailable, excluding from order %s", item.ItemType, o.ID)
		return model.Assignment{}, d.issue(item, model.IssueItemUnavailable), nil
	}

	candidates, err := d.index.CapableKitchens(ctx, item.ItemType)
	if err != nil {
		if errors.Is(err, loadindex.ErrMissingCapability) {
			return model.Assignment{}, d.issue(item, model.IssueMissingCapability), nil
		}
		return model.Assignment{}, nil, fmt.Errorf("capable kitchens: %w", err)
	}

	sctx, cancel := d.storeCtx(ctx)
	existing, err := d.store.FindAssignment(sctx, o.ID, item.ID)
	cancel()
	switch {
	case err == nil:
		return d.reconcileExisting(ctx, existing, candidates)
	case errors.Is(err, store.ErrNotFound):
		// No assignment yet, fall through to creation.
	default:
		return model.Assignment{}, nil, fmt.Errorf("find assignment: %w", err)
	}

	kitchenID, err := allocator.Choose(candidates)
	if err != nil {
		return model.Assignment{}, d.issue(item, model.IssueNoCapableKitchen), nil
	}

	a := model.Assignment{
		ID:         uuid.NewString(),
		LineItemID: item.ID,
		OrderID:    o.ID,
		KitchenID:  kitchenID,
		ItemType:   item.ItemType,
		Quantity:   item.Quantity,
		State:      model.AssignmentPending,
		AssignedAt: d.now(),
	}
	sctx, cancel = d.storeCtx(ctx)
	err = d.store.UpsertAssignment(sctx, a)
	cancel()
	if err != nil {
		return model.Assignment{}, nil, fmt.Errorf("upsert assignment: %w", err)
	}
	d.index.Reserve(kitchenID)

	if _, err := d.gate.ApplyConsumption(ctx, item.ItemType, float64(item.Quantity), "usage"); err != nil {
		d.log.Errorf("consumption for %s: %v", item.ItemType, err)
	}
	d.notify(ctx, a)
	if d.bus != nil {
		d.bus.Publish(events.AssignmentCreatedEvent{Assignment: a})
	}
	return a, nil, nil
}

// reconcileExisting handles re-dispatch of an order that still has items from
// a previous cycle. A pending assignment may move to a clearly less loaded
// kitchen; preparing or later states are never touched.
func (d *Dispatcher) reconcileExisting(ctx context.Context, a model.Assignment, candidates []model.KitchenLoad) (model.Assignment, *model.ItemIssue, error) {
	if a.State != model.AssignmentPending {
		return a, nil, nil
	}
	bestID, err := allocator.Choose(candidates)
	if err != nil || bestID == a.KitchenID {
		return a, nil, nil
	}
	var current, best model.KitchenLoad
	for _, c := range candidates {
		switch c.KitchenID {
		case a.KitchenID:
			current = c
		case bestID:
			best = c
		}
	}
	if current.KitchenID == "" {
		// The assigned kitchen is no longer capable or active, move.
		current = model.KitchenLoad{KitchenID: a.KitchenID, Load: best.Load + d.cfg.ReassignMargin}
	}
	if !allocator.ShouldReassign(current, best, d.cfg.ReassignMargin) {
		return a, nil, nil
	}

	from := a.KitchenID
	a.KitchenID = bestID
	a.AssignedAt = d.now()
	sctx, cancel := d.storeCtx(ctx)
	err = d.store.UpsertAssignment(sctx, a)
	cancel()
	if err != nil {
		return model.Assignment{}, nil, fmt.Errorf("reassign: %w", err)
	}
	d.index.Reserve(bestID)
	d.index.Unreserve(from)
	d.log.Infof("reassigned item %s from %s to %s", a.LineItemID, from, bestID)
	d.notify(ctx, a)
	if d.bus != nil {
		d.bus.Publish(events.AssignmentCreatedEvent{Assignment: a, Reassigned: true})
	}
	return a, nil, nil
}

func (d *Dispatcher) notify(ctx context.Context, a model.Assignment) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.PublishAssignment(ctx, a); err != nil {
		d.log.Errorf("notify kitchen %s: %v", a.KitchenID, err)
	}
}

func (d *Dispatcher) issue(item model.LineItem, code model.IssueCode) *model.ItemIssue {
	return &model.ItemIssue{
		LineItemID: item.ID,
		ItemType:   item.ItemType,
		Code:       code,
		At:         d.now(),
	}
}

func (d *Dispatcher) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(d.cfg.StoreTimeoutSeconds)*time.Second)
}
