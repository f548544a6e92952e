// Package assignment governs the lifecycle of one (line-item, kitchen)
// pairing: pending -> preparing -> ready -> completed. Transitions arrive
// asynchronously from kitchen workers and are delivered at-least-once, so
// re-applying a state is a no-op success.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ovenlight/expeditor/core/events"
	"github.com/ovenlight/expeditor/core/logger"
	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/core/store"
	"github.com/ovenlight/expeditor/internal/eventbus"
)

var (
	// ErrNotFound is returned for transition requests on unknown assignments.
	ErrNotFound = errors.New("assignment: not found")
	// ErrInvalidTransition is returned when the requested state would move
	// the assignment backward or skip a state.
	ErrInvalidTransition = errors.New("assignment: invalid transition")
)

// Store is the subset of the record store the engine mutates. State updates
// use compare-and-swap so a dispatcher-issued reassignment and a worker
// signal landing concurrently cannot lose updates.
type Store interface {
	GetAssignment(ctx context.Context, id string) (model.Assignment, error)
	SwapAssignmentState(ctx context.Context, id string, from, to model.AssignmentState, assignedAt, completedAt time.Time) (bool, error)
	ListAssignmentsByOrder(ctx context.Context, orderID string) ([]model.Assignment, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	SetOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
}

// maxSwapRetries bounds the CAS loop under concurrent worker signals.
const maxSwapRetries = 3

// Engine applies worker-side transitions to assignments and advances the
// parent order when all of its assignments complete.
type Engine struct {
	store Store
	log   logger.Logger
	bus   eventbus.EventBus
	now   func() time.Time
}

// New creates an Engine. The bus may be nil.
func New(store Store, log logger.Logger, bus eventbus.EventBus) (*Engine, error) {
	if store == nil || log == nil {
		return nil, fmt.Errorf("assignment: nil parameter provided to New")
	}
	return &Engine{store: store, log: log, bus: bus, now: time.Now}, nil
}

// Advance moves the assignment to target. Unknown identifiers fail with
// ErrNotFound; backward or skipping moves fail with ErrInvalidTransition;
// re-applying the current state succeeds without side effects.
func (e *Engine) Advance(ctx context.Context, id string, target model.AssignmentState) error {
	for attempt := 0; ; attempt++ {
		a, err := e.store.GetAssignment(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if a.State == target {
			return nil
		}
		if !a.State.CanAdvanceTo(target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, target)
		}

		var assignedAt, completedAt time.Time
		switch target {
		case model.AssignmentPreparing:
			assignedAt = e.now()
		case model.AssignmentCompleted:
			completedAt = e.now()
		}
		swapped, err := e.store.SwapAssignmentState(ctx, id, a.State, target, assignedAt, completedAt)
		if err != nil {
			return err
		}
		if !swapped {
			// A concurrent signal moved the assignment first; re-read and
			// re-evaluate so at-least-once delivery stays idempotent.
			if attempt >= maxSwapRetries {
				return fmt.Errorf("%w: contention on %s", ErrInvalidTransition, id)
			}
			continue
		}

		e.log.Debugw("assignment advanced", map[string]any{
			"assignment_id": id,
			"order_id":      a.OrderID,
			"from":          a.State.String(),
			"to":            target.String(),
		})
		if e.bus != nil {
			e.bus.Publish(events.AssignmentAdvancedEvent{
				AssignmentID: id,
				OrderID:      a.OrderID,
				From:         a.State,
				To:           target,
				At:           e.now(),
			})
		}

		switch target {
		case model.AssignmentPreparing:
			e.markFulfilling(ctx, a.OrderID)
		case model.AssignmentCompleted:
			e.maybeCompleteOrder(ctx, a.OrderID)
		}
		return nil
	}
}

// markFulfilling moves the order from dispatched to fulfilling on the first
// worker "started" signal.
func (e *Engine) markFulfilling(ctx context.Context, orderID string) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		e.log.Errorf("order %s lookup: %v", orderID, err)
		return
	}
	if o.Status != model.OrderDispatched {
		return
	}
	if err := e.store.SetOrderStatus(ctx, orderID, model.OrderFulfilling); err != nil {
		e.log.Errorf("order %s -> fulfilling: %v", orderID, err)
	}
}

// maybeCompleteOrder advances the order to completed once every assignment
// under it has completed, comparing total vs completed counts.
func (e *Engine) maybeCompleteOrder(ctx context.Context, orderID string) {
	as, err := e.store.ListAssignmentsByOrder(ctx, orderID)
	if err != nil {
		e.log.Errorf("order %s assignments: %v", orderID, err)
		return
	}
	if len(as) == 0 {
		return
	}
	done := 0
	for _, a := range as {
		if a.State == model.AssignmentCompleted {
			done++
		}
	}
	if done != len(as) {
		return
	}
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		e.log.Errorf("order %s lookup: %v", orderID, err)
		return
	}
	if o.Status.Terminal() {
		return
	}
	if err := e.store.SetOrderStatus(ctx, orderID, model.OrderCompleted); err != nil {
		e.log.Errorf("order %s -> completed: %v", orderID, err)
		return
	}
	e.log.Infof("order %s completed (%d assignments)", orderID, len(as))
}
