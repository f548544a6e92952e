// Package allocator holds the pure kitchen selection function. Selection is a
// greedy per-item decision, not a global optimum over the whole order.
package allocator

import (
	"errors"

	"github.com/ovenlight/expeditor/core/model"
)

// ErrNoCapableKitchen is returned when the candidate list is empty.
var ErrNoCapableKitchen = errors.New("allocator: no capable kitchen")

// DefaultReassignMargin is the load gap that justifies moving a pending
// assignment to a less loaded kitchen. Tunable via configuration.
const DefaultReassignMargin = 3

// Choose picks the kitchen with the minimum current load. Kitchens at or
// above their soft capacity ceiling sort behind all others, so an overloaded
// kitchen only wins when every candidate is overloaded. Ties are broken by
// kitchen identifier ordering, lowest wins, so the decision is deterministic.
func Choose(candidates []model.KitchenLoad) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCapableKitchen
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if preferred(c, best) {
			best = c
		}
	}
	return best.KitchenID, nil
}

func preferred(c, best model.KitchenLoad) bool {
	if c.OverCapacity() != best.OverCapacity() {
		return !c.OverCapacity()
	}
	if c.Load != best.Load {
		return c.Load < best.Load
	}
	return c.KitchenID < best.KitchenID
}

// ShouldReassign reports whether a still-pending assignment on `current`
// should move to `best`. The currently assigned kitchen must exceed the best
// alternative by at least margin outstanding items. Assignments in preparing
// or later states are never reassigned; callers enforce that.
func ShouldReassign(current, best model.KitchenLoad, margin int) bool {
	if margin <= 0 {
		margin = DefaultReassignMargin
	}
	if best.KitchenID == current.KitchenID {
		return false
	}
	return current.Load-best.Load >= margin
}
