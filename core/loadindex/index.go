// Package loadindex answers, for an item type, which kitchens can produce it
// and how loaded each of them currently is. Loads join the static capability
// mapping with a live count of assignments in non-terminal states, plus the
// reservations made earlier in the same dispatch cycle so successive items of
// one order are balanced against each other.
package loadindex

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ovenlight/expeditor/core/model"
)

// ErrMissingCapability is returned when no kitchen at all declares the item
// type. Declared-but-inactive kitchens yield an empty candidate list instead,
// so callers can distinguish a catalog gap from a temporary outage.
var ErrMissingCapability = errors.New("loadindex: no kitchen declares item type")

// Source is the subset of the record store the index reads from.
type Source interface {
	ListKitchens(ctx context.Context) ([]model.Kitchen, error)
	GetCapableKitchens(ctx context.Context, itemType string) ([]string, error)
	CountNonTerminalAssignments(ctx context.Context, kitchenID string) (int, error)
}

// Index caches kitchen state and base loads for the duration of one dispatch
// cycle. Only one dispatcher execution runs at a time, so intra-cycle writes
// are single-writer; the mutex protects readers outside the cycle.
type Index struct {
	src Source

	mu       sync.Mutex
	kitchens map[string]model.Kitchen
	base     map[string]int
	reserved map[string]int
}

// New creates an Index reading from src.
func New(src Source) *Index {
	return &Index{
		src:      src,
		kitchens: map[string]model.Kitchen{},
		base:     map[string]int{},
		reserved: map[string]int{},
	}
}

// BeginCycle refreshes the kitchen snapshot and clears reservations. It is
// called once at the start of every dispatch cycle.
func (i *Index) BeginCycle(ctx context.Context) error {
	ks, err := i.src.ListKitchens(ctx)
	if err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.kitchens = make(map[string]model.Kitchen, len(ks))
	for _, k := range ks {
		i.kitchens[k.ID] = k
	}
	i.base = make(map[string]int, len(ks))
	i.reserved = make(map[string]int, len(ks))
	return nil
}

// CapableKitchens returns the active kitchens able to produce itemType, each
// annotated with its current load, sorted by kitchen ID for determinism. The
// list may be empty when every declared kitchen is inactive.
func (i *Index) CapableKitchens(ctx context.Context, itemType string) ([]model.KitchenLoad, error) {
	ids, err := i.src.GetCapableKitchens(ctx, itemType)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrMissingCapability
	}

	var out []model.KitchenLoad
	for _, id := range ids {
		i.mu.Lock()
		k, known := i.kitchens[id]
		i.mu.Unlock()
		if !known || !k.Active {
			continue
		}
		load, err := i.load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, model.KitchenLoad{KitchenID: id, Load: load, Capacity: k.Capacity})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].KitchenID < out[b].KitchenID })
	return out, nil
}

// load returns the base non-terminal assignment count plus reservations made
// in the running cycle. Base counts are fetched lazily and cached until the
// next BeginCycle.
func (i *Index) load(ctx context.Context, kitchenID string) (int, error) {
	i.mu.Lock()
	n, ok := i.base[kitchenID]
	i.mu.Unlock()
	if !ok {
		var err error
		n, err = i.src.CountNonTerminalAssignments(ctx, kitchenID)
		if err != nil {
			return 0, err
		}
		i.mu.Lock()
		i.base[kitchenID] = n
		i.mu.Unlock()
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return n + i.reserved[kitchenID], nil
}

// Reserve records an assignment created in the running cycle so later items
// see the extra load.
func (i *Index) Reserve(kitchenID string) {
	i.mu.Lock()
	i.reserved[kitchenID]++
	i.mu.Unlock()
}

// Unreserve backs out one unit of load, used when a reassignment moves an
// existing assignment away from a kitchen.
func (i *Index) Unreserve(kitchenID string) {
	i.mu.Lock()
	i.reserved[kitchenID]--
	i.mu.Unlock()
}
