package loadindex

import (
	"context"
	"errors"
	"testing"

	"github.com/ovenlight/expeditor/core/model"
	infrastore "github.com/ovenlight/expeditor/infra/store"
)

func seedKitchens(t *testing.T) *infrastore.MemoryStore {
	t.Helper()
	st := infrastore.NewMemoryStore()
	st.PutKitchen(model.Kitchen{ID: "grill", Name: "Grill Station", Active: true, Capacity: 8}, []string{"Steaks"})
	st.PutKitchen(model.Kitchen{ID: "main_kitchen", Name: "Main Kitchen", Active: true, Capacity: 15}, []string{"Steaks", "Pasta"})
	st.PutKitchen(model.Kitchen{ID: "closed", Name: "Closed", Active: false, Capacity: 5}, []string{"Steaks", "Fondue"})
	return st
}

func TestCapableKitchens_FiltersAndSorts(t *testing.T) {
	st := seedKitchens(t)
	ctx := context.Background()
	idx := New(st)
	if err := idx.BeginCycle(ctx); err != nil {
		t.Fatalf("begin cycle: %v", err)
	}

	loads, err := idx.CapableKitchens(ctx, "Steaks")
	if err != nil {
		t.Fatalf("capable kitchens: %v", err)
	}
	if len(loads) != 2 {
		t.Fatalf("inactive kitchens must be excluded, got %d candidates", len(loads))
	}
	if loads[0].KitchenID != "grill" || loads[1].KitchenID != "main_kitchen" {
		t.Fatalf("expected ID ordering, got %+v", loads)
	}
}

func TestCapableKitchens_NoCandidates(t *testing.T) {
	st := seedKitchens(t)
	ctx := context.Background()
	idx := New(st)
	if err := idx.BeginCycle(ctx); err != nil {
		t.Fatalf("begin cycle: %v", err)
	}
	if _, err := idx.CapableKitchens(ctx, "Sushi"); !errors.Is(err, ErrMissingCapability) {
		t.Fatalf("expected ErrMissingCapability, got %v", err)
	}
}

func TestCapableKitchens_AllInactive(t *testing.T) {
	st := seedKitchens(t)
	ctx := context.Background()
	idx := New(st)
	if err := idx.BeginCycle(ctx); err != nil {
		t.Fatalf("begin cycle: %v", err)
	}
	// Fondue is declared only by the inactive kitchen: the capability exists
	// but no candidate is currently available.
	loads, err := idx.CapableKitchens(ctx, "Fondue")
	if err != nil {
		t.Fatalf("declared item type must not report a capability gap: %v", err)
	}
	if len(loads) != 0 {
		t.Fatalf("expected no candidates, got %+v", loads)
	}
}

func TestCapableKitchens_BaseLoadFromAssignments(t *testing.T) {
	st := seedKitchens(t)
	ctx := context.Background()
	for i, state := range []model.AssignmentState{model.AssignmentPending, model.AssignmentPreparing, model.AssignmentCompleted} {
		_ = st.UpsertAssignment(ctx, model.Assignment{
			ID:         string(rune('a' + i)),
			OrderID:    "o1",
			LineItemID: string(rune('x' + i)),
			KitchenID:  "grill",
			State:      state,
		})
	}
	idx := New(st)
	if err := idx.BeginCycle(ctx); err != nil {
		t.Fatalf("begin cycle: %v", err)
	}
	loads, err := idx.CapableKitchens(ctx, "Steaks")
	if err != nil {
		t.Fatalf("capable kitchens: %v", err)
	}
	for _, l := range loads {
		if l.KitchenID == "grill" && l.Load != 2 {
			t.Fatalf("completed assignments must not count, grill load=%d", l.Load)
		}
	}
}

func TestReservationsCountWithinCycle(t *testing.T) {
	st := seedKitchens(t)
	ctx := context.Background()
	idx := New(st)
	if err := idx.BeginCycle(ctx); err != nil {
		t.Fatalf("begin cycle: %v", err)
	}

	idx.Reserve("grill")
	idx.Reserve("grill")
	loads, err := idx.CapableKitchens(ctx, "Steaks")
	if err != nil {
		t.Fatalf("capable kitchens: %v", err)
	}
	if loads[0].KitchenID != "grill" || loads[0].Load != 2 {
		t.Fatalf("reservations should add to load, got %+v", loads[0])
	}

	idx.Unreserve("grill")
	loads, _ = idx.CapableKitchens(ctx, "Steaks")
	if loads[0].Load != 1 {
		t.Fatalf("unreserve should back out one unit, got %d", loads[0].Load)
	}

	// A new cycle clears reservations.
	if err := idx.BeginCycle(ctx); err != nil {
		t.Fatalf("begin cycle: %v", err)
	}
	loads, _ = idx.CapableKitchens(ctx, "Steaks")
	if loads[0].Load != 0 {
		t.Fatalf("reservations must reset per cycle, got %d", loads[0].Load)
	}
}
