package dispatch

import (
	"context"
	"testing"

	"github.com/ovenlight/expeditor/core/loadindex"
	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/core/stock"
	"github.com/ovenlight/expeditor/infra/logger"
	"github.com/ovenlight/expeditor/infra/mqtt"
	infrastore "github.com/ovenlight/expeditor/infra/store"
)

type testEnv struct {
	st       *infrastore.MemoryStore
	d        *Dispatcher
	notifier *mqtt.MockNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := infrastore.NewMemoryStore()
	var scfg stock.Config
	mon, err := stock.NewMonitor(st, scfg, logger.NopLogger{}, nil)
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	notifier := mqtt.NewMockNotifier()
	d, err := New(st, loadindex.New(st), mon, Config{}, logger.NopLogger{}, nil, nil, notifier)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	return &testEnv{st: st, d: d, notifier: notifier}
}

func (e *testEnv) seedKitchen(id string, capacity int, active bool, itemTypes ...string) {
	e.st.PutKitchen(model.Kitchen{ID: id, Name: id, Active: active, Capacity: capacity}, itemTypes)
}

func (e *testEnv) seedOrder(id string, itemTypes ...string) {
	items := make([]model.LineItem, 0, len(itemTypes))
	for i, it := range itemTypes {
		items = append(items, model.LineItem{
			ID:       id + "-li" + string(rune('1'+i)),
			OrderID:  id,
			ItemType: it,
			Quantity: 1,
		})
	}
	e.st.PutOrder(model.Order{ID: id, Number: id, Status: model.OrderNew}, items)
}

func (e *testEnv) seedStock(itemType string, current, capacity float64) {
	_ = e.st.PutStockRecord(context.Background(), model.StockRecord{
		ItemType:     itemType,
		Current:      current,
		Capacity:     capacity,
		CriticalFrac: 0.10,
		LowFrac:      0.25,
		ReorderFrac:  0.20,
	})
}

func TestTryDispatch_AssignsAndMarksDispatched(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedKitchen("main_kitchen", 15, true, "Burgers", "Pasta")
	e.seedKitchen("grill", 8, true, "Steaks")
	e.seedStock("Burgers", 80, 100)
	e.seedOrder("o1", "Burgers", "Steaks")

	res, err := e.d.TryDispatch(ctx)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Busy || res.Orders != 1 || res.Dispatched != 1 || res.Assigned != 2 || res.Issues != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	o, _ := e.st.GetOrder(ctx, "o1")
	if o.Status != model.OrderDispatched {
		t.Fatalf("expected dispatched, got %s", o.Status)
	}
	as, _ := e.st.ListAssignmentsByOrder(ctx, "o1")
	if len(as) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(as))
	}
	for _, a := range as {
		if a.State != model.AssignmentPending {
			t.Fatalf("new assignments start pending, got %s", a.State)
		}
	}
	rec, _ := e.st.GetStockRecord(ctx, "Burgers")
	if rec.Current != 79 {
		t.Fatalf("expected stock deduction to 79, got %.1f", rec.Current)
	}
	if len(e.notifier.Published) != 2 {
		t.Fatalf("expected 2 kitchen notifications, got %d", len(e.notifier.Published))
	}
}

func TestTryDispatch_StockGateExcludesItem(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedKitchen("main_kitchen", 15, true, "Burgers")
	e.seedKitchen("pizza_kitchen", 6, true, "Pizza")
	e.seedStock("Burgers", 5, 100) // critical
	e.seedStock("Pizza", 80, 100)
	e.seedOrder("o1", "Burgers", "Pizza")

	res, err := e.d.TryDispatch(ctx)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Dispatched != 0 || res.Assigned != 1 || res.Issues != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	o, _ := e.st.GetOrder(ctx, "o1")
	if o.Status != model.OrderDispatching {
		t.Fatalf("order with issues must stay dispatching, got %s", o.Status)
	}
	issues, _ := e.st.OrderIssues(ctx, "o1")
	if len(issues) != 1 || issues[0].Code != model.IssueItemUnavailable {
		t.Fatalf("expected ITEM_UNAVAILABLE, got %+v", issues)
	}
	as, _ := e.st.ListAssignmentsByOrder(ctx, "o1")
	if len(as) != 1 || as[0].ItemType != "Pizza" {
		t.Fatalf("the available item must still be assigned: %+v", as)
	}
}

func TestTryDispatch_MissingCapability(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedKitchen("main_kitchen", 15, true, "Burgers")
	e.seedOrder("o1", "Sushi")

	if _, err := e.d.TryDispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	issues, _ := e.st.OrderIssues(ctx, "o1")
	if len(issues) != 1 || issues[0].Code != model.IssueMissingCapability {
		t.Fatalf("expected MISSING_CAPABILITY, got %+v", issues)
	}
}

func TestTryDispatch_NoActiveKitchen(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedKitchen("pizza_kitchen", 6, false, "Pizza")
	e.seedOrder("o1", "Pizza")

	if _, err := e.d.TryDispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	issues, _ := e.st.OrderIssues(ctx, "o1")
	if len(issues) != 1 || issues[0].Code != model.IssueNoCapableKitchen {
		t.Fatalf("expected NO_CAPABLE_KITCHEN, got %+v", issues)
	}
}

func TestTryDispatch_BalancesWithinOrder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedKitchen("k1", 10, true, "Pizza")
	e.seedKitchen("k2", 10, true, "Pizza")
	e.seedOrder("o1", "Pizza", "Pizza", "Pizza")

	if _, err := e.d.TryDispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	byKitchen := e.notifier.ByKitchen()
	if len(byKitchen["k1"]) != 2 || len(byKitchen["k2"]) != 1 {
		t.Fatalf("expected 2/1 split across kitchens, got k1=%d k2=%d",
			len(byKitchen["k1"]), len(byKitchen["k2"]))
	}
}

func TestTryDispatch_RetryCreatesNoDuplicates(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedKitchen("main_kitchen", 15, true, "Burgers")
	e.seedOrder("o1", "Burgers", "Sushi")

	if _, err := e.d.TryDispatch(ctx); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	as, _ := e.st.ListAssignmentsByOrder(ctx, "o1")
	if len(as) != 1 {
		t.Fatalf("expected 1 assignment after first pass, got %d", len(as))
	}
	existingID := as[0].ID

	// A capability appears; the stuck order is retried on the next cycle.
	e.seedKitchen("general_kitchen", 20, true, "Sushi")
	res, err := e.d.TryDispatch(ctx)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if res.Dispatched != 1 {
		t.Fatalf("expected the retried order to dispatch, got %+v", res)
	}

	as, _ = e.st.ListAssignmentsByOrder(ctx, "o1")
	if len(as) != 2 {
		t.Fatalf("retry must not duplicate assignments, got %d", len(as))
	}
	for _, a := range as {
		if a.ItemType == "Burgers" && a.ID != existingID {
			t.Fatalf("existing assignment must be kept, not recreated")
		}
	}
	issues, _ := e.st.OrderIssues(ctx, "o1")
	if len(issues) != 0 {
		t.Fatalf("a clean pass must clear recorded issues, got %+v", issues)
	}
	o, _ := e.st.GetOrder(ctx, "o1")
	if o.Status != model.OrderDispatched {
		t.Fatalf("expected dispatched, got %s", o.Status)
	}
}

func TestTryDispatch_ReassignsPendingToIdleKitchen(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedKitchen("k1", 10, true, "Pizza")
	e.seedKitchen("k2", 10, true, "Pizza")

	// k1 carries four outstanding assignments from other orders.
	for i := 0; i < 4; i++ {
		id := "other-" + string(rune('1'+i))
		_ = e.st.UpsertAssignment(ctx, model.Assignment{
			ID: id, OrderID: id, LineItemID: id, KitchenID: "k1",
			ItemType: "Pizza", State: model.AssignmentPending,
		})
	}
	e.st.PutOrder(model.Order{ID: "o1", Status: model.OrderDispatching}, []model.LineItem{
		{ID: "li1", OrderID: "o1", ItemType: "Pizza", Quantity: 1},
	})
	_ = e.st.UpsertAssignment(ctx, model.Assignment{
		ID: "a1", OrderID: "o1", LineItemID: "li1", KitchenID: "k1",
		ItemType: "Pizza", State: model.AssignmentPending,
	})

	if _, err := e.d.TryDispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	a, err := e.st.FindAssignment(ctx, "o1", "li1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if a.KitchenID != "k2" {
		t.Fatalf("expected move to the idle kitchen, still on %s", a.KitchenID)
	}
}

func TestTryDispatch_PreparingNeverReassigned(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedKitchen("k1", 10, true, "Pizza")
	e.seedKitchen("k2", 10, true, "Pizza")
	for i := 0; i < 6; i++ {
		id := "other-" + string(rune('1'+i))
		_ = e.st.UpsertAssignment(ctx, model.Assignment{
			ID: id, OrderID: id, LineItemID: id, KitchenID: "k1",
			ItemType: "Pizza", State: model.AssignmentPending,
		})
	}
	e.st.PutOrder(model.Order{ID: "o1", Status: model.OrderDispatching}, []model.LineItem{
		{ID: "li1", OrderID: "o1", ItemType: "Pizza", Quantity: 1},
	})
	_ = e.st.UpsertAssignment(ctx, model.Assignment{
		ID: "a1", OrderID: "o1", LineItemID: "li1", KitchenID: "k1",
		ItemType: "Pizza", State: model.AssignmentPreparing,
	})

	if _, err := e.d.TryDispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	a, _ := e.st.FindAssignment(ctx, "o1", "li1")
	if a.KitchenID != "k1" {
		t.Fatalf("an assignment being prepared must never move, got %s", a.KitchenID)
	}
}

func TestTryDispatch_Busy(t *testing.T) {
	e := newTestEnv(t)
	if !e.d.guard.TryAcquire() {
		t.Fatalf("guard acquire failed")
	}
	defer e.d.guard.Release()

	res, err := e.d.TryDispatch(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !res.Busy {
		t.Fatalf("expected busy result while a cycle holds the guard")
	}
}

func TestTryDispatch_NotifierFailureDoesNotBlock(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedKitchen("main_kitchen", 15, true, "Burgers")
	e.seedOrder("o1", "Burgers")
	e.notifier.Err = context.DeadlineExceeded
	e.notifier.FailIDs["main_kitchen"] = true

	res, err := e.d.TryDispatch(ctx)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Dispatched != 1 {
		t.Fatalf("notification failure must not fail the cycle: %+v", res)
	}
	o, _ := e.st.GetOrder(ctx, "o1")
	if o.Status != model.OrderDispatched {
		t.Fatalf("expected dispatched, got %s", o.Status)
	}
}
