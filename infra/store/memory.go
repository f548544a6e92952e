// Package store provides the record store implementations: an in-memory
// store used by tests and the simulator and a SQLite-backed durable store.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ovenlight/expeditor/core/model"
	corestore "github.com/ovenlight/expeditor/core/store"
)

// MemoryStore is a mutex-guarded in-memory RecordStore.
type MemoryStore struct {
	mu           sync.RWMutex
	orders       map[string]model.Order
	orderSeq     []string
	items        map[string][]model.LineItem
	issues       map[string][]model.ItemIssue
	kitchens     map[string]model.Kitchen
	capabilities map[string][]string
	assignments  map[string]model.Assignment
	stock        map[string]model.StockRecord
	alerts       []model.Alert
	replenish    map[string]model.ReplenishmentRequest
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:       map[string]model.Order{},
		items:        map[string][]model.LineItem{},
		issues:       map[string][]model.ItemIssue{},
		kitchens:     map[string]model.Kitchen{},
		capabilities: map[string][]string{},
		assignments:  map[string]model.Assignment{},
		stock:        map[string]model.StockRecord{},
		replenish:    map[string]model.ReplenishmentRequest{},
	}
}

// PutOrder inserts or replaces an order together with its line items.
func (s *MemoryStore) PutOrder(o model.Order, items []model.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; !exists {
		s.orderSeq = append(s.orderSeq, o.ID)
	}
	s.orders[o.ID] = o
	s.items[o.ID] = append([]model.LineItem(nil), items...)
}

// PutKitchen inserts or replaces a kitchen and its capability list.
func (s *MemoryStore) PutKitchen(k model.Kitchen, itemTypes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kitchens[k.ID] = k
	for _, it := range itemTypes {
		if !contains(s.capabilities[it], k.ID) {
			s.capabilities[it] = append(s.capabilities[it], k.ID)
		}
	}
}

// InsertOrder mirrors the SQLite store's intake helper.
func (s *MemoryStore) InsertOrder(_ context.Context, o model.Order, items []model.LineItem) error {
	s.PutOrder(o, items)
	return nil
}

// UpsertKitchen mirrors the SQLite store's seeding helper.
func (s *MemoryStore) UpsertKitchen(_ context.Context, k model.Kitchen, itemTypes []string) error {
	s.PutKitchen(k, itemTypes)
	return nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (s *MemoryStore) ScanOrdersByStatus(_ context.Context, status model.OrderStatus) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Order
	for _, id := range s.orderSeq {
		if o := s.orders[id]; o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, corestore.ErrNotFound
	}
	return o, nil
}

func (s *MemoryStore) SetOrderStatus(_ context.Context, id string, status model.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return corestore.ErrNotFound
	}
	o.Status = status
	s.orders[id] = o
	return nil
}

func (s *MemoryStore) AttachOrderIssues(_ context.Context, id string, issues []model.ItemIssue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return corestore.ErrNotFound
	}
	s.issues[id] = append([]model.ItemIssue(nil), issues...)
	return nil
}

func (s *MemoryStore) OrderIssues(_ context.Context, id string) ([]model.ItemIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ItemIssue(nil), s.issues[id]...), nil
}

func (s *MemoryStore) GetLineItems(_ context.Context, orderID string) ([]model.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.LineItem(nil), s.items[orderID]...), nil
}

func (s *MemoryStore) ListKitchens(_ context.Context) ([]model.Kitchen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Kitchen, 0, len(s.kitchens))
	for _, k := range s.kitchens {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetCapableKitchens(_ context.Context, itemType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.capabilities[itemType]...), nil
}

func (s *MemoryStore) GetAssignment(_ context.Context, id string) (model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return model.Assignment{}, corestore.ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) FindAssignment(_ context.Context, orderID, lineItemID string) (model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assignments {
		if a.OrderID == orderID && a.LineItemID == lineItemID {
			return a, nil
		}
	}
	return model.Assignment{}, corestore.ErrNotFound
}

// UpsertAssignment enforces the uniqueness invariant: the (line-item, order)
// pair keys the record, so re-dispatching replaces rather than duplicates.
func (s *MemoryStore) UpsertAssignment(_ context.Context, a model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ex := range s.assignments {
		if ex.OrderID == a.OrderID && ex.LineItemID == a.LineItemID {
			a.ID = id
			s.assignments[id] = a
			return nil
		}
	}
	s.assignments[a.ID] = a
	return nil
}

func (s *MemoryStore) ListAssignmentsByOrder(_ context.Context, orderID string) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Assignment
	for _, a := range s.assignments {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineItemID < out[j].LineItemID })
	return out, nil
}

func (s *MemoryStore) CountNonTerminalAssignments(_ context.Context, kitchenID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.assignments {
		if a.KitchenID == kitchenID && !a.State.Terminal() {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SwapAssignmentState(_ context.Context, id string, from, to model.AssignmentState, assignedAt, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return false, corestore.ErrNotFound
	}
	if a.State != from {
		return false, nil
	}
	a.State = to
	if !assignedAt.IsZero() {
		a.AssignedAt = assignedAt
	}
	if !completedAt.IsZero() {
		a.CompletedAt = completedAt
	}
	s.assignments[id] = a
	return true, nil
}

func (s *MemoryStore) GetStockRecord(_ context.Context, itemType string) (model.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.stock[itemType]
	if !ok {
		return model.StockRecord{}, corestore.ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) PutStockRecord(_ context.Context, r model.StockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[r.ItemType] = r
	return nil
}

func (s *MemoryStore) ListStockRecords(_ context.Context) ([]model.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.StockRecord, 0, len(s.stock))
	for _, r := range s.stock {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemType < out[j].ItemType })
	return out, nil
}

func (s *MemoryStore) InsertAlert(_ context.Context, a model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *MemoryStore) UnresolvedAlerts(_ context.Context, itemType string) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Alert
	for _, a := range s.alerts {
		if a.ItemType == itemType && !a.Resolved {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) ResolveAlerts(_ context.Context, itemType string, above model.AlertSeverity, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i, a := range s.alerts {
		if a.ItemType == itemType && !a.Resolved && a.Severity > above {
			s.alerts[i].Resolved = true
			s.alerts[i].ResolvedAt = at
			n++
		}
	}
	return n, nil
}

// Alerts returns a copy of all alerts, resolved included. Test helper.
func (s *MemoryStore) Alerts() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Alert(nil), s.alerts...)
}

func (s *MemoryStore) InsertReplenishment(_ context.Context, r model.ReplenishmentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replenish[r.ID] = r
	return nil
}

func (s *MemoryStore) PendingReplenishments(_ context.Context, itemType string) ([]model.ReplenishmentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ReplenishmentRequest
	for _, r := range s.replenish {
		if !r.Received && (itemType == "" || r.ItemType == itemType) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkReplenishmentReceived(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.replenish[id]
	if !ok {
		return corestore.ErrNotFound
	}
	r.Received = true
	s.replenish[id] = r
	return nil
}

func (s *MemoryStore) Metrics(_ context.Context) (corestore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	snap := corestore.Snapshot{
		OrdersByStatus: map[model.OrderStatus]int{},
		TakenAt:        now,
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, o := range s.orders {
		snap.OrdersByStatus[o.Status]++
		if o.CreatedAt.After(midnight) {
			snap.RevenueToday += o.Total
			for _, it := range s.items[o.ID] {
				snap.ItemsToday += it.Quantity
			}
		}
	}
	return snap, nil
}

func (s *MemoryStore) Close() error { return nil }
