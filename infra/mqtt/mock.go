package mqtt

import (
	"context"
	"sync"

	"github.com/ovenlight/expeditor/core/model"
)

// MockNotifier records published assignments. Used in tests.
type MockNotifier struct {
	mu        sync.Mutex
	Published []model.Assignment
	FailIDs   map[string]bool
	Err       error
}

// NewMockNotifier creates a new MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{FailIDs: make(map[string]bool)}
}

// PublishAssignment records the assignment or returns the configured error.
func (m *MockNotifier) PublishAssignment(_ context.Context, a model.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil && m.FailIDs[a.KitchenID] {
		return m.Err
	}
	m.Published = append(m.Published, a)
	return nil
}

// ByKitchen returns the published assignments grouped by kitchen.
func (m *MockNotifier) ByKitchen() map[string][]model.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]model.Assignment)
	for _, a := range m.Published {
		out[a.KitchenID] = append(out[a.KitchenID], a)
	}
	return out
}
