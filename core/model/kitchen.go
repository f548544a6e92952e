package model

// Kitchen is a capacity-limited worker able to produce a subset of item types.
// The set of kitchens is static configuration; only the active flag and the
// derived load change at runtime.
type Kitchen struct {
	ID       string
	Name     string
	Active   bool
	Capacity int // soft ceiling on concurrent assignments
}

// KitchenLoad annotates a kitchen with its current outstanding-assignment
// count as seen by the load index.
type KitchenLoad struct {
	KitchenID string
	Load      int
	Capacity  int
}

// OverCapacity reports whether the kitchen has reached its soft ceiling.
// Overloaded kitchens still participate in allocation, they just sort last.
func (l KitchenLoad) OverCapacity() bool {
	return l.Capacity > 0 && l.Load >= l.Capacity
}
