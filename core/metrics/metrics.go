// Package metrics defines the sink interfaces dispatch results and poller
// snapshots are recorded through. Implementations live under infra/metrics.
package metrics

import (
	"time"

	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/core/store"
)

// DispatchRecord represents one created or moved assignment.
type DispatchRecord struct {
	OrderID    string
	LineItemID string
	ItemType   string
	KitchenID  string
	Quantity   int
	Reassigned bool
	At         time.Time
}

// Sink records dispatch results for observability purposes.
type Sink interface {
	RecordDispatch(recs []DispatchRecord) error
}

// SnapshotRecorder records the poller's per-tick metrics snapshot.
type SnapshotRecorder interface {
	RecordSnapshot(s store.Snapshot) error
}

// AlertRecorder records stock alerts raised by the threshold monitor.
type AlertRecorder interface {
	RecordAlert(a model.Alert) error
}

// NopSink discards everything.
type NopSink struct{}

// RecordDispatch implements Sink.
func (NopSink) RecordDispatch([]DispatchRecord) error { return nil }
