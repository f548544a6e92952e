package metrics

import (
	coremetrics "github.com/ovenlight/expeditor/core/metrics"
	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/core/store"
)

// MultiSink fans dispatch results out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispatch forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordDispatch(recs []coremetrics.DispatchRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispatch(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordSnapshot forwards poller snapshots to sinks that support them.
func (m *MultiSink) RecordSnapshot(snap store.Snapshot) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.SnapshotRecorder); ok {
			if err := rec.RecordSnapshot(snap); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordAlert forwards stock alerts to sinks that support them.
func (m *MultiSink) RecordAlert(a model.Alert) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.AlertRecorder); ok {
			if err := rec.RecordAlert(a); err != nil {
				return err
			}
		}
	}
	return nil
}
