// Package metrics provides the Prometheus and InfluxDB sink implementations
// behind the core metrics interfaces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/ovenlight/expeditor/core/metrics"
	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/core/store"
)

// PromSink records dispatch events in Prometheus metrics.
type PromSink struct {
	events  *prometheus.CounterVec
	alerts  *prometheus.CounterVec
	revenue prometheus.Gauge
	items   prometheus.Gauge
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assignment_events_total",
		Help: "Assignments created per kitchen and item type",
	}, []string{"kitchen_id", "item_type", "reassigned"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_alerts_total",
		Help: "Stock alerts raised by severity",
	}, []string{"item_type", "severity"})
	revenue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orders_revenue_today",
		Help: "Revenue of orders created today, from the poller snapshot",
	})
	items := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orders_items_today",
		Help: "Line item quantity of orders created today",
	})

	for _, c := range []prometheus.Collector{events, alerts, revenue, items} {
		if err := reg.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch existing := are.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					if c == events {
						events = existing
					} else {
						alerts = existing
					}
				case prometheus.Gauge:
					if c == revenue {
						revenue = existing
					} else {
						items = existing
					}
				}
				continue
			}
			return nil, err
		}
	}
	return &PromSink{events: events, alerts: alerts, revenue: revenue, items: items}, nil
}

// RecordDispatch increments the counter for each created assignment.
func (s *PromSink) RecordDispatch(recs []coremetrics.DispatchRecord) error {
	for _, r := range recs {
		s.events.WithLabelValues(r.KitchenID, r.ItemType, boolLabel(r.Reassigned)).Inc()
	}
	return nil
}

// RecordSnapshot sets the daily gauges from the poller snapshot.
func (s *PromSink) RecordSnapshot(snap store.Snapshot) error {
	s.revenue.Set(snap.RevenueToday)
	s.items.Set(float64(snap.ItemsToday))
	return nil
}

// RecordAlert counts raised stock alerts by severity.
func (s *PromSink) RecordAlert(a model.Alert) error {
	s.alerts.WithLabelValues(a.ItemType, a.Severity.String()).Inc()
	return nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
