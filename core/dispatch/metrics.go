package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cycleDuration  prometheus.Histogram
	cyclesTotal    prometheus.Counter
	busyDrops      prometheus.Counter
	ordersDone     prometheus.Counter
	itemsAssigned  prometheus.Counter
	itemErrors     *prometheus.CounterVec
	ordersByStatus *prometheus.GaugeVec
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Histogram, prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Counter, *prometheus.CounterVec, *prometheus.GaugeVec) {
	dur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_cycle_duration_seconds",
		Help:    "Duration of one dispatch cycle",
		Buckets: prometheus.DefBuckets,
	})
	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_cycles_total",
		Help: "Number of dispatch cycles executed",
	})
	busy := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_busy_drops_total",
		Help: "Trigger signals dropped because a cycle was already running",
	})
	orders := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_dispatched_total",
		Help: "Orders fully dispatched",
	})
	items := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "line_items_assigned_total",
		Help: "Line items assigned to a kitchen",
	})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_item_errors_total",
		Help: "Per-item allocation errors by code",
	}, []string{"code"})
	byStatus := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orders_by_status",
		Help: "Orders currently in each status, from the poller snapshot",
	}, []string{"status"})
	return dur, cycles, busy, orders, items, errs, byStatus
}

func init() {
	cycleDuration, cyclesTotal, busyDrops, ordersDone, itemsAssigned, itemErrors, ordersByStatus = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(cycleDuration, cyclesTotal, busyDrops, ordersDone, itemsAssigned, itemErrors, ordersByStatus)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	cycleDuration, cyclesTotal, busyDrops, ordersDone, itemsAssigned, itemErrors, ordersByStatus = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
