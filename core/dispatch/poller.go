package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ovenlight/expeditor/core/logger"
	coremetrics "github.com/ovenlight/expeditor/core/metrics"
	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/core/store"
)

// PollerConfig defines the change-feed polling schedule.
type PollerConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *PollerConfig) SetDefaults() {
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = 30
	}
}

// Poller periodically scans the record store for orders in the new state and
// recomputes a lightweight metrics snapshot. When new orders exist it signals
// the dispatcher; a busy guard means the signal is silently dropped and the
// next tick retries. This poll-again loop is the system's only retry
// mechanism.
type Poller struct {
	store      store.RecordStore
	dispatcher *Dispatcher
	interval   time.Duration
	log        logger.Logger
	sink       coremetrics.Sink
}

// NewPoller creates a Poller.
func NewPoller(st store.RecordStore, d *Dispatcher, cfg PollerConfig, log logger.Logger, sink coremetrics.Sink) (*Poller, error) {
	if st == nil || d == nil || log == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewPoller")
	}
	cfg.SetDefaults()
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Poller{
		store:      st,
		dispatcher: d,
		interval:   time.Duration(cfg.IntervalSeconds) * time.Second,
		log:        log,
		sink:       sink,
	}, nil
}

// Run polls on a fixed interval until the context is canceled. Store read
// failures are logged and retried on the next tick; they never stop the loop.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.log.Infof("order poller started, interval %s", p.interval)
	for {
		select {
		case <-ticker.C:
			if _, _, err := p.Poll(ctx); err != nil {
				p.log.Errorf("poll: %v", err)
			}
		case <-ctx.Done():
			p.log.Infof("order poller stopped")
			return
		}
	}
}

// Poll performs one scan. It returns the number of new orders observed and
// the metrics snapshot. Dispatch runs inline under the single-flight guard;
// a concurrent cycle turns this trigger into a no-op.
func (p *Poller) Poll(ctx context.Context) (int, store.Snapshot, error) {
	newOrders, err := p.store.ScanOrdersByStatus(ctx, model.OrderNew)
	if err != nil {
		return 0, store.Snapshot{}, fmt.Errorf("scan: %w", err)
	}

	snap, err := p.store.Metrics(ctx)
	if err != nil {
		p.log.Warnf("metrics snapshot: %v", err)
	} else {
		p.recordSnapshot(snap)
	}

	if len(newOrders) == 0 {
		return 0, snap, nil
	}

	p.log.Infof("observed %d new order(s)", len(newOrders))
	res, err := p.dispatcher.TryDispatch(ctx)
	if err != nil {
		return len(newOrders), snap, fmt.Errorf("dispatch: %w", err)
	}
	if res.Busy {
		p.log.Debugf("dispatcher busy, trigger dropped")
	}
	return len(newOrders), snap, nil
}

func (p *Poller) recordSnapshot(snap store.Snapshot) {
	for status, n := range snap.OrdersByStatus {
		ordersByStatus.WithLabelValues(status.String()).Set(float64(n))
	}
	if rec, ok := p.sink.(coremetrics.SnapshotRecorder); ok {
		if err := rec.RecordSnapshot(snap); err != nil {
			p.log.Errorf("snapshot metrics error: %v", err)
		}
	}
}
