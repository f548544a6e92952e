// Package stock maintains per-item availability classification, raises and
// resolves threshold alerts, synthesizes replenishment requests and exposes
// the availability gate consulted before allocation.
package stock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ovenlight/expeditor/core/events"
	"github.com/ovenlight/expeditor/core/logger"
	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/core/store"
	"github.com/ovenlight/expeditor/internal/eventbus"
)

// Store is the subset of the record store the monitor mutates.
type Store interface {
	GetStockRecord(ctx context.Context, itemType string) (model.StockRecord, error)
	PutStockRecord(ctx context.Context, r model.StockRecord) error
	ListStockRecords(ctx context.Context) ([]model.StockRecord, error)
	InsertAlert(ctx context.Context, a model.Alert) error
	ResolveAlerts(ctx context.Context, itemType string, above model.AlertSeverity, at time.Time) (int, error)
	InsertReplenishment(ctx context.Context, r model.ReplenishmentRequest) error
	MarkReplenishmentReceived(ctx context.Context, id string) error
}

// Monitor evaluates stock records against thresholds on every mutation.
// Consumption events arrive both from the dispatcher and from external
// waste/adjustment reporting, so all mutations are serialized.
type Monitor struct {
	store Store
	cfg   Config
	log   logger.Logger
	bus   eventbus.EventBus
	mu    sync.Mutex
	now   func() time.Time
}

// NewMonitor creates a Monitor. The bus may be nil.
func NewMonitor(st Store, cfg Config, log logger.Logger, bus eventbus.EventBus) (*Monitor, error) {
	if st == nil || log == nil {
		return nil, fmt.Errorf("stock: nil parameter provided to NewMonitor")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Monitor{store: st, cfg: cfg, log: log, bus: bus, now: time.Now}, nil
}

// Available reports whether the item may currently be fulfilled. Items
// classified critical are gated out; items without a stock record are not
// tracked and pass the gate.
func (m *Monitor) Available(ctx context.Context, itemType string) (bool, error) {
	rec, err := m.store.GetStockRecord(ctx, itemType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return rec.Level() != model.LevelCritical, nil
}

// ApplyConsumption deducts quantity from the item's stock, appends a usage
// sample and re-evaluates the classification. Reason distinguishes usage,
// waste and manual adjustments.
func (m *Monitor) ApplyConsumption(ctx context.Context, itemType string, qty float64, reason string) (model.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.GetStockRecord(ctx, itemType)
	if err != nil {
		return model.StockRecord{}, err
	}
	before := rec.Level()

	rec.Current -= qty
	if rec.Current < 0 {
		rec.Current = 0
	}
	now := m.now()
	rec.UpdatedAt = now
	rec.Usage = append(rec.Usage, model.UsageSample{
		At:         now,
		Quantity:   qty,
		StockAfter: rec.Current,
		Reason:     reason,
	})
	if n := len(rec.Usage); n > m.cfg.HistoryLimit {
		rec.Usage = rec.Usage[n-m.cfg.HistoryLimit:]
	}
	if err := m.store.PutStockRecord(ctx, rec); err != nil {
		return model.StockRecord{}, err
	}
	m.log.Debugw("stock consumed", map[string]any{
		"item_type": itemType,
		"quantity":  qty,
		"reason":    reason,
		"current":   rec.Current,
	})

	if err := m.reclassify(ctx, rec, before); err != nil {
		return rec, err
	}
	return rec, nil
}

// Replenish adds received quantity up to the capacity ceiling and resolves
// alerts the recovery clears. A replenishment request identifier may be given
// to mark the originating request received.
func (m *Monitor) Replenish(ctx context.Context, itemType string, qty float64, requestID string) (model.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.GetStockRecord(ctx, itemType)
	if err != nil {
		return model.StockRecord{}, err
	}
	before := rec.Level()

	rec.Current += qty
	if rec.Current > rec.Capacity {
		rec.Current = rec.Capacity
	}
	now := m.now()
	rec.UpdatedAt = now
	rec.Usage = append(rec.Usage, model.UsageSample{
		At:         now,
		Quantity:   -qty,
		StockAfter: rec.Current,
		Reason:     "replenishment",
	})
	if n := len(rec.Usage); n > m.cfg.HistoryLimit {
		rec.Usage = rec.Usage[n-m.cfg.HistoryLimit:]
	}
	if err := m.store.PutStockRecord(ctx, rec); err != nil {
		return model.StockRecord{}, err
	}
	if requestID != "" {
		if err := m.store.MarkReplenishmentReceived(ctx, requestID); err != nil {
			m.log.Warnf("replenishment %s: %v", requestID, err)
		}
	}
	m.log.Infof("replenished %s: +%.1f %s (now %.1f)", itemType, qty, rec.Unit, rec.Current)

	if err := m.reclassify(ctx, rec, before); err != nil {
		return rec, err
	}
	return rec, nil
}

// reclassify compares the level before and after a mutation. Escalations
// raise exactly one alert at the new severity; recoveries resolve the alerts
// the new level no longer justifies. History is never deleted.
func (m *Monitor) reclassify(ctx context.Context, rec model.StockRecord, before model.StockLevel) error {
	after := rec.Level()
	if after == before {
		return nil
	}

	if after > before {
		return m.escalate(ctx, rec, after)
	}

	floor := model.AlertSeverity(-1)
	if sev, ok := model.SeverityFor(after); ok {
		floor = sev
	}
	n, err := m.store.ResolveAlerts(ctx, rec.ItemType, floor, m.now())
	if err != nil {
		return err
	}
	if n > 0 {
		m.log.Infof("%s recovered to %s, resolved %d alert(s)", rec.ItemType, after, n)
	}
	return nil
}

func (m *Monitor) escalate(ctx context.Context, rec model.StockRecord, level model.StockLevel) error {
	sev, ok := model.SeverityFor(level)
	if !ok {
		return nil
	}
	pct := 0.0
	if rec.Capacity > 0 {
		pct = rec.Current / rec.Capacity * 100
	}
	alert := model.Alert{
		ID:        uuid.NewString(),
		ItemType:  rec.ItemType,
		Severity:  sev,
		Message:   fmt.Sprintf("%s stock at %.1f%% (%s)", rec.ItemType, pct, level),
		CreatedAt: m.now(),
	}
	if err := m.store.InsertAlert(ctx, alert); err != nil {
		return err
	}
	m.log.Warnf("stock alert [%s] %s", sev, alert.Message)
	if m.bus != nil {
		m.bus.Publish(events.StockAlertEvent{Alert: alert, Record: rec})
	}

	if level >= model.LevelLow {
		return m.requestReplenishment(ctx, rec, sev)
	}
	return nil
}

// requestReplenishment sizes a production/purchase request for the item. The
// quantity covers the forecast demand when history supports one, otherwise it
// refills to capacity. Lead time shrinks with severity.
func (m *Monitor) requestReplenishment(ctx context.Context, rec model.StockRecord, sev model.AlertSeverity) error {
	qty := rec.Capacity - rec.Current
	fc := Project(rec.ItemType, rec.Usage, m.now(), m.cfg.Forecast)
	if fc.Total > qty {
		qty = fc.Total
	}
	lead := time.Duration(m.cfg.LowLeadHours) * time.Hour
	if sev == model.SeverityCritical {
		lead = time.Duration(m.cfg.CriticalLeadHours) * time.Hour
	}
	req := model.ReplenishmentRequest{
		ID:        uuid.NewString(),
		ItemType:  rec.ItemType,
		Quantity:  qty,
		Priority:  sev,
		LeadTime:  lead,
		Reason:    fmt.Sprintf("stock %s, forecast trend %s", rec.Level(), fc.Trend),
		CreatedAt: m.now(),
	}
	if err := m.store.InsertReplenishment(ctx, req); err != nil {
		return err
	}
	m.log.Infof("replenishment requested for %s: %.1f %s within %s", rec.ItemType, qty, rec.Unit, lead)
	if m.bus != nil {
		m.bus.Publish(events.ReplenishmentEvent{Request: req})
	}
	return nil
}

// Forecast returns the heuristic usage projection for one item.
func (m *Monitor) Forecast(ctx context.Context, itemType string) (Forecast, error) {
	rec, err := m.store.GetStockRecord(ctx, itemType)
	if err != nil {
		return Forecast{}, err
	}
	return Project(itemType, rec.Usage, m.now(), m.cfg.Forecast), nil
}

// Status lists all stock records with their classification.
func (m *Monitor) Status(ctx context.Context) ([]model.StockRecord, error) {
	return m.store.ListStockRecords(ctx)
}
