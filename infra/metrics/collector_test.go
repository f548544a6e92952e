package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ovenlight/expeditor/core/events"
	coremetrics "github.com/ovenlight/expeditor/core/metrics"
	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/internal/eventbus"
)

type alertCapture struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func (c *alertCapture) RecordDispatch([]coremetrics.DispatchRecord) error { return nil }

func (c *alertCapture) RecordAlert(a model.Alert) error {
	c.mu.Lock()
	c.alerts = append(c.alerts, a)
	c.mu.Unlock()
	return nil
}

func (c *alertCapture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func TestEventCollector_ForwardsStockAlerts(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &alertCapture{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartEventCollector(ctx, bus, sink)

	alert := model.Alert{ID: "a1", ItemType: "Pizza", Severity: model.SeverityCritical}
	bus.Publish(events.StockAlertEvent{Alert: alert})

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("alert never reached the sink")
		}
		time.Sleep(10 * time.Millisecond)
	}
	sink.mu.Lock()
	got := sink.alerts[0]
	sink.mu.Unlock()
	if got.ID != "a1" || got.Severity != model.SeverityCritical {
		t.Fatalf("unexpected alert forwarded: %+v", got)
	}
}

func TestEventCollector_SinkWithoutAlertCapability(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartEventCollector(ctx, bus, coremetrics.NopSink{})
	bus.Publish(events.StockAlertEvent{Alert: model.Alert{ID: "a1"}})
	// No AlertRecorder on the sink; the event is dropped without panicking.
	time.Sleep(20 * time.Millisecond)
}

func TestEventCollector_NilArguments(t *testing.T) {
	StartEventCollector(context.Background(), nil, &alertCapture{})
	StartEventCollector(context.Background(), eventbus.New(), nil)
}
