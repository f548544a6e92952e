package metrics

import (
	"context"

	"github.com/ovenlight/expeditor/core/events"
	coremetrics "github.com/ovenlight/expeditor/core/metrics"
	"github.com/ovenlight/expeditor/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards events to the
// sink capabilities it implements. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.Sink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.StockAlertEvent:
					if r, ok := sink.(coremetrics.AlertRecorder); ok {
						_ = r.RecordAlert(e.Alert)
					}
				}
			}
		}
	}()
}
