package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/ovenlight/expeditor/core/metrics"
	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/core/store"
	"github.com/ovenlight/expeditor/infra/logger"
)

// InfluxSink writes dispatch events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB
// endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordDispatch writes each created assignment as a point.
func (s *InfluxSink) RecordDispatch(recs []coremetrics.DispatchRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range recs {
		p := write.NewPointWithMeasurement("assignment_event").
			AddTag("kitchen_id", r.KitchenID).
			AddTag("item_type", r.ItemType).
			AddTag("reassigned", boolLabel(r.Reassigned)).
			AddTag("component", "dispatcher").
			AddField("order_id", r.OrderID).
			AddField("quantity", r.Quantity).
			SetTime(r.At)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordSnapshot persists the poller snapshot.
func (s *InfluxSink) RecordSnapshot(snap store.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("order_snapshot").
		AddTag("component", "poller").
		AddField("items_today", snap.ItemsToday).
		AddField("revenue_today", snap.RevenueToday).
		SetTime(snap.TakenAt)
	for status, n := range snap.OrdersByStatus {
		p.AddField("orders_"+status.String(), n)
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAlert persists a stock alert.
func (s *InfluxSink) RecordAlert(a model.Alert) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("stock_alert").
		AddTag("item_type", a.ItemType).
		AddTag("severity", a.Severity.String()).
		AddField("message", a.Message).
		SetTime(a.CreatedAt)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close shuts down the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }
