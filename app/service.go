package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ovenlight/expeditor/config"
	"github.com/ovenlight/expeditor/core/assignment"
	"github.com/ovenlight/expeditor/core/dispatch"
	"github.com/ovenlight/expeditor/core/loadindex"
	coremetrics "github.com/ovenlight/expeditor/core/metrics"
	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/core/stock"
	"github.com/ovenlight/expeditor/core/store"
	"github.com/ovenlight/expeditor/infra/logger"
	"github.com/ovenlight/expeditor/infra/metrics"
	"github.com/ovenlight/expeditor/infra/mqtt"
	infrastore "github.com/ovenlight/expeditor/infra/store"
	"github.com/ovenlight/expeditor/internal/eventbus"
)

// seedStore is a record store that also accepts catalog seeds.
type seedStore interface {
	store.RecordStore
	UpsertKitchen(ctx context.Context, k model.Kitchen, itemTypes []string) error
}

// Service wires the store, stock monitor, assignment engine, dispatcher and
// poller from one configuration.
type Service struct {
	Store      store.RecordStore
	Monitor    *stock.Monitor
	Engine     *assignment.Engine
	Dispatcher *dispatch.Dispatcher
	Poller     *dispatch.Poller

	bus         *eventbus.Bus
	sink        coremetrics.Sink
	mqttClient  *mqtt.PahoClient
	log         logger.Logger
	promEnabled bool
	promAddr    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	st, err := newStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := seedCatalog(context.Background(), st, cfg); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("catalog seed: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		sinks = append(sinks, sink)
	}
	var sink coremetrics.Sink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New()
	monitor, err := stock.NewMonitor(st, cfg.Stock, logger.New("stock"), bus)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("stock monitor: %w", err)
	}
	engine, err := assignment.New(st, logger.New("assignment"), bus)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("assignment engine: %w", err)
	}

	var notifier dispatch.Notifier
	var client *mqtt.PahoClient
	if cfg.MQTT.Enabled {
		client, err = mqtt.NewPahoClient(cfg.MQTT, engine)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		notifier = client
	}

	index := loadindex.New(st)
	dispatcher, err := dispatch.New(st, index, monitor, cfg.Dispatch, logger.New("dispatch"), bus, sink, notifier)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	poller, err := dispatch.NewPoller(st, dispatcher, cfg.Poller, logger.New("poller"), sink)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("poller: %w", err)
	}

	return &Service{
		Store:       st,
		Monitor:     monitor,
		Engine:      engine,
		Dispatcher:  dispatcher,
		Poller:      poller,
		bus:         bus,
		sink:        sink,
		mqttClient:  client,
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promAddr:    cfg.Metrics.PrometheusAddr,
	}, nil
}

func newStore(cfg config.StoreConfig) (seedStore, error) {
	switch cfg.Backend {
	case "memory":
		return infrastore.NewMemoryStore(), nil
	default:
		return infrastore.NewSQLiteStore(cfg.Path)
	}
}

// seedCatalog loads the configured kitchens and stock ceilings into the
// store. Stock records already present keep their quantity and history.
func seedCatalog(ctx context.Context, st seedStore, cfg *config.Config) error {
	for _, k := range cfg.Catalog.Kitchens {
		kitchen := model.Kitchen{
			ID:       k.ID,
			Name:     k.Name,
			Active:   !k.Disabled,
			Capacity: k.Capacity,
		}
		if err := st.UpsertKitchen(ctx, kitchen, k.ItemTypes); err != nil {
			return fmt.Errorf("kitchen %s: %w", k.ID, err)
		}
	}
	for _, s := range cfg.Catalog.Stock {
		if _, err := st.GetStockRecord(ctx, s.ItemType); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("stock %s: %w", s.ItemType, err)
		}
		th := cfg.Stock.For(s.Class)
		current := s.Current
		if current == 0 {
			current = s.Capacity
		}
		rec := model.StockRecord{
			ItemType:     s.ItemType,
			Current:      current,
			Capacity:     s.Capacity,
			CriticalFrac: th.Critical,
			LowFrac:      th.Low,
			ReorderFrac:  th.Reorder,
			Unit:         s.Unit,
		}
		if err := st.PutStockRecord(ctx, rec); err != nil {
			return fmt.Errorf("stock %s: %w", s.ItemType, err)
		}
	}
	return nil
}

// Run starts the poller, the event collector and, when enabled, the
// Prometheus endpoint, then blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	go s.Poller.Run(ctx)
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	<-ctx.Done()
	return nil
}

// Close releases the store, broker connection and event bus.
func (s *Service) Close() error {
	if s.mqttClient != nil {
		s.mqttClient.Close()
	}
	s.bus.Close()
	return s.Store.Close()
}
