package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ovenlight/expeditor/core/dispatch"
	"github.com/ovenlight/expeditor/core/stock"
	"github.com/ovenlight/expeditor/infra/mqtt"
)

type Config struct {
	Store    StoreConfig           `json:"store"`
	Poller   dispatch.PollerConfig `json:"poller"`
	Dispatch dispatch.Config       `json:"dispatch"`
	Stock    stock.Config          `json:"stock"`
	Metrics  MetricsConfig         `json:"metrics"`
	MQTT     mqtt.Config           `json:"mqtt"`
	Catalog  CatalogConfig         `json:"catalog"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("EXPO_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "expo_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Store.SetDefaults()
	cfg.Poller.SetDefaults()
	cfg.Dispatch.SetDefaults()
	cfg.Stock.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.MQTT.SetDefaults()
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Stock.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Catalog.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// StoreConfig selects and locates the record store backend.
type StoreConfig struct {
	// Backend selects the store type: "memory" or "sqlite".
	Backend string `json:"backend"`
	// Path is the database file location for the sqlite backend.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "sqlite"
	}
	if c.Path == "" {
		c.Path = "expeditor.db"
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	if c.Backend != "memory" && c.Backend != "sqlite" {
		return fmt.Errorf("unknown store backend %s", c.Backend)
	}
	if c.Backend == "sqlite" && c.Path == "" {
		return fmt.Errorf("store path is required")
	}
	return nil
}

// MetricsConfig defines settings for metrics sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *MetricsConfig) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":2112"
	}
}
