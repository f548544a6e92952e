package stock

import "fmt"

// Thresholds are fractions of the capacity ceiling at which an item is
// classified critical, low or approaching the reorder point.
type Thresholds struct {
	Critical float64 `json:"critical"`
	Low      float64 `json:"low"`
	Reorder  float64 `json:"reorder"`
}

// Multipliers tune the heuristic forecast.
type Multipliers struct {
	TrendIncreasing float64 `json:"trend_increasing"`
	TrendDecreasing float64 `json:"trend_decreasing"`
	TrendStable     float64 `json:"trend_stable"`
	Weekday         float64 `json:"weekday"`
	FridaySaturday  float64 `json:"friday_saturday"`
	Sunday          float64 `json:"sunday"`
}

// Config defines stock monitor settings loaded from configuration. Threshold
// fractions can be overridden per item class.
type Config struct {
	Default      Thresholds            `json:"default"`
	Classes      map[string]Thresholds `json:"classes"`
	HistoryLimit int                   `json:"history_limit"`
	// CriticalLeadHours and LowLeadHours are the target lead times of
	// replenishment requests; shorter for more severe shortages.
	CriticalLeadHours int         `json:"critical_lead_hours"`
	LowLeadHours      int         `json:"low_lead_hours"`
	Forecast          Multipliers `json:"forecast"`
}

// SetDefaults applies the observed defaults: critical 10%, low 25%, reorder
// point 20% of capacity, 100 usage history entries.
func (c *Config) SetDefaults() {
	if c.Default.Critical == 0 {
		c.Default.Critical = 0.10
	}
	if c.Default.Low == 0 {
		c.Default.Low = 0.25
	}
	if c.Default.Reorder == 0 {
		c.Default.Reorder = 0.20
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 100
	}
	if c.CriticalLeadHours == 0 {
		c.CriticalLeadHours = 4
	}
	if c.LowLeadHours == 0 {
		c.LowLeadHours = 24
	}
	if c.Forecast.TrendIncreasing == 0 {
		c.Forecast.TrendIncreasing = 1.15
	}
	if c.Forecast.TrendDecreasing == 0 {
		c.Forecast.TrendDecreasing = 0.85
	}
	if c.Forecast.TrendStable == 0 {
		c.Forecast.TrendStable = 1.0
	}
	if c.Forecast.Weekday == 0 {
		c.Forecast.Weekday = 1.0
	}
	if c.Forecast.FridaySaturday == 0 {
		c.Forecast.FridaySaturday = 1.4
	}
	if c.Forecast.Sunday == 0 {
		c.Forecast.Sunday = 1.2
	}
}

// Validate checks threshold ordering for the default class and overrides.
func (c Config) Validate() error {
	if err := c.Default.validate("default"); err != nil {
		return err
	}
	for class, t := range c.Classes {
		if err := t.validate(class); err != nil {
			return err
		}
	}
	return nil
}

func (t Thresholds) validate(class string) error {
	if t.Critical <= 0 || t.Critical >= 1 {
		return fmt.Errorf("stock: class %s: critical fraction must be in (0,1)", class)
	}
	if t.Low <= t.Critical || t.Low >= 1 {
		return fmt.Errorf("stock: class %s: low fraction must be above critical and below 1", class)
	}
	if t.Reorder <= t.Critical {
		return fmt.Errorf("stock: class %s: reorder point must be above critical", class)
	}
	return nil
}

// For returns the thresholds for an item class, falling back to the default.
func (c Config) For(class string) Thresholds {
	if t, ok := c.Classes[class]; ok {
		return t
	}
	return c.Default
}
