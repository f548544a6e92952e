package model

import (
	"fmt"
	"time"
)

// StockLevel classifies the current quantity of an item against its
// configured threshold fractions.
type StockLevel int

const (
	LevelNormal StockLevel = iota
	LevelApproaching
	LevelLow
	LevelCritical
)

// String returns a human-readable representation of the stock level.
func (l StockLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelApproaching:
		return "approaching"
	case LevelLow:
		return "low"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// UsageSample records one consumption or replenishment event.
type UsageSample struct {
	At         time.Time `json:"at"`
	Quantity   float64   `json:"quantity"`
	StockAfter float64   `json:"stock_after"`
	Reason     string    `json:"reason"`
}

// StockRecord is the tracked quantity/capacity/threshold state for one item
// type. Thresholds are fractions of the capacity ceiling.
type StockRecord struct {
	ItemType     string
	Current      float64
	Capacity     float64
	CriticalFrac float64
	LowFrac      float64
	ReorderFrac  float64
	Unit         string
	Usage        []UsageSample
	UpdatedAt    time.Time
}

// Level classifies the record: current <= critical -> critical,
// <= low -> low, <= reorder -> approaching, otherwise normal.
func (r StockRecord) Level() StockLevel {
	if r.Capacity <= 0 {
		return LevelNormal
	}
	switch {
	case r.Current <= r.Capacity*r.CriticalFrac:
		return LevelCritical
	case r.Current <= r.Capacity*r.LowFrac:
		return LevelLow
	case r.Current <= r.Capacity*r.ReorderFrac:
		return LevelApproaching
	default:
		return LevelNormal
	}
}

// AlertSeverity grades a threshold crossing.
type AlertSeverity int

const (
	SeverityInfo AlertSeverity = iota
	SeverityWarning
	SeverityCritical
)

// String returns a human-readable representation of the severity.
func (s AlertSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseAlertSeverity converts the stored string form back to a severity.
func ParseAlertSeverity(s string) (AlertSeverity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown alert severity %q", s)
	}
}

// SeverityFor maps a stock level to the severity of the alert raised when the
// level is first reached. LevelNormal raises no alert.
func SeverityFor(l StockLevel) (AlertSeverity, bool) {
	switch l {
	case LevelApproaching:
		return SeverityInfo, true
	case LevelLow:
		return SeverityWarning, true
	case LevelCritical:
		return SeverityCritical, true
	default:
		return SeverityInfo, false
	}
}

// Alert records a threshold crossing requiring attention. Alerts are never
// deleted, only resolved once stock recovers.
type Alert struct {
	ID         string
	ItemType   string
	Severity   AlertSeverity
	Message    string
	Resolved   bool
	CreatedAt  time.Time
	ResolvedAt time.Time
}

// ReplenishmentRequest asks procurement or production to restock an item.
// Priority and lead time scale with the severity that triggered it.
type ReplenishmentRequest struct {
	ID        string
	ItemType  string
	Quantity  float64
	Priority  AlertSeverity
	LeadTime  time.Duration
	Reason    string
	Received  bool
	CreatedAt time.Time
}
