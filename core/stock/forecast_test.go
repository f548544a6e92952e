package stock

import (
	"math"
	"testing"
	"time"

	"github.com/ovenlight/expeditor/core/model"
)

// 2026-03-05 is a Thursday, so the seven projected days cover Fri, Sat, Sun
// and four plain weekdays: multiplier sum 1.4+1.4+1.2+4x1.0 = 8.0.
var forecastNow = time.Date(2026, 3, 5, 18, 0, 0, 0, time.UTC)

func defaultMultipliers() Multipliers {
	var cfg Config
	cfg.SetDefaults()
	return cfg.Forecast
}

func dailySamples(quantities ...float64) []model.UsageSample {
	out := make([]model.UsageSample, 0, len(quantities))
	for i, q := range quantities {
		out = append(out, model.UsageSample{
			At:       forecastNow.AddDate(0, 0, i-len(quantities)),
			Quantity: q,
		})
	}
	return out
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestProject_EmptyHistory(t *testing.T) {
	f := Project("Pizza", nil, forecastNow, defaultMultipliers())
	if f.Total != 0 || f.AvgDailyUsage != 0 {
		t.Fatalf("empty history should project zero, got total=%.1f", f.Total)
	}
	if f.Trend != TrendStable {
		t.Fatalf("expected stable trend, got %s", f.Trend)
	}
	if len(f.Daily) != 7 {
		t.Fatalf("expected a 7 day horizon, got %d", len(f.Daily))
	}
}

func TestProject_StableTrend(t *testing.T) {
	history := dailySamples(10, 10, 10, 10, 10, 10, 10, 10, 10, 10)
	f := Project("Pizza", history, forecastNow, defaultMultipliers())

	if f.Trend != TrendStable {
		t.Fatalf("expected stable, got %s", f.Trend)
	}
	if !almostEqual(f.AvgDailyUsage, 10) {
		t.Fatalf("expected avg 10, got %.2f", f.AvgDailyUsage)
	}
	if !almostEqual(f.Total, 10*8.0) {
		t.Fatalf("expected total 80, got %.2f", f.Total)
	}
}

func TestProject_IncreasingTrend(t *testing.T) {
	history := dailySamples(10, 10, 10, 10, 10, 20, 20, 20, 20, 20)
	f := Project("Burgers", history, forecastNow, defaultMultipliers())

	if f.Trend != TrendIncreasing {
		t.Fatalf("expected increasing, got %s", f.Trend)
	}
	if !almostEqual(f.AvgDailyUsage, 15) {
		t.Fatalf("expected avg 15, got %.2f", f.AvgDailyUsage)
	}
	if !almostEqual(f.Total, 15*1.15*8.0) {
		t.Fatalf("expected total %.2f, got %.2f", 15*1.15*8.0, f.Total)
	}
}

func TestProject_DecreasingTrend(t *testing.T) {
	history := dailySamples(10, 10, 10, 10, 10, 5, 5, 5, 5, 5)
	f := Project("Steaks", history, forecastNow, defaultMultipliers())

	if f.Trend != TrendDecreasing {
		t.Fatalf("expected decreasing, got %s", f.Trend)
	}
	if !almostEqual(f.Total, 7.5*0.85*8.0) {
		t.Fatalf("expected total %.2f, got %.2f", 7.5*0.85*8.0, f.Total)
	}
}

func TestProject_SmallShiftStaysStable(t *testing.T) {
	// A five percent bump is inside the stability band.
	history := dailySamples(10, 10, 10, 10, 10, 10.5, 10.5, 10.5, 10.5, 10.5)
	f := Project("Coffee", history, forecastNow, defaultMultipliers())
	if f.Trend != TrendStable {
		t.Fatalf("expected stable within the ten percent band, got %s", f.Trend)
	}
}

func TestProject_IgnoresReplenishmentSamples(t *testing.T) {
	history := dailySamples(10, 10, 10, 10, 10, 10, 10, 10, 10, 10)
	history = append(history, model.UsageSample{
		At:       forecastNow.Add(-time.Hour),
		Quantity: -80,
		Reason:   "replenishment",
	})
	f := Project("Pizza", history, forecastNow, defaultMultipliers())
	if !almostEqual(f.AvgDailyUsage, 10) {
		t.Fatalf("negative samples must not feed the projection, avg=%.2f", f.AvgDailyUsage)
	}
	if f.Trend != TrendStable {
		t.Fatalf("expected stable, got %s", f.Trend)
	}
}

func TestProject_DayOfWeekShape(t *testing.T) {
	history := dailySamples(10, 10, 10, 10, 10, 10, 10, 10, 10, 10)
	f := Project("Pizza", history, forecastNow, defaultMultipliers())

	// Starting from a Thursday the horizon is Fri, Sat, Sun then weekdays.
	want := []float64{14, 14, 12, 10, 10, 10, 10}
	for i, w := range want {
		if !almostEqual(f.Daily[i], w) {
			t.Fatalf("day %d: expected %.1f, got %.2f", i, w, f.Daily[i])
		}
	}
}

func TestConfidence_GrowsWithHistory(t *testing.T) {
	short := Project("Pizza", dailySamples(10, 10), forecastNow, defaultMultipliers())
	long := Project("Pizza", dailySamples(10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10), forecastNow, defaultMultipliers())
	if long.Confidence <= short.Confidence {
		t.Fatalf("more uniform history should raise confidence (%.2f vs %.2f)", long.Confidence, short.Confidence)
	}
}
