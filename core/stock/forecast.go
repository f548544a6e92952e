package stock

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ovenlight/expeditor/core/model"
)

// Trend summarizes the direction of recent usage.
type Trend int

const (
	TrendStable Trend = iota
	TrendIncreasing
	TrendDecreasing
)

// String returns a human-readable representation of the trend.
func (t Trend) String() string {
	switch t {
	case TrendIncreasing:
		return "increasing"
	case TrendDecreasing:
		return "decreasing"
	case TrendStable:
		return "stable"
	default:
		return "unknown"
	}
}

// Forecast is the typed result of the usage projection. Confidence is
// informational metadata, never enforced.
type Forecast struct {
	ItemType      string
	Daily         []float64
	Total         float64
	AvgDailyUsage float64
	Trend         Trend
	Confidence    float64
	GeneratedAt   time.Time
}

// trendWindow is the number of samples compared on each side when deriving
// the trend.
const trendWindow = 5

// forecastDays is the projection horizon.
const forecastDays = 7

// Project computes a 7-day usage forecast from historical samples:
// averageDailyUsage x trendMultiplier x dayOfWeekMultiplier per day. The
// trend compares the mean of the most recent five samples against the
// preceding five. Pure function so it can be unit-tested without store
// access.
func Project(itemType string, history []model.UsageSample, now time.Time, m Multipliers) Forecast {
	f := Forecast{ItemType: itemType, Trend: TrendStable, GeneratedAt: now}
	// Replenishment entries carry negative quantities; only consumption
	// feeds the projection.
	samples := make([]model.UsageSample, 0, len(history))
	for _, s := range history {
		if s.Quantity > 0 {
			samples = append(samples, s)
		}
	}
	if len(samples) == 0 {
		f.Daily = make([]float64, forecastDays)
		return f
	}

	f.AvgDailyUsage = averageDaily(samples)
	f.Trend = deriveTrend(samples)

	trendMult := m.TrendStable
	switch f.Trend {
	case TrendIncreasing:
		trendMult = m.TrendIncreasing
	case TrendDecreasing:
		trendMult = m.TrendDecreasing
	}

	f.Daily = make([]float64, forecastDays)
	for day := 0; day < forecastDays; day++ {
		weekday := now.AddDate(0, 0, day+1).Weekday()
		f.Daily[day] = f.AvgDailyUsage * trendMult * dayOfWeekMultiplier(weekday, m)
		f.Total += f.Daily[day]
	}
	f.Confidence = confidence(samples)
	return f
}

// averageDaily buckets samples per calendar day and returns the mean daily
// consumption.
func averageDaily(samples []model.UsageSample) float64 {
	days := map[string]float64{}
	for _, s := range samples {
		days[s.At.Format("2006-01-02")] += s.Quantity
	}
	totals := make([]float64, 0, len(days))
	for _, q := range days {
		totals = append(totals, q)
	}
	if len(totals) == 0 {
		return 0
	}
	return stat.Mean(totals, nil)
}

// deriveTrend compares the most recent samples to the preceding window. A
// shift of more than ten percent in either direction counts as a trend.
func deriveTrend(samples []model.UsageSample) Trend {
	if len(samples) < 2*trendWindow {
		return TrendStable
	}
	recent := make([]float64, 0, trendWindow)
	previous := make([]float64, 0, trendWindow)
	for _, s := range samples[len(samples)-trendWindow:] {
		recent = append(recent, s.Quantity)
	}
	for _, s := range samples[len(samples)-2*trendWindow : len(samples)-trendWindow] {
		previous = append(previous, s.Quantity)
	}
	prevMean := stat.Mean(previous, nil)
	recentMean := stat.Mean(recent, nil)
	if prevMean == 0 {
		if recentMean > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}
	switch ratio := recentMean / prevMean; {
	case ratio > 1.10:
		return TrendIncreasing
	case ratio < 0.90:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func dayOfWeekMultiplier(d time.Weekday, m Multipliers) float64 {
	switch d {
	case time.Friday, time.Saturday:
		return m.FridaySaturday
	case time.Sunday:
		return m.Sunday
	default:
		return m.Weekday
	}
}

// confidence grows with sample count and shrinks with usage variance.
func confidence(samples []model.UsageSample) float64 {
	qs := make([]float64, 0, len(samples))
	for _, s := range samples {
		qs = append(qs, s.Quantity)
	}
	coverage := float64(len(qs)) / 50.0
	if coverage > 1 {
		coverage = 1
	}
	mean := stat.Mean(qs, nil)
	if mean == 0 || len(qs) < 2 {
		return 0.25 * coverage
	}
	cv := stat.StdDev(qs, nil) / mean
	stability := 1.0 / (1.0 + cv)
	return coverage * stability
}
