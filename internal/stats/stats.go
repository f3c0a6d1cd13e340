// Package stats derives forecast-quality metrics from a comparison history.
// All statistics are recomputed in full from the retained record set; nothing
// here is persisted.
package stats

import (
	"math"
	"time"

	"forecastskill/internal/models"
)

// Trend classifies how forecast error is moving over the last two days.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDegrading Trend = "degrading"
	TrendStable    Trend = "stable"
)

const (
	// AccuracyThreshold is the absolute delta, in display units, at or under
	// which a comparison counts as accurate.
	AccuracyThreshold = 2.0

	// trendThreshold is the MAE shift between the two trend partitions that
	// moves the trend off stable.
	trendThreshold = 0.5

	// recentWindowCap bounds the series handed to charting consumers:
	// 7 days of hourly samples.
	recentWindowCap = 168

	trendPartition   = 24 * time.Hour
	minPartitionSize = 2
)

// Statistics summarizes a history log. MAE, Bias and Accuracy are nil when
// the log is empty.
type Statistics struct {
	MAE          *float64                  `json:"mae"`
	Bias         *float64                  `json:"bias"`
	Accuracy     *float64                  `json:"accuracy"`
	Trend        Trend                     `json:"trend"`
	RecordCount  int                       `json:"record_count"`
	RecentWindow []models.ComparisonRecord `json:"recent_window"`
}

// Compute derives statistics from records, which must be in timestamp order.
// MAE, bias and accuracy cover the full retained set; RecentWindow is only
// capped for presentation.
func Compute(records []models.ComparisonRecord, now time.Time) Statistics {
	st := Statistics{
		Trend:        TrendStable,
		RecentWindow: []models.ComparisonRecord{},
	}
	if len(records) == 0 {
		return st
	}

	var sumAbs, sum float64
	accurate := 0
	for _, r := range records {
		sumAbs += math.Abs(r.Delta)
		sum += r.Delta
		if math.Abs(r.Delta) <= AccuracyThreshold {
			accurate++
		}
	}

	n := float64(len(records))
	m := sumAbs / n
	b := sum / n
	acc := 100 * float64(accurate) / n

	st.MAE = &m
	st.Bias = &b
	st.Accuracy = &acc
	st.Trend = trend(records, now)
	st.RecordCount = len(records)

	window := records
	if len(window) > recentWindowCap {
		window = window[len(window)-recentWindowCap:]
	}
	st.RecentWindow = append(st.RecentWindow, window...)

	return st
}

// trend compares the MAE of the last 24 hours against the 24 hours before
// that. Either partition having fewer than two records yields stable.
func trend(records []models.ComparisonRecord, now time.Time) Trend {
	dayAgo := now.Add(-trendPartition)
	twoDaysAgo := now.Add(-2 * trendPartition)

	var recent, previous []models.ComparisonRecord
	for _, r := range records {
		switch {
		case r.Timestamp.After(dayAgo):
			recent = append(recent, r)
		case r.Timestamp.After(twoDaysAgo):
			previous = append(previous, r)
		}
	}

	if len(recent) < minPartitionSize || len(previous) < minPartitionSize {
		return TrendStable
	}

	diff := mae(recent) - mae(previous)
	switch {
	case diff < -trendThreshold:
		return TrendImproving
	case diff > trendThreshold:
		return TrendDegrading
	}
	return TrendStable
}

func mae(records []models.ComparisonRecord) float64 {
	var sum float64
	for _, r := range records {
		sum += math.Abs(r.Delta)
	}
	return sum / float64(len(records))
}
