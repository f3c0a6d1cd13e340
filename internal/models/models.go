package models

import (
	"encoding/json"
	"time"
)

// ComparisonRecord is a single forecast-vs-actual temperature sample.
// Delta is fixed at creation time as forecast - actual and never recomputed.
type ComparisonRecord struct {
	Timestamp time.Time
	Forecast  float64
	Actual    float64
	Delta     float64

	// Lookahead carries the forecast at the configured lookahead horizon,
	// when one is configured. Display only, never used for statistics.
	Lookahead *float64
}

// NewComparisonRecord builds a record with its delta locked in.
func NewComparisonRecord(ts time.Time, forecast, actual float64, lookahead *float64) ComparisonRecord {
	return ComparisonRecord{
		Timestamp: ts,
		Forecast:  forecast,
		Actual:    actual,
		Delta:     forecast - actual,
		Lookahead: lookahead,
	}
}

// recordJSON is the persisted wire shape; timestamps are epoch milliseconds.
type recordJSON struct {
	Timestamp int64    `json:"timestamp"`
	Forecast  float64  `json:"forecast"`
	Actual    float64  `json:"actual"`
	Delta     float64  `json:"delta"`
	Lookahead *float64 `json:"forecast_ahead,omitempty"`
}

func (r ComparisonRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Timestamp: r.Timestamp.UnixMilli(),
		Forecast:  r.Forecast,
		Actual:    r.Actual,
		Delta:     r.Delta,
		Lookahead: r.Lookahead,
	})
}

func (r *ComparisonRecord) UnmarshalJSON(data []byte) error {
	var rj recordJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}
	r.Timestamp = time.UnixMilli(rj.Timestamp).UTC()
	r.Forecast = rj.Forecast
	r.Actual = rj.Actual
	r.Delta = rj.Delta
	r.Lookahead = rj.Lookahead
	return nil
}

// HistoryLog is the ordered, deduplicated, age-pruned comparison history for
// one storage key. Records are strictly in insertion order.
type HistoryLog struct {
	Records     []ComparisonRecord
	LastUpdated time.Time
}

type logJSON struct {
	Records     []ComparisonRecord `json:"records"`
	LastUpdated int64              `json:"last_updated"`
}

func (l HistoryLog) MarshalJSON() ([]byte, error) {
	lj := logJSON{Records: l.Records}
	if lj.Records == nil {
		lj.Records = []ComparisonRecord{}
	}
	if !l.LastUpdated.IsZero() {
		lj.LastUpdated = l.LastUpdated.UnixMilli()
	}
	return json.Marshal(lj)
}

func (l *HistoryLog) UnmarshalJSON(data []byte) error {
	var lj logJSON
	if err := json.Unmarshal(data, &lj); err != nil {
		return err
	}
	l.Records = lj.Records
	if lj.LastUpdated != 0 {
		l.LastUpdated = time.UnixMilli(lj.LastUpdated).UTC()
	} else {
		l.LastUpdated = time.Time{}
	}
	return nil
}
