// Package history owns the comparison logs: key derivation, the append dedup
// window, retention pruning, and detection of legacy payload formats. The
// persistence medium is an injected key-value byte store.
package history

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"forecastskill/internal/models"
)

const keyPrefix = "forecast_history_"

// KV is the byte store history logs are persisted to.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
}

// Key derives the storage key for a sensor's log. Separators in the sensor id
// are normalized to underscores; qualifier names a secondary reference source
// and is empty for the primary log.
func Key(sensorID, qualifier string) string {
	id := strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(sensorID)
	if qualifier == "" {
		return keyPrefix + id
	}
	return keyPrefix + id + "_" + qualifier
}

// DedupWindow is the span after a stored comparison during which further
// append attempts are suppressed: 80% of the refresh interval, so a timer
// double-fire never records twice.
func DedupWindow(refreshInterval time.Duration) time.Duration {
	return refreshInterval * 4 / 5
}

// Store reads and writes history logs through an injected KV.
type Store struct {
	kv  KV
	now func() time.Time
}

// New builds a Store. now may be nil, in which case time.Now is used.
func New(kv KV, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{kv: kv, now: now}
}

// Load returns the log stored under key. Absent keys, legacy-format payloads
// and undecodable payloads all yield the canonical empty log; a legacy shape
// is discarded wholesale rather than coerced field by field.
func (s *Store) Load(key string) (models.HistoryLog, error) {
	raw, ok, err := s.kv.Get(key)
	if err != nil {
		return models.HistoryLog{}, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return models.HistoryLog{}, nil
	}
	if legacyFormat(raw) {
		log.Printf("history: %s holds a legacy payload, resetting", key)
		return models.HistoryLog{}, nil
	}

	var hl models.HistoryLog
	if err := json.Unmarshal(raw, &hl); err != nil {
		log.Printf("history: %s is undecodable (%v), resetting", key, err)
		return models.HistoryLog{}, nil
	}
	return hl, nil
}

// legacyFormat reports whether raw predates the comparison-record schema:
// either the retired pending-forecasts shape, or a first record whose
// forecast field is not a plain number.
func legacyFormat(raw []byte) bool {
	if gjson.GetBytes(raw, "pending_forecasts").Exists() {
		return true
	}
	first := gjson.GetBytes(raw, "records.0")
	if first.Exists() && first.Get("forecast").Type != gjson.Number {
		return true
	}
	return false
}

// Save writes the log under key.
func (s *Store) Save(key string, hl models.HistoryLog) error {
	raw, err := json.Marshal(hl)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Put(key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Append stores rec unless any existing record falls inside the dedup window,
// and reports whether the record was written.
func (s *Store) Append(key string, rec models.ComparisonRecord, dedupWindow time.Duration) (bool, error) {
	hl, err := s.Load(key)
	if err != nil {
		return false, err
	}

	cutoff := s.now().Add(-dedupWindow)
	for _, existing := range hl.Records {
		if existing.Timestamp.After(cutoff) {
			return false, nil
		}
	}

	hl.Records = append(hl.Records, rec)
	hl.LastUpdated = s.now()
	if err := s.Save(key, hl); err != nil {
		return false, err
	}
	return true, nil
}

// Prune drops records older than the retention window. It runs every cycle,
// including cycles whose append was dedup-suppressed.
func (s *Store) Prune(key string, retentionDays int) error {
	hl, err := s.Load(key)
	if err != nil {
		return err
	}

	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	i := 0
	for i < len(hl.Records) && hl.Records[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return nil
	}

	hl.Records = append([]models.ComparisonRecord(nil), hl.Records[i:]...)
	return s.Save(key, hl)
}
