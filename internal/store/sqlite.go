// Package store persists history-log payloads and per-cycle bookkeeping in
// SQLite. It satisfies the history.KV interface; callers treat read and write
// failures as non-fatal and degrade to an empty log.
package store

import (
	"database/sql"
	"time"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the payload stored under key and whether the key exists.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM history_logs WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

// Put stores the payload under key, replacing any previous value.
func (s *Store) Put(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO history_logs (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, string(value), time.Now().UTC())
	return err
}

// CycleRun is one refresh cycle's bookkeeping row.
type CycleRun struct {
	ID              int64
	StartedAt       time.Time
	CompletedAt     sql.NullTime
	Source          string
	Success         bool
	ErrorMessage    sql.NullString
	RecordsAppended sql.NullInt64
}

// StartCycleRun inserts a run row for the named primary source and returns it
// for completion once the cycle finishes.
func (s *Store) StartCycleRun(source string) (*CycleRun, error) {
	run := &CycleRun{
		StartedAt: time.Now().UTC(),
		Source:    source,
	}
	res, err := s.db.Exec(`
		INSERT INTO cycle_runs (started_at, source)
		VALUES (?, ?)
	`, run.StartedAt, run.Source)
	if err != nil {
		return nil, err
	}
	run.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteCycleRun records the cycle's outcome.
func (s *Store) CompleteCycleRun(run *CycleRun) error {
	_, err := s.db.Exec(`
		UPDATE cycle_runs
		SET completed_at = ?, success = ?, error_message = ?, records_appended = ?
		WHERE id = ?
	`, time.Now().UTC(), run.Success, run.ErrorMessage, run.RecordsAppended, run.ID)
	return err
}

// RecentCycleRuns returns the latest runs, newest first.
func (s *Store) RecentCycleRuns(limit int) ([]CycleRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, completed_at, source, success, error_message, records_appended
		FROM cycle_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []CycleRun
	for rows.Next() {
		var run CycleRun
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.CompletedAt, &run.Source, &run.Success, &run.ErrorMessage, &run.RecordsAppended); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
