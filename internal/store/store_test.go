package store

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestGet_MissingKey(t *testing.T) {
	store := setupTestStore(t)

	_, ok, err := store.Get("forecast_history_sensor_outdoor_temp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get of absent key reported ok")
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	key := "forecast_history_sensor_outdoor_temp"
	payload := []byte(`{"records":[],"last_updated":0}`)

	if err := store.Put(key, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get reported missing after Put")
	}
	if string(got) != string(payload) {
		t.Errorf("Get = %s, want %s", got, payload)
	}
}

func TestPut_Replaces(t *testing.T) {
	store := setupTestStore(t)
	key := "forecast_history_sensor_outdoor_temp"

	if err := store.Put(key, []byte(`{"records":[],"last_updated":0}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	updated := []byte(`{"records":[{"timestamp":1,"forecast":22,"actual":20,"delta":2}],"last_updated":1}`)
	if err := store.Put(key, updated); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, _, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(updated) {
		t.Errorf("Get = %s, want %s", got, updated)
	}
}

func TestCycleRuns(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartCycleRun("coordinates")
	if err != nil {
		t.Fatalf("StartCycleRun: %v", err)
	}
	if run.ID == 0 {
		t.Error("run ID not assigned")
	}

	run.Success = true
	run.RecordsAppended = sql.NullInt64{Int64: 2, Valid: true}
	if err := store.CompleteCycleRun(run); err != nil {
		t.Fatalf("CompleteCycleRun: %v", err)
	}

	failed, err := store.StartCycleRun("coordinates")
	if err != nil {
		t.Fatalf("StartCycleRun: %v", err)
	}
	failed.ErrorMessage = sql.NullString{String: "sensor unavailable", Valid: true}
	if err := store.CompleteCycleRun(failed); err != nil {
		t.Fatalf("CompleteCycleRun: %v", err)
	}

	runs, err := store.RecentCycleRuns(10)
	if err != nil {
		t.Fatalf("RecentCycleRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	for _, r := range runs {
		if !r.CompletedAt.Valid {
			t.Errorf("run %d has no completed_at", r.ID)
		}
	}

	var success, failure *CycleRun
	for i := range runs {
		if runs[i].Success {
			success = &runs[i]
		} else {
			failure = &runs[i]
		}
	}
	if success == nil || !success.RecordsAppended.Valid || success.RecordsAppended.Int64 != 2 {
		t.Errorf("successful run = %+v, want records_appended 2", success)
	}
	if failure == nil || failure.ErrorMessage.String != "sensor unavailable" {
		t.Errorf("failed run = %+v, want error message recorded", failure)
	}
}
