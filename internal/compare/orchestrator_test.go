package compare

import (
	"context"
	"errors"
	"testing"
	"time"

	"forecastskill/internal/history"
	"forecastskill/internal/models"
	"forecastskill/internal/source"
	"forecastskill/internal/store"
)

type fakeSensor struct {
	value float64
	unit  string
	err   error
}

func (f *fakeSensor) Read(ctx context.Context) (float64, string, error) {
	if f.err != nil {
		return 0, "", f.err
	}
	return f.value, f.unit, nil
}

type fakeAdapter struct {
	name         string
	current      float64
	currentErr   error
	lookahead    float64
	lookaheadErr error
	calls        int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) FetchCurrent(ctx context.Context) (float64, error) {
	f.calls++
	if f.currentErr != nil {
		return 0, f.currentErr
	}
	return f.current, nil
}

func (f *fakeAdapter) FetchLookahead(ctx context.Context, horizon time.Duration) (float64, error) {
	if f.lookaheadErr != nil {
		return 0, f.lookaheadErr
	}
	return f.lookahead, nil
}

type memKV struct {
	data map[string][]byte
}

func (m *memKV) Get(key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Put(key string, value []byte) error {
	m.data[key] = value
	return nil
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	orch    *Orchestrator
	sensor  *fakeSensor
	primary *fakeAdapter
	kv      *memKV
	clock   *clock
}

func newHarness(t *testing.T, secondary source.Adapter) *harness {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	sens := &fakeSensor{value: 20.0, unit: "°C"}
	primary := &fakeAdapter{name: "coordinates", current: 22.0}
	kv := &memKV{data: map[string][]byte{}}

	orch := New(Config{
		Sensor:        sens,
		Primary:       primary,
		Secondary:     secondary,
		History:       history.New(kv, clk.now),
		SensorID:      "sensor.outdoor_temp",
		DisplayUnit:   "C",
		Interval:      30 * time.Minute,
		RetentionDays: 7,
		Now:           clk.now,
	})
	return &harness{orch: orch, sensor: sens, primary: primary, kv: kv, clock: clk}
}

func TestTick_RecordsComparison(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.orch.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if res.CurrentForecast == nil || *res.CurrentForecast != 22.0 {
		t.Errorf("CurrentForecast = %v, want 22.0", res.CurrentForecast)
	}
	if res.CurrentActual == nil || *res.CurrentActual != 20.0 {
		t.Errorf("CurrentActual = %v, want 20.0", res.CurrentActual)
	}
	if res.Delta == nil || *res.Delta != 2.0 {
		t.Errorf("Delta = %v, want +2.0", res.Delta)
	}
	if res.Error != "" {
		t.Errorf("Error = %q, want empty", res.Error)
	}
	if res.Statistics.RecordCount != 1 {
		t.Errorf("RecordCount = %d, want 1", res.Statistics.RecordCount)
	}
	// Delta +2.0 counts as accurate and contributes its full weight to bias.
	if res.Statistics.Accuracy == nil || *res.Statistics.Accuracy != 100 {
		t.Errorf("Accuracy = %v, want 100", res.Statistics.Accuracy)
	}
	if res.Statistics.Bias == nil || *res.Statistics.Bias != 2.0 {
		t.Errorf("Bias = %v, want 2.0", res.Statistics.Bias)
	}
	if h.orch.State() != StateComputed {
		t.Errorf("State = %v, want computed", h.orch.State())
	}
}

func TestTick_DedupWithinWindow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.orch.Tick(ctx); err != nil {
		t.Fatalf("first Tick: %v", err)
	}

	// 10 minutes later is inside the 24-minute dedup window for a 30-minute
	// interval: the displayed values refresh, history does not grow.
	h.clock.advance(10 * time.Minute)
	h.primary.current = 25.0

	res, err := h.orch.Tick(ctx)
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if res.CurrentForecast == nil || *res.CurrentForecast != 25.0 {
		t.Errorf("CurrentForecast = %v, want refreshed 25.0", res.CurrentForecast)
	}
	if res.Statistics.RecordCount != 1 {
		t.Errorf("RecordCount = %d, want 1 after dedup-suppressed tick", res.Statistics.RecordCount)
	}

	// Past the window the next tick records again.
	h.clock.advance(20 * time.Minute)
	res, err = h.orch.Tick(ctx)
	if err != nil {
		t.Fatalf("third Tick: %v", err)
	}
	if res.Statistics.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2 after window elapsed", res.Statistics.RecordCount)
	}
}

func TestTick_SensorFailureKeepsPreviousValues(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.orch.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	h.clock.advance(time.Hour)
	h.sensor.err = errors.New("entity has no numeric state")

	res, err := h.orch.Tick(ctx)
	if err == nil {
		t.Fatal("Tick with failing sensor returned nil error")
	}
	if res.Error == "" {
		t.Error("Error flag not set on failed cycle")
	}
	if res.CurrentActual == nil || *res.CurrentActual != 20.0 {
		t.Errorf("CurrentActual = %v, want previous 20.0 left in place", res.CurrentActual)
	}
	if res.CurrentForecast == nil || *res.CurrentForecast != 22.0 {
		t.Errorf("CurrentForecast = %v, want previous 22.0 left in place", res.CurrentForecast)
	}
	if h.orch.State() != StateIdle {
		t.Errorf("State = %v, want idle after failure", h.orch.State())
	}
	if res.Statistics.RecordCount != 1 {
		t.Errorf("RecordCount = %d, want history unchanged", res.Statistics.RecordCount)
	}
}

func TestTick_ForecastFailureKeepsActualReading(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.primary.currentErr = source.ErrSourceUnavailable
	h.sensor.value = 19.5

	res, err := h.orch.Tick(ctx)
	if !errors.Is(err, source.ErrSourceUnavailable) {
		t.Fatalf("Tick error = %v, want ErrSourceUnavailable", err)
	}
	if res.CurrentActual == nil || *res.CurrentActual != 19.5 {
		t.Errorf("CurrentActual = %v, want 19.5: a forecast failure must not discard the actual reading", res.CurrentActual)
	}
	if res.CurrentForecast != nil {
		t.Errorf("CurrentForecast = %v, want nil", res.CurrentForecast)
	}
	if res.Statistics.RecordCount != 0 {
		t.Errorf("RecordCount = %d, want 0", res.Statistics.RecordCount)
	}
}

func TestTick_SecondaryFailureIsNonFatal(t *testing.T) {
	secondary := &fakeAdapter{name: "station", currentErr: source.ErrAuth}
	h := newHarness(t, secondary)

	res, err := h.orch.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.SecondaryForecast != nil {
		t.Errorf("SecondaryForecast = %v, want nil on secondary failure", res.SecondaryForecast)
	}
	if res.StatisticsSecondary == nil {
		t.Fatal("StatisticsSecondary missing in dual mode")
	}
	if res.StatisticsSecondary.RecordCount != 0 {
		t.Errorf("secondary RecordCount = %d, want 0", res.StatisticsSecondary.RecordCount)
	}
	if res.CurrentForecast == nil || *res.CurrentForecast != 22.0 {
		t.Errorf("CurrentForecast = %v, want primary unaffected", res.CurrentForecast)
	}
}

func TestTick_DualModeRecordsBothLogs(t *testing.T) {
	secondary := &fakeAdapter{name: "station", current: 21.0}
	h := newHarness(t, secondary)

	res, err := h.orch.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.SecondaryForecast == nil || *res.SecondaryForecast != 21.0 {
		t.Errorf("SecondaryForecast = %v, want 21.0", res.SecondaryForecast)
	}
	if res.Statistics.RecordCount != 1 {
		t.Errorf("primary RecordCount = %d, want 1", res.Statistics.RecordCount)
	}
	if res.StatisticsSecondary == nil || res.StatisticsSecondary.RecordCount != 1 {
		t.Fatalf("StatisticsSecondary = %+v, want one record", res.StatisticsSecondary)
	}
	if sb := res.StatisticsSecondary.Bias; sb == nil || *sb != 1.0 {
		t.Errorf("secondary Bias = %v, want 1.0", sb)
	}

	if _, ok := h.kv.data[history.Key("sensor.outdoor_temp", "station")]; !ok {
		t.Error("secondary history log not stored under qualified key")
	}
}

func TestTick_NormalizesSensorUnit(t *testing.T) {
	h := newHarness(t, nil)
	h.sensor.value = 68.0
	h.sensor.unit = "°F"

	res, err := h.orch.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.CurrentActual == nil || *res.CurrentActual != 20.0 {
		t.Errorf("CurrentActual = %v, want 20.0 (68F normalized to C)", res.CurrentActual)
	}
	if res.Delta == nil || *res.Delta != 2.0 {
		t.Errorf("Delta = %v, want 2.0", res.Delta)
	}
}

func TestTick_PruneRunsOnDedupSuppressedCycle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	key := history.Key("sensor.outdoor_temp", "")

	// Seed an expired record directly, then an in-window one via Tick.
	hist := history.New(h.kv, h.clock.now)
	expired := models.NewComparisonRecord(h.clock.t.Add(-8*24*time.Hour), 20, 20, nil)
	if err := hist.Save(key, models.HistoryLog{Records: []models.ComparisonRecord{expired}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := h.orch.Tick(ctx); err != nil {
		t.Fatalf("first Tick: %v", err)
	}

	// Second tick inside the dedup window: append skipped, prune still ran.
	h.clock.advance(5 * time.Minute)
	res, err := h.orch.Tick(ctx)
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	for _, r := range res.Statistics.RecentWindow {
		if r.Timestamp.Before(h.clock.t.Add(-7 * 24 * time.Hour)) {
			t.Errorf("expired record at %v survived", r.Timestamp)
		}
	}
	if res.Statistics.RecordCount != 1 {
		t.Errorf("RecordCount = %d, want 1 (expired pruned, duplicate suppressed)", res.Statistics.RecordCount)
	}
}

func TestTick_WithLookahead(t *testing.T) {
	h := newHarness(t, nil)
	h.primary.lookahead = 24.5
	h.orch.lookahead = 6 * time.Hour

	res, err := h.orch.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.LookaheadForecast == nil || *res.LookaheadForecast != 24.5 {
		t.Errorf("LookaheadForecast = %v, want 24.5", res.LookaheadForecast)
	}
	if len(res.Statistics.RecentWindow) != 1 {
		t.Fatalf("RecentWindow = %v, want one record", res.Statistics.RecentWindow)
	}
	rec := res.Statistics.RecentWindow[0]
	if rec.Lookahead == nil || *rec.Lookahead != 24.5 {
		t.Errorf("record Lookahead = %v, want 24.5", rec.Lookahead)
	}
}

func TestTick_LookaheadFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.primary.lookaheadErr = source.ErrNoData
	h.orch.lookahead = 6 * time.Hour

	res, err := h.orch.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if res.LookaheadForecast != nil {
		t.Errorf("LookaheadForecast = %v, want nil", res.LookaheadForecast)
	}
	if res.Statistics.RecordCount != 1 {
		t.Errorf("RecordCount = %d, want 1", res.Statistics.RecordCount)
	}
}

type fakeRuns struct {
	started   []string
	completed []*store.CycleRun
}

func (f *fakeRuns) StartCycleRun(source string) (*store.CycleRun, error) {
	f.started = append(f.started, source)
	return &store.CycleRun{ID: int64(len(f.started)), Source: source}, nil
}

func (f *fakeRuns) CompleteCycleRun(run *store.CycleRun) error {
	f.completed = append(f.completed, run)
	return nil
}

func TestTick_RecordsCycleRuns(t *testing.T) {
	h := newHarness(t, nil)
	runs := &fakeRuns{}
	h.orch.runs = runs

	if _, err := h.orch.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	h.clock.advance(time.Hour)
	h.sensor.err = errors.New("unavailable")
	h.orch.Tick(context.Background())

	if len(runs.completed) != 2 {
		t.Fatalf("completed runs = %d, want 2", len(runs.completed))
	}
	if !runs.completed[0].Success || runs.completed[0].RecordsAppended.Int64 != 1 {
		t.Errorf("first run = %+v, want success with one append", runs.completed[0])
	}
	if runs.completed[1].Success || !runs.completed[1].ErrorMessage.Valid {
		t.Errorf("second run = %+v, want failure with message", runs.completed[1])
	}
}
