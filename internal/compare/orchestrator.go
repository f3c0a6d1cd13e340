// Package compare runs the refresh cycle: read the actual sensor value,
// fetch the configured forecast sources, record comparisons, and recompute
// statistics per active history log.
package compare

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"forecastskill/internal/history"
	"forecastskill/internal/metrics"
	"forecastskill/internal/models"
	"forecastskill/internal/source"
	"forecastskill/internal/stats"
	"forecastskill/internal/store"
	"forecastskill/internal/units"
)

// State tracks where the current cycle is. A failed cycle falls back to
// StateIdle with the error recorded on the result.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateRecording
	StateComputed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateRecording:
		return "recording"
	case StateComputed:
		return "computed"
	}
	return "unknown"
}

// Reader supplies the ground-truth temperature and its unit.
type Reader interface {
	Read(ctx context.Context) (value float64, unit string, err error)
}

// RunRecorder persists per-cycle bookkeeping rows. May be nil.
type RunRecorder interface {
	StartCycleRun(source string) (*store.CycleRun, error)
	CompleteCycleRun(run *store.CycleRun) error
}

// Result is what the presentation layer consumes. Pointer fields are nil
// until a cycle has produced them; on a failed cycle the previously displayed
// values are left in place and Error is set.
type Result struct {
	CurrentForecast     *float64          `json:"current_forecast"`
	CurrentActual       *float64          `json:"current_actual"`
	Delta               *float64          `json:"delta"`
	LookaheadForecast   *float64          `json:"lookahead_forecast,omitempty"`
	SecondaryForecast   *float64          `json:"secondary_forecast,omitempty"`
	Statistics          stats.Statistics  `json:"statistics"`
	StatisticsSecondary *stats.Statistics `json:"statistics_secondary,omitempty"`
	Error               string            `json:"error,omitempty"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Config wires an Orchestrator.
type Config struct {
	Sensor        Reader
	Primary       source.Adapter
	Secondary     source.Adapter
	History       *history.Store
	Runs          RunRecorder
	SensorID      string
	DisplayUnit   string
	Interval      time.Duration
	RetentionDays int
	Lookahead     time.Duration
	Now           func() time.Time
}

type Orchestrator struct {
	sensor        Reader
	primary       source.Adapter
	secondary     source.Adapter
	history       *history.Store
	runs          RunRecorder
	sensorID      string
	displayUnit   string
	interval      time.Duration
	retentionDays int
	lookahead     time.Duration
	now           func() time.Time

	mu    sync.Mutex // serializes cycles; an overlapping tick is skipped
	resMu sync.RWMutex
	state State
	last  Result
}

func New(cfg Config) *Orchestrator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		sensor:        cfg.Sensor,
		primary:       cfg.Primary,
		secondary:     cfg.Secondary,
		history:       cfg.History,
		runs:          cfg.Runs,
		sensorID:      cfg.SensorID,
		displayUnit:   cfg.DisplayUnit,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		lookahead:     cfg.Lookahead,
		now:           now,
	}
}

// Last returns the most recent result.
func (o *Orchestrator) Last() Result {
	o.resMu.RLock()
	defer o.resMu.RUnlock()
	return o.last
}

// State returns the current cycle state.
func (o *Orchestrator) State() State {
	o.resMu.RLock()
	defer o.resMu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.resMu.Lock()
	o.state = s
	o.resMu.Unlock()
}

func (o *Orchestrator) setLast(r Result) {
	o.resMu.Lock()
	o.last = r
	o.resMu.Unlock()
}

// Tick runs one refresh cycle. A tick that fires while a cycle is still in
// flight returns the last result untouched; the dedup window independently
// guards history against double writes.
func (o *Orchestrator) Tick(ctx context.Context) (Result, error) {
	if !o.mu.TryLock() {
		return o.Last(), nil
	}
	defer o.mu.Unlock()

	res, err := o.cycle(ctx)
	o.setLast(res)
	return res, err
}

func (o *Orchestrator) cycle(ctx context.Context) (Result, error) {
	o.setState(StateFetching)
	res := o.Last()
	res.Error = ""

	run := o.startRun()

	actualRaw, actualUnit, err := o.sensor.Read(ctx)
	if err != nil {
		return o.failCycle(res, run, fmt.Errorf("read sensor %s: %w", o.sensorID, err))
	}
	actual := units.Normalize(actualRaw, actualUnit, o.displayUnit)
	res.CurrentActual = &actual

	forecast, perr := o.fetchCurrent(ctx, o.primary)

	var lookahead *float64
	if perr == nil && o.lookahead > 0 {
		if v, err := o.primary.FetchLookahead(ctx, o.lookahead); err != nil {
			log.Printf("orchestrator: lookahead fetch %s: %v", o.primary.Name(), err)
		} else {
			lookahead = &v
		}
	}

	// The secondary reference source runs independently; its failure only
	// nulls the secondary value.
	var secondary *float64
	if o.secondary != nil {
		if v, err := o.fetchCurrent(ctx, o.secondary); err != nil {
			log.Printf("orchestrator: secondary %s: %v", o.secondary.Name(), err)
		} else {
			secondary = &v
		}
		res.SecondaryForecast = secondary
	}

	if perr != nil {
		// The actual reading was already obtained and stays updated; only
		// the forecast side of the display keeps its previous values.
		return o.failCycle(res, run, fmt.Errorf("fetch %s: %w", o.primary.Name(), perr))
	}
	res.CurrentForecast = &forecast
	delta := forecast - actual
	res.Delta = &delta
	res.LookaheadForecast = lookahead

	o.setState(StateRecording)
	window := history.DedupWindow(o.interval)
	appended := 0

	primaryKey := history.Key(o.sensorID, "")
	rec := models.NewComparisonRecord(o.now(), forecast, actual, lookahead)
	appended += o.record(primaryKey, rec, window)

	var secondaryKey string
	if o.secondary != nil {
		secondaryKey = history.Key(o.sensorID, o.secondary.Name())
		if secondary != nil {
			srec := models.NewComparisonRecord(o.now(), *secondary, actual, nil)
			appended += o.record(secondaryKey, srec, window)
		} else if err := o.history.Prune(secondaryKey, o.retentionDays); err != nil {
			log.Printf("orchestrator: prune %s: %v", secondaryKey, err)
		}
	}

	res.Statistics = o.computeStats(primaryKey)
	if o.secondary != nil {
		st := o.computeStats(secondaryKey)
		res.StatisticsSecondary = &st
	}

	res.UpdatedAt = o.now()
	o.setState(StateComputed)
	o.completeRun(run, appended, nil)
	metrics.CyclesTotal.WithLabelValues("success").Inc()
	return res, nil
}

// record appends rec to key (honoring the dedup window) and prunes the log.
// Persistence failures are logged and swallowed; it returns 1 when a record
// was stored.
func (o *Orchestrator) record(key string, rec models.ComparisonRecord, window time.Duration) int {
	stored := 0
	if ok, err := o.history.Append(key, rec, window); err != nil {
		log.Printf("orchestrator: append %s: %v", key, err)
	} else if ok {
		stored = 1
		metrics.RecordsAppended.WithLabelValues(key).Inc()
	}
	if err := o.history.Prune(key, o.retentionDays); err != nil {
		log.Printf("orchestrator: prune %s: %v", key, err)
	}
	return stored
}

func (o *Orchestrator) computeStats(key string) stats.Statistics {
	hl, err := o.history.Load(key)
	if err != nil {
		log.Printf("orchestrator: load %s: %v", key, err)
		hl = models.HistoryLog{}
	}
	return stats.Compute(hl.Records, o.now())
}

func (o *Orchestrator) fetchCurrent(ctx context.Context, a source.Adapter) (float64, error) {
	start := time.Now()
	v, err := a.FetchCurrent(ctx)
	metrics.SourceFetchLatency.WithLabelValues(a.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceFetchesTotal.WithLabelValues(a.Name(), "error").Inc()
		return 0, err
	}
	metrics.SourceFetchesTotal.WithLabelValues(a.Name(), "ok").Inc()
	return v, nil
}

func (o *Orchestrator) failCycle(res Result, run *store.CycleRun, err error) (Result, error) {
	o.setState(StateIdle)
	res.Error = err.Error()
	res.UpdatedAt = o.now()
	o.completeRun(run, 0, err)
	metrics.CyclesTotal.WithLabelValues("error").Inc()
	return res, err
}

func (o *Orchestrator) startRun() *store.CycleRun {
	if o.runs == nil {
		return nil
	}
	run, err := o.runs.StartCycleRun(o.primary.Name())
	if err != nil {
		log.Printf("orchestrator: start cycle run: %v", err)
		return nil
	}
	return run
}

func (o *Orchestrator) completeRun(run *store.CycleRun, appended int, cycleErr error) {
	if run == nil {
		return
	}
	run.Success = cycleErr == nil
	run.RecordsAppended = sql.NullInt64{Int64: int64(appended), Valid: true}
	if cycleErr != nil {
		run.ErrorMessage = sql.NullString{String: cycleErr.Error(), Valid: true}
	}
	if err := o.runs.CompleteCycleRun(run); err != nil {
		log.Printf("orchestrator: complete cycle run: %v", err)
	}
}

// Run ticks immediately and then at the configured interval until ctx is
// cancelled. In-flight fetches are abandoned on cancellation via ctx; no
// partial state is written.
func (o *Orchestrator) Run(ctx context.Context) {
	o.tickLogged(ctx)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("orchestrator: shutting down")
			return
		case <-ticker.C:
			o.tickLogged(ctx)
		}
	}
}

func (o *Orchestrator) tickLogged(ctx context.Context) {
	if _, err := o.Tick(ctx); err != nil {
		log.Printf("orchestrator: cycle: %v", err)
	}
}
