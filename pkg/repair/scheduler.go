// Package repair implements the delayed-repair scheduler. It samples recent
// incidents under the infrastructure policy, draws log-normal delays and
// persists de-duplicated repair records when the delay timers fire.
package repair

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jihwankim/telesim/pkg/logging"
	"github.com/jihwankim/telesim/pkg/metrics"
	"github.com/jihwankim/telesim/pkg/rng"
	"github.com/jihwankim/telesim/pkg/store"
)

// fallbackSeed reseeds the scheduler RNG when the run carries no seed.
const fallbackSeed int64 = 20240101

// maxTimerMs keeps delay millis inside the platform timer width.
const maxTimerMs = math.MaxInt32

// stopDrainWait bounds how long Stop waits for an in-flight tick.
const stopDrainWait = time.Second

// ErrNoRun reports a start attempt without a run identity.
var ErrNoRun = errors.New("run id is required")

// State is the scheduler lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config holds the scheduler parameters. Zero fields fall back to defaults
// at start; call-site overrides win over configured values.
type Config struct {
	CadenceMs       int     `json:"cadenceMs" yaml:"cadence_ms"`
	BudgetPerTick   int     `json:"budgetPerTick" yaml:"budget_per_tick"`
	RecentWindowSec int     `json:"recentWindowSec" yaml:"recent_window_sec"`
	DelayMedianSec  float64 `json:"delayMedianSec" yaml:"delay_median_sec"`
	DelayP95Sec     float64 `json:"delayP95Sec" yaml:"delay_p95_sec"`
	DelayJitterSec  int     `json:"delayJitterSec" yaml:"delay_jitter_sec"`
	PFixProbability float64 `json:"pFixProbability" yaml:"p_fix_probability"`
	MaxDelaySec     int     `json:"maxDelaySec" yaml:"max_delay_sec"`
	Policy          string  `json:"policy" yaml:"policy"`
	Version         string  `json:"version" yaml:"version"`
}

// DefaultConfig returns the built-in scheduler parameters.
func DefaultConfig() Config {
	return Config{
		CadenceMs:       1000,
		BudgetPerTick:   5,
		RecentWindowSec: 30,
		DelayMedianSec:  60,
		DelayP95Sec:     150,
		DelayJitterSec:  10,
		PFixProbability: 0.92,
		MaxDelaySec:     300,
		Policy:          "infra-repair",
		Version:         "v1",
	}
}

// withDefaults fills zero-valued fields from the defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CadenceMs <= 0 {
		c.CadenceMs = d.CadenceMs
	}
	if c.BudgetPerTick <= 0 {
		c.BudgetPerTick = d.BudgetPerTick
	}
	if c.RecentWindowSec <= 0 {
		c.RecentWindowSec = d.RecentWindowSec
	}
	if c.DelayMedianSec <= 0 {
		c.DelayMedianSec = d.DelayMedianSec
	}
	if c.DelayP95Sec <= 0 {
		c.DelayP95Sec = d.DelayP95Sec
	}
	if c.DelayJitterSec < 0 {
		c.DelayJitterSec = d.DelayJitterSec
	}
	if c.PFixProbability <= 0 {
		c.PFixProbability = d.PFixProbability
	}
	if c.MaxDelaySec <= 0 {
		c.MaxDelaySec = d.MaxDelaySec
	}
	if c.Policy == "" {
		c.Policy = d.Policy
	}
	if c.Version == "" {
		c.Version = d.Version
	}
	return c
}

// RunContext carries the run identity the scheduler attaches to.
type RunContext struct {
	RunID string
	Seed  *int64
}

// Counters is a snapshot of the scheduler's accounting.
type Counters struct {
	Scheduled         int64 `json:"scheduled"`
	Persisted         int64 `json:"persisted"`
	DuplicatesIgnored int64 `json:"duplicatesIgnored"`
	Skipped           int64 `json:"skipped"`
}

// Status is the scheduler's non-blocking status snapshot.
type Status struct {
	State    string   `json:"state"`
	RunID    string   `json:"runId,omitempty"`
	Config   Config   `json:"config"`
	Counters Counters `json:"counters"`
	Pending  int      `json:"pending"`
}

// timerEntry tracks one scheduled-but-unfired repair.
type timerEntry struct {
	timer *time.Timer
	dueAt time.Time
}

// Scheduler is the repair state machine: idle → running → stopping → idle.
type Scheduler struct {
	store store.Store
	log   *logging.Logger

	mu     sync.Mutex
	state  State
	cfg    Config
	runID  string
	rng    *rng.RNG
	timers map[string]*timerEntry
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// tickActive drops overlapping ticks; reentrancy is forbidden.
	tickActive atomic.Bool

	scheduled         atomic.Int64
	persisted         atomic.Int64
	duplicatesIgnored atomic.Int64
	skipped           atomic.Int64
}

// New builds an idle scheduler.
func New(st store.Store, log *logging.Logger) *Scheduler {
	return &Scheduler{
		store:  st,
		log:    log,
		timers: make(map[string]*timerEntry),
	}
}

// Start transitions idle → running. Starting again on the same run is a
// no-op; a missing run id is a validation error.
func (s *Scheduler) Start(runCtx RunContext, cfg Config) error {
	if runCtx.RunID == "" {
		return ErrNoRun
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		if s.runID == runCtx.RunID {
			return nil
		}
		return fmt.Errorf("scheduler already running for run %s", s.runID)
	}
	if s.state == StateStopping {
		return fmt.Errorf("scheduler is stopping")
	}

	seed := fallbackSeed
	if runCtx.Seed != nil {
		seed = *runCtx.Seed
	}

	s.cfg = cfg.withDefaults()
	s.runID = runCtx.RunID
	s.rng = rng.New(seed)
	s.scheduled.Store(0)
	s.persisted.Store(0)
	s.duplicatesIgnored.Store(0)
	s.skipped.Store(0)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = StateRunning

	s.wg.Add(1)
	go s.cadenceLoop(ctx)

	s.log.Info("repair scheduler started",
		"runId", s.runID, "policy", s.cfg.Policy, "version", s.cfg.Version,
		"cadenceMs", s.cfg.CadenceMs, "budget", s.cfg.BudgetPerTick)
	return nil
}

// Stop transitions running → stopping → idle: stops the cadence loop, waits
// briefly for an in-flight tick, then cancels every outstanding delay timer.
// Unfired repairs are lost by design. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopDrainWait):
		s.log.Warn("repair tick did not drain in time")
	}

	s.mu.Lock()
	cancelled := 0
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
		cancelled++
	}
	s.state = StateIdle
	s.runID = ""
	s.mu.Unlock()

	s.log.Info("repair scheduler stopped", "timersCancelled", cancelled)
}

// Status returns a non-blocking snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:  s.state.String(),
		RunID:  s.runID,
		Config: s.cfg,
		Counters: Counters{
			Scheduled:         s.scheduled.Load(),
			Persisted:         s.persisted.Load(),
			DuplicatesIgnored: s.duplicatesIgnored.Load(),
			Skipped:           s.skipped.Load(),
		},
		Pending: len(s.timers),
	}
}

// cadenceLoop fires tick at the configured cadence until cancelled.
func (s *Scheduler) cadenceLoop(ctx context.Context) {
	defer s.wg.Done()

	s.mu.Lock()
	cadence := time.Duration(s.cfg.CadenceMs) * time.Millisecond
	s.mu.Unlock()

	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one sampling pass: query recent incidents, filter to the
// infrastructure policy, walk a deterministic permutation and schedule
// delayed repairs up to the per-tick budget.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.tickActive.CompareAndSwap(false, true) {
		return
	}
	defer s.tickActive.Store(false)

	s.mu.Lock()
	cfg := s.cfg
	runID := s.runID
	r := s.rng
	s.mu.Unlock()
	if runID == "" {
		return
	}

	now := time.Now()
	since := now.Add(-time.Duration(cfg.RecentWindowSec) * time.Second)
	limit := int64(cfg.BudgetPerTick * 5)

	refs, err := s.store.RecentIncidents(ctx, runID, since, limit)
	if err != nil {
		// Transient store errors skip the tick; the next cadence retries.
		s.log.Warn("recent incident query failed", "error", err)
		return
	}

	pool := refs[:0:0]
	for _, ref := range refs {
		if isInfrastructure(ref.Issue) {
			pool = append(pool, ref)
		}
	}
	if len(pool) == 0 {
		return
	}

	// Deterministic permutation: Fisher–Yates over indices under the
	// scheduler RNG, so a given seed and store contents reproduce the
	// same selection order.
	perm := make([]int, len(pool))
	for i := range perm {
		perm[i] = i
	}
	r.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	emitted := 0
	for _, idx := range perm {
		if emitted >= cfg.BudgetPerTick {
			break
		}
		ref := pool[idx]
		key := fmt.Sprintf("%s|%s|%s|%s", runID, "infrastructure", ref.ID, cfg.Version)

		s.log.Info("repair candidate",
			"kind", "WOULD_FIX", "key", key, "issueType", ref.Issue.Type)

		if r.Uniform() >= cfg.PFixProbability {
			s.skipped.Add(1)
			metrics.RepairsSkipped.Inc()
			continue
		}

		base := r.LogNormalSeconds(cfg.DelayMedianSec, cfg.DelayP95Sec)
		jitter := 0
		if cfg.DelayJitterSec > 0 {
			jitter = r.IntN(2*cfg.DelayJitterSec+1) - cfg.DelayJitterSec
		}
		delaySec := base + jitter
		if delaySec < 1 {
			delaySec = 1
		}
		if delaySec > cfg.MaxDelaySec {
			delaySec = cfg.MaxDelaySec
		}
		delayMs := int64(delaySec) * 1000
		if delayMs > maxTimerMs {
			delayMs = maxTimerMs
		}
		delay := time.Duration(delayMs) * time.Millisecond

		if s.register(ref, key, cfg, now, delay) {
			emitted++
		}
	}
}

// register installs the delay timer for a candidate unless one already
// exists for the incident. At most one scheduled repair per incident per
// run.
func (s *Scheduler) register(ref store.IncidentRef, key string, cfg Config, decidedAt time.Time, delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return false
	}
	if _, exists := s.timers[ref.ID]; exists {
		return false
	}

	runID := s.runID
	timer := time.AfterFunc(delay, func() {
		s.fire(runID, ref, key, cfg, decidedAt)
	})
	s.timers[ref.ID] = &timerEntry{timer: timer, dueAt: decidedAt.Add(delay)}
	s.scheduled.Add(1)
	metrics.RepairsScheduled.Inc()
	return true
}

// fire inserts the repair record when its delay timer expires. A duplicate
// rejection is the expected at-most-once outcome; other errors are dropped.
// The timer entry is always removed.
func (s *Scheduler) fire(runID string, ref store.IncidentRef, key string, cfg Config, decidedAt time.Time) {
	defer func() {
		s.mu.Lock()
		delete(s.timers, ref.ID)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := store.RepairEvent{
		Kind:          "repair",
		Timestamp:     time.Now(),
		DecidedAt:     decidedAt,
		RunID:         runID,
		IncidentID:    ref.ID,
		Category:      "infrastructure",
		Policy:        cfg.Policy,
		PolicyVersion: cfg.Version,
		Reason:        fmt.Sprintf("auto repair of %s", ref.Issue.Type),
		Key:           key,
	}

	err := s.store.InsertRepair(ctx, rec)
	switch {
	case err == nil:
		s.persisted.Add(1)
		metrics.RepairsPersisted.Inc()
	case errors.Is(err, store.ErrDuplicate):
		s.duplicatesIgnored.Add(1)
		metrics.RepairsDuplicate.Inc()
	default:
		s.log.Warn("repair insert failed", "key", key, "error", err)
	}
}
