// Package sim owns the run lifecycle: one Controller coordinates the
// producer pool and the repair scheduler under a single run identity.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jihwankim/telesim/pkg/config"
	"github.com/jihwankim/telesim/pkg/geo"
	"github.com/jihwankim/telesim/pkg/logging"
	"github.com/jihwankim/telesim/pkg/producer"
	"github.com/jihwankim/telesim/pkg/repair"
	"github.com/jihwankim/telesim/pkg/rng"
	"github.com/jihwankim/telesim/pkg/store"
)

// stopDrain bounds how long Stop waits for the producer shards.
const stopDrain = 2 * time.Second

// ErrInvalidArgument marks validation failures; the HTTP surface maps it to
// a 4xx response.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrResource marks store or catalog failures at start.
var ErrResource = errors.New("resource error")

// StartRequest carries everything a start call can specify.
type StartRequest struct {
	Rate           int            `json:"rate"`
	Batch          int            `json:"batch"`
	Shards         int            `json:"shards"`
	Spread         float64        `json:"spread"`
	Seed           *int64         `json:"seed,omitempty"`
	Note           string         `json:"note,omitempty"`
	RepairsEnabled bool           `json:"repairsEnabled,omitempty"`
	RepairConfig   *repair.Config `json:"repairConfig,omitempty"`
}

// ProducerStatus is the producer half of a status snapshot.
type ProducerStatus struct {
	Running     bool            `json:"running"`
	Params      producer.Params `json:"params,omitempty"`
	Shards      int             `json:"shards"`
	CatalogSize int             `json:"catalogSize"`
	WindowSec   int             `json:"windowSec"`
	MovingAvg   int             `json:"movingAvg"`
	RunID       string          `json:"runId,omitempty"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	Note        string          `json:"note,omitempty"`
}

// Snapshot is the combined status of a run.
type Snapshot struct {
	Producer  ProducerStatus `json:"producer"`
	Scheduler repair.Status  `json:"scheduler"`
}

// run is the owned state of one logical run.
type run struct {
	id        string
	startedAt time.Time
	seed      int64
	hadSeed   bool
	note      string
	params    producer.Params
	pool      *producer.Pool
	repairs   bool
}

// Controller is the process-wide run controller. The HTTP surface holds one
// and dispatches start/stop/status onto it.
type Controller struct {
	cfg       *config.Config
	store     store.Store
	catalog   *geo.Catalog
	log       *logging.Logger
	scheduler *repair.Scheduler

	mu      sync.Mutex
	current *run
}

// NewController wires a controller over the shared catalog and store.
func NewController(cfg *config.Config, st store.Store, catalog *geo.Catalog, log *logging.Logger) *Controller {
	return &Controller{
		cfg:       cfg,
		store:     st,
		catalog:   catalog,
		log:       log,
		scheduler: repair.New(st, log),
	}
}

// runIDFor derives the stable run identity from the start instant and seed.
func runIDFor(startedAt time.Time, seed int64) string {
	return fmt.Sprintf("run-%s-s%d", startedAt.UTC().Format("20060102T150405Z"), seed)
}

// Start establishes a new run: validated parameters, persisted descriptor,
// freshly seeded RNG, fresh shard set, optional repair scheduler. Starting
// again with identical parameters while running is a no-op.
func (c *Controller) Start(ctx context.Context, req StartRequest) (Snapshot, error) {
	params := producer.Params{
		Rate:   req.Rate,
		Batch:  req.Batch,
		Shards: req.Shards,
		Spread: req.Spread,
	}
	limits := producer.Limits{
		MaxShards: c.cfg.Limits.MaxShards,
		MaxBatch:  c.cfg.Limits.MaxBatch,
		MaxRate:   c.cfg.Limits.MaxRate,
	}
	if err := params.Validate(limits); err != nil {
		return c.Status(), fmt.Errorf("%w: %s", ErrInvalidArgument, err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		if c.current.params == params {
			// Same run: idempotent no-op.
			return c.snapshotLocked(), nil
		}
		return c.snapshotLocked(), fmt.Errorf("%w: a different run is already active", ErrInvalidArgument)
	}

	if c.catalog == nil || c.catalog.Size() == 0 {
		return c.snapshotLocked(), fmt.Errorf("%w: location catalog is empty", ErrResource)
	}

	seed := rand.Int63() //nolint:gosec
	if req.Seed != nil {
		seed = *req.Seed
	}
	startedAt := time.Now()
	runID := runIDFor(startedAt, seed)

	desc := store.RunDescriptor{
		RunID:       runID,
		StartedAt:   startedAt,
		Rate:        params.Rate,
		Batch:       params.Batch,
		Shards:      params.Shards,
		Spread:      params.Spread,
		Seed:        seed,
		CatalogSize: c.catalog.Size(),
		Note:        req.Note,
	}
	if err := c.store.OpenRun(ctx, desc); err != nil {
		return c.snapshotLocked(), fmt.Errorf("%w: %s", ErrResource, err.Error())
	}

	r := rng.New(seed)
	pool := producer.New(c.store, c.catalog, r, c.log, runID, params, c.cfg.Limits.WindowSec)
	pool.Start()

	c.current = &run{
		id:        runID,
		startedAt: startedAt,
		seed:      seed,
		hadSeed:   req.Seed != nil,
		note:      req.Note,
		params:    params,
		pool:      pool,
		repairs:   req.RepairsEnabled,
	}

	if req.RepairsEnabled {
		repairCfg := repair.Config{}
		if req.RepairConfig != nil {
			repairCfg = *req.RepairConfig
		}
		runCtx := repair.RunContext{RunID: runID}
		if req.Seed != nil {
			runCtx.Seed = req.Seed
		}
		if err := c.scheduler.Start(runCtx, repairCfg); err != nil {
			c.log.Error("repair scheduler failed to start", "error", err)
		}
	}

	c.log.Info("run started", "runId", runID, "seed", seed,
		"rate", params.Rate, "shards", params.Shards, "repairs", req.RepairsEnabled)
	return c.snapshotLocked(), nil
}

// Stop cancels the scheduler, drains the shards and closes the run
// descriptor. Descriptor-close failures are logged, never surfaced: stop
// always completes from the caller's perspective. Idempotent.
func (c *Controller) Stop(ctx context.Context) Snapshot {
	c.mu.Lock()
	cur := c.current
	c.current = nil
	c.mu.Unlock()

	c.scheduler.Stop()

	if cur == nil {
		return c.Status()
	}

	cur.pool.Stop(stopDrain)

	if err := c.store.CloseRun(ctx, cur.id, time.Now()); err != nil {
		c.log.Warn("failed to close run descriptor", "runId", cur.id, "error", err)
	}

	c.log.Info("run stopped", "runId", cur.id)
	return c.Status()
}

// Status returns the combined, non-blocking snapshot.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{Scheduler: c.scheduler.Status()}
	snap.Producer.WindowSec = c.cfg.Limits.WindowSec
	if c.catalog != nil {
		snap.Producer.CatalogSize = c.catalog.Size()
	}
	if c.current != nil {
		startedAt := c.current.startedAt
		snap.Producer.Running = true
		snap.Producer.Params = c.current.params
		snap.Producer.Shards = c.current.pool.ActiveShards()
		snap.Producer.MovingAvg = c.current.pool.MovingAverage()
		snap.Producer.RunID = c.current.id
		snap.Producer.StartedAt = &startedAt
		snap.Producer.Note = c.current.note
	}
	return snap
}

// CurrentRunID returns the active run id, empty when idle.
func (c *Controller) CurrentRunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.id
}
