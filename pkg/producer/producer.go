// Package producer implements the rate-governed sharded producer pool. Each
// shard runs a 1 Hz tick loop building bounded batches from the shared run
// RNG and driving them through the store's bulk insert path with best-effort
// accounting.
package producer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jihwankim/telesim/pkg/event"
	"github.com/jihwankim/telesim/pkg/geo"
	"github.com/jihwankim/telesim/pkg/logging"
	"github.com/jihwankim/telesim/pkg/metrics"
	"github.com/jihwankim/telesim/pkg/rng"
	"github.com/jihwankim/telesim/pkg/store"
)

// Params are the effective producer parameters for one run.
type Params struct {
	Rate   int     `json:"rate"`
	Batch  int     `json:"batch"`
	Shards int     `json:"shards"`
	Spread float64 `json:"spread"`
}

// Limits caps the producer parameters.
type Limits struct {
	MaxShards int
	MaxBatch  int
	MaxRate   int
}

// Validate checks params against the configured caps.
func (p Params) Validate(l Limits) error {
	if p.Rate < 1 || p.Rate > l.MaxRate {
		return fmt.Errorf("rate must be in [1, %d]", l.MaxRate)
	}
	if p.Batch < 1 || p.Batch > l.MaxBatch {
		return fmt.Errorf("batch must be in [1, %d]", l.MaxBatch)
	}
	if p.Shards < 1 || p.Shards > l.MaxShards {
		return fmt.Errorf("shards must be in [1, %d]", l.MaxShards)
	}
	if p.Shards > p.Rate {
		return fmt.Errorf("rate must be >= shards")
	}
	if p.Spread < 0.2 || p.Spread > 5.0 {
		return fmt.Errorf("spread must be in [0.2, 5.0]")
	}
	return nil
}

// SplitRate divides the aggregate rate across shards: ⌊R/K⌋ each, with the
// first R mod K shards receiving one extra unit.
func SplitRate(rate, shards int) []int {
	base := rate / shards
	extra := rate % shards
	targets := make([]int, shards)
	for i := range targets {
		targets[i] = base
		if i < extra {
			targets[i]++
		}
	}
	return targets
}

// batchSizes plans the per-tick insert calls for one shard: max(1, ⌈r/B⌉)
// batches, the last truncated so the sum equals the shard rate.
func batchSizes(target, batch int) []int {
	slots := (target + batch - 1) / batch
	if slots < 1 {
		slots = 1
	}
	sizes := make([]int, 0, slots)
	remaining := target
	for i := 0; i < slots; i++ {
		n := batch
		if remaining < n {
			n = remaining
		}
		sizes = append(sizes, n)
		remaining -= n
	}
	return sizes
}

// Pool drives K shard loops for the lifetime of one run. Create with New,
// start with Start, tear down with Stop. A Pool is not reusable.
type Pool struct {
	store     store.Store
	catalog   *geo.Catalog
	rng       *rng.RNG
	log       *logging.Logger
	runID     string
	params    Params
	windowSec int

	history *History
	accum   atomic.Int64
	active  atomic.Int32

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a pool bound to one run.
func New(st store.Store, catalog *geo.Catalog, r *rng.RNG, log *logging.Logger, runID string, params Params, windowSec int) *Pool {
	return &Pool{
		store:     st,
		catalog:   catalog,
		rng:       r,
		log:       log.WithField("runId", runID),
		runID:     runID,
		params:    params,
		windowSec: windowSec,
		history:   NewHistory(),
	}
}

// Start spawns the shard loops and the tick aggregator.
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	targets := SplitRate(p.params.Rate, p.params.Shards)
	for i, target := range targets {
		p.wg.Add(1)
		p.active.Add(1)
		metrics.ActiveShards.Inc()
		go p.shardLoop(ctx, i, target)
	}

	p.wg.Add(1)
	go p.aggregate(ctx)

	p.log.Info("producer started",
		"rate", p.params.Rate, "batch", p.params.Batch,
		"shards", p.params.Shards, "spread", p.params.Spread)
}

// Stop signals all shards to exit after their current tick and waits up to
// timeout for the pool to drain. Returns false when the drain timed out.
// Idempotent.
func (p *Pool) Stop(timeout time.Duration) bool {
	if p.cancel == nil {
		return true
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		p.log.Warn("producer drain timed out", "timeout", timeout.String())
		return false
	}
}

// ActiveShards returns the number of live shard loops.
func (p *Pool) ActiveShards() int {
	return int(p.active.Load())
}

// MovingAverage returns the integer mean insert rate over the configured
// window. Non-blocking; stale reads are fine.
func (p *Pool) MovingAverage() int {
	return p.history.MovingAverage(p.windowSec)
}

// History exposes the rolling tick history.
func (p *Pool) History() *History {
	return p.history
}

// Params returns the effective parameters.
func (p *Pool) Params() Params {
	return p.params
}

// shardLoop is one shard's 1 Hz tick loop. It completes the current tick
// before honoring cancellation, then decrements the active counter on exit.
func (p *Pool) shardLoop(ctx context.Context, shard, target int) {
	defer p.wg.Done()
	defer p.active.Add(-1)
	defer metrics.ActiveShards.Dec()

	log := p.log.WithField("shard", shard)
	sizes := batchSizes(target, p.params.Batch)

	for {
		if ctx.Err() != nil {
			return
		}

		t0 := time.Now()
		total := 0

		for _, n := range sizes {
			if p.runID == "" {
				// State corruption guard: a shard must never write
				// unowned documents.
				log.Error("shard has no run id, exiting")
				return
			}

			batch := make([]event.IncidentEvent, 0, n)
			now := time.Now()
			for i := 0; i < n; i++ {
				loc := p.catalog.Pick(p.rng)
				lat, lng := p.catalog.Jitter(loc, p.params.Spread, p.rng)
				batch = append(batch, event.Build(loc, lat, lng, p.rng, p.runID, now))
			}

			if err := p.store.InsertIncidents(ctx, batch); err != nil {
				// Best-effort: the batch still counts as attempted.
				log.Debug("batch insert failed", "size", n, "error", err)
				metrics.BatchesDropped.Inc()
			}
			total += n
			metrics.IncidentsInserted.Add(float64(n))
		}

		p.accum.Add(int64(total))

		sleep := time.Second - time.Since(t0)
		if sleep > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
		}
	}
}

// aggregate drains the per-tick accumulator into the history ring once per
// second, producing the aggregate-across-shards counts status reports on.
func (p *Pool) aggregate(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.history.Append(int(p.accum.Swap(0)))
		}
	}
}
