package producer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/telesim/pkg/geo"
	"github.com/jihwankim/telesim/pkg/logging"
	"github.com/jihwankim/telesim/pkg/rng"
	"github.com/jihwankim/telesim/pkg/store/storetest"
)

var testLimits = Limits{MaxShards: 128, MaxBatch: 50000, MaxRate: 1000000}

func testCatalog(t *testing.T) *geo.Catalog {
	t.Helper()
	c, err := geo.FromLocations([]geo.Location{
		{Name: "alpha", Lat: 40.0, Lng: -74.0, Weight: 1, SigmaKm: 5},
		{Name: "beta", Lat: 41.0, Lng: -87.0, Weight: 3, SigmaKm: 10},
	})
	require.NoError(t, err)
	return c
}

func TestParamsValidate(t *testing.T) {
	valid := Params{Rate: 100, Batch: 50, Shards: 2, Spread: 1.0}
	assert.NoError(t, valid.Validate(testLimits))

	cases := []struct {
		name   string
		mutate func(*Params)
		want   string
	}{
		{"rate too low", func(p *Params) { p.Rate = 0 }, "rate must be in"},
		{"rate too high", func(p *Params) { p.Rate = 2000000 }, "rate must be in"},
		{"batch too low", func(p *Params) { p.Batch = 0 }, "batch must be in"},
		{"shards too high", func(p *Params) { p.Shards = 200 }, "shards must be in"},
		{"shards exceed rate", func(p *Params) { p.Rate = 3; p.Shards = 5 }, "rate must be >= shards"},
		{"spread too low", func(p *Params) { p.Spread = 0.1 }, "spread must be in"},
		{"spread too high", func(p *Params) { p.Spread = 6 }, "spread must be in"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			err := p.Validate(testLimits)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSplitRate(t *testing.T) {
	assert.Equal(t, []int{4, 3, 3}, SplitRate(10, 3))
	assert.Equal(t, []int{10}, SplitRate(10, 1))
	assert.Equal(t, []int{1, 1, 1}, SplitRate(3, 3))

	targets := SplitRate(1000, 7)
	sum := 0
	for _, v := range targets {
		sum += v
	}
	assert.Equal(t, 1000, sum)
}

func TestBatchSizes(t *testing.T) {
	assert.Equal(t, []int{500, 500}, batchSizes(1000, 500))
	assert.Equal(t, []int{500, 500, 1}, batchSizes(1001, 500))
	assert.Equal(t, []int{10}, batchSizes(10, 50))
	assert.Equal(t, []int{3, 3, 3, 1}, batchSizes(10, 3))
}

func TestHistoryMovingAverage(t *testing.T) {
	h := NewHistory()
	assert.Equal(t, 0, h.MovingAverage(10), "empty history reports 0")

	h.Append(7)
	assert.Equal(t, 7, h.MovingAverage(10), "single tick reports its value")

	h = NewHistory()
	values := []int{10, 20, 30, 40, 50}
	for _, v := range values {
		h.Append(v)
	}
	assert.Equal(t, 30, h.MovingAverage(5))
	assert.Equal(t, 45, h.MovingAverage(2), "window shorter than history")

	h = NewHistory()
	h.Append(1)
	h.Append(2)
	assert.Equal(t, 2, h.MovingAverage(3), "round(1.5) = 2")
}

func TestHistoryCap(t *testing.T) {
	h := NewHistory()
	for i := 0; i < historyCap+50; i++ {
		h.Append(i)
	}
	assert.Equal(t, historyCap, h.Len())
}

func TestPoolInsertsOneTickAtTarget(t *testing.T) {
	st := storetest.New()
	pool := New(st, testCatalog(t), rng.New(1), logging.Nop(), "run-1",
		Params{Rate: 50, Batch: 10, Shards: 2, Spread: 1.0}, 10)

	pool.Start()
	time.Sleep(300 * time.Millisecond)
	require.True(t, pool.Stop(2*time.Second))

	// One tick per shard: 25 + 25 documents.
	assert.Equal(t, 50, st.IncidentCount())
	assert.Equal(t, 0, pool.ActiveShards())
}

func TestPoolSingleShardIsDeterministic(t *testing.T) {
	run := func() []string {
		st := storetest.New()
		pool := New(st, testCatalog(t), rng.New(42), logging.Nop(), "run-d",
			Params{Rate: 20, Batch: 20, Shards: 1, Spread: 1.0}, 10)
		pool.Start()
		time.Sleep(300 * time.Millisecond)
		require.True(t, pool.Stop(2*time.Second))

		var seq []string
		for _, ev := range st.Incidents() {
			seq = append(seq, ev.City+"/"+ev.Issue.Type)
		}
		return seq
	}

	first := run()
	second := run()
	require.Len(t, first, 20)
	assert.Equal(t, first, second)
}

func TestPoolBestEffortOnInsertError(t *testing.T) {
	st := storetest.New()
	st.InsertIncidentsErr = errors.New("store down")

	pool := New(st, testCatalog(t), rng.New(1), logging.Nop(), "run-1",
		Params{Rate: 10, Batch: 10, Shards: 1, Spread: 1.0}, 10)

	pool.Start()
	time.Sleep(300 * time.Millisecond)

	// The shard keeps running through store errors.
	assert.Equal(t, 1, pool.ActiveShards())
	assert.Equal(t, 0, st.IncidentCount())

	require.True(t, pool.Stop(2*time.Second))
}

func TestPoolStopIsIdempotent(t *testing.T) {
	st := storetest.New()
	pool := New(st, testCatalog(t), rng.New(1), logging.Nop(), "run-1",
		Params{Rate: 5, Batch: 5, Shards: 1, Spread: 1.0}, 10)

	pool.Start()
	require.True(t, pool.Stop(2*time.Second))
	require.True(t, pool.Stop(2*time.Second))
	assert.Equal(t, 0, pool.ActiveShards())
}

func TestPoolMissingRunIDExitsShards(t *testing.T) {
	st := storetest.New()
	pool := New(st, testCatalog(t), rng.New(1), logging.Nop(), "",
		Params{Rate: 5, Batch: 5, Shards: 2, Spread: 1.0}, 10)

	pool.Start()
	require.Eventually(t, func() bool {
		return pool.ActiveShards() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, st.IncidentCount())
	pool.Stop(time.Second)
}
