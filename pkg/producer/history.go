package producer

import "sync"

// historyCap bounds the rolling history ring. At one entry per second this
// holds five minutes of throughput.
const historyCap = 300

// History is the rolling ring of per-tick aggregate insert counts. Written
// by the aggregator once per tick, read by status snapshots.
type History struct {
	mu      sync.Mutex
	entries []int
}

// NewHistory returns an empty history ring.
func NewHistory() *History {
	return &History{entries: make([]int, 0, historyCap)}
}

// Append records one tick's aggregate count, evicting the oldest entry once
// the ring is full.
func (h *History) Append(count int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) >= historyCap {
		h.entries = h.entries[1:]
	}
	h.entries = append(h.entries, count)
}

// Len returns the number of recorded ticks.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// MovingAverage returns the integer mean of the last min(len, window)
// entries. Empty history reports 0.
func (h *History) MovingAverage(window int) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.entries)
	if n == 0 || window < 1 {
		return 0
	}
	if window > n {
		window = n
	}

	sum := 0
	for _, v := range h.entries[n-window:] {
		sum += v
	}
	return int(float64(sum)/float64(window) + 0.5)
}
