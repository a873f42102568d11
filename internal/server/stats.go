package server

import (
	"sync"
	"time"
)

// recentSubmits is the number of submissions kept for the latency figures.
const recentSubmits = 512

// submitStats accounts for remote command submissions (HTTP and WS) shown
// under "commands" in /api/status. Latency is the time a handler spends
// decoding and enqueueing, not execution time.
type submitStats struct {
	mu       sync.Mutex
	accepted int64 // commands
	rejected int64 // submissions
	batches  int64

	ring [recentSubmits]submitSample
	next int
	size int
}

type submitSample struct {
	at   time.Time
	took time.Duration
	n    int
}

// commandCounters is the JSON view of submitStats.
type commandCounters struct {
	Accepted        int64 `json:"accepted"`
	Rejected        int64 `json:"rejected"`
	Batches         int64 `json:"batches"`
	RecentBatches   int   `json:"recentBatches"`
	RecentCommands  int   `json:"recentCommands"`
	AvgSubmitMicros int64 `json:"avgSubmitMicros"`
	MaxSubmitMicros int64 `json:"maxSubmitMicros"`
}

func (st *submitStats) accept(n int, took time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.accepted += int64(n)
	st.batches++
	st.ring[st.next] = submitSample{at: time.Now(), took: took, n: n}
	st.next = (st.next + 1) % recentSubmits
	if st.size < recentSubmits {
		st.size++
	}
}

func (st *submitStats) reject() {
	st.mu.Lock()
	st.rejected++
	st.mu.Unlock()
}

// counters reports totals plus latency over the samples newer than window.
func (st *submitStats) counters(window time.Duration) commandCounters {
	st.mu.Lock()
	defer st.mu.Unlock()

	c := commandCounters{Accepted: st.accepted, Rejected: st.rejected, Batches: st.batches}
	cutoff := time.Now().Add(-window)
	var total time.Duration
	for i := 0; i < st.size; i++ {
		s := st.ring[i]
		if s.at.Before(cutoff) {
			continue
		}
		c.RecentBatches++
		c.RecentCommands += s.n
		total += s.took
		if us := s.took.Microseconds(); us > c.MaxSubmitMicros {
			c.MaxSubmitMicros = us
		}
	}
	if c.RecentBatches > 0 {
		c.AvgSubmitMicros = total.Microseconds() / int64(c.RecentBatches)
	}
	return c
}
