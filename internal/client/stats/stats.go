package stats

import (
	"sort"
	"sync"
	"time"
)

// Stats tracks live-results delivery with thread-safe access.
type Stats struct {
	mu sync.RWMutex

	fetches        int64
	fetchErrors    int64
	socketMessages int64
	ignored        int64
	applied        int64
	stale          int64
	socketUp       bool

	// Ring buffer for fetch times (for percentile calculations)
	fetchTimes []time.Duration
	maxSamples int

	lastApplied time.Time
	startTime   time.Time
}

// Snapshot represents a point-in-time view of statistics.
type Snapshot struct {
	Fetches        int64
	FetchErrors    int64
	SocketMessages int64
	Ignored        int64 // socket messages without a usable results payload
	Applied        int64
	Stale          int64
	SocketUp       bool

	// Fetch timing metrics
	RT1 time.Duration // Last fetch time
	RT5 time.Duration // Average of last 5 fetches
	P50 time.Duration // 50th percentile
	P90 time.Duration // 90th percentile

	LastApplied time.Time
	Uptime      time.Duration
}

func New() *Stats {
	return NewWithOptions(100)
}

// NewWithOptions creates a Stats tracker keeping maxSamples fetch timings.
func NewWithOptions(maxSamples int) *Stats {
	if maxSamples <= 0 {
		maxSamples = 100
	}
	return &Stats{
		fetchTimes: make([]time.Duration, 0, maxSamples),
		maxSamples: maxSamples,
		startTime:  time.Now(),
	}
}

// RecordFetch records one interval re-fetch. Failed fetches are counted but
// their timing is not sampled.
func (s *Stats) RecordFetch(duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches++
	if err != nil {
		s.fetchErrors++
		return
	}

	if len(s.fetchTimes) >= s.maxSamples {
		copy(s.fetchTimes, s.fetchTimes[1:])
		s.fetchTimes = s.fetchTimes[:len(s.fetchTimes)-1]
	}
	s.fetchTimes = append(s.fetchTimes, duration)
}

func (s *Stats) RecordSocketMessage(usable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.socketMessages++
	if !usable {
		s.ignored++
	}
}

func (s *Stats) RecordApplied() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied++
	s.lastApplied = time.Now()
}

func (s *Stats) RecordStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale++
}

func (s *Stats) SetSocketUp(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.socketUp = up
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Fetches:        s.fetches,
		FetchErrors:    s.fetchErrors,
		SocketMessages: s.socketMessages,
		Ignored:        s.ignored,
		Applied:        s.applied,
		Stale:          s.stale,
		SocketUp:       s.socketUp,
		LastApplied:    s.lastApplied,
		Uptime:         time.Since(s.startTime),
	}

	n := len(s.fetchTimes)
	if n == 0 {
		return snap
	}

	snap.RT1 = s.fetchTimes[n-1]

	count := 5
	if n < count {
		count = n
	}
	var sum time.Duration
	for i := n - count; i < n; i++ {
		sum += s.fetchTimes[i]
	}
	snap.RT5 = sum / time.Duration(count)

	sorted := make([]time.Duration, n)
	copy(sorted, s.fetchTimes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	snap.P50 = sorted[n/2]

	p90Index := int(float64(n) * 0.9)
	if p90Index >= n {
		p90Index = n - 1
	}
	snap.P90 = sorted[p90Index]

	return snap
}

func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches = 0
	s.fetchErrors = 0
	s.socketMessages = 0
	s.ignored = 0
	s.applied = 0
	s.stale = 0
	s.socketUp = false
	s.fetchTimes = s.fetchTimes[:0]
	s.lastApplied = time.Time{}
	s.startTime = time.Now()
}
