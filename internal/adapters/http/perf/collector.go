// Package perf keeps a rolling window of request, query and backend call
// timings for the admin performance page.
package perf

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 10000

// EntryKind distinguishes what was timed.
type EntryKind uint8

const (
	KindRequest EntryKind = iota // inbound HTTP request
	KindQuery                    // local SQLite statement
	KindCall                     // outbound backend RPC
)

// Entry is a single timing record.
type Entry struct {
	Kind       EntryKind
	Path       string // route pattern, query label or RPC name
	StatusCode int    // HTTP status, 0 for queries
	DurationMs float64
	Timestamp  time.Time
}

// failed reports whether the entry counts as an error for its kind.
func (e Entry) failed() bool {
	switch e.Kind {
	case KindRequest:
		return e.StatusCode >= 500
	case KindCall:
		return e.StatusCode >= 400
	}
	return false
}

// Collector is a fixed-size ring of entries. Writers overwrite the oldest
// entry; all aggregation happens in Snapshot.
type Collector struct {
	mu      sync.Mutex
	ring    []Entry
	next    int
	written atomic.Int64
}

// NewCollector creates a collector holding the last size entries.
// POST: a non-positive size falls back to DefaultRingSize
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{ring: make([]Entry, size)}
}

// Record stores e, overwriting the oldest entry when full.
func (c *Collector) Record(e Entry) {
	c.mu.Lock()
	c.ring[c.next] = e
	c.next = (c.next + 1) % len(c.ring)
	c.mu.Unlock()
	c.written.Add(1)
}

// TotalRecorded returns how many entries were ever recorded.
func (c *Collector) TotalRecorded() int64 {
	return c.written.Load()
}

// Section aggregates one kind of entry.
type Section struct {
	Count   int        `json:"count"`
	Errors  int        `json:"errors"`
	P50Ms   float64    `json:"p50_ms"`
	P95Ms   float64    `json:"p95_ms"`
	P99Ms   float64    `json:"p99_ms"`
	Slowest []PathStat `json:"slowest"`
}

// Snapshot is the aggregated view of the window.
type Snapshot struct {
	Since         time.Time `json:"since"`
	TotalRecorded int64     `json:"total_recorded"`
	Requests      Section   `json:"requests"`
	Queries       Section   `json:"queries"`
	Calls         Section   `json:"calls"`
}

// PathStat aggregates timing for a single route, query label or RPC.
type PathStat struct {
	Path    string  `json:"path"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	Count   int     `json:"count"`
	Errors  int     `json:"errors"`
	TotalMs float64 `json:"total_ms"`
}

// Snapshot aggregates entries recorded at or after since.
// PRE: topN > 0
// POST: each section lists at most topN paths, slowest average first
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	buf := slices.Clone(c.ring)
	c.mu.Unlock()

	var acc [3]accumulator
	for _, e := range buf {
		if e.Timestamp.IsZero() || e.Timestamp.Before(since) || int(e.Kind) >= len(acc) {
			continue
		}
		acc[e.Kind].add(e)
	}
	return Snapshot{
		Since:         since,
		TotalRecorded: c.TotalRecorded(),
		Requests:      acc[KindRequest].section(topN),
		Queries:       acc[KindQuery].section(topN),
		Calls:         acc[KindCall].section(topN),
	}
}

type accumulator struct {
	durations []float64
	errors    int
	byPath    map[string]*PathStat
}

func (a *accumulator) add(e Entry) {
	if a.byPath == nil {
		a.byPath = make(map[string]*PathStat)
	}
	a.durations = append(a.durations, e.DurationMs)
	s, ok := a.byPath[e.Path]
	if !ok {
		s = &PathStat{Path: e.Path}
		a.byPath[e.Path] = s
	}
	s.Count++
	s.TotalMs += e.DurationMs
	s.MaxMs = math.Max(s.MaxMs, e.DurationMs)
	if e.failed() {
		s.Errors++
		a.errors++
	}
}

func (a *accumulator) section(topN int) Section {
	sec := Section{Count: len(a.durations), Errors: a.errors, Slowest: []PathStat{}}
	if len(a.durations) == 0 {
		return sec
	}
	slices.Sort(a.durations)
	sec.P50Ms = percentile(a.durations, 50)
	sec.P95Ms = percentile(a.durations, 95)
	sec.P99Ms = percentile(a.durations, 99)

	for _, s := range a.byPath {
		s.AvgMs = s.TotalMs / float64(s.Count)
		sec.Slowest = append(sec.Slowest, *s)
	}
	slices.SortFunc(sec.Slowest, func(x, y PathStat) int {
		if c := cmp.Compare(y.AvgMs, x.AvgMs); c != 0 {
			return c
		}
		return cmp.Compare(x.Path, y.Path)
	})
	if len(sec.Slowest) > topN {
		sec.Slowest = sec.Slowest[:topN]
	}
	return sec
}

// percentile interpolates the p-th percentile of a sorted slice.
// PRE: sorted is non-empty and ascending
func percentile(sorted []float64, p float64) float64 {
	idx := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
