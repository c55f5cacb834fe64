// Package monitoring keeps in-process counters for the upload server.
package monitoring

import (
	"runtime"
	"sync"
	"time"
)

// Upload outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeNoModel  = "no_model"
	OutcomeFailed   = "failed"
)

type LatencySummary struct {
	Count   int           `json:"count"`
	Min     time.Duration `json:"min_ns"`
	Max     time.Duration `json:"max_ns"`
	Average time.Duration `json:"avg_ns"`
	total   time.Duration
}

func (s *LatencySummary) observe(d time.Duration) {
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Count++
	s.total += d
	s.Average = s.total / time.Duration(s.Count)
}

// Snapshot is a point-in-time copy of every metric.
type Snapshot struct {
	Uptime     string           `json:"uptime"`
	Uploads    map[string]int64 `json:"uploads"`
	Labels     map[string]int64 `json:"labels"`
	CacheHits  int64            `json:"cache_hits"`
	Latency    LatencySummary   `json:"classify_latency"`
	Goroutines int              `json:"goroutines"`
	HeapAlloc  uint64           `json:"heap_alloc_bytes"`
	GCCount    uint32           `json:"gc_count"`
}

type Collector struct {
	mu        sync.Mutex
	startTime time.Time
	uploads   map[string]int64
	labels    map[string]int64
	cacheHits int64
	latency   LatencySummary
}

func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		uploads:   make(map[string]int64),
		labels:    make(map[string]int64),
	}
}

// RecordUpload counts one upload request by outcome.
func (c *Collector) RecordUpload(outcome string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.uploads[outcome]++
	c.mu.Unlock()
}

// RecordCacheHit counts a classification served from the result cache. The
// upload itself is still counted once by RecordUpload.
func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cacheHits++
	c.mu.Unlock()
}

// ObservePrediction counts a fresh classification and its latency.
func (c *Collector) ObservePrediction(label string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.labels[label]++
	c.latency.observe(elapsed)
	c.mu.Unlock()
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s := Snapshot{
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Uploads:    make(map[string]int64, len(c.uploads)),
		Labels:     make(map[string]int64, len(c.labels)),
		CacheHits:  c.cacheHits,
		Latency:    c.latency,
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		GCCount:    m.NumGC,
	}
	for k, v := range c.uploads {
		s.Uploads[k] = v
	}
	for k, v := range c.labels {
		s.Labels[k] = v
	}
	return s
}
