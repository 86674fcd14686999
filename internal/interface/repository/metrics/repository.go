package metrics

import (
	"sync/atomic"
	"time"

	"forwardproxy/internal/domain"
)

// Repository is the in-memory MetricsCollector implementation: plain atomic
// counters and gauges, read back by Snapshot. Nothing here touches disk;
// the proxy keeps no metrics history beyond what is currently in memory.
type Repository struct {
	startTime time.Time

	connections int64
	requests    int64
	bytes       int64
	cacheHits   int64
	cacheMisses int64
	malformed   int64
	upstreamErr int64
	cacheBytes  int64
	cacheCount  int64
}

var _ domain.MetricsCollector = (*Repository)(nil)

// New creates a Repository whose uptime is measured from the moment of
// creation.
func New() *Repository {
	return &Repository{startTime: time.Now()}
}

func (r *Repository) IncrementConnections() {
	atomic.AddInt64(&r.connections, 1)
}

func (r *Repository) DecrementConnections() {
	atomic.AddInt64(&r.connections, -1)
}

func (r *Repository) AddBytesForwarded(n int64) {
	atomic.AddInt64(&r.bytes, n)
}

func (r *Repository) RecordRequest() {
	atomic.AddInt64(&r.requests, 1)
}

func (r *Repository) RecordCacheHit() {
	atomic.AddInt64(&r.cacheHits, 1)
}

func (r *Repository) RecordCacheMiss() {
	atomic.AddInt64(&r.cacheMisses, 1)
}

func (r *Repository) RecordMalformedRequest() {
	atomic.AddInt64(&r.malformed, 1)
}

func (r *Repository) RecordUpstreamFailure() {
	atomic.AddInt64(&r.upstreamErr, 1)
}

func (r *Repository) SetCacheUsage(bytes, entries int64) {
	atomic.StoreInt64(&r.cacheBytes, bytes)
	atomic.StoreInt64(&r.cacheCount, entries)
}

// Snapshot reads every counter and gauge at once. The read isn't a single
// atomic transaction across fields, the same tradeoff net/http's own
// internal metrics make, and is good enough for an operational dashboard.
func (r *Repository) Snapshot() domain.MetricsSnapshot {
	now := time.Now()
	return domain.MetricsSnapshot{
		Timestamp:          now,
		StartTime:          r.startTime,
		CurrentConnections: atomic.LoadInt64(&r.connections),
		TotalRequests:      atomic.LoadInt64(&r.requests),
		BytesForwarded:     atomic.LoadInt64(&r.bytes),
		CacheHits:          atomic.LoadInt64(&r.cacheHits),
		CacheMisses:        atomic.LoadInt64(&r.cacheMisses),
		MalformedRequests:  atomic.LoadInt64(&r.malformed),
		UpstreamFailures:   atomic.LoadInt64(&r.upstreamErr),
		CacheBytes:         atomic.LoadInt64(&r.cacheBytes),
		CacheEntries:       atomic.LoadInt64(&r.cacheCount),
		Uptime:             now.Sub(r.startTime).String(),
	}
}
