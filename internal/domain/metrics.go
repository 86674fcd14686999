package domain

import (
	"fmt"
	"strings"
	"time"
)

// MetricsCollector is the interface the proxy usecase and the cache
// repository report traffic and cache state through. Implementations must be
// safe for concurrent use by many worker goroutines at once.
type MetricsCollector interface {
	IncrementConnections()
	DecrementConnections()
	AddBytesForwarded(bytes int64)
	RecordRequest()
	RecordCacheHit()
	RecordCacheMiss()
	RecordMalformedRequest()
	RecordUpstreamFailure()
	SetCacheUsage(bytes, entries int64)
	Snapshot() MetricsSnapshot
}

// MetricsSnapshot is a point-in-time read of every counter and gauge the
// proxy exposes on its operational sidecar.
type MetricsSnapshot struct {
	Timestamp          time.Time `json:"timestamp"`
	StartTime          time.Time `json:"start_time"`
	CurrentConnections int64     `json:"current_connections"`
	TotalRequests      int64     `json:"total_requests"`
	BytesForwarded     int64     `json:"bytes_forwarded"`
	CacheHits          int64     `json:"cache_hits"`
	CacheMisses        int64     `json:"cache_misses"`
	MalformedRequests  int64     `json:"malformed_requests"`
	UpstreamFailures   int64     `json:"upstream_failures"`
	CacheBytes         int64     `json:"cache_bytes"`
	CacheEntries       int64     `json:"cache_entries"`
	Uptime             string    `json:"uptime"`
}

// ToPrometheusFormat renders the snapshot as Prometheus plain-text
// exposition.
func (ms *MetricsSnapshot) ToPrometheusFormat() string {
	var metrics []string

	metrics = append(metrics,
		fmt.Sprintf("# HELP proxy_current_connections Current number of active connections\n"+
			"# TYPE proxy_current_connections gauge\n"+
			"proxy_current_connections %d", ms.CurrentConnections),

		fmt.Sprintf("# HELP proxy_total_requests Total number of processed requests\n"+
			"# TYPE proxy_total_requests counter\n"+
			"proxy_total_requests %d", ms.TotalRequests),

		fmt.Sprintf("# HELP proxy_bytes_forwarded Total number of bytes forwarded to clients\n"+
			"# TYPE proxy_bytes_forwarded counter\n"+
			"proxy_bytes_forwarded %d", ms.BytesForwarded),

		fmt.Sprintf("# HELP proxy_cache_hits Total number of cache hits\n"+
			"# TYPE proxy_cache_hits counter\n"+
			"proxy_cache_hits %d", ms.CacheHits),

		fmt.Sprintf("# HELP proxy_cache_misses Total number of cache misses\n"+
			"# TYPE proxy_cache_misses counter\n"+
			"proxy_cache_misses %d", ms.CacheMisses),

		fmt.Sprintf("# HELP proxy_malformed_requests Total number of requests rejected as malformed\n"+
			"# TYPE proxy_malformed_requests counter\n"+
			"proxy_malformed_requests %d", ms.MalformedRequests),

		fmt.Sprintf("# HELP proxy_upstream_failures Total number of failed upstream connections\n"+
			"# TYPE proxy_upstream_failures counter\n"+
			"proxy_upstream_failures %d", ms.UpstreamFailures),

		fmt.Sprintf("# HELP proxy_cache_bytes Current number of bytes held in the cache\n"+
			"# TYPE proxy_cache_bytes gauge\n"+
			"proxy_cache_bytes %d", ms.CacheBytes),

		fmt.Sprintf("# HELP proxy_cache_entries Current number of entries held in the cache\n"+
			"# TYPE proxy_cache_entries gauge\n"+
			"proxy_cache_entries %d", ms.CacheEntries),
	)

	return strings.Join(metrics, "\n\n") + "\n"
}
