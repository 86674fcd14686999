package handler

import (
	"encoding/json"
	"net/http"

	"github.com/dustin/go-humanize"

	"forwardproxy/internal/domain"
	"forwardproxy/internal/usecase"
)

// MetricsHandler serves the proxy's operational sidecar: a Prometheus
// exposition endpoint, a JSON stats dump, and a liveness probe.
type MetricsHandler struct {
	metricsUseCase *usecase.MetricsUseCase
	logger         domain.Logger
}

// NewMetricsHandler creates a MetricsHandler.
func NewMetricsHandler(metricsUseCase *usecase.MetricsUseCase, logger domain.Logger) *MetricsHandler {
	return &MetricsHandler{
		metricsUseCase: metricsUseCase,
		logger:         logger,
	}
}

// HandleMetrics serves the current snapshot as Prometheus plain text.
func (h *MetricsHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if _, err := w.Write([]byte(h.metricsUseCase.PrometheusText())); err != nil {
		h.logger.Warn("writing metrics response", map[string]interface{}{"error": err.Error()})
	}
}

// statsResponse adds human-readable byte counts alongside the raw numbers
// domain.MetricsSnapshot carries, the way an operator skimming /stats
// actually wants to read them.
type statsResponse struct {
	domain.MetricsSnapshot
	BytesForwardedHuman string `json:"bytes_forwarded_human"`
	CacheBytesHuman     string `json:"cache_bytes_human"`
}

// HandleStats serves the current snapshot as JSON.
func (h *MetricsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.metricsUseCase.Snapshot()
	resp := statsResponse{
		MetricsSnapshot:     snapshot,
		BytesForwardedHuman: humanize.Bytes(uint64(snapshot.BytesForwarded)),
		CacheBytesHuman:     humanize.Bytes(uint64(snapshot.CacheBytes)),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("encoding stats response", map[string]interface{}{"error": err.Error()})
	}
}

// HandleHealth is a trivial liveness probe: if this handler runs at all,
// the sidecar (and therefore the process) is up.
func (h *MetricsHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "up"})
}
