package handler

import (
	"net"

	"forwardproxy/internal/domain"
	"forwardproxy/internal/usecase"
)

// Worker owns a single accepted client connection end to end: it is the
// acceptor loop's unit of concurrency, one goroutine per connection, no
// pool, no queue, bounded only by what the OS will let the process open.
type Worker struct {
	proxyUseCase *usecase.ProxyUseCase
	metrics      domain.MetricsCollector
	logger       domain.Logger
}

// NewWorker creates a Worker.
func NewWorker(
	proxyUseCase *usecase.ProxyUseCase, metrics domain.MetricsCollector, logger domain.Logger,
) *Worker {
	return &Worker{
		proxyUseCase: proxyUseCase,
		metrics:      metrics,
		logger:       logger,
	}
}

// Handle runs one request/response cycle on conn and closes it
// unconditionally before returning, regardless of how the cycle ended.
// Callers spawn this as `go worker.Handle(conn)` straight out of Accept.
func (w *Worker) Handle(conn net.Conn) {
	w.metrics.IncrementConnections()
	defer w.metrics.DecrementConnections()

	reqCtx := domain.NewRequestContext(conn.RemoteAddr().String())
	w.logger.Info("connection accepted", map[string]interface{}{
		"request_id":  reqCtx.ID,
		"remote_addr": reqCtx.RemoteAddr,
	})

	handleErr := w.proxyUseCase.HandleConnection(conn, reqCtx)
	closeErr := conn.Close()

	if err := usecase.CombineCloseErrors(handleErr, closeErr); err != nil {
		w.logger.Debug("connection ended with error", map[string]interface{}{
			"request_id":  reqCtx.ID,
			"remote_addr": reqCtx.RemoteAddr,
			"error":       err.Error(),
		})
	}
}
