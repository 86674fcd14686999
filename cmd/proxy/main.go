package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"forwardproxy/internal/domain"
	"forwardproxy/internal/interface/connection"
	"forwardproxy/internal/interface/handler"
	"forwardproxy/internal/interface/repository/cache"
	"forwardproxy/internal/interface/repository/logger"
	"forwardproxy/internal/interface/repository/metrics"
	"forwardproxy/internal/usecase"
)

const (
	logDir          = "./logs"
	logFile         = "proxy.log"
	dialTimeout     = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	port, err := parsePort(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintf(os.Stderr, "usage: %s <port>\n", os.Args[0])
		os.Exit(1)
	}

	// A write to a connection the peer already reset must surface as an
	// error on that connection, not kill the process.
	signal.Ignore(syscall.SIGPIPE)

	loggerRepo, err := logger.New(logDir, logFile, logger.DefaultRotationConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer loggerRepo.Close()

	metricsCollector := metrics.New()
	cacheManager := cache.New(metricsCollector)
	dialer := connection.NewDialer(dialTimeout)

	proxyUseCase := usecase.NewProxyUseCase(cacheManager, dialer, metricsCollector, loggerRepo)
	metricsUseCase := usecase.NewMetricsUseCase(metricsCollector)

	worker := handler.NewWorker(proxyUseCase, metricsCollector, loggerRepo)
	metricsHandler := handler.NewMetricsHandler(metricsUseCase, loggerRepo)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		loggerRepo.Error("failed to listen", err, map[string]interface{}{"port": port})
		os.Exit(1)
	}

	sidecar := &http.Server{
		Addr:    fmt.Sprintf(":%d", port+1),
		Handler: sidecarRouter(metricsHandler),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go acceptLoop(ctx, listener, worker, loggerRepo)

	go func() {
		loggerRepo.Info("starting metrics sidecar", map[string]interface{}{"port": port + 1})
		if err := sidecar.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			loggerRepo.Error("metrics sidecar error", err, nil)
		}
	}()

	loggerRepo.Info("proxy listening", map[string]interface{}{"port": port})

	select {
	case <-signalChan:
		loggerRepo.Info("shutdown signal received", nil)
	case <-ctx.Done():
	}

	cancel()
	listener.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := sidecar.Shutdown(shutdownCtx); err != nil {
		loggerRepo.Error("error shutting down metrics sidecar", err, nil)
	}

	loggerRepo.Info("shutdown complete", nil)
}

// parsePort enforces the proxy's entire CLI contract: exactly one
// positional argument, a TCP port number, and nothing else.
func parsePort(args []string) (int, error) {
	if len(args) != 2 {
		return 0, fmt.Errorf("expected exactly one argument, got %d", len(args)-1)
	}

	port, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", args[1], err)
	}
	if port <= 0 || port > 65534 {
		return 0, fmt.Errorf("port %d out of range", port)
	}

	return port, nil
}

// acceptLoop accepts client connections until ctx is done or Accept returns
// any error (the listener being closed included; other errors are logged
// first), spawning one goroutine per connection with no pool and no
// concurrency bound beyond what the OS will allow.
func acceptLoop(ctx context.Context, listener net.Listener, worker *handler.Worker, log domain.Logger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Warn("accept failed", map[string]interface{}{"error": err.Error()})
				return
			}
		}
		go worker.Handle(conn)
	}
}

// sidecarRouter wires the operational endpoints onto a chi router, the way
// the rest of this codebase's HTTP surfaces are routed.
func sidecarRouter(metricsHandler *handler.MetricsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", metricsHandler.HandleHealth)
	r.Get("/stats", metricsHandler.HandleStats)
	r.Get("/metrics", metricsHandler.HandleMetrics)
	return r
}
