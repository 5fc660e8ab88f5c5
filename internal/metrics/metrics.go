package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Chichichkin/EdgeCollector/internal/daemon"
	"github.com/Chichichkin/EdgeCollector/internal/logging/batch"
	"github.com/Chichichkin/EdgeCollector/internal/logging/ingest"
)

const (
	namespace       = "edge_collector"
	shutdownTimeout = 5 * time.Second
)

// Sources are snapshot functions read on every scrape. Nil sources are not
// exported.
type Sources struct {
	Buffer    func() batch.Stats
	Client    func() ingest.Stats
	Tail      func() daemon.LogDaemonMetrics
	Generated func() uint64
}

func counter(subsystem, name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
}

func gauge(subsystem, name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
}

// NewRegistry returns a registry with the runtime collectors and every
// non-nil source registered.
func NewRegistry(sources Sources) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	Register(registry, sources)
	return registry
}

func Register(registry prometheus.Registerer, sources Sources) {
	if buffer := sources.Buffer; buffer != nil {
		registry.MustRegister(
			counter("buffer", "received_total", "Records accepted from the intake.",
				func() float64 { return float64(buffer().Received) }),
			counter("buffer", "flushed_total", "Records handed out in batches.",
				func() float64 { return float64(buffer().Flushed) }),
			counter("buffer", "dropped_total", "Records evicted by the overflow policy.",
				func() float64 { return float64(buffer().Dropped) }),
			counter("buffer", "size_flushes_total", "Batches cut because the size threshold was reached.",
				func() float64 { return float64(buffer().SizeFlushes) }),
			counter("buffer", "time_flushes_total", "Batches cut by the flush interval.",
				func() float64 { return float64(buffer().TimeFlushes) }),
			gauge("buffer", "pending", "Records waiting in the accumulation buffer.",
				func() float64 { return float64(buffer().Pending) }),
		)
	}

	if client := sources.Client; client != nil {
		registry.MustRegister(
			counter("client", "batches_sent_total", "Batches accepted by the ingestion service.",
				func() float64 { return float64(client().BatchesSent) }),
			counter("client", "records_sent_total", "Records the ingestion service reported as accepted.",
				func() float64 { return float64(client().RecordsSent) }),
			counter("client", "batches_failed_total", "Batches abandoned after a permanent error or exhausted retries.",
				func() float64 { return float64(client().BatchesFailed) }),
			counter("client", "retries_total", "Retry attempts performed.",
				func() float64 { return float64(client().Retries) }),
		)
	}

	if tail := sources.Tail; tail != nil {
		registry.MustRegister(
			counter("tail", "files_discovered_total", "Distinct log files found by scans.",
				func() float64 { return float64(tail().FilesDiscovered) }),
			gauge("tail", "files_tailing", "Files currently being followed.",
				func() float64 { return float64(tail().FilesTailing) }),
			gauge("tail", "max_files", "Configured tail slot limit.",
				func() float64 { return float64(tail().MaxFiles) }),
			counter("tail", "files_skipped_total", "Scan hits skipped because every tail slot was taken.",
				func() float64 { return float64(tail().FilesSkipped) }),
			counter("tail", "files_failed_total", "Tails that could not be started or crashed.",
				func() float64 { return float64(tail().FilesFailed) }),
			counter("tail", "files_idled_total", "Tails stopped by the idle timeout.",
				func() float64 { return float64(tail().FilesIdled) }),
			counter("tail", "lines_read_total", "Lines submitted as records.",
				func() float64 { return float64(tail().LinesRead) }),
			counter("tail", "lines_skipped_total", "Blank lines ignored.",
				func() float64 { return float64(tail().LinesSkipped) }),
		)
	}

	if generated := sources.Generated; generated != nil {
		registry.MustRegister(
			counter("generator", "records_total", "Synthetic sensor records produced.",
				func() float64 { return float64(generated()) }),
		)
	}
}

func Handler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe serves /metrics on addr until ctx ends.
func ListenAndServe(ctx context.Context, addr string, registry *prometheus.Registry, log *zap.SugaredLogger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return Serve(ctx, listener, registry, log)
}

func Serve(ctx context.Context, listener net.Listener, registry *prometheus.Registry, log *zap.SugaredLogger) error {
	server := &http.Server{
		Handler:      Handler(registry),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Infow("Metrics server started", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}
	log.Info("Metrics server stopped")
	return nil
}
