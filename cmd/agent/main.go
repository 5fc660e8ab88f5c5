package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Chichichkin/EdgeCollector/internal/config"
	"github.com/Chichichkin/EdgeCollector/internal/daemon"
	"github.com/Chichichkin/EdgeCollector/internal/generator"
	"github.com/Chichichkin/EdgeCollector/internal/logger"
	"github.com/Chichichkin/EdgeCollector/internal/logging/batch"
	"github.com/Chichichkin/EdgeCollector/internal/logging/ingest"
	"github.com/Chichichkin/EdgeCollector/internal/metrics"
)

var (
	buildVersion string = "N/A"
	buildDate    string = "N/A"
	buildCommit  string = "N/A"
)

func main() {
	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)

	if err := start(); err != nil {
		log.Fatal(err)
	}
}

func start() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	sugar, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = sugar.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a second signal during the drain kills the process
	go func() {
		<-ctx.Done()
		stop()
	}()

	return run(ctx, cfg, sugar)
}

// run wires the producers, the buffer engine and the ingest client. Producers
// stop when ctx ends; the buffer then drains for at most the shutdown timeout.
func run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	log.Infow("Starting Edge Collector service",
		"api_url", cfg.APIURL,
		"batch_size", cfg.BatchSize,
		"flush_interval", cfg.FlushInterval(),
		"max_retries", cfg.MaxRetries,
		"node", cfg.NodeName,
	)

	client, err := ingest.NewClient(cfg.ClientConfig(), log)
	if err != nil {
		return fmt.Errorf("failed to create ingest client: %w", err)
	}
	log.Infow("HTTP client initialized", "ingest_url", client.URL())

	intake, engine, err := batch.New(cfg.BufferConfig(), log)
	if err != nil {
		return fmt.Errorf("failed to create buffer: %w", err)
	}
	defer engine.Close()

	sources := metrics.Sources{Buffer: engine.Stats, Client: client.Stats}
	producers, producersCtx := errgroup.WithContext(ctx)

	if cfg.GeneratorEnabled {
		gen := generator.New(generator.Config{
			SensorsPerType:  cfg.SensorsPerType,
			IncludeMetadata: cfg.IncludeMetadata,
		}, log)
		sources.Generated = gen.Generated

		handle := intake.Clone()
		producers.Go(func() error {
			defer handle.Close()
			return gen.Run(producersCtx, handle, cfg.GenerationInterval())
		})
	}

	if cfg.TailPath != "" {
		handle := intake.Clone()
		tailer := daemon.NewLogDaemonService(cfg.TailConfig(), handle, log)
		sources.Tail = tailer.Metrics

		producers.Go(func() error {
			defer handle.Close()
			return tailer.Run(producersCtx)
		})
	}

	if !cfg.GeneratorEnabled && cfg.TailPath == "" {
		log.Warn("No producers enabled, nothing will be collected")
	}

	if cfg.MetricsAddr != "" {
		registry := metrics.NewRegistry(sources)
		producers.Go(func() error {
			return metrics.ListenAndServe(producersCtx, cfg.MetricsAddr, registry, log)
		})
	}

	// producers hold their own handles
	intake.Close()

	pumpCtx, cancelPump := context.WithCancel(context.Background())
	defer cancelPump()

	pumpDone := make(chan error, 1)
	go func() {
		pumpDone <- engine.Run(pumpCtx, client, cfg.DeliveryWorkers)
	}()

	log.Info("Edge Collector running")

	if err := producers.Wait(); err != nil {
		log.Errorw("Producer stopped with error", "error", err)
	}

	log.Infow("Initiating graceful shutdown", "timeout", cfg.ShutdownTimeout())

	timer := time.NewTimer(cfg.ShutdownTimeout())
	defer timer.Stop()

	select {
	case err := <-pumpDone:
		if err != nil {
			log.Warnw("Buffer pump stopped with error", "error", err)
		} else {
			log.Info("Buffer drained gracefully")
		}
	case <-timer.C:
		log.Warnw("Buffer drain timed out", "timeout", cfg.ShutdownTimeout())
		cancelPump()
		<-pumpDone
	}

	bufferStats := engine.Stats()
	clientStats := client.Stats()
	log.Infow("Edge Collector stopped",
		"received", bufferStats.Received,
		"flushed", bufferStats.Flushed,
		"dropped", bufferStats.Dropped,
		"pending", bufferStats.Pending,
		"batches_sent", clientStats.BatchesSent,
		"records_sent", clientStats.RecordsSent,
		"batches_failed", clientStats.BatchesFailed,
		"retries", clientStats.Retries,
	)
	return nil
}
