package batch

import (
	"context"
	"errors"
	"sync"

	"github.com/Chichichkin/EdgeCollector/internal/logging"
)

// Run feeds batches to workers delivery goroutines until the intake is closed
// and drained, then waits for in-flight deliveries. With every worker busy the
// intake keeps flowing into the buffer, so producers only ever see the
// overflow policy, never a stalled transport.
func (e *Engine) Run(ctx context.Context, deliverer logging.Deliverer, workers int) error {
	if workers < 1 {
		workers = 1
	}

	ready := make(chan logging.Batch)
	var wg sync.WaitGroup
	for id := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range ready {
				if err := deliverer.Deliver(ctx, batch); err != nil {
					e.log.Warnw("Failed to deliver batch",
						"worker", id,
						"batch_id", batch.ID(),
						"records", batch.Len(),
						"error", err,
					)
				}
			}
		}()
	}
	defer func() {
		close(ready)
		wg.Wait()
	}()

	e.log.Infow("Delivery pump started", "workers", workers, "batch_size", e.config.BatchSize, "flush_interval", e.config.FlushInterval)

	for {
		batch, err := e.NextBatch(ctx)
		if errors.Is(err, ErrDrained) {
			e.log.Infow("Intake closed, delivery pump finishing", "stats", e.Stats())
			return nil
		}
		if err != nil {
			return err
		}

		if err := e.handOff(ctx, ready, batch); err != nil {
			return err
		}
	}
}

func (e *Engine) handOff(ctx context.Context, ready chan<- logging.Batch, batch logging.Batch) error {
	select {
	case ready <- batch:
		return nil
	default:
	}

	e.log.Debugw("All delivery workers busy, buffering intake", "batch_id", batch.ID(), "buffered", len(e.records))

	for {
		producersDone := e.q.producersDone
		if e.intakeClosed {
			producersDone = nil
		}

		select {
		case ready <- batch:
			return nil
		case record := <-e.q.records:
			e.add(record)
		case <-producersDone:
			e.intakeClosed = true
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
