package batch

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Chichichkin/EdgeCollector/internal/logging"
)

// ErrDrained is returned by NextBatch once every intake handle is closed and
// the buffer is empty. It is terminal.
var ErrDrained = errors.New("intake closed and buffer drained")

type trigger int

const (
	triggerSize trigger = iota
	triggerTime
	triggerClose
	triggerManual
)

func (t trigger) String() string {
	switch t {
	case triggerSize:
		return "size"
	case triggerTime:
		return "time"
	case triggerClose:
		return "close"
	default:
		return "manual"
	}
}

type Stats struct {
	Received    uint64
	Flushed     uint64
	Dropped     uint64
	SizeFlushes uint64
	TimeFlushes uint64
	Pending     int
}

type counters struct {
	received    atomic.Uint64
	flushed     atomic.Uint64
	dropped     atomic.Uint64
	sizeFlushes atomic.Uint64
	timeFlushes atomic.Uint64
	pending     atomic.Int64
}

// Engine accumulates records from the intake and cuts them into batches.
// NextBatch, Flush and Run must be driven by a single goroutine; Stats and
// Len are safe from anywhere.
type Engine struct {
	config Config
	log    *zap.SugaredLogger
	q      *queue

	records      []logging.LogRecord
	ticker       *time.Ticker
	intakeClosed bool
	drained      bool

	stats counters
}

func New(config Config, log *zap.SugaredLogger) (*Intake, *Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	q := newQueue(config.IntakeCapacity)
	engine := &Engine{
		config:  config,
		log:     log,
		q:       q,
		records: make([]logging.LogRecord, 0, config.BatchSize),
		ticker:  time.NewTicker(config.FlushInterval),
	}
	return &Intake{q: q}, engine, nil
}

// NextBatch blocks until a size or time trigger fires and returns the batch.
// After the intake closes, the queued and buffered records come out in
// batches of at most BatchSize, followed by ErrDrained.
func (e *Engine) NextBatch(ctx context.Context) (logging.Batch, error) {
	if e.drained {
		return logging.Batch{}, ErrDrained
	}
	if len(e.records) >= e.config.BatchSize {
		return e.cut(e.config.BatchSize, triggerSize), nil
	}

	for {
		if e.intakeClosed {
			return e.drain()
		}

		select {
		case record := <-e.q.records:
			e.add(record)
			if len(e.records) >= e.config.BatchSize {
				return e.cut(e.config.BatchSize, triggerSize), nil
			}
		case <-e.ticker.C:
			if len(e.records) > 0 {
				return e.cut(len(e.records), triggerTime), nil
			}
		case <-e.q.producersDone:
			e.intakeClosed = true
		case <-ctx.Done():
			return logging.Batch{}, ctx.Err()
		}
	}
}

func (e *Engine) drain() (logging.Batch, error) {
queued:
	for len(e.records) < e.config.BatchSize {
		select {
		case record := <-e.q.records:
			e.add(record)
		default:
			break queued
		}
	}

	if len(e.records) >= e.config.BatchSize {
		return e.cut(e.config.BatchSize, triggerSize), nil
	}
	if len(e.records) > 0 {
		return e.cut(len(e.records), triggerClose), nil
	}

	e.drained = true
	e.log.Debugw("Buffer drained", "received", e.stats.received.Load(), "flushed", e.stats.flushed.Load())
	return logging.Batch{}, ErrDrained
}

// Flush cuts whatever is buffered regardless of triggers.
func (e *Engine) Flush() (logging.Batch, bool) {
	if len(e.records) == 0 {
		return logging.Batch{}, false
	}
	return e.cut(len(e.records), triggerManual), true
}

func (e *Engine) add(record logging.LogRecord) {
	e.stats.received.Add(1)

	if len(e.records) >= e.config.MaxCapacity {
		drop := max(len(e.records)/10, 1)
		e.log.Warnw("Buffer overflow, dropping oldest records",
			"buffered", len(e.records),
			"max_capacity", e.config.MaxCapacity,
			"dropped", drop,
		)
		e.records = slices.Delete(e.records, 0, drop)
		e.stats.dropped.Add(uint64(drop))
	}

	e.records = append(e.records, record)
	e.stats.pending.Store(int64(len(e.records)))
}

func (e *Engine) cut(n int, reason trigger) logging.Batch {
	var taken []logging.LogRecord
	if n == len(e.records) {
		taken = e.records
		e.records = make([]logging.LogRecord, 0, e.config.BatchSize)
	} else {
		taken = slices.Clone(e.records[:n])
		e.records = slices.Delete(e.records, 0, n)
	}

	e.stats.flushed.Add(uint64(n))
	e.stats.pending.Store(int64(len(e.records)))
	switch reason {
	case triggerSize:
		e.stats.sizeFlushes.Add(1)
	case triggerTime:
		e.stats.timeFlushes.Add(1)
	}
	if !e.q.isShutdown() {
		e.ticker.Reset(e.config.FlushInterval)
	}

	batch := logging.NewBatch(taken, e.config.Source)
	e.log.Debugw("Batch ready", "batch_id", batch.ID(), "records", n, "trigger", reason.String())
	return batch
}

func (e *Engine) Len() int {
	return int(e.stats.pending.Load())
}

func (e *Engine) Stats() Stats {
	return Stats{
		Received:    e.stats.received.Load(),
		Flushed:     e.stats.flushed.Load(),
		Dropped:     e.stats.dropped.Load(),
		SizeFlushes: e.stats.sizeFlushes.Load(),
		TimeFlushes: e.stats.timeFlushes.Load(),
		Pending:     int(e.stats.pending.Load()),
	}
}

// Close rejects further submissions and stops the flush timer. Buffered
// records stay available to Flush.
func (e *Engine) Close() {
	e.q.shutdown()
	e.ticker.Stop()
}
