package batch

import (
	"context"
	"errors"
	"sync"

	"github.com/Chichichkin/EdgeCollector/internal/logging"
)

var (
	ErrFull   = errors.New("intake queue is full")
	ErrClosed = errors.New("intake is closed")
)

// queue is shared by every producer handle and the engine.
type queue struct {
	records chan logging.LogRecord

	mu            sync.Mutex
	handles       int
	producersDone chan struct{}

	engineDone chan struct{}
	engineOnce sync.Once
}

func newQueue(capacity int) *queue {
	return &queue{
		records:       make(chan logging.LogRecord, capacity),
		handles:       1,
		producersDone: make(chan struct{}),
		engineDone:    make(chan struct{}),
	}
}

func (q *queue) acquire() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handles++
}

func (q *queue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handles--
	if q.handles == 0 {
		close(q.producersDone)
	}
}

func (q *queue) shutdown() {
	q.engineOnce.Do(func() { close(q.engineDone) })
}

// Intake is a producer handle. Handles are cheap to Clone; the intake closes
// for good once every handle has been closed.
type Intake struct {
	q *queue

	mu     sync.RWMutex
	closed bool
}

// Submit waits for free queue capacity. It fails with ErrClosed once the
// handle or the engine is closed.
func (in *Intake) Submit(ctx context.Context, record logging.LogRecord) error {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if in.closed || in.q.isShutdown() {
		return ErrClosed
	}

	select {
	case in.q.records <- record:
		return nil
	case <-in.q.engineDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit never waits: a full queue is reported as ErrFull.
func (in *Intake) TrySubmit(record logging.LogRecord) error {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if in.closed || in.q.isShutdown() {
		return ErrClosed
	}

	select {
	case in.q.records <- record:
		return nil
	default:
		return ErrFull
	}
}

// Clone returns a new handle on the same queue. Cloning a closed handle
// yields a closed handle.
func (in *Intake) Clone() *Intake {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if in.closed {
		return &Intake{q: in.q, closed: true}
	}
	in.q.acquire()
	return &Intake{q: in.q}
}

// Close releases the handle. It waits for Submit calls already in flight on
// this handle and is safe to call more than once.
func (in *Intake) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return
	}
	in.closed = true
	in.q.release()
}

// Queued reports how many records wait in the intake queue.
func (in *Intake) Queued() int {
	return len(in.q.records)
}

func (q *queue) isShutdown() bool {
	select {
	case <-q.engineDone:
		return true
	default:
		return false
	}
}
