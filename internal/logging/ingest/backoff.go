package ingest

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffMax  = 30 * time.Second

	maxBackoffExponent = 10
)

// RandSource yields a value in [0, n).
type RandSource interface {
	Int64N(n int64) int64
}

type globalRand struct{}

func (globalRand) Int64N(n int64) int64 { return rand.Int64N(n) }

// Backoff computes the wait before retry n as
// min(Base*2^min(n,10) + jitter, Max), jitter uniform in [0, Base*2^min(n,10)/4].
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	Rand RandSource
}

func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBackoffBase, Max: DefaultBackoffMax, Rand: globalRand{}}
}

func (b Backoff) Delay(retry int) time.Duration {
	exp := min(max(retry, 0), maxBackoffExponent)
	delay := b.Base << exp

	src := b.Rand
	if src == nil {
		src = globalRand{}
	}
	jitter := time.Duration(src.Int64N(int64(delay/4) + 1))

	return min(delay+jitter, b.Max)
}
