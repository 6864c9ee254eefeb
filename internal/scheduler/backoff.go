// internal/scheduler/backoff.go
package scheduler

import (
	"math/rand"
	"time"
)

// backoff produces the delay before the next retry after consecutive
// transient failures: the base doubles on every call and never exceeds the
// ceiling. With jitter enabled each delay gains up to a quarter extra so
// retries against a struggling site drift apart; the sequence stays
// non-decreasing either way.
type backoff struct {
	base    time.Duration
	ceiling time.Duration
	jitter  bool
	rng     *rand.Rand
	current time.Duration
}

func newBackoff(base, ceiling time.Duration, jitter bool, rng *rand.Rand) *backoff {
	if base <= 0 {
		base = 5 * time.Second
	}
	if ceiling < base {
		ceiling = base
	}
	return &backoff{base: base, ceiling: ceiling, jitter: jitter, rng: rng}
}

func (b *backoff) next() time.Duration {
	if b.current == 0 {
		b.current = b.base
	} else if b.current < b.ceiling {
		b.current *= 2
		if b.current > b.ceiling {
			b.current = b.ceiling
		}
	}

	d := b.current
	if b.jitter && b.rng != nil {
		d += time.Duration(b.rng.Int63n(int64(b.current)/4 + 1))
		if d > b.ceiling {
			d = b.ceiling
		}
	}
	return d
}

func (b *backoff) reset() { b.current = 0 }
