package backoff

import (
	"math/rand"
	"time"
)

const (
	defaultBase   = time.Second
	defaultMax    = 60 * time.Second
	defaultJitter = 0.3
)

// Backoff maps a retry attempt count to a jittered delay.
type Backoff struct {
	// Base is the delay for attempt 0. Optional; default 1s.
	Base time.Duration
	// Max caps the exponential delay before jitter. Optional; default 60s.
	Max time.Duration
	// Jitter adds randomization as a fraction of the delay (0-1). Optional; default 0.3.
	Jitter float64

	rng *rand.Rand
}

// Default provides conservative reconnect defaults.
func Default() Backoff {
	return Backoff{
		Base:   defaultBase,
		Max:    defaultMax,
		Jitter: defaultJitter,
	}
}

// WithSource returns a copy using the given seeded source, for deterministic tests.
func (b Backoff) WithSource(src rand.Source) Backoff {
	b.rng = rand.New(src)
	return b
}

// Next returns the delay for the given attempt (0-based).
// The delay grows as base*2^attempt capped at Max, plus up to Jitter*delay
// of uniform random variance to desynchronize many clients' retries.
func (b Backoff) Next(attempt uint) time.Duration {
	base := b.Base
	if base <= 0 {
		base = defaultBase
	}
	max := b.Max
	if max <= 0 {
		max = defaultMax
	}

	wait := max
	if attempt < 63 && base<<attempt > 0 && base<<attempt < max {
		wait = base << attempt
	}

	jitter := b.Jitter
	if jitter <= 0 {
		return wait
	}
	if jitter > 1 {
		jitter = 1
	}
	return wait + time.Duration(b.random()*jitter*float64(wait))
}

func (b Backoff) random() float64 {
	if b.rng != nil {
		return b.rng.Float64()
	}
	return rand.Float64()
}
