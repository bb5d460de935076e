package backoff

import (
	"math/rand"
	"time"
)

const (
	DefaultBaseDelay = 1 * time.Second
	DefaultMaxDelay  = 30 * time.Second

	// jitterFraction is the upper bound of added jitter relative to the
	// capped exponential delay.
	jitterFraction = 0.1
)

// Policy maps a retry attempt number to a delay: capped exponential
// growth plus uniform jitter. Jitter only ever lengthens the delay.
type Policy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	rng       *rand.Rand
}

// NewPolicy creates a policy with the given base and cap. Zero values
// fall back to the defaults.
func NewPolicy(base, max time.Duration) *Policy {
	return NewPolicyWithRand(base, max, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewPolicyWithRand creates a policy with an explicit random source so
// the jitter is deterministic under test.
func NewPolicyWithRand(base, max time.Duration, rng *rand.Rand) *Policy {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	return &Policy{
		BaseDelay: base,
		MaxDelay:  max,
		rng:       rng,
	}
}

// Delay returns the backoff for the given zero-based attempt index:
// min(base * 2^attempt, max) plus jitter in [0, 10%] of that value.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	jitter := time.Duration(p.rng.Int63n(int64(float64(delay)*jitterFraction) + 1))
	return delay + jitter
}
