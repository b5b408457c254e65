package worker

import (
	"math/rand"
	"time"

	"physioheal/internal/config"
)

const (
	defaultMaxRetries    = 5
	defaultInitialDelay  = 2 * time.Second
	defaultMaxDelay      = time.Minute
	defaultBackoffFactor = 2
)

// RetryPolicy reschedules failed Sheets writes with capped exponential
// backoff. Jitter spreads every delay by up to that fraction either way
// so tasks that failed together do not hit the API quota together.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64

	// rand returns a value in [0, 1); nil means math/rand.
	rand func() float64
}

// PolicyFromConfig maps the google.sync config section onto a policy.
func PolicyFromConfig(cfg config.SheetsSyncConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
		Jitter:        cfg.Jitter,
	}.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = defaultBackoffFactor
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = 0
	}
	return p
}

// Exhausted reports whether a task that failed attempt times goes to the dead letter.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxRetries
}

// NextDelay returns the wait before retry number attempt (1-based).
// The result never exceeds MaxDelay.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	p = p.withDefaults()
	base := p.backoff(attempt)
	if p.Jitter == 0 {
		return base
	}

	rnd := p.rand
	if rnd == nil {
		rnd = rand.Float64
	}
	spread := float64(base) * p.Jitter
	d := time.Duration(float64(base) - spread + 2*spread*rnd())
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// backoff grows the delay step by step and stops at MaxDelay, so large
// attempt numbers cannot overflow.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.BackoffFactor
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
