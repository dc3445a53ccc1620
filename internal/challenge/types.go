// File: internal/challenge/types.go
package challenge

import (
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xkilldash9x/hurdle/api/schemas"
	"github.com/xkilldash9x/hurdle/internal/config"
)

// Source tells which detection layer produced an instance.
type Source string

const (
	SourceStructural Source = "structural"
	SourceText       Source = "text"
)

// Instance is one detected challenge on the current page.
type Instance struct {
	Kind       Kind
	Confidence float64
	Source     Source
	Elements   []schemas.ElementRef
	// URL is the page address at detection time.
	URL        string
	DetectedAt time.Time
}

// Primary returns the first located element, if any.
func (i Instance) Primary() (schemas.ElementRef, bool) {
	if len(i.Elements) == 0 {
		return schemas.ElementRef{}, false
	}
	return i.Elements[0], true
}

// AttemptOutcome is the result of one strategy attempt.
type AttemptOutcome string

const (
	AttemptSuccess AttemptOutcome = "success"
	AttemptFailure AttemptOutcome = "failure"
	AttemptTimeout AttemptOutcome = "timeout"
)

// Attempt records one execution of a strategy against an instance.
type Attempt struct {
	Strategy string
	Kind     Kind
	// Ordinal counts attempts of this strategy for this instance, from 1.
	Ordinal  int
	Outcome  AttemptOutcome
	Duration time.Duration
	Err      error
}

// Status is the terminal state of a resolution episode.
type Status string

const (
	StatusResolved       Status = "resolved"
	StatusManualResolved Status = "manual_resolved"
	StatusExhausted      Status = "exhausted"
)

// Outcome is returned by Resolve. Err is set only when Status is
// StatusExhausted.
type Outcome struct {
	Status     Status
	Err        error
	ChainDepth int
	Resolved   []Kind
	Attempts   []Attempt
	Elapsed    time.Duration
}

// Succeeded reports whether the page is navigable.
func (o Outcome) Succeeded() bool { return o.Status != StatusExhausted }

// RetryPolicy bounds a resolution episode.
type RetryPolicy struct {
	// MaxAttempts is the number of tries per strategy.
	MaxAttempts int
	// MaxStrategies is the number of strategies tried per episode before the
	// manual fallback.
	MaxStrategies  int
	AttemptTimeout time.Duration

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	BackoffJitter     float64

	// MaxChainDepth is the number of challenges one episode may clear.
	MaxChainDepth int
}

// DefaultRetryPolicy mirrors the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return PolicyFromConfig(config.NewDefaultConfig().Challenge())
}

// PolicyFromConfig extracts the retry policy from the challenge section.
func PolicyFromConfig(c config.ChallengeConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       c.MaxAttempts,
		MaxStrategies:     c.MaxStrategies,
		AttemptTimeout:    c.AttemptTimeout,
		InitialBackoff:    c.InitialBackoff,
		MaxBackoff:        c.MaxBackoff,
		BackoffMultiplier: c.BackoffMultiplier,
		BackoffJitter:     c.BackoffJitter,
		MaxChainDepth:     c.MaxChainDepth,
	}
}

// Validate rejects policies whose backoff would not strictly grow across the
// retries of one strategy.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts <= 0 || p.MaxStrategies <= 0 || p.MaxChainDepth <= 0 {
		return fmt.Errorf("challenge: attempts, strategies and chain depth must be positive")
	}
	if p.AttemptTimeout <= 0 || p.InitialBackoff <= 0 {
		return fmt.Errorf("challenge: attempt timeout and initial backoff must be positive")
	}
	if p.BackoffMultiplier <= 1 {
		return fmt.Errorf("challenge: backoff multiplier must be greater than 1")
	}
	if p.BackoffJitter < 0 || p.BackoffJitter >= (p.BackoffMultiplier-1)/(p.BackoffMultiplier+1) {
		return fmt.Errorf("challenge: backoff jitter %.2f would allow a non-increasing schedule", p.BackoffJitter)
	}
	if p.MaxAttempts > 1 {
		last := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(p.MaxAttempts-2))
		if p.MaxBackoff > 0 && last > float64(p.MaxBackoff) {
			return fmt.Errorf("challenge: max backoff %s caps the schedule before the last retry", p.MaxBackoff)
		}
	}
	return nil
}

// newBackoff returns a fresh exponential schedule for one strategy.
func (p RetryPolicy) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.Multiplier = p.BackoffMultiplier
	b.RandomizationFactor = p.BackoffJitter
	b.MaxInterval = p.MaxBackoff
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	// Attempts are bounded by MaxAttempts, not by wall time.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Schedule returns the waits between the attempts of one strategy.
func (p RetryPolicy) Schedule() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	b := p.newBackoff()
	out := make([]time.Duration, p.MaxAttempts-1)
	for i := range out {
		out[i] = b.NextBackOff()
	}
	return out
}

// Signal is an operator decision about a challenge handed over for manual
// resolution.
type Signal string

const (
	SignalResolved  Signal = "resolved"
	SignalAbandoned Signal = "abandoned"
)
