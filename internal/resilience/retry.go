package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"ragcore/internal/apperr"
	"ragcore/internal/config"
	"ragcore/internal/obs"
)

// Policy is the plain configuration struct spec.md §9 calls for
// ("interceptor-style retry... re-architect as an explicit wrapper
// function... Configuration is a plain struct").
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	Jitter            time.Duration
	MaxDuration       time.Duration
	// RetryOn overrides the default transient classifier when non-nil.
	RetryOn func(error) bool
	// AbortOn, when non-nil and true, forces abandonment regardless of
	// RetryOn (spec.md §4.1 "abortOn ... overrides retryOn").
	AbortOn func(error) bool
}

// PolicyFromConfig builds a Policy from the loaded configuration.
func PolicyFromConfig(c config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:       c.MaxAttempts,
		InitialDelay:      time.Duration(c.InitialDelayMs) * time.Millisecond,
		BackoffMultiplier: c.BackoffMultiplier,
		Jitter:            time.Duration(c.JitterMs) * time.Millisecond,
		MaxDuration:       time.Duration(c.MaxDurationMs) * time.Millisecond,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = 2.0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.MaxDuration <= 0 {
		p.MaxDuration = 30 * time.Second
	}
	if p.RetryOn == nil {
		p.RetryOn = IsTransient
	}
	return p
}

// jitterBackOff wraps an exponential BackOff and adds uniform jitter on
// every call, implementing the delay schedule from spec.md §4.1:
// d_n = min(initialDelay * multiplier^n, maxDelay) + U(0, jitter).
type jitterBackOff struct {
	inner  backoff.BackOff
	jitter time.Duration
}

func (j *jitterBackOff) NextBackOff() time.Duration {
	d := j.inner.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if j.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(j.jitter) + 1))
	}
	return d
}

// Retry executes fn with exponential backoff + jitter per policy,
// retrying only while policy.RetryOn(err) is true and policy.AbortOn(err)
// is false, up to MaxAttempts or MaxDuration wall time, whichever comes
// first. events/operation/projectID are used for C12 retry.* logging; any
// may be zero-valued.
func Retry[T any](ctx context.Context, policy Policy, events *obs.Events, projectID, operation string, fn func(context.Context) (T, error)) (T, error) {
	p := policy.normalized()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	eb.Multiplier = p.BackoffMultiplier
	eb.MaxInterval = p.InitialDelay
	// MaxInterval grows implicitly via Multiplier; cap it at a generous
	// ceiling derived from MaxDuration so individual delays never dwarf
	// the overall budget.
	eb.MaxInterval = p.MaxDuration
	eb.RandomizationFactor = 0

	bo := backoff.BackOff(&jitterBackOff{inner: eb, jitter: p.Jitter})

	attempts := 0
	op := func() (T, error) {
		attempts++
		v, err := fn(ctx)
		if err == nil {
			if attempts > 1 && events != nil {
				events.RetrySuccess(projectID, operation, attempts)
			}
			return v, nil
		}
		if p.AbortOn != nil && p.AbortOn(err) {
			return v, backoff.Permanent(err)
		}
		if !p.RetryOn(err) {
			return v, backoff.Permanent(err)
		}
		if events != nil {
			events.RetryAttempt(projectID, operation, attempts, err)
		}
		return v, err
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(p.MaxDuration),
	)
	if err != nil {
		if events != nil && attempts > 1 {
			events.RetryExhausted(projectID, operation, attempts, err)
		}
		kind := ClassifyError(err)
		if kind == apperr.KindUnknown {
			kind = apperr.KindPermanent
		}
		return result, apperr.Wrap(kind, operation, err)
	}
	return result, nil
}
