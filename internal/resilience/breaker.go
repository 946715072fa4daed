package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"ragcore/internal/apperr"
)

// NewBreaker builds the circuit breaker spec.md §4.1 describes for
// external rerank/LLM providers: opens once at least 4 requests have been
// counted since the breaker last changed state and the failure ratio among
// them reaches 0.5, stays open 10s, and requires 2 consecutive successes
// in half-open to close.
func NewBreaker[T any](name string) *gobreaker.CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    0, // never reset counts while closed; only ReadyToTrip matters
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 4 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.5
		},
	}
	return gobreaker.NewCircuitBreaker[T](settings)
}

// WithBreaker runs fn through breaker, translating gobreaker.ErrOpenState
// and gobreaker.ErrTooManyRequests into a transient classification so
// callers can distinguish "provider is down" from a genuine result error.
func WithBreaker[T any](ctx context.Context, breaker *gobreaker.CircuitBreaker[T], fn func(context.Context) (T, error)) (T, error) {
	v, err := breaker.Execute(func() (T, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return v, apperr.Wrap(apperr.KindTransient, "circuit breaker", err)
	}
	return v, err
}
