package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAfterFailureRatio(t *testing.T) {
	b := NewBreaker[int]("test")
	failing := func(ctx context.Context) (int, error) { return 0, errors.New("boom") }

	for i := 0; i < 4; i++ {
		_, _ = WithBreaker(context.Background(), b, failing)
	}
	_, err := WithBreaker(context.Background(), b, func(ctx context.Context) (int, error) { return 1, nil })
	assert.Error(t, err) // breaker should now be open
}
