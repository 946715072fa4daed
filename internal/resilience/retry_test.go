package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/apperr"
)

type transientErr struct{ msg string }

func (e transientErr) Error() string { return "connection reset: " + e.msg }

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	policy := Policy{MaxAttempts: 5, InitialDelay: time.Millisecond, Jitter: time.Millisecond, MaxDuration: time.Second}
	got, err := Retry(context.Background(), policy, nil, "proj-1", "test.op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transientErr{msg: "boom"}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAndSurfacesOriginalCause(t *testing.T) {
	calls := 0
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Jitter: time.Millisecond, MaxDuration: time.Second}
	_, err := Retry(context.Background(), policy, nil, "proj-1", "test.op", func(ctx context.Context) (string, error) {
		calls++
		return "", transientErr{msg: "still failing"}
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 3)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
}

func TestRetry_PermanentErrorsAreNotRetried(t *testing.T) {
	calls := 0
	policy := Policy{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDuration: time.Second}
	_, err := Retry(context.Background(), policy, nil, "proj-1", "test.op", func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("syntax error near FROM")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
