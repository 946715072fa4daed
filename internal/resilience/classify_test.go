package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"ragcore/internal/apperr"
)

type sqlStateErr struct{ class string }

func (e sqlStateErr) Error() string   { return "sql error " + e.class }
func (e sqlStateErr) SQLClass() string { return e.class }

func TestClassifyError_SQLStatePrefixes(t *testing.T) {
	transient := []string{"08001", "40P01", "53300", "57014", "58030"}
	for _, code := range transient {
		assert.Equal(t, apperr.KindTransient, ClassifyError(sqlStateErr{class: code}), code)
	}
	permanent := []string{"22001", "23505", "28000", "42601"}
	for _, code := range permanent {
		assert.Equal(t, apperr.KindPermanent, ClassifyError(sqlStateErr{class: code}), code)
	}
}

func TestClassifyError_NullAndEmptyArePermanent(t *testing.T) {
	assert.Equal(t, apperr.KindPermanent, ClassifyError(nil))
	assert.Equal(t, apperr.KindPermanent, ClassifyError(errors.New("")))
}

func TestClassifyError_ContextDeadlineIsTransient(t *testing.T) {
	assert.True(t, IsTransient(context.DeadlineExceeded))
}

type selfRefErr struct{ msg string }

func (e *selfRefErr) Error() string { return e.msg }
func (e *selfRefErr) Unwrap() error { return e }

func TestClassifyError_SelfReferenceTerminates(t *testing.T) {
	// An error chain should never loop forever; this error's Unwrap returns
	// the error itself, so only the seen-map guard ends the walk.
	err := &selfRefErr{msg: "plain"}
	assert.Equal(t, apperr.KindPermanent, ClassifyError(err))
}
