package llmapi

import "sync/atomic"

// TokenTracker accumulates per-operation token usage counters; it is not
// wired into internal/obs. Grounded on
// internal/util.CountTokens's estimator idiom, generalized from a single
// function to a tracked set of atomic counters keyed by operation name.
type TokenTracker struct {
	counters map[string]*int64
}

func NewTokenTracker(operations ...string) *TokenTracker {
	t := &TokenTracker{counters: make(map[string]*int64, len(operations))}
	for _, op := range operations {
		var c int64
		t.counters[op] = &c
	}
	return t
}

func (t *TokenTracker) Add(operation string, tokens int) {
	c, ok := t.counters[operation]
	if !ok {
		var n int64
		c = &n
		t.counters[operation] = c
	}
	atomic.AddInt64(c, int64(tokens))
}

func (t *TokenTracker) Total(operation string) int64 {
	c, ok := t.counters[operation]
	if !ok {
		return 0
	}
	return atomic.LoadInt64(c)
}

// EstimateTokens is the module-wide chars/4 fallback token estimator, used
// wherever a precise tokenizer isn't wired (spec.md §9 accepts this as an
// approximation).
func EstimateTokens(s string) int { return (len(s) + 3) / 4 }
