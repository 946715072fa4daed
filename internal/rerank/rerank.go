// Package rerank implements C8: a pluggable reranker with an HTTP
// provider grounded on the teacher's internal/sefii/rerank.go
// (ReRankChunks' request/response shape), wrapped with a circuit breaker
// and timeout so a flaky provider degrades to an identity fallback
// instead of failing the query.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker/v2"

	"ragcore/internal/config"
	"ragcore/internal/resilience"
)

// Item is one candidate passed to the reranker.
type Item struct {
	ID      string
	Content string
}

// Scored is an Item plus its relevance score, sorted descending.
type Scored struct {
	Item
	Score float64
}

// Reranker is C8's contract.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []Item) ([]Scored, error)
}

// NoneReranker is the identity provider: it assigns synthetic decreasing
// scores and preserves input order (spec.md §4.8, provider "none").
type NoneReranker struct{}

func (NoneReranker) Rerank(ctx context.Context, query string, items []Item) ([]Scored, error) {
	return identityScores(items), nil
}

func identityScores(items []Item) []Scored {
	out := make([]Scored, len(items))
	score := 1.0
	for i, it := range items {
		out[i] = Scored{Item: it, Score: score}
		score -= 0.05
		if score < 0.1 {
			score = 0.1
		}
	}
	return out
}

// rerankRequest/Response mirror the teacher's sefii.RerankRequest /
// RerankResponse wire shapes.
type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// HTTPReranker calls an external reranking endpoint, circuit-broken and
// timeout-bounded, falling back to NoneReranker on any failure.
type HTTPReranker struct {
	cfg     config.RerankerConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]Scored]
	timeout time.Duration
}

func NewHTTPReranker(cfg config.RerankerConfig, timeout time.Duration) *HTTPReranker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPReranker{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		breaker: resilience.NewBreaker[[]Scored]("reranker." + cfg.Provider),
		timeout: timeout,
	}
}

func (h *HTTPReranker) Rerank(ctx context.Context, query string, items []Item) ([]Scored, error) {
	if h.cfg.Endpoint == "" || h.cfg.Provider == "none" {
		return identityScores(items), nil
	}

	result := resilience.Fallback(ctx,
		func(ctx context.Context) ([]Scored, error) {
			return resilience.WithBreaker(ctx, h.breaker, func(ctx context.Context) ([]Scored, error) {
				return resilience.WithTimeout(ctx, h.timeout, func(ctx context.Context) ([]Scored, error) {
					return h.call(ctx, query, items)
				})
			})
		},
		func(ctx context.Context, err error) []Scored {
			return identityScores(items)
		},
	)

	filtered := make([]Scored, 0, len(result))
	for _, s := range result {
		if s.Score >= h.cfg.MinScore {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

func (h *HTTPReranker) call(ctx context.Context, query string, items []Item) ([]Scored, error) {
	docs := make([]string, len(items))
	for i, it := range items {
		docs[i] = it.Content
	}
	body, err := json.Marshal(rerankRequest{Query: query, TopN: len(items), Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank request failed: %s: %s", resp.Status, string(b))
	}
	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	scored := make([]Scored, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(items) {
			continue
		}
		scored = append(scored, Scored{Item: items[r.Index], Score: r.RelevanceScore})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored, nil
}

// New selects a provider by config.RerankerConfig.Provider.
func New(cfg config.RerankerConfig) Reranker {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return NoneReranker{}
	}
	return NewHTTPReranker(cfg, time.Duration(cfg.TimeoutMs)*time.Millisecond)
}
