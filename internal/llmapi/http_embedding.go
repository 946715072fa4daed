package llmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"ragcore/internal/config"
)

// HTTPEmbedder calls an OpenAI-compatible embeddings endpoint, adapted
// from intelligencedev-manifold's internal/embedding/client.go
// (EmbedText's bearer-auth POST). Concurrent calls for an identical batch
// are deduplicated with singleflight so retry storms and fan-out callers
// don't multiply upstream cost (spec.md §4.4 embedding-call dedup).
type HTTPEmbedder struct {
	cfg    config.EmbeddingConfig
	client *http.Client
	group  singleflight.Group
}

// NewHTTPEmbedder builds an embedder against an optional caller-supplied
// client (e.g. one instrumented via observability.NewHTTPClient); a nil
// client gets a plain 60s-timeout default.
func NewHTTPEmbedder(cfg config.EmbeddingConfig, client *http.Client) *HTTPEmbedder {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPEmbedder{cfg: cfg, client: client}
}

func (e *HTTPEmbedder) Name() string   { return e.cfg.Model }
func (e *HTTPEmbedder) Dimension() int { return e.cfg.Dimension }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	key := dedupeKey(texts)
	v, err, _ := e.group.Do(key, func() (any, error) {
		return e.embed(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return v.([][]float32), nil
}

func (e *HTTPEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+e.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		header := e.cfg.APIHeader
		if header == "" {
			header = "Authorization"
		}
		if header == "Authorization" {
			req.Header.Set(header, "Bearer "+e.cfg.APIKey)
		} else {
			req.Header.Set(header, e.cfg.APIKey)
		}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding request failed: %s: %s", resp.Status, string(b))
	}
	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

func (e *HTTPEmbedder) CheckReachability(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

func dedupeKey(texts []string) string {
	h := 0
	for _, t := range texts {
		for _, r := range t {
			h = h*31 + int(r)
		}
		h = h*31 + 1
	}
	return fmt.Sprintf("%d:%d", len(texts), h)
}
