// Package crossencoder calls a cross-encoder served behind a
// text-embeddings-inference style /rerank endpoint.
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/resilience"
)

type Reranker struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, timeout time.Duration, executor *resilience.Executor) *Reranker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Reranker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type rerankRequest struct {
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	RawScore bool     `json:"raw_scores"`
	Truncate bool     `json:"truncate"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns one score per content in input order. The server replies
// sorted by score, so hits are placed back by index.
func (r *Reranker) Score(ctx context.Context, query string, contents []string) ([]float64, error) {
	if len(contents) == 0 {
		return nil, nil
	}

	hits, err := resilience.Call(ctx, r.executor, "crossencoder.rerank", func(ctx context.Context) ([]rerankHit, error) {
		return r.rerank(ctx, rerankRequest{Query: query, Texts: contents, Truncate: true})
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("crossencoder rerank", err)
	}
	if len(hits) != len(contents) {
		return nil, fmt.Errorf("crossencoder returned %d scores for %d passages", len(hits), len(contents))
	}

	scores := make([]float64, len(contents))
	filled := make([]bool, len(contents))
	for _, hit := range hits {
		if hit.Index < 0 || hit.Index >= len(contents) || filled[hit.Index] {
			return nil, fmt.Errorf("crossencoder returned invalid index %d", hit.Index)
		}
		scores[hit.Index] = hit.Score
		filled[hit.Index] = true
	}
	return scores, nil
}

func (r *Reranker) rerank(ctx context.Context, payload rerankRequest) ([]rerankHit, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crossencoder rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.HTTPStatusError{
			Service:    "crossencoder",
			Operation:  "rerank",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}

	var hits []rerankHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return hits, nil
}
