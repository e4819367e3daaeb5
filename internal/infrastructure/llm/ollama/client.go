package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/resilience"
)

type Client struct {
	baseURL     string
	embedModel  string
	rerankModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL, embedModel, rerankModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		embedModel:  embedModel,
		rerankModel: rerankModel,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		executor:    executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.executor.Execute(ctx, "ollama.embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", request, &response, "embed")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("ollama embed", err)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Judge scores relevance by asking a generative model for a 0..1 score per
// passage. Each pair is judged in its own request.
type Judge struct {
	client      *Client
	concurrency int
}

func NewJudge(client *Client, concurrency int) *Judge {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Judge{client: client, concurrency: concurrency}
}

func (j *Judge) Score(ctx context.Context, query string, contents []string) ([]float64, error) {
	scores := make([]float64, len(contents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for i, content := range contents {
		g.Go(func() error {
			score, err := j.scoreOne(gctx, query, content)
			if err != nil {
				return fmt.Errorf("judge passage %d: %w", i, err)
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (j *Judge) scoreOne(ctx context.Context, query, content string) (float64, error) {
	raw, err := resilience.Call(ctx, j.client.executor, "ollama.judge", func(ctx context.Context) (string, error) {
		return j.client.generateJSON(ctx, j.client.rerankModel, buildRelevancePrompt(query, content))
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return 0, resilience.WrapTemporary("ollama judge", err)
	}
	return parseRelevance(raw)
}

func parseRelevance(raw string) (float64, error) {
	var result struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &result); err != nil {
		return 0, fmt.Errorf("parse relevance json: %w", err)
	}
	if result.Score == nil || math.IsNaN(*result.Score) {
		return 0, fmt.Errorf("relevance json has no score: %q", raw)
	}
	return math.Min(1, math.Max(0, *result.Score)), nil
}

func (c *Client) generateJSON(ctx context.Context, model, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":   model,
		"prompt":  prompt,
		"stream":  false,
		"format":  "json",
		"options": map[string]any{"temperature": 0},
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
