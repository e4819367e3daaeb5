package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/resilience"
)

// Embedder calls an OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	client   *goopenai.Client
	model    string
	executor *resilience.Executor
}

// New builds an embedder. An empty baseURL keeps the client's default.
func New(apiKey, baseURL, model string, executor *resilience.Executor) (*Embedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai api key is empty")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("openai embedding model is empty")
	}
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Embedder{
		client:   goopenai.NewClientWithConfig(cfg),
		model:    model,
		executor: executor,
	}, nil
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := resilience.Call(ctx, e.executor, "openai.embed", func(ctx context.Context) (goopenai.EmbeddingResponse, error) {
		return e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
			Model: goopenai.EmbeddingModel(e.model),
			Input: texts,
		})
	}, classify)
	if err != nil {
		return nil, resilience.WrapTemporary("openai embed", asStatusError(err))
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, item := range data {
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

func classify(err error) resilience.ErrorClassification {
	return resilience.ClassifyHTTPError(asStatusError(err))
}

// asStatusError lifts go-openai API errors into the shared HTTP status error
// so retry classification stays in one place.
func asStatusError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &resilience.HTTPStatusError{
			Service:    "openai",
			Operation:  "embed",
			StatusCode: apiErr.HTTPStatusCode,
			Status:     http.StatusText(apiErr.HTTPStatusCode),
			Body:       apiErr.Message,
		}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &resilience.HTTPStatusError{
			Service:    "openai",
			Operation:  "embed",
			StatusCode: reqErr.HTTPStatusCode,
			Status:     http.StatusText(reqErr.HTTPStatusCode),
			Body:       body,
		}
	}
	return err
}
