package jina

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/feiyangfan/search-hub/internal/core/domain"
	"github.com/feiyangfan/search-hub/internal/infrastructure/resilience"
)

// Client talks to a Jina-compatible embedding/rerank API. This is the
// unreliable remote dependency the search-path circuit breaker protects;
// the HTTP client carries a hard timeout so a hung backend surfaces as an
// error instead of a stalled request.
type Client struct {
	baseURL     string
	apiKey      string
	embedModel  string
	rerankModel string
	httpClient  *http.Client
}

func New(baseURL, apiKey, embedModel, rerankModel string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		embedModel:  embedModel,
		rerankModel: rerankModel,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Embedder adapts the client to ports.Embedder. When an executor is set,
// batch embedding (the worker indexing path) runs with retry and its own
// circuit breaker; query embedding stays direct because the search path
// has its own breaker and must not add retry latency.
type Embedder struct {
	client   *Client
	executor *resilience.Executor
}

func NewEmbedder(client *Client, executor *resilience.Executor) *Embedder {
	return &Embedder{client: client, executor: executor}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var vectors [][]float32
	call := func(ctx context.Context) error {
		var err error
		vectors, err = e.client.embed(ctx, texts)
		return err
	}

	if e.executor != nil {
		if err := e.executor.Execute(ctx, "jina.embed", call, classifyInferenceError); err != nil {
			return nil, err
		}
		return vectors, nil
	}
	if err := call(ctx); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Reranker adapts the client to ports.Reranker.
type Reranker struct {
	client *Client
}

func NewReranker(client *Client) *Reranker {
	return &Reranker{client: client}
}

func (r *Reranker) Rerank(ctx context.Context, query string, documents []string) ([]domain.RerankedDocument, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model":     r.client.rerankModel,
		"query":     query,
		"documents": documents,
		"top_n":     len(documents),
	}

	var response struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := r.client.postJSON(ctx, "/v1/rerank", request, &response, "rerank"); err != nil {
		return nil, err
	}

	out := make([]domain.RerankedDocument, len(response.Results))
	for i, result := range response.Results {
		out[i] = domain.RerankedDocument{Index: result.Index, Score: result.RelevanceScore}
	}
	return out, nil
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	request := map[string]any{
		"model": c.embedModel,
		"input": texts,
	}

	var response struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/v1/embeddings", request, &response, "embed"); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(response.Data))
	for _, item := range response.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
