package ai

import (
	"context"
	"sort"
	"strings"

	"docrag/internal/pkg/apperr"
)

const defaultEmbeddingBatchSize = 16

type EmbeddingConfig struct {
	Model     string
	Dimension int
	// BatchSize caps how many inputs go into one provider request.
	BatchSize int
}

// EmbeddingClient turns text into vectors of a fixed dimension.
type EmbeddingClient struct {
	client *OpenAICompatibleClient
	cfg    EmbeddingConfig
}

func NewEmbeddingClient(client *OpenAICompatibleClient, cfg EmbeddingConfig) *EmbeddingClient {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultEmbeddingBatchSize
	}
	return &EmbeddingClient{client: client, cfg: cfg}
}

func (e *EmbeddingClient) Dimension() int {
	return e.cfg.Dimension
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text.
func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.InvalidArgument("embedding input is empty")
	}
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input, in input order.
func (e *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.InvalidArgument("embedding batch is empty")
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, apperr.InvalidArgument("embedding input %d is empty", i)
		}
	}

	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		result = append(result, vectors...)
	}
	return result, nil
}

func (e *EmbeddingClient) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	var input any = batch
	if len(batch) == 1 {
		input = batch[0]
	}
	reqBody := map[string]any{
		"model": e.cfg.Model,
		"input": input,
	}

	var parsed embeddingResponse
	attempts, err := e.client.postJSON(ctx, "/embeddings", reqBody, &parsed, func() error {
		return e.checkResponse(&parsed, len(batch))
	})
	if err != nil {
		return nil, apperr.ExternalAfter("embedding request failed", attempts, err)
	}

	data := parsed.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float32, len(data))
	for i := range data {
		vectors[i] = data[i].Embedding
	}
	return vectors, nil
}

func (e *EmbeddingClient) checkResponse(parsed *embeddingResponse, want int) error {
	if len(parsed.Data) == 0 {
		// empty answers are treated as transient
		return errEmptyResponse
	}
	if len(parsed.Data) != want {
		return fatalf("embedding count mismatch: sent %d inputs, got %d vectors", want, len(parsed.Data))
	}
	for _, d := range parsed.Data {
		if e.cfg.Dimension > 0 && len(d.Embedding) != e.cfg.Dimension {
			return fatalf("embedding dimension mismatch: expected %d, got %d", e.cfg.Dimension, len(d.Embedding))
		}
	}
	return nil
}
