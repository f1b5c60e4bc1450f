package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/pkg/apperr"
	"docrag/internal/pkg/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAICompatibleClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAICompatibleClient(ClientConfig{
		Name:    "test",
		BaseURL: srv.URL + "/",
		APIKey:  "sk-test",
		Retry:   retry.Policy{MaxAttempts: 3},
	})
}

type embeddingRequest struct {
	Model string          `json:"model"`
	Input json.RawMessage `json:"input"`
}

func (r embeddingRequest) inputs(t *testing.T) []string {
	var many []string
	if err := json.Unmarshal(r.Input, &many); err == nil {
		return many
	}
	var one string
	require.NoError(t, json.Unmarshal(r.Input, &one))
	return []string{one}
}

func writeVectors(w http.ResponseWriter, n, dim int, reversed bool) {
	type item struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	items := make([]item, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, dim)
		vec[0] = float32(i)
		items[i] = item{Index: i, Embedding: vec}
	}
	if reversed {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": items})
}

func TestEmbedBatchSplitsAndKeepsOrder(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "embed-model", req.Model)
		writeVectors(w, len(req.inputs(t)), 4, true)
	})
	emb := NewEmbeddingClient(client, EmbeddingConfig{Model: "embed-model", Dimension: 4, BatchSize: 2})

	vectors, err := emb.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Len(t, vectors, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, float32(0), vectors[0][0])
	assert.Equal(t, float32(1), vectors[1][0])
	assert.Equal(t, float32(0), vectors[2][0])
	for _, v := range vectors {
		assert.Len(t, v, 4)
	}
}

func TestEmbedRejectsBlankInput(t *testing.T) {
	emb := NewEmbeddingClient(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called")
	}), EmbeddingConfig{Dimension: 4})

	_, err := emb.Embed(context.Background(), "  ")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = emb.EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = emb.EmbedBatch(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	var calls int32
	emb := NewEmbeddingClient(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		writeVectors(w, 1, 4, false)
	}), EmbeddingConfig{Dimension: 4})

	vec, err := emb.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestEmbedExhaustionReportsAttempts(t *testing.T) {
	emb := NewEmbeddingClient(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}), EmbeddingConfig{Dimension: 4})

	_, err := emb.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExternalService)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, uint(3), appErr.Attempts)
}

func TestEmbedRetriesEmptyData(t *testing.T) {
	var calls int32
	emb := NewEmbeddingClient(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte(`{"data":[]}`))
			return
		}
		writeVectors(w, 1, 4, false)
	}), EmbeddingConfig{Dimension: 4})

	_, err := emb.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	emb := NewEmbeddingClient(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}), EmbeddingConfig{Dimension: 4})

	_, err := emb.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, apperr.ErrExternalService)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbedCountMismatchIsFatal(t *testing.T) {
	var calls int32
	emb := NewEmbeddingClient(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeVectors(w, 1, 4, false)
	}), EmbeddingConfig{Dimension: 4})

	_, err := emb.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, apperr.ErrExternalService)
	assert.Contains(t, err.Error(), "count mismatch")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbedDimensionMismatchIsFatal(t *testing.T) {
	var calls int32
	emb := NewEmbeddingClient(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeVectors(w, 1, 3, false)
	}), EmbeddingConfig{Dimension: 4})

	_, err := emb.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, apperr.ErrExternalService)
	assert.Contains(t, err.Error(), "dimension mismatch")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
