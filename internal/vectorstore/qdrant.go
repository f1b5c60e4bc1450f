// Package vectorstore is a REST client for the Qdrant points and collections
// APIs, scoped to one collection.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"docrag/internal/pkg/apperr"
	"docrag/internal/pkg/retry"
)

// Payload keys written with every chunk point.
const (
	PayloadDocumentID   = "document_id"
	PayloadChunkIndex   = "chunk_index"
	PayloadContent      = "content"
	PayloadDocumentName = "document_name"
)

const DistanceCosine = "Cosine"

type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// PayloadString returns the payload value for key as a string, or "".
func (p ScoredPoint) PayloadString(key string) string {
	switch v := p.Payload[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

type CollectionInfo struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	PointsCount  int64  `json:"points_count"`
	VectorSize   int    `json:"vector_size"`
	Distance     string `json:"distance"`
	SegmentCount int    `json:"segments_count"`
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
	Retry      retry.Policy
}

type Option func(*QdrantClient)

func WithHTTPClient(c *http.Client) Option {
	return func(q *QdrantClient) {
		q.httpClient = c
	}
}

type QdrantClient struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
	policy     retry.Policy
}

func NewQdrantClient(cfg Config, opts ...Option) *QdrantClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	policy := cfg.Retry
	policy.Name = "qdrant"
	policy.Retryable = retry.IsTransient

	c := &QdrantClient{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *QdrantClient) Collection() string {
	return c.collection
}

// Upsert writes points in one call and waits for them to be indexed. Points
// with an existing id are overwritten.
func (c *QdrantClient) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	return c.call(ctx, "upsert points", http.MethodPut, c.pointsPath("?wait=true"), body, nil)
}

type searchResponse struct {
	Result []struct {
		ID      json.RawMessage `json:"id"`
		Score   float32         `json:"score"`
		Payload map[string]any  `json:"payload"`
	} `json:"result"`
}

// Search returns up to topK points ordered by descending score.
func (c *QdrantClient) Search(ctx context.Context, vector []float32, topK int) ([]ScoredPoint, error) {
	if topK <= 0 {
		return nil, apperr.InvalidArgument("topK must be positive, got %d", topK)
	}
	if len(vector) == 0 {
		return nil, apperr.InvalidArgument("search vector is empty")
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp searchResponse
	if err := c.call(ctx, "search points", http.MethodPost, c.pointsPath("/search"), body, &resp); err != nil {
		return nil, err
	}

	out := make([]ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, ScoredPoint{
			ID:      decodePointID(r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// DeleteByID removes one point. Unknown ids are not an error.
func (c *QdrantClient) DeleteByID(ctx context.Context, id string) error {
	body := map[string]any{"points": []string{id}}
	return c.call(ctx, "delete point", http.MethodPost, c.pointsPath("/delete?wait=true"), body, nil)
}

// DeleteByFilter removes every point whose payload key equals value.
func (c *QdrantClient) DeleteByFilter(ctx context.Context, key string, value any) error {
	if strings.TrimSpace(key) == "" {
		return apperr.InvalidArgument("filter key is empty")
	}
	body := map[string]any{
		"filter": map[string]any{
			"must": []any{
				map[string]any{
					"key":   key,
					"match": map[string]any{"value": value},
				},
			},
		},
	}
	return c.call(ctx, "delete points by filter", http.MethodPost, c.pointsPath("/delete?wait=true"), body, nil)
}

func (c *QdrantClient) pointsPath(suffix string) string {
	return "/collections/" + url.PathEscape(c.collection) + "/points" + suffix
}

// call runs one request under the retry policy and maps the final failure to
// an external service error.
func (c *QdrantClient) call(ctx context.Context, op, method, path string, body, out any) error {
	attempts, err := c.do(ctx, method, path, body, out)
	if err != nil {
		return apperr.ExternalAfter("qdrant "+op+" failed", attempts, err)
	}
	return nil
}

func (c *QdrantClient) do(ctx context.Context, method, path string, body, out any) (uint, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal qdrant request failed: %w", err)
		}
	}

	return c.policy.Do(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return retry.Permanent(fmt.Errorf("build qdrant request failed: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("api-key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s %s failed: %w", method, path, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read qdrant response failed: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &retry.StatusError{StatusCode: resp.StatusCode, Body: qdrantErrorStatus(raw)}
		}
		if out == nil {
			return nil
		}
		reflect.ValueOf(out).Elem().SetZero()
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("parse qdrant json failed: %w", err)
		}
		return nil
	})
}

// qdrantErrorStatus keeps only the error text of a Qdrant error envelope.
func qdrantErrorStatus(raw []byte) string {
	var env struct {
		Status struct {
			Error string `json:"error"`
		} `json:"status"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Status.Error != "" {
		return env.Status.Error
	}
	if len(raw) > 256 {
		raw = raw[:256]
	}
	return string(raw)
}

// decodePointID accepts both UUID strings and unsigned integer ids.
func decodePointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}
