package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"docrag/internal/pkg/apperr"
	"docrag/internal/pkg/retry"
)

// Collection lifecycle. These calls belong to startup and operator tooling;
// the ingestion and query paths assume the collection already exists.

// Ping checks that the Qdrant server answers.
func (c *QdrantClient) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", http.MethodGet, "/collections", nil, nil)
}

func (c *QdrantClient) CollectionExists(ctx context.Context) (bool, error) {
	attempts, err := c.do(ctx, http.MethodGet, c.collectionPath(), nil, nil)
	if err == nil {
		return true, nil
	}
	if retry.IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	return false, apperr.ExternalAfter("qdrant check collection failed", attempts, err)
}

func (c *QdrantClient) CreateCollection(ctx context.Context, size int, distance string) error {
	if size <= 0 {
		return apperr.InvalidArgument("vector size must be positive, got %d", size)
	}
	if strings.TrimSpace(distance) == "" {
		distance = DistanceCosine
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": distance,
		},
	}
	return c.call(ctx, "create collection", http.MethodPut, c.collectionPath(), body, nil)
}

type collectionInfoResponse struct {
	Result struct {
		Status        string `json:"status"`
		PointsCount   int64  `json:"points_count"`
		SegmentsCount int    `json:"segments_count"`
		Config        struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

func (c *QdrantClient) CollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	var resp collectionInfoResponse
	attempts, err := c.do(ctx, http.MethodGet, c.collectionPath(), nil, &resp)
	if err != nil {
		if retry.IsStatus(err, http.StatusNotFound) {
			return nil, apperr.NotFound("collection %q not found", c.collection)
		}
		return nil, apperr.ExternalAfter("qdrant describe collection failed", attempts, err)
	}
	return &CollectionInfo{
		Name:         c.collection,
		Status:       resp.Result.Status,
		PointsCount:  resp.Result.PointsCount,
		VectorSize:   resp.Result.Config.Params.Vectors.Size,
		Distance:     resp.Result.Config.Params.Vectors.Distance,
		SegmentCount: resp.Result.SegmentsCount,
	}, nil
}

func (c *QdrantClient) ListCollections(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := c.call(ctx, "list collections", http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Result.Collections))
	for _, col := range resp.Result.Collections {
		names = append(names, col.Name)
	}
	return names, nil
}

// EnsureCollection creates the collection when it is missing and otherwise
// verifies that its vector size matches.
func (c *QdrantClient) EnsureCollection(ctx context.Context, size int, distance string) (created bool, err error) {
	exists, err := c.CollectionExists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		if err := c.CreateCollection(ctx, size, distance); err != nil {
			return false, err
		}
		return true, nil
	}

	info, err := c.CollectionInfo(ctx)
	if err != nil {
		return false, err
	}
	if info.VectorSize != 0 && info.VectorSize != size {
		return false, apperr.Internal(
			fmt.Sprintf("collection %q has vector size %d, configured dimension is %d", c.collection, info.VectorSize, size),
			nil,
		)
	}
	return false, nil
}

func (c *QdrantClient) collectionPath() string {
	return "/collections/" + url.PathEscape(c.collection)
}
