package app

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"docrag/internal/model"
	"docrag/internal/pkg/apperr"
	"docrag/internal/vectorstore"
)

const (
	defaultTopK            = 5
	defaultHistoryPageSize = 10
	maxHistoryPageSize     = 100
)

type QueryConfig struct {
	TopK int
}

type QueryResult struct {
	Query          string                 `json:"query"`
	Answer         string                 `json:"answer"`
	References     []model.ChunkReference `json:"references"`
	ResponseTimeMs int64                  `json:"response_time_ms"`
}

// HistoryItem is a query history row with its references decoded.
type HistoryItem struct {
	ID             uint                   `json:"id"`
	QueryText      string                 `json:"query_text"`
	Answer         string                 `json:"answer"`
	References     []model.ChunkReference `json:"references"`
	QueryTime      time.Time              `json:"query_time"`
	ResponseTimeMs int64                  `json:"response_time_ms"`
}

type HistoryPage struct {
	Items []HistoryItem `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

type QueryService struct {
	embedder  Embedder
	vectors   VectorStore
	chunks    ChunkStore
	generator AnswerGenerator
	history   HistoryStore
	cache     HistoryCache
	cfg       QueryConfig

	now func() time.Time
}

// NewQueryService builds the query path. cache may be nil.
func NewQueryService(
	embedder Embedder,
	vectors VectorStore,
	chunks ChunkStore,
	generator AnswerGenerator,
	history HistoryStore,
	cache HistoryCache,
	cfg QueryConfig,
) *QueryService {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	return &QueryService{
		embedder:  embedder,
		vectors:   vectors,
		chunks:    chunks,
		generator: generator,
		history:   history,
		cache:     cache,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Query answers text from the indexed documents. A blank question returns an
// empty result without touching any provider. topK <= 0 uses the configured
// default.
func (s *QueryService) Query(ctx context.Context, text string, topK int) (*QueryResult, error) {
	if strings.TrimSpace(text) == "" {
		return &QueryResult{Query: text, References: []model.ChunkReference{}}, nil
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	started := s.now()

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	hits, err := s.vectors.Search(ctx, vector, topK)
	if err != nil {
		return nil, err
	}

	refs, err := s.hydrate(ctx, hits)
	if err != nil {
		return nil, err
	}
	contexts := make([]string, len(refs))
	for i, ref := range refs {
		contexts[i] = ref.Content
	}

	answer, err := s.generator.GenerateAnswer(ctx, text, contexts, "")
	if err != nil {
		return nil, err
	}

	result := &QueryResult{
		Query:          text,
		Answer:         answer,
		References:     refs,
		ResponseTimeMs: s.now().Sub(started).Milliseconds(),
	}
	s.record(ctx, result, started)
	return result, nil
}

// hydrate resolves search hits to stored chunks. Hits without a chunk row are
// dropped; the rest keep their search score and are ordered by it. Ties keep
// the order the vector store returned.
func (s *QueryService) hydrate(ctx context.Context, hits []vectorstore.ScoredPoint) ([]model.ChunkReference, error) {
	refs := make([]model.ChunkReference, 0, len(hits))
	for _, hit := range hits {
		chunk, err := s.chunks.GetByVectorID(ctx, hit.ID)
		if err != nil {
			return nil, apperr.Internal("load chunk for search hit failed", err)
		}
		if chunk == nil {
			slog.Warn("search hit has no stored chunk", "vector_id", hit.ID)
			continue
		}
		refs = append(refs, model.ChunkReference{
			DocumentID:   chunk.DocumentID,
			DocumentName: hit.PayloadString(vectorstore.PayloadDocumentName),
			Content:      chunk.Content,
			Score:        hit.Score,
		})
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Score > refs[j].Score })
	return refs, nil
}

// record persists the query. Failures are logged and never reach the caller.
func (s *QueryService) record(ctx context.Context, result *QueryResult, at time.Time) {
	ctx = context.WithoutCancel(ctx)

	entry := &model.QueryHistory{
		QueryText:      result.Query,
		Answer:         result.Answer,
		QueryTime:      at,
		ResponseTimeMs: result.ResponseTimeMs,
	}
	if err := entry.SetReferences(result.References); err != nil {
		slog.Warn("encode query references failed", "error", err)
		return
	}
	if err := s.history.Create(ctx, entry); err != nil {
		slog.Warn("save query history failed", "error", err)
		return
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			slog.Warn("invalidate history cache failed", "error", err)
		}
	}
}

// ListHistory returns one page of past queries, newest first.
func (s *QueryService) ListHistory(ctx context.Context, page, size int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultHistoryPageSize
	}
	if size > maxHistoryPageSize {
		size = maxHistoryPageSize
	}

	if s.cache != nil {
		var cached HistoryPage
		hit, err := s.cache.GetPage(ctx, page, size, &cached)
		if err != nil {
			slog.Warn("read history cache failed", "error", err)
		} else if hit {
			return &cached, nil
		}
	}

	rows, total, err := s.history.List(ctx, page, size)
	if err != nil {
		return nil, err
	}
	out := &HistoryPage{
		Items: make([]HistoryItem, 0, len(rows)),
		Total: total,
		Page:  page,
		Size:  size,
	}
	for i := range rows {
		refs := rows[i].References()
		if refs == nil {
			refs = []model.ChunkReference{}
		}
		out.Items = append(out.Items, HistoryItem{
			ID:             rows[i].ID,
			QueryText:      rows[i].QueryText,
			Answer:         rows[i].Answer,
			References:     refs,
			QueryTime:      rows[i].QueryTime,
			ResponseTimeMs: rows[i].ResponseTimeMs,
		})
	}

	if s.cache != nil {
		if err := s.cache.SetPage(ctx, page, size, out); err != nil {
			slog.Warn("write history cache failed", "error", err)
		}
	}
	return out, nil
}
