package app

import (
	"context"
	"time"

	"docrag/internal/model"
	"docrag/internal/vectorstore"
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, id uint) (*model.Document, error)
	List(ctx context.Context, page, size int) ([]model.Document, int64, error)
	MarkCompleted(ctx context.Context, id uint, chunkCount int, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uint, message string, at time.Time) (bool, error)
	DeleteWithChunks(ctx context.Context, id uint) error
}

type ChunkStore interface {
	CreateBatch(ctx context.Context, chunks []model.DocumentChunk) error
	GetByVectorID(ctx context.Context, vectorID string) (*model.DocumentChunk, error)
	ListByDocumentID(ctx context.Context, documentID uint) ([]model.DocumentChunk, error)
	DeleteByDocumentID(ctx context.Context, documentID uint) error
}

type HistoryStore interface {
	Create(ctx context.Context, record *model.QueryHistory) error
	List(ctx context.Context, page, size int) ([]model.QueryHistory, int64, error)
}

type TextExtractor interface {
	ExtractFile(ctx context.Context, path, mimeType string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Upsert(ctx context.Context, points []vectorstore.Point) error
	Search(ctx context.Context, vector []float32, topK int) ([]vectorstore.ScoredPoint, error)
	DeleteByFilter(ctx context.Context, key string, value any) error
}

type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, query string, contexts []string, model string) (string, error)
}

// IngestGuard keeps two workers from ingesting the same document at once.
type IngestGuard interface {
	Acquire(ctx context.Context, documentID uint) (bool, error)
	Release(ctx context.Context, documentID uint) error
}

// IngestDispatcher hands a freshly uploaded document to the ingestion pipeline.
type IngestDispatcher interface {
	Dispatch(ctx context.Context, documentID uint) error
}

// DispatchFunc adapts a function to IngestDispatcher.
type DispatchFunc func(ctx context.Context, documentID uint) error

func (f DispatchFunc) Dispatch(ctx context.Context, documentID uint) error {
	return f(ctx, documentID)
}

// HistoryCache stores rendered query history pages.
type HistoryCache interface {
	GetPage(ctx context.Context, page, size int, dest any) (bool, error)
	SetPage(ctx context.Context, page, size int, value any) error
	Invalidate(ctx context.Context) error
}
