package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"docrag/internal/chunker"
	"docrag/internal/model"
	"docrag/internal/pkg/apperr"
	"docrag/internal/vectorstore"
)

type IngestionConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// IngestionService drives one document from PROCESSING to COMPLETED or
// FAILED: extract, chunk, embed, upsert vectors, persist chunk rows.
type IngestionService struct {
	docs      DocumentStore
	chunks    ChunkStore
	extractor TextExtractor
	embedder  Embedder
	vectors   VectorStore
	guard     IngestGuard
	cfg       IngestionConfig

	now      func() time.Time
	vectorID func() string
}

func NewIngestionService(
	docs DocumentStore,
	chunks ChunkStore,
	extractor TextExtractor,
	embedder Embedder,
	vectors VectorStore,
	guard IngestGuard,
	cfg IngestionConfig,
) *IngestionService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	return &IngestionService{
		docs:      docs,
		chunks:    chunks,
		extractor: extractor,
		embedder:  embedder,
		vectors:   vectors,
		guard:     guard,
		cfg:       cfg,
		now:       time.Now,
		vectorID:  uuid.NewString,
	}
}

// Process ingests the document with the given id. It never returns an error:
// every failure after the document is loaded ends in the FAILED state.
func (s *IngestionService) Process(ctx context.Context, documentID uint) {
	log := slog.With("document_id", documentID)

	if s.guard != nil {
		acquired, err := s.guard.Acquire(ctx, documentID)
		switch {
		case err != nil:
			log.Warn("ingest lock unavailable, continuing without it", "error", err)
		case !acquired:
			log.Info("document is already being ingested, skipping")
			return
		default:
			defer func() {
				if err := s.guard.Release(context.WithoutCancel(ctx), documentID); err != nil {
					log.Warn("release ingest lock failed", "error", err)
				}
			}()
		}
	}

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		log.Error("load document failed", "error", err)
		return
	}
	if doc == nil {
		log.Info("document no longer exists, skipping ingestion")
		return
	}
	if doc.Status != model.DocumentStatusProcessing {
		log.Info("document already processed, skipping ingestion", "status", doc.Status)
		return
	}

	started := s.now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("ingestion panicked", "panic", r)
			s.fail(ctx, doc, apperr.Internal(fmt.Sprintf("ingestion panicked: %v", r), nil), true)
		}
	}()

	count, upserted, err := s.ingest(ctx, doc)
	if err != nil {
		log.Error("document ingestion failed", "error", err)
		s.fail(ctx, doc, err, upserted)
		return
	}

	updated, err := s.docs.MarkCompleted(ctx, doc.ID, count, s.now())
	if err != nil {
		log.Error("mark document completed failed", "error", err)
		s.fail(ctx, doc, err, true)
		return
	}
	if !updated {
		log.Warn("document left PROCESSING during ingestion, status not updated")
		return
	}
	log.Info("document ingested",
		"chunk_count", count,
		"elapsed_ms", s.now().Sub(started).Milliseconds(),
	)
}

// ingest runs the pipeline and reports how many chunks were stored and
// whether vectors or chunk rows may already exist.
func (s *IngestionService) ingest(ctx context.Context, doc *model.Document) (int, bool, error) {
	text, err := s.extractor.ExtractFile(ctx, doc.FilePath, doc.FileType)
	if err != nil {
		return 0, false, fmt.Errorf("extract text failed: %w", err)
	}

	segments, err := chunker.Split(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return 0, false, fmt.Errorf("split text failed: %w", err)
	}
	if len(segments) == 0 {
		return 0, false, nil
	}

	points := make([]vectorstore.Point, len(segments))
	records := make([]model.DocumentChunk, len(segments))
	for i, segment := range segments {
		vector, err := s.embedder.Embed(ctx, segment)
		if err != nil {
			return 0, false, fmt.Errorf("embed chunk %d failed: %w", i, err)
		}
		id := s.vectorID()
		points[i] = vectorstore.Point{
			ID:     id,
			Vector: vector,
			Payload: map[string]any{
				vectorstore.PayloadDocumentID:   doc.ID,
				vectorstore.PayloadChunkIndex:   i,
				vectorstore.PayloadContent:      segment,
				vectorstore.PayloadDocumentName: doc.FileName,
			},
		}
		records[i] = model.DocumentChunk{
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    segment,
			VectorID:   id,
			CharCount:  utf8.RuneCountInString(segment),
		}
	}

	if err := s.vectors.Upsert(ctx, points); err != nil {
		// a failed batch may still have been partly applied
		return 0, true, fmt.Errorf("upsert vectors failed: %w", err)
	}
	if err := s.chunks.CreateBatch(ctx, records); err != nil {
		return 0, true, fmt.Errorf("save chunks failed: %w", err)
	}
	return len(records), true, nil
}

// fail marks the document FAILED. When stored is set, chunk rows and vectors
// written before the failure are removed first so a failed document owns
// neither.
func (s *IngestionService) fail(ctx context.Context, doc *model.Document, cause error, stored bool) {
	ctx = context.WithoutCancel(ctx)
	log := slog.With("document_id", doc.ID)

	if stored {
		if err := s.chunks.DeleteByDocumentID(ctx, doc.ID); err != nil {
			log.Warn("remove chunks of failed document failed", "error", err)
		}
		if err := s.vectors.DeleteByFilter(ctx, vectorstore.PayloadDocumentID, doc.ID); err != nil {
			log.Warn("remove vectors of failed document failed", "error", err)
		}
	}

	updated, err := s.docs.MarkFailed(ctx, doc.ID, failureMessage(cause), s.now())
	if err != nil {
		log.Error("mark document failed failed, giving up", "error", err)
		return
	}
	if !updated {
		log.Warn("document disappeared or left PROCESSING before it could be marked failed")
	}
}

// failureMessage is stored on the document. Provider errors keep only their
// summary so raw provider bodies are not exposed through the document API.
func failureMessage(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.KindExternalService {
		if ae.Attempts > 0 {
			return fmt.Sprintf("%s after %d attempts", ae.Message, ae.Attempts)
		}
		return ae.Message
	}
	return err.Error()
}
