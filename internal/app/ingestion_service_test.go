package app

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/model"
	"docrag/internal/pkg/apperr"
	"docrag/internal/vectorstore"
)

type ingestFixture struct {
	docs     *memDocs
	chunks   *memChunks
	embedder *fakeEmbedder
	vectors  *fakeVectors
	guard    *fakeGuard
	svc      *IngestionService
	doc      *model.Document
}

func newIngestFixture(t *testing.T, text string, extractErr error) *ingestFixture {
	t.Helper()
	f := &ingestFixture{
		docs:     newMemDocs(),
		chunks:   newMemChunks(),
		embedder: &fakeEmbedder{},
		vectors:  &fakeVectors{},
		guard:    &fakeGuard{},
	}
	f.svc = NewIngestionService(
		f.docs, f.chunks,
		fakeExtractor{text: text, err: extractErr},
		f.embedder, f.vectors, f.guard,
		IngestionConfig{ChunkSize: 10, ChunkOverlap: 2},
	)
	n := 0
	f.svc.vectorID = func() string {
		n++
		return fmt.Sprintf("vec-%d", n)
	}
	f.doc = &model.Document{FileName: "notes.txt", FileType: "text/plain", Status: model.DocumentStatusProcessing}
	require.NoError(t, f.docs.Create(context.Background(), f.doc))
	return f
}

func TestProcessCompletesDocument(t *testing.T) {
	f := newIngestFixture(t, strings.Repeat("a", 25), nil)

	f.svc.Process(context.Background(), f.doc.ID)

	doc := f.docs.get(f.doc.ID)
	require.NotNil(t, doc)
	assert.Equal(t, model.DocumentStatusCompleted, doc.Status)
	// 25 runes, step 8: starts at 0, 8, 16, 24
	assert.Equal(t, 4, doc.ChunkCount)
	assert.NotNil(t, doc.ProcessTime)
	assert.Equal(t, 4, f.embedder.callCount())
	require.Len(t, f.vectors.points, 4)
	assert.Equal(t, 4, f.chunks.count())

	p := f.vectors.points[1]
	assert.Equal(t, "vec-2", p.ID)
	assert.Equal(t, f.doc.ID, p.Payload[vectorstore.PayloadDocumentID])
	assert.Equal(t, 1, p.Payload[vectorstore.PayloadChunkIndex])
	assert.Equal(t, "notes.txt", p.Payload[vectorstore.PayloadDocumentName])

	chunk, err := f.chunks.GetByVectorID(context.Background(), "vec-4")
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, 3, chunk.ChunkIndex)
	assert.Equal(t, "a", chunk.Content)
	assert.Equal(t, 1, chunk.CharCount)
	assert.Equal(t, []uint{f.doc.ID}, f.guard.released)
}

func TestProcessBlankTextCompletesWithZeroChunks(t *testing.T) {
	f := newIngestFixture(t, "   \n ", nil)

	f.svc.Process(context.Background(), f.doc.ID)

	doc := f.docs.get(f.doc.ID)
	assert.Equal(t, model.DocumentStatusCompleted, doc.Status)
	assert.Zero(t, doc.ChunkCount)
	assert.Zero(t, f.embedder.callCount())
	assert.Empty(t, f.vectors.points)
	assert.Empty(t, f.vectors.filters)
}

func TestProcessExtractFailureMarksFailed(t *testing.T) {
	f := newIngestFixture(t, "", fmt.Errorf("pdf is encrypted"))

	f.svc.Process(context.Background(), f.doc.ID)

	doc := f.docs.get(f.doc.ID)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "pdf is encrypted")
	assert.Empty(t, f.vectors.filters)
	assert.Empty(t, f.chunks.deleted)
}

func TestProcessEmbeddingFailureStopsBeforeUpsert(t *testing.T) {
	f := newIngestFixture(t, strings.Repeat("b", 25), nil)
	f.embedder.failOn = 2
	f.embedder.err = apperr.ExternalAfter("embedding request failed", 3, errBoom)

	f.svc.Process(context.Background(), f.doc.ID)

	doc := f.docs.get(f.doc.ID)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	assert.Equal(t, "embedding request failed after 3 attempts", doc.ErrorMessage)
	assert.Equal(t, 2, f.embedder.callCount())
	assert.Empty(t, f.vectors.points)
	assert.Zero(t, f.chunks.count())
}

func TestProcessChunkSaveFailureRemovesVectors(t *testing.T) {
	f := newIngestFixture(t, strings.Repeat("c", 12), nil)
	f.chunks.createErr = errBoom

	f.svc.Process(context.Background(), f.doc.ID)

	doc := f.docs.get(f.doc.ID)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	assert.Equal(t, []any{f.doc.ID}, f.vectors.filters)
	assert.Equal(t, []uint{f.doc.ID}, f.chunks.deleted)
}

func TestProcessCompletionFailureRemovesChunksAndVectors(t *testing.T) {
	f := newIngestFixture(t, strings.Repeat("d", 25), nil)
	f.docs.completeErr = errBoom

	f.svc.Process(context.Background(), f.doc.ID)

	doc := f.docs.get(f.doc.ID)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	assert.Equal(t, "boom", doc.ErrorMessage)
	assert.Zero(t, doc.ChunkCount)
	assert.Len(t, f.vectors.points, 4)
	assert.Equal(t, []any{f.doc.ID}, f.vectors.filters)
	assert.Zero(t, f.chunks.count())

	chunks, err := f.chunks.ListByDocumentID(context.Background(), f.doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcessRecoversFromPanic(t *testing.T) {
	f := newIngestFixture(t, "some text", nil)
	f.embedder.panics = true

	assert.NotPanics(t, func() { f.svc.Process(context.Background(), f.doc.ID) })

	doc := f.docs.get(f.doc.ID)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "embedder exploded")
}

func TestProcessSkipsFinishedDocument(t *testing.T) {
	f := newIngestFixture(t, "text", nil)
	_, err := f.docs.MarkCompleted(context.Background(), f.doc.ID, 7, f.svc.now())
	require.NoError(t, err)

	f.svc.Process(context.Background(), f.doc.ID)

	assert.Zero(t, f.embedder.callCount())
	assert.Equal(t, 7, f.docs.get(f.doc.ID).ChunkCount)
}

func TestProcessSkipsMissingDocument(t *testing.T) {
	f := newIngestFixture(t, "text", nil)
	f.svc.Process(context.Background(), 999)
	assert.Zero(t, f.embedder.callCount())
}

func TestProcessSkipsWhenLockHeld(t *testing.T) {
	f := newIngestFixture(t, "text", nil)
	f.guard.held = map[uint]bool{f.doc.ID: true}

	f.svc.Process(context.Background(), f.doc.ID)

	assert.Zero(t, f.embedder.callCount())
	assert.Equal(t, model.DocumentStatusProcessing, f.docs.get(f.doc.ID).Status)
	assert.Empty(t, f.guard.released)
}

func TestProcessContinuesWhenLockUnavailable(t *testing.T) {
	f := newIngestFixture(t, "text", nil)
	f.guard.err = errBoom

	f.svc.Process(context.Background(), f.doc.ID)

	assert.Equal(t, model.DocumentStatusCompleted, f.docs.get(f.doc.ID).Status)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "chat completion failed after 2 attempts",
		failureMessage(apperr.ExternalAfter("chat completion failed", 2, errBoom)))
	assert.Equal(t, "qdrant upsert points failed",
		failureMessage(fmt.Errorf("upsert vectors failed: %w", apperr.External("qdrant upsert points failed", errBoom))))
	assert.Equal(t, "boom", failureMessage(errBoom))
}
