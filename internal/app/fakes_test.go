package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"docrag/internal/model"
	"docrag/internal/vectorstore"
)

type memDocs struct {
	mu      sync.Mutex
	nextID  uint
	docs    map[uint]*model.Document
	deleted []uint

	createErr   error
	getErr      error
	completeErr error
}

func newMemDocs() *memDocs {
	return &memDocs{nextID: 1, docs: map[uint]*model.Document{}}
}

func (m *memDocs) Create(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	doc.ID = m.nextID
	m.nextID++
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memDocs) GetByID(_ context.Context, id uint) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (m *memDocs) List(_ context.Context, page, size int) ([]model.Document, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]model.Document, 0, len(m.docs))
	for _, d := range m.docs {
		all = append(all, *d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	start := (page - 1) * size
	if start >= len(all) {
		return []model.Document{}, int64(len(all)), nil
	}
	end := min(start+size, len(all))
	return all[start:end], int64(len(all)), nil
}

func (m *memDocs) MarkCompleted(_ context.Context, id uint, chunkCount int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return false, m.completeErr
	}
	doc, ok := m.docs[id]
	if !ok || doc.Status != model.DocumentStatusProcessing {
		return false, nil
	}
	doc.Status = model.DocumentStatusCompleted
	doc.ChunkCount = chunkCount
	doc.ProcessTime = &at
	return true, nil
}

func (m *memDocs) MarkFailed(_ context.Context, id uint, message string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || doc.Status != model.DocumentStatusProcessing {
		return false, nil
	}
	doc.Status = model.DocumentStatusFailed
	doc.ErrorMessage = message
	doc.ProcessTime = &at
	return true, nil
}

func (m *memDocs) DeleteWithChunks(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memDocs) get(id uint) *model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id]
}

type memChunks struct {
	mu        sync.Mutex
	byVector  map[string]model.DocumentChunk
	createErr error
	getErr    error
	deleted   []uint
}

func newMemChunks() *memChunks {
	return &memChunks{byVector: map[string]model.DocumentChunk{}}
}

func (m *memChunks) CreateBatch(_ context.Context, chunks []model.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, c := range chunks {
		m.byVector[c.VectorID] = c
	}
	return nil
}

func (m *memChunks) GetByVectorID(_ context.Context, vectorID string) (*model.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.byVector[vectorID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memChunks) ListByDocumentID(_ context.Context, documentID uint) ([]model.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DocumentChunk
	for _, c := range m.byVector {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (m *memChunks) DeleteByDocumentID(_ context.Context, documentID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, documentID)
	for id, c := range m.byVector {
		if c.DocumentID == documentID {
			delete(m.byVector, id)
		}
	}
	return nil
}

func (m *memChunks) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byVector)
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) ExtractFile(context.Context, string, string) (string, error) {
	return f.text, f.err
}

// fakeEmbedder returns a vector derived from the text length and can be made
// to fail on the nth call.
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  []string
	failOn int
	err    error
	panics bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.panics {
		panic("embedder exploded")
	}
	if f.failOn > 0 && len(f.calls) == f.failOn {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeVectors struct {
	mu        sync.Mutex
	points    []vectorstore.Point
	hits      []vectorstore.ScoredPoint
	upsertErr error
	searchErr error
	deleteErr error
	searchK   int
	filters   []any
}

func (f *fakeVectors) Upsert(_ context.Context, points []vectorstore.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.points = append(f.points, points...)
	return nil
}

func (f *fakeVectors) Search(_ context.Context, _ []float32, topK int) ([]vectorstore.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchK = topK
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakeVectors) DeleteByFilter(_ context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, value)
	return f.deleteErr
}

type fakeGenerator struct {
	answer   string
	err      error
	query    string
	contexts []string
	called   bool
}

func (f *fakeGenerator) GenerateAnswer(_ context.Context, query string, contexts []string, _ string) (string, error) {
	f.called = true
	f.query = query
	f.contexts = contexts
	return f.answer, f.err
}

type memHistory struct {
	mu        sync.Mutex
	rows      []model.QueryHistory
	createErr error
	lists     int
}

func (m *memHistory) Create(_ context.Context, record *model.QueryHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	record.ID = uint(len(m.rows) + 1)
	m.rows = append(m.rows, *record)
	return nil
}

func (m *memHistory) List(_ context.Context, page, size int) ([]model.QueryHistory, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	out := make([]model.QueryHistory, 0, len(m.rows))
	for i := len(m.rows) - 1; i >= 0; i-- {
		out = append(out, m.rows[i])
	}
	start := (page - 1) * size
	if start >= len(out) {
		return nil, int64(len(out)), nil
	}
	return out[start:min(start+size, len(out))], int64(len(out)), nil
}

type memCache struct {
	pages       map[string][]byte
	invalidated int
}

func newMemCache() *memCache {
	return &memCache{pages: map[string][]byte{}}
}

func pageKey(page, size int) string {
	return fmt.Sprintf("%d:%d", page, size)
}

func (c *memCache) GetPage(_ context.Context, page, size int, dest any) (bool, error) {
	raw, ok := c.pages[pageKey(page, size)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) SetPage(_ context.Context, page, size int, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.pages[pageKey(page, size)] = raw
	return nil
}

func (c *memCache) Invalidate(context.Context) error {
	c.invalidated++
	c.pages = map[string][]byte{}
	return nil
}

type fakeGuard struct {
	held       map[uint]bool
	err        error
	released   []uint
	acquireCnt int
}

func (g *fakeGuard) Acquire(_ context.Context, id uint) (bool, error) {
	g.acquireCnt++
	if g.err != nil {
		return false, g.err
	}
	if g.held == nil {
		g.held = map[uint]bool{}
	}
	if g.held[id] {
		return false, nil
	}
	g.held[id] = true
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, id uint) error {
	delete(g.held, id)
	g.released = append(g.released, id)
	return nil
}

var errBoom = errors.New("boom")
