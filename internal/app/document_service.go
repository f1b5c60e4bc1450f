package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"docrag/internal/chunker"
	"docrag/internal/model"
	"docrag/internal/pkg/apperr"
	"docrag/internal/pkg/extract"
	"docrag/internal/vectorstore"
)

// ErrFileTooLarge is wrapped in an invalid argument error so the transport
// layer can answer 413 instead of 400.
var ErrFileTooLarge = errors.New("file exceeds the maximum upload size")

const (
	defaultDocumentPageSize = 10
	maxDocumentPageSize     = 100
	sniffLen                = 512
)

type DocumentConfig struct {
	UploadDir   string
	MaxFileSize int64
	// Extensions lists the accepted file extensions, lower-case, without dots.
	Extensions []string
}

type UploadInput struct {
	FileName string
	Size     int64
	Content  io.Reader
}

type DocumentPage struct {
	Items []model.Document `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

type DocumentDetail struct {
	Document *model.Document      `json:"document"`
	Chunks   []model.DocumentChunk `json:"chunks"`
}

type DocumentService struct {
	docs       DocumentStore
	chunks     ChunkStore
	vectors    VectorStore
	dispatcher IngestDispatcher
	cfg        DocumentConfig

	now func() time.Time
}

func NewDocumentService(
	docs DocumentStore,
	chunks ChunkStore,
	vectors VectorStore,
	dispatcher IngestDispatcher,
	cfg DocumentConfig,
) *DocumentService {
	if cfg.UploadDir == "" {
		cfg.UploadDir = "./uploads"
	}
	return &DocumentService{
		docs:       docs,
		chunks:     chunks,
		vectors:    vectors,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Upload validates and stores the file, records it as PROCESSING and hands it
// to the ingestion dispatcher. The returned document is never COMPLETED yet.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	name := filepath.Base(strings.TrimSpace(in.FileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, apperr.InvalidArgument("file name is required")
	}
	if in.Content == nil || in.Size <= 0 {
		return nil, apperr.InvalidArgument("file is empty")
	}
	if s.cfg.MaxFileSize > 0 && in.Size > s.cfg.MaxFileSize {
		return nil, &apperr.Error{
			Kind:    apperr.KindInvalidArgument,
			Message: fmt.Sprintf("file is %d bytes, limit is %d", in.Size, s.cfg.MaxFileSize),
			Err:     ErrFileTooLarge,
		}
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if len(s.cfg.Extensions) > 0 && !slices.Contains(s.cfg.Extensions, ext) {
		return nil, apperr.InvalidArgument("unsupported file format %q, allowed: %s", ext, strings.Join(s.cfg.Extensions, ", "))
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, apperr.Internal("read upload failed", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, apperr.InvalidArgument("file is empty")
	}

	mimeType := extract.ResolveMIME(name, head)
	if !chunker.IsSupported(mimeType) {
		return nil, apperr.InvalidArgument("unsupported file type %q", mimeType)
	}
	if !extract.MatchesContent(mimeType, head) {
		return nil, apperr.InvalidArgument("file content does not match its %s extension", ext)
	}

	path, written, err := s.save(name, io.MultiReader(bytes.NewReader(head), in.Content))
	if err != nil {
		return nil, err
	}

	now := s.now()
	doc := &model.Document{
		FileName:   name,
		FileSize:   written,
		FileType:   mimeType,
		FilePath:   path,
		Status:     model.DocumentStatusProcessing,
		UploadTime: now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Warn("remove orphan upload failed", "path", path, "error", rmErr)
		}
		return nil, apperr.Internal("save document failed", err)
	}

	if err := s.dispatcher.Dispatch(ctx, doc.ID); err != nil {
		slog.Error("dispatch ingestion failed", "document_id", doc.ID, "error", err)
		msg := "dispatch ingestion failed: " + err.Error()
		if _, markErr := s.docs.MarkFailed(context.WithoutCancel(ctx), doc.ID, msg, s.now()); markErr != nil {
			slog.Error("mark document failed failed", "document_id", doc.ID, "error", markErr)
		} else {
			doc.Status = model.DocumentStatusFailed
			doc.ErrorMessage = msg
		}
	}

	slog.Info("document uploaded",
		"document_id", doc.ID,
		"file_name", doc.FileName,
		"file_type", doc.FileType,
		"file_size", doc.FileSize,
	)
	return doc, nil
}

// save writes the upload under a unique name and returns its path and size.
func (s *DocumentService) save(name string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", 0, apperr.Internal("create upload directory failed", err)
	}
	path := filepath.Join(s.cfg.UploadDir, uuid.NewString()+"_"+name)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, apperr.Internal("create upload file failed", err)
	}

	limit := s.cfg.MaxFileSize
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	written, err := io.Copy(f, r)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && limit > 0 && written > limit {
		err = &apperr.Error{
			Kind:    apperr.KindInvalidArgument,
			Message: fmt.Sprintf("file exceeds %d bytes", limit),
			Err:     ErrFileTooLarge,
		}
	}
	if err != nil {
		_ = os.Remove(path)
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return "", 0, err
		}
		return "", 0, apperr.Internal("write upload file failed", err)
	}
	return path, written, nil
}

func (s *DocumentService) List(ctx context.Context, page, size int) (*DocumentPage, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultDocumentPageSize
	}
	if size > maxDocumentPageSize {
		size = maxDocumentPageSize
	}
	docs, total, err := s.docs.List(ctx, page, size)
	if err != nil {
		return nil, apperr.Internal("list documents failed", err)
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return &DocumentPage{Items: docs, Total: total, Page: page, Size: size}, nil
}

func (s *DocumentService) Get(ctx context.Context, id uint) (*DocumentDetail, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load document failed", err)
	}
	if doc == nil {
		return nil, apperr.NotFound("document %d not found", id)
	}
	chunks, err := s.chunks.ListByDocumentID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load document chunks failed", err)
	}
	if chunks == nil {
		chunks = []model.DocumentChunk{}
	}
	return &DocumentDetail{Document: doc, Chunks: chunks}, nil
}

// Delete removes the stored file, the document's vectors and its rows.
// File and vector cleanup are best-effort; the rows are always removed.
func (s *DocumentService) Delete(ctx context.Context, id uint) error {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return apperr.Internal("load document failed", err)
	}
	if doc == nil {
		return apperr.NotFound("document %d not found", id)
	}
	log := slog.With("document_id", id)

	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("remove document file failed", "path", doc.FilePath, "error", err)
		}
	}
	if err := s.vectors.DeleteByFilter(ctx, vectorstore.PayloadDocumentID, doc.ID); err != nil {
		log.Warn("remove document vectors failed", "error", err)
	}
	if err := s.docs.DeleteWithChunks(ctx, id); err != nil {
		return apperr.Internal("delete document failed", err)
	}
	log.Info("document deleted")
	return nil
}
