package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docrag/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// List returns one page of documents, newest upload first, and the total count.
func (r *DocumentRepository) List(ctx context.Context, page, size int) ([]model.Document, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count documents failed: %w", err)
	}

	var docs []model.Document
	if err := r.db.WithContext(ctx).
		Order("upload_time DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&docs).Error; err != nil {
		return nil, 0, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, total, nil
}

// MarkCompleted moves a PROCESSING document to COMPLETED. It reports false
// when no PROCESSING row with that id exists.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id uint, chunkCount int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status = ?", id, model.DocumentStatusProcessing).
		Updates(map[string]any{
			"status":        model.DocumentStatusCompleted,
			"chunk_count":   chunkCount,
			"process_time":  at,
			"error_message": "",
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark document completed failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed moves a PROCESSING document to FAILED with the given message.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id uint, message string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status = ?", id, model.DocumentStatusProcessing).
		Updates(map[string]any{
			"status":        model.DocumentStatusFailed,
			"process_time":  at,
			"error_message": message,
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark document failed failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteWithChunks removes the document row and its chunk rows together.
func (r *DocumentRepository) DeleteWithChunks(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentChunk{}).Error; err != nil {
			return fmt.Errorf("delete document chunks failed: %w", err)
		}
		if err := tx.Delete(&model.Document{}, id).Error; err != nil {
			return fmt.Errorf("delete document failed: %w", err)
		}
		return nil
	})
}
