package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docrag/internal/model"
)

const chunkInsertBatch = 100

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// CreateBatch inserts every chunk of one document in a single transaction.
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&chunks, chunkInsertBatch).Error; err != nil {
		return fmt.Errorf("create document chunks failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) GetByVectorID(ctx context.Context, vectorID string) (*model.DocumentChunk, error) {
	var chunk model.DocumentChunk
	if err := r.db.WithContext(ctx).Where("vector_id = ?", vectorID).First(&chunk).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chunk by vector id failed: %w", err)
	}
	return &chunk, nil
}

func (r *ChunkRepository) ListByDocumentID(ctx context.Context, documentID uint) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	if err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document failed: %w", err)
	}
	return chunks, nil
}

// DeleteByDocumentID removes every chunk row of a document. Deleting nothing
// is not an error.
func (r *ChunkRepository) DeleteByDocumentID(ctx context.Context, documentID uint) error {
	if err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&model.DocumentChunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by document failed: %w", err)
	}
	return nil
}
