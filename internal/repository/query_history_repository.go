package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"docrag/internal/model"
)

type QueryHistoryRepository struct {
	db *gorm.DB
}

func NewQueryHistoryRepository(db *gorm.DB) *QueryHistoryRepository {
	return &QueryHistoryRepository{db: db}
}

func (r *QueryHistoryRepository) Create(ctx context.Context, record *model.QueryHistory) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create query history failed: %w", err)
	}
	return nil
}

func (r *QueryHistoryRepository) List(ctx context.Context, page, size int) ([]model.QueryHistory, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.QueryHistory{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count query history failed: %w", err)
	}

	var records []model.QueryHistory
	if err := r.db.WithContext(ctx).
		Order("query_time DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("list query history failed: %w", err)
	}
	return records, total, nil
}
