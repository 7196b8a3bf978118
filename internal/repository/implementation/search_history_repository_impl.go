package implementation

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ai-restaurant-search-be/internal/model"
	"ai-restaurant-search-be/internal/repository"
)

type SearchHistoryRepositoryImpl struct {
	db *gorm.DB
}

func NewSearchHistoryRepository(db *gorm.DB) repository.SearchHistoryRepository {
	return &SearchHistoryRepositoryImpl{db: db}
}

func (r *SearchHistoryRepositoryImpl) Save(ctx context.Context, entry *model.SearchHistory) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"route", "status", "result_count", "error_code", "meta", "completed_at"}),
		}).
		Create(entry).Error
}

func (r *SearchHistoryRepositoryImpl) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.SearchHistory, int64, error) {
	var entries []model.SearchHistory
	var total int64

	db := r.db.WithContext(ctx).Model(&model.SearchHistory{}).Where("owner_id = ?", ownerID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error

	return entries, total, err
}
