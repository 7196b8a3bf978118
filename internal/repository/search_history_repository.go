package repository

import (
	"context"

	"ai-restaurant-search-be/internal/model"
)

type SearchHistoryRepository interface {
	// Save inserts the entry or updates the one with the same request id.
	Save(ctx context.Context, entry *model.SearchHistory) error
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.SearchHistory, int64, error)
}
