package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"ai-restaurant-search-be/internal/model"
	"ai-restaurant-search-be/internal/repository"
)

// SearchHistoryRepository keeps history in process memory. Used when no
// database is configured.
type SearchHistoryRepository struct {
	cache *cache.Cache
	mu    sync.Mutex
}

var _ repository.SearchHistoryRepository = (*SearchHistoryRepository)(nil)

func NewSearchHistoryRepository() *SearchHistoryRepository {
	// Entries live for a day and are purged every hour
	c := cache.New(24*time.Hour, time.Hour)
	return &SearchHistoryRepository{
		cache: c,
	}
}

func (r *SearchHistoryRepository) Save(_ context.Context, entry *model.SearchHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *entry
	if x, found := r.cache.Get(entry.RequestID); found {
		prev := x.(model.SearchHistory)
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
	}
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.cache.Set(entry.RequestID, stored, cache.DefaultExpiration)
	return nil
}

func (r *SearchHistoryRepository) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]model.SearchHistory, int64, error) {
	var all []model.SearchHistory
	for _, item := range r.cache.Items() {
		entry := item.Object.(model.SearchHistory)
		if entry.OwnerID == ownerID {
			all = append(all, entry)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	if offset >= len(all) {
		return []model.SearchHistory{}, total, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}
