package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-restaurant-search-be/internal/model"
)

func TestSearchHistoryRepository(t *testing.T) {
	repo := NewSearchHistoryRepository()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, repo.Save(ctx, &model.SearchHistory{
			RequestID: id,
			OwnerID:   "u1",
			Query:     "pizza",
			Status:    "PENDING",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Save(ctx, &model.SearchHistory{RequestID: "other", OwnerID: "u2", Query: "sushi"}))

	// Upsert keeps identity and creation time
	first, _, err := repo.ListByOwner(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, &model.SearchHistory{RequestID: "r1", OwnerID: "u1", Query: "pizza", Status: "DONE_SUCCESS", ResultCount: 4}))

	entries, total, err := repo.ListByOwner(ctx, "u1", 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, entries, 2)
	assert.Equal(t, "r3", entries[0].RequestID)
	assert.Equal(t, "r2", entries[1].RequestID)

	entries, _, err = repo.ListByOwner(ctx, "u1", 2, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r1", entries[0].RequestID)
	assert.Equal(t, "DONE_SUCCESS", entries[0].Status)
	assert.Equal(t, first[2].ID, entries[0].ID)
	assert.Equal(t, base, entries[0].CreatedAt)

	entries, _, err = repo.ListByOwner(ctx, "u1", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
