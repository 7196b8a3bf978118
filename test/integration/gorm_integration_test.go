package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"ai-restaurant-search-be/internal/model"
	"ai-restaurant-search-be/internal/repository/implementation"
	"ai-restaurant-search-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestGormSearchHistory(t *testing.T) {
	// Load .env from root
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(gormDB, &model.SearchHistory{}))

	sqlDB, _ := gormDB.DB()
	require.NoError(t, sqlDB.Ping())

	repo := implementation.NewSearchHistoryRepository(gormDB)
	ctx := context.Background()
	owner := "integration-" + uuid.NewString()
	requestID := uuid.NewString()

	t.Cleanup(func() {
		gormDB.Where("owner_id = ?", owner).Delete(&model.SearchHistory{})
	})

	t.Run("Pending entry is upserted by request id", func(t *testing.T) {
		err := repo.Save(ctx, &model.SearchHistory{
			RequestID: requestID,
			OwnerID:   owner,
			Query:     "sushi in tel aviv",
			Status:    "PENDING",
		})
		require.NoError(t, err)

		done := time.Now().UTC()
		err = repo.Save(ctx, &model.SearchHistory{
			RequestID:   requestID,
			OwnerID:     owner,
			Query:       "sushi in tel aviv",
			Route:       "TEXT_SEARCH",
			Status:      "DONE_SUCCESS",
			ResultCount: 7,
			Meta:        datatypes.JSON(`{"retries":0}`),
			CompletedAt: &done,
		})
		require.NoError(t, err)

		entries, total, err := repo.ListByOwner(ctx, owner, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, entries, 1)
		assert.Equal(t, "DONE_SUCCESS", entries[0].Status)
		assert.Equal(t, 7, entries[0].ResultCount)
		assert.NotNil(t, entries[0].CompletedAt)
	})

	t.Run("Listing is newest first and paginated", func(t *testing.T) {
		second := uuid.NewString()
		require.NoError(t, repo.Save(ctx, &model.SearchHistory{
			RequestID: second,
			OwnerID:   owner,
			Query:     "pizza near me",
			Status:    "DONE_FAILED",
			ErrorCode: "TIMEOUT",
			CreatedAt: time.Now().UTC().Add(time.Minute),
		}))

		entries, total, err := repo.ListByOwner(ctx, owner, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, entries, 1)
		assert.Equal(t, second, entries[0].RequestID)

		entries, _, err = repo.ListByOwner(ctx, owner, 1, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, requestID, entries[0].RequestID)
	})
}
