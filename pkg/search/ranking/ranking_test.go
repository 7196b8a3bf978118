package ranking

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/llm/llmtest"
	"ai-restaurant-search-be/pkg/search/filters"
	"ai-restaurant-search-be/pkg/search/results"
)

func assertBounded(t *testing.T, w Weights) {
	t.Helper()
	assert.InDelta(t, TotalWeight, w.Sum(), 1e-9)
	for _, x := range w.vector() {
		assert.GreaterOrEqual(t, x, MinWeight-1e-9)
		assert.LessOrEqual(t, x, MaxWeight+1e-9)
	}
}

func TestSelectProfileWeightsAreBounded(t *testing.T) {
	for mask := 0; mask < 32; mask++ {
		s := Signals{
			ProximityIntent:  mask&1 != 0,
			HasCenter:        mask&2 != 0,
			OpenNowRequested: mask&4 != 0,
			BudgetIntent:     mask&8 != 0,
			QualityIntent:    mask&16 != 0,
		}
		t.Run(fmt.Sprintf("%+v", s), func(t *testing.T) {
			assertBounded(t, SelectProfile(s).Weights)
		})
	}
}

func TestNormalizeRandomVectors(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		w := Weights{
			Rating:   rng.Float64() * 300,
			Reviews:  rng.Float64() * 3,
			Price:    rng.Float64()*200 - 50,
			OpenNow:  rng.Float64() * 80,
			Distance: rng.Float64() * 1000,
		}
		assertBounded(t, Normalize(w))
	}
}

func TestNormalizeDegenerateVectors(t *testing.T) {
	assertBounded(t, Normalize(Weights{}))
	assertBounded(t, Normalize(Weights{Distance: 1000}))

	even := Normalize(Weights{Rating: 7, Reviews: 7, Price: 7, OpenNow: 7, Distance: 7})
	assert.InDelta(t, 20, even.Rating, 1e-9)
}

func TestSelectProfileIsPure(t *testing.T) {
	s := Signals{ProximityIntent: true, HasCenter: true, OpenNowRequested: true}
	assert.Equal(t, SelectProfile(s), SelectProfile(s))
}

func TestNearbyProfileWeightsDistanceHighest(t *testing.T) {
	order := SelectProfile(Signals{ProximityIntent: true, HasCenter: true})

	assert.Equal(t, ProfileNearby, order.Profile)
	w := order.Weights
	for _, x := range []float64{w.Rating, w.Reviews, w.Price, w.OpenNow} {
		assert.Greater(t, w.Distance, x)
	}
}

func TestProximityWithoutCenterIsBalanced(t *testing.T) {
	assert.Equal(t, ProfileBalanced, SelectProfile(Signals{ProximityIntent: true}).Profile)
}

func TestOverlaysShiftWeights(t *testing.T) {
	base := SelectProfile(Signals{})
	budget := SelectProfile(Signals{BudgetIntent: true})
	open := SelectProfile(Signals{OpenNowRequested: true})

	assert.Greater(t, budget.Weights.Price, base.Weights.Price)
	assert.Greater(t, open.Weights.OpenNow, base.Weights.OpenNow)
	assert.Contains(t, budget.ReasonCodes, "OVERLAY_BUDGET")
}

func ptrBool(b bool) *bool { return &b }

func ptrInt(i int) *int { return &i }

func ptrFloat(f float64) *float64 { return &f }

func TestApplyFilters(t *testing.T) {
	items := []results.Item{
		{PlaceID: "open", OpenNow: ptrBool(true), Rating: 4.5, PriceLevel: ptrInt(1)},
		{PlaceID: "closed", OpenNow: ptrBool(false), Rating: 4.8},
		{PlaceID: "unknown-hours", Rating: 4.2},
		{PlaceID: "low", Rating: 3.1},
		{PlaceID: "pricey", Rating: 4.9, PriceLevel: ptrInt(4)},
	}

	kept, codes := Apply(items, filters.Resolved{
		OpenState:   filters.OpenNow,
		PriceIntent: filters.PriceBudget,
		MinRating:   4.0,
	})

	ids := make([]string, 0)
	for _, it := range kept {
		ids = append(ids, it.PlaceID)
	}
	assert.Equal(t, []string{"open", "unknown-hours"}, ids)
	assert.Equal(t, []string{"FILTER_OPEN_NOW", "FILTER_MIN_RATING", "FILTER_PRICE"}, codes)
}

func TestApplyAnyKeepsEverything(t *testing.T) {
	items := []results.Item{{PlaceID: "a", OpenNow: ptrBool(false)}, {PlaceID: "b"}}
	kept, codes := Apply(items, filters.Any())
	assert.Len(t, kept, 2)
	assert.Empty(t, codes)
}

func TestScoreOrdersByDistanceForNearby(t *testing.T) {
	order := SelectProfile(Signals{ProximityIntent: true, HasCenter: true})
	items := []results.Item{
		{PlaceID: "far", Rating: 4.6, ReviewCount: 800, DistanceMeters: ptrFloat(4000)},
		{PlaceID: "near", Rating: 4.3, ReviewCount: 500, DistanceMeters: ptrFloat(150)},
	}

	ranked := Score(items, order, nil)

	assert.Equal(t, "near", ranked[0].PlaceID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestScoreTiesBreakOnPlaceID(t *testing.T) {
	items := []results.Item{{PlaceID: "b", Rating: 4}, {PlaceID: "a", Rating: 4}, {PlaceID: "c", Rating: 4}}
	ranked := Score(items, SelectProfile(Signals{}), nil)

	assert.Equal(t, "a", ranked[0].PlaceID)
	assert.Equal(t, "b", ranked[1].PlaceID)
	assert.Equal(t, "c", ranked[2].PlaceID)
}

func TestCuisineBoost(t *testing.T) {
	items := []results.Item{{PlaceID: "a", Rating: 4.5}, {PlaceID: "b", Rating: 4.4}}
	ranked := Score(items, SelectProfile(Signals{}), map[string]float64{"b": 1})

	assert.Equal(t, "b", ranked[0].PlaceID)
	assert.Equal(t, 1.0, ranked[0].CuisineScore)
}

func manyItems(n int) []results.Item {
	items := make([]results.Item, n)
	for i := range items {
		types := []string{"restaurant"}
		if i%2 == 0 {
			types = append(types, "italian_restaurant")
		}
		items[i] = results.Item{PlaceID: fmt.Sprintf("p%02d", i), Name: fmt.Sprintf("Place %d", i), Types: types}
	}
	return items
}

func TestCuisineScorerFastPath(t *testing.T) {
	fake := llmtest.New()
	scorer := NewCuisineScorer(fake, time.Second, 10, logger.NewNop())

	scores, fallback := scorer.Score(context.Background(), "italian", manyItems(3))

	assert.False(t, fallback)
	assert.Equal(t, 1.0, scores["p00"])
	assert.Equal(t, 0.0, scores["p01"])
	assert.Zero(t, fake.Calls("cuisine_score"))
}

func TestCuisineScorerNoKey(t *testing.T) {
	scores, _ := NewCuisineScorer(llmtest.New(), time.Second, 10, logger.NewNop()).Score(context.Background(), "", manyItems(5))
	assert.Nil(t, scores)
}

func TestCuisineScorerBatches(t *testing.T) {
	fake := llmtest.New().JSON("cuisine_score", `{"scores":[]}`)
	scorer := NewCuisineScorer(fake, time.Second, 10, logger.NewNop())

	scores, fallback := scorer.Score(context.Background(), "italian", manyItems(25))

	assert.False(t, fallback)
	assert.Len(t, scores, 25)
	assert.Equal(t, 3, fake.Calls("cuisine_score"))
}

func TestCuisineScorerUsesModelScores(t *testing.T) {
	fake := llmtest.New().JSON("cuisine_score", `{"scores":[{"placeId":"p01","score":0.7}]}`)
	scorer := NewCuisineScorer(fake, time.Second, 10, logger.NewNop())

	scores, _ := scorer.Score(context.Background(), "italian", manyItems(5))

	assert.Equal(t, 0.7, scores["p01"])
	assert.Equal(t, 1.0, scores["p00"])
}

func TestCuisineScorerFallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		reply llmtest.Reply
	}{
		{"provider error", llmtest.Reply{Err: errors.New("503")}},
		{"invented place", llmtest.Reply{Text: `{"scores":[{"placeId":"ghost","score":1}]}`}},
		{"out of range", llmtest.Reply{Text: `{"scores":[{"placeId":"p00","score":3}]}`}},
		{"slow", llmtest.Reply{Text: `{"scores":[]}`, Delay: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := llmtest.New().On("cuisine_score", tt.reply)
			scorer := NewCuisineScorer(fake, 50*time.Millisecond, 10, logger.NewNop())

			scores, fallback := scorer.Score(context.Background(), "italian", manyItems(6))

			require.True(t, fallback)
			assert.Len(t, scores, 6)
			assert.Equal(t, 1.0, scores["p02"])
			assert.Equal(t, 0.0, scores["p03"])
		})
	}
}
