package ranking

import (
	"math"
	"sort"

	"ai-restaurant-search-be/pkg/search/filters"
	"ai-restaurant-search-be/pkg/search/results"
)

// CuisineBoost scales the cuisine score added on top of the weighted score.
const CuisineBoost = 0.15

const (
	reviewSaturation   = 5000.0
	distanceHalfMeters = 1500.0
)

// Apply drops items excluded by hard filters and returns the reason codes of
// the filters that removed something.
func Apply(items []results.Item, f filters.Resolved) ([]results.Item, []string) {
	minPrice, maxPrice, priceBand := f.PriceBand()
	removed := map[string]bool{}

	kept := make([]results.Item, 0, len(items))
	for _, it := range items {
		if f.OpenState == filters.OpenNow && it.OpenNow != nil && !*it.OpenNow {
			removed["FILTER_OPEN_NOW"] = true
			continue
		}
		if f.MinRating > 0 && it.Rating > 0 && it.Rating < f.MinRating {
			removed["FILTER_MIN_RATING"] = true
			continue
		}
		if priceBand && it.PriceLevel != nil && (*it.PriceLevel < minPrice || *it.PriceLevel > maxPrice) {
			removed["FILTER_PRICE"] = true
			continue
		}
		kept = append(kept, it)
	}

	codes := make([]string, 0, len(removed))
	for _, code := range []string{"FILTER_OPEN_NOW", "FILTER_MIN_RATING", "FILTER_PRICE"} {
		if removed[code] {
			codes = append(codes, code)
		}
	}
	return kept, codes
}

// Score assigns a score to every item and sorts by score, then place id.
// cuisineScores may be nil.
func Score(items []results.Item, order Order, cuisineScores map[string]float64) []results.Item {
	w := order.Weights
	out := make([]results.Item, len(items))
	copy(out, items)

	for i := range out {
		it := &out[i]
		score := (w.Rating*ratingComponent(*it) +
			w.Reviews*reviewsComponent(*it) +
			w.Price*priceComponent(*it) +
			w.OpenNow*openComponent(*it) +
			w.Distance*distanceComponent(*it)) / TotalWeight
		if cs, ok := cuisineScores[it.PlaceID]; ok {
			it.CuisineScore = cs
			score += CuisineBoost * cs
		}
		it.Score = math.Round(score*1e6) / 1e6
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PlaceID < out[j].PlaceID
	})
	return out
}

func ratingComponent(it results.Item) float64 {
	return clamp(it.Rating/5, 0, 1)
}

func reviewsComponent(it results.Item) float64 {
	if it.ReviewCount <= 0 {
		return 0
	}
	return clamp(math.Log1p(float64(it.ReviewCount))/math.Log1p(reviewSaturation), 0, 1)
}

func priceComponent(it results.Item) float64 {
	if it.PriceLevel == nil {
		return 0.5
	}
	return clamp(1-float64(*it.PriceLevel)/4, 0, 1)
}

func openComponent(it results.Item) float64 {
	if it.OpenNow == nil {
		return 0.5
	}
	if *it.OpenNow {
		return 1
	}
	return 0
}

func distanceComponent(it results.Item) float64 {
	if it.DistanceMeters == nil {
		return 0.5
	}
	return 1 / (1 + *it.DistanceMeters/distanceHalfMeters)
}
