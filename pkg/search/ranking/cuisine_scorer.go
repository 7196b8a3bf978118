package ranking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/llm"
	"ai-restaurant-search-be/pkg/search/cuisine"
	"ai-restaurant-search-be/pkg/search/results"
)

const (
	fastPathMaxItems = 3
	defaultBatchSize = 10
)

type cuisineScore struct {
	PlaceID string  `json:"placeId" validate:"required"`
	Score   float64 `json:"score" validate:"gte=0,lte=1"`
}

type cuisineScoreOutput struct {
	Scores []cuisineScore `json:"scores" validate:"required,dive"`
}

// CuisineScorer estimates how well each item matches the requested cuisine.
// The score only boosts; it never removes an item.
type CuisineScorer struct {
	llm       llm.LLMProvider
	timeout   time.Duration
	batchSize int
	logger    logger.ILogger
}

func NewCuisineScorer(provider llm.LLMProvider, timeout time.Duration, batchSize int, log logger.ILogger) *CuisineScorer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &CuisineScorer{llm: provider, timeout: timeout, batchSize: batchSize, logger: log}
}

// Score returns a score per place id, or nil without a cuisine key. fallback
// is true when any batch used type matching instead of the model.
func (c *CuisineScorer) Score(ctx context.Context, cuisineKey string, items []results.Item) (scores map[string]float64, fallback bool) {
	if cuisineKey == "" || len(items) == 0 {
		return nil, false
	}
	if len(items) <= fastPathMaxItems {
		return typeMatchScores(cuisineKey, items), false
	}

	batches := make([][]results.Item, 0, (len(items)+c.batchSize-1)/c.batchSize)
	for start := 0; start < len(items); start += c.batchSize {
		end := start + c.batchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}

	batchScores := make([]map[string]float64, len(batches))
	batchFallback := make([]bool, len(batches))

	// The whole scoring run shares one time box
	boxCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(boxCtx)
	for i, batch := range batches {
		g.Go(func() error {
			s, err := c.scoreBatch(gctx, cuisineKey, batch)
			if err != nil {
				c.logger.Warn("CuisineScorer", "Batch scoring failed, using type match", map[string]interface{}{
					"batch": i,
					"size":  len(batch),
					"error": err.Error(),
				})
				s = typeMatchScores(cuisineKey, batch)
				batchFallback[i] = true
			}
			batchScores[i] = s
			return nil
		})
	}
	_ = g.Wait()

	scores = make(map[string]float64, len(items))
	for i, s := range batchScores {
		for id, v := range s {
			scores[id] = v
		}
		fallback = fallback || batchFallback[i]
	}
	return scores, fallback
}

func (c *CuisineScorer) scoreBatch(ctx context.Context, cuisineKey string, batch []results.Item) (map[string]float64, error) {
	out, err := llm.GenerateJSON[cuisineScoreOutput](ctx, c.llm, "cuisine_score", buildCuisinePrompt(cuisineKey, batch), 0)
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(batch))
	for _, it := range batch {
		want[it.PlaceID] = true
	}
	scores := make(map[string]float64, len(batch))
	for _, s := range out.Scores {
		if !want[s.PlaceID] {
			return nil, &llm.Error{Kind: llm.KindSchemaInvalid, Task: "cuisine_score", Reason: fmt.Sprintf("unknown placeId %q", s.PlaceID)}
		}
		scores[s.PlaceID] = s.Score
	}
	// Items the model skipped fall back individually
	for _, it := range batch {
		if _, ok := scores[it.PlaceID]; !ok {
			scores[it.PlaceID] = typeMatchScore(cuisineKey, it)
		}
	}
	return scores, nil
}

func typeMatchScores(cuisineKey string, items []results.Item) map[string]float64 {
	scores := make(map[string]float64, len(items))
	for _, it := range items {
		scores[it.PlaceID] = typeMatchScore(cuisineKey, it)
	}
	return scores
}

func typeMatchScore(cuisineKey string, it results.Item) float64 {
	if cuisine.TypeMatch(cuisineKey, it.Types) {
		return 1
	}
	return 0
}

func buildCuisinePrompt(cuisineKey string, batch []results.Item) string {
	var prompt strings.Builder
	prompt.WriteString("<task>cuisine_score</task>\n")
	prompt.WriteString("<system>\n")
	prompt.WriteString(fmt.Sprintf("Rate from 0 to 1 how likely each place serves %s food.\n", cuisineKey))
	prompt.WriteString("Use only the names and types given. Do not invent places.\n")
	prompt.WriteString("</system>\n\n")
	prompt.WriteString("<places>\n")
	for _, it := range batch {
		prompt.WriteString(fmt.Sprintf("- placeId=%s name=%q types=%s\n", it.PlaceID, it.Name, strings.Join(it.Types, ",")))
	}
	prompt.WriteString("</places>\n\n")
	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\"scores\": [{\"placeId\": \"...\", \"score\": 0.8}]}\n")
	prompt.WriteString("</output_format>")
	return prompt.String()
}
