// Package filters resolves the hard and soft filters of a search from the raw
// query text. It never reads the route decision, so it can run in parallel
// with query mapping.
package filters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/llm"
)

type OpenState string

const (
	OpenAny OpenState = "ANY"
	OpenNow OpenState = "OPEN_NOW"
)

type PriceIntent string

const (
	PriceAny       PriceIntent = "ANY"
	PriceBudget    PriceIntent = "BUDGET"
	PriceModerate  PriceIntent = "MODERATE"
	PriceExpensive PriceIntent = "EXPENSIVE"
)

// Resolved is the filter set consumed by ranking.
type Resolved struct {
	OpenState     OpenState   `json:"openState"`
	PriceIntent   PriceIntent `json:"priceIntent"`
	Dietary       []string    `json:"dietary,omitempty"`
	MinRating     float64     `json:"minRating,omitempty"`
	QualityIntent bool        `json:"qualityIntent,omitempty"`
	Fallback      bool        `json:"-"`
}

// PriceBand returns the inclusive provider price-level range for the intent.
// ok is false when any price is acceptable.
func (r Resolved) PriceBand() (min, max int, ok bool) {
	switch r.PriceIntent {
	case PriceBudget:
		return 0, 1, true
	case PriceModerate:
		return 1, 2, true
	case PriceExpensive:
		return 3, 4, true
	}
	return 0, 4, false
}

// Any is the filter set that keeps everything.
func Any() Resolved {
	return Resolved{OpenState: OpenAny, PriceIntent: PriceAny}
}

type output struct {
	OpenState     string   `json:"openState" validate:"required,oneof=ANY OPEN_NOW"`
	PriceIntent   string   `json:"priceIntent" validate:"required,oneof=ANY BUDGET MODERATE EXPENSIVE"`
	Dietary       []string `json:"dietary" validate:"max=4,dive,oneof=vegan vegetarian kosher halal gluten_free"`
	MinRating     float64  `json:"minRating" validate:"gte=0,lte=5"`
	QualityIntent bool     `json:"qualityIntent"`
}

func (o *output) Check() error {
	if o.MinRating > 0 && o.MinRating < 1 {
		return fmt.Errorf("minRating %.2f below the provider scale", o.MinRating)
	}
	return nil
}

type Resolver struct {
	llm     llm.LLMProvider
	timeout time.Duration
	logger  logger.ILogger
}

func NewResolver(provider llm.LLMProvider, timeout time.Duration, log logger.ILogger) *Resolver {
	return &Resolver{llm: provider, timeout: timeout, logger: log}
}

// Resolve never fails: an unusable model answer yields Any().
func (r *Resolver) Resolve(ctx context.Context, query string) Resolved {
	out, err := llm.GenerateJSON[output](ctx, r.llm, "filters", buildPrompt(query), r.timeout)
	if err != nil {
		r.logger.Warn("FilterResolver", "Filter resolution failed, using defaults", map[string]interface{}{
			"error": err.Error(),
			"kind":  llm.KindOf(err),
		})
		res := Any()
		res.Fallback = true
		return res
	}

	return Resolved{
		OpenState:     OpenState(out.OpenState),
		PriceIntent:   PriceIntent(out.PriceIntent),
		Dietary:       out.Dietary,
		MinRating:     out.MinRating,
		QualityIntent: out.QualityIntent,
	}
}

func buildPrompt(query string) string {
	var prompt strings.Builder
	prompt.WriteString("<task>filters</task>\n")
	prompt.WriteString("<system>\n")
	prompt.WriteString("Extract only the constraints the user states explicitly. Use ANY when unsure.\n")
	prompt.WriteString("</system>\n\n")
	prompt.WriteString("<user_query>\n")
	prompt.WriteString(query)
	prompt.WriteString("\n</user_query>\n\n")
	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\"openState\": \"ANY|OPEN_NOW\", \"priceIntent\": \"ANY|BUDGET|MODERATE|EXPENSIVE\", ")
	prompt.WriteString("\"dietary\": [\"vegan|vegetarian|kosher|halal|gluten_free\"], \"minRating\": 0, \"qualityIntent\": false}\n")
	prompt.WriteString("</output_format>")
	return prompt.String()
}
