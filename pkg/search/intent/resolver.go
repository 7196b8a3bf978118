package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/llm"
	"ai-restaurant-search-be/pkg/search/cuisine"
	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/route"
)

type intentOutput struct {
	Route          string   `json:"route" validate:"required,oneof=TEXT_SEARCH NEARBY LANDMARK CLARIFY"`
	CuisineKey     string   `json:"cuisineKey"`
	TextQuery      string   `json:"textQuery" validate:"max=200"`
	CityText       string   `json:"cityText" validate:"max=100"`
	Landmark       string   `json:"landmark" validate:"max=100"`
	NearMe         bool     `json:"nearMe"`
	RequiredTerms  []string `json:"requiredTerms" validate:"max=5,dive,min=1,max=40"`
	PreferredTerms []string `json:"preferredTerms" validate:"max=5,dive,min=1,max=40"`
	Strict         bool     `json:"strict"`
	Region         string   `json:"region" validate:"omitempty,len=2,alpha"`
	Confidence     float64  `json:"confidence" validate:"gte=0,lte=1"`
}

func (o *intentOutput) Check() error {
	if !cuisine.IsValid(o.CuisineKey) {
		return fmt.Errorf("cuisineKey %q is not in the vocabulary", o.CuisineKey)
	}
	if o.Route == string(route.Landmark) && strings.TrimSpace(o.Landmark) == "" {
		return fmt.Errorf("LANDMARK route without landmark")
	}
	return nil
}

// Input is what ROUTE needs from the request.
type Input struct {
	Query       string
	HasLocation bool
}

// Resolver is the second classification stage: it picks the route.
type Resolver struct {
	llm     llm.LLMProvider
	timeout time.Duration
	logger  logger.ILogger
}

func NewResolver(provider llm.LLMProvider, timeout time.Duration, log logger.ILogger) *Resolver {
	return &Resolver{llm: provider, timeout: timeout, logger: log}
}

// Resolve returns the route decision. Region hints from the model are applied
// to lc; the assistant language is only read.
func (r *Resolver) Resolve(ctx context.Context, in Input, gate GateResult, lc *langctx.LangCtx) route.Decision {
	if gate.Signal == FoodNo {
		return route.Decision{Kind: route.Stop, Reason: route.ReasonNotFood, Confidence: gate.Confidence}
	}

	out, err := llm.GenerateJSON[intentOutput](ctx, r.llm, "intent", r.buildPrompt(in, lc), r.timeout)
	if err != nil {
		r.logger.Warn("IntentResolver", "Intent resolution failed, using fallback", map[string]interface{}{
			"error": err.Error(),
			"kind":  llm.KindOf(err),
		})
		return decide(fallbackIntent(in.Query), in, true)
	}

	lc.SetRegion(out.Region)
	return decide(out, in, false)
}

// decide applies the location rules that no model output may override.
func decide(out intentOutput, in Input, fallback bool) route.Decision {
	d := route.Decision{
		Kind:           route.Kind(out.Route),
		CuisineKey:     out.CuisineKey,
		TextQuery:      collapseSpaces(out.TextQuery),
		CityText:       collapseSpaces(out.CityText),
		Landmark:       collapseSpaces(out.Landmark),
		RequiredTerms:  normalizeTerms(out.RequiredTerms),
		PreferredTerms: normalizeTerms(out.PreferredTerms),
		Strict:         out.Strict,
		Confidence:     out.Confidence,
		Fallback:       fallback,
	}

	if d.Kind == route.Clarify {
		d.Reason = route.ReasonAmbiguous
		return d
	}

	if d.Kind == route.Landmark && d.Landmark == "" {
		d.Kind = route.TextSearch
	}

	wantsProximity := d.Kind == route.Nearby || out.NearMe
	if wantsProximity && !in.HasLocation {
		if d.CityText == "" {
			return route.Decision{
				Kind:       route.Clarify,
				Reason:     route.ReasonMissingLocation,
				CuisineKey: d.CuisineKey,
				Confidence: d.Confidence,
				Fallback:   fallback,
			}
		}
		d.Kind = route.TextSearch
	}
	if out.NearMe && in.HasLocation && d.Kind == route.TextSearch && d.CityText == "" {
		d.Kind = route.Nearby
	}

	if d.Kind == route.TextSearch && d.TextQuery == "" {
		d.TextQuery = collapseSpaces(in.Query)
	}
	return d
}

// nearMePhrases backs the fallback only; the classifier decides proximity when
// it is available.
var nearMePhrases = regexp.MustCompile(`(?i)\b(near ?me|nearby|around me|close to me|near here)\b|לידי|בקרבתי|קרוב אליי|рядом|поблизости|بالقرب مني|قريب مني|près de moi|à proximité|cerca de mí|cerca de aquí`)

func fallbackIntent(query string) intentOutput {
	out := intentOutput{Route: string(route.TextSearch), TextQuery: query}
	if key, ok := cuisine.Detect(query); ok {
		out.CuisineKey = key
	}
	if nearMePhrases.MatchString(query) {
		out.Route = string(route.Nearby)
		out.NearMe = true
	}
	return out
}

func (r *Resolver) buildPrompt(in Input, lc *langctx.LangCtx) string {
	var prompt strings.Builder
	prompt.WriteString("<task>intent</task>\n")
	prompt.WriteString("<system>\n")
	prompt.WriteString("You turn a restaurant search request into a search plan. You never answer the user.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<context>\n")
	if in.HasLocation {
		prompt.WriteString("USER_LOCATION: known\n")
	} else {
		prompt.WriteString("USER_LOCATION: unknown\n")
	}
	prompt.WriteString(fmt.Sprintf("REGION: %s\n", lc.Region()))
	prompt.WriteString("</context>\n\n")

	prompt.WriteString("<user_query>\n")
	prompt.WriteString(in.Query)
	prompt.WriteString("\n</user_query>\n\n")

	prompt.WriteString("<route_definitions>\n")
	prompt.WriteString("TEXT_SEARCH: the user names a city, street or area, or no place at all\n")
	prompt.WriteString("NEARBY: the user wants places around their current position\n")
	prompt.WriteString("LANDMARK: the user wants places around a named landmark (fill landmark)\n")
	prompt.WriteString("CLARIFY: the request is too vague to search\n")
	prompt.WriteString("</route_definitions>\n\n")

	prompt.WriteString("<cuisine_keys>\n")
	prompt.WriteString(strings.Join(cuisine.Keys(), ", "))
	prompt.WriteString("\nUse an empty string when no cuisine is requested.\n")
	prompt.WriteString("</cuisine_keys>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"route\": \"TEXT_SEARCH|NEARBY|LANDMARK|CLARIFY\",\n")
	prompt.WriteString("  \"cuisineKey\": \"\",\n")
	prompt.WriteString("  \"textQuery\": \"search string without the location words\",\n")
	prompt.WriteString("  \"cityText\": \"\",\n")
	prompt.WriteString("  \"landmark\": \"\",\n")
	prompt.WriteString("  \"nearMe\": false,\n")
	prompt.WriteString("  \"requiredTerms\": [],\n")
	prompt.WriteString("  \"preferredTerms\": [],\n")
	prompt.WriteString("  \"strict\": false,\n")
	prompt.WriteString("  \"region\": \"two-letter country code or empty\",\n")
	prompt.WriteString("  \"confidence\": 0.9\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")
	return prompt.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(collapseSpaces(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
