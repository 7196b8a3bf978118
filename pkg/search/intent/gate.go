package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/llm"
	"ai-restaurant-search-be/pkg/search/langctx"
)

// FoodSignal is the gate's verdict on whether the query is a food search.
type FoodSignal string

const (
	FoodYes       FoodSignal = "YES"
	FoodNo        FoodSignal = "NO"
	FoodUncertain FoodSignal = "UNCERTAIN"
)

// GateResult is what CLASSIFY hands to ROUTE.
type GateResult struct {
	Signal     FoodSignal
	Language   langctx.Language
	Confidence float64
	Fallback   bool
}

type gateOutput struct {
	FoodSignal string  `json:"foodSignal" validate:"required,oneof=YES NO UNCERTAIN"`
	Language   string  `json:"language" validate:"required,min=2,max=5"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// Gate is the first classification stage. It is the only writer of the
// assistant language.
type Gate struct {
	llm     llm.LLMProvider
	timeout time.Duration
	logger  logger.ILogger
}

func NewGate(provider llm.LLMProvider, timeout time.Duration, log logger.ILogger) *Gate {
	return &Gate{llm: provider, timeout: timeout, logger: log}
}

// Classify decides the food signal and fixes the assistant language on lc.
func (g *Gate) Classify(ctx context.Context, query string, lc *langctx.LangCtx) GateResult {
	out, err := llm.GenerateJSON[gateOutput](ctx, g.llm, "gate", g.buildPrompt(query), g.timeout)
	if err != nil {
		g.logger.Warn("Gate", "Gate classification failed, using fallback", map[string]interface{}{
			"error": err.Error(),
			"kind":  llm.KindOf(err),
		})
		res := fallbackGate(query, lc.UI())
		lc.SetAssistant(res.Language, res.Confidence)
		return res
	}

	lang := langctx.Normalize(out.Language)
	// Non-Latin scripts are unambiguous; trust them over the model.
	if script, ok := langctx.DetectScript(query); ok && script != lang {
		g.logger.Warn("Gate", "Model language disagrees with script", map[string]interface{}{
			"model":  lang,
			"script": script,
		})
		lang = script
	}

	res := GateResult{
		Signal:     FoodSignal(out.FoodSignal),
		Language:   lang,
		Confidence: out.Confidence,
	}
	lc.SetAssistant(res.Language, res.Confidence)
	return res
}

func fallbackGate(query string, ui langctx.Language) GateResult {
	lang, ok := langctx.DetectScript(query)
	if !ok {
		switch ui {
		case langctx.English, langctx.French, langctx.Spanish:
			lang = ui
		default:
			lang = langctx.English
		}
	}
	return GateResult{
		Signal:     FoodUncertain,
		Language:   lang,
		Confidence: 0.5,
		Fallback:   true,
	}
}

func (g *Gate) buildPrompt(query string) string {
	var prompt strings.Builder
	prompt.WriteString("<task>gate</task>\n")
	prompt.WriteString("<system>\n")
	prompt.WriteString("You decide whether a user message is a request to find a place to eat or drink.\n")
	prompt.WriteString("You also detect the language the user wrote in.\n")
	prompt.WriteString("</system>\n\n")
	prompt.WriteString("<user_query>\n")
	prompt.WriteString(query)
	prompt.WriteString("\n</user_query>\n\n")
	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString(fmt.Sprintf("{\"foodSignal\": \"YES|NO|UNCERTAIN\", \"language\": \"%s\", \"confidence\": 0.9}\n",
		strings.Join(languageCodes(), "|")))
	prompt.WriteString("</output_format>")
	return prompt.String()
}

func languageCodes() []string {
	codes := make([]string, len(langctx.Supported))
	for i, l := range langctx.Supported {
		codes[i] = string(l)
	}
	return codes
}
