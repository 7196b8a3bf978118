// Package narrator writes the assistant messages of a search: clarifying
// questions, result summaries, failure explanations and out-of-scope stops.
// Every message is written in the assistant language of the request.
package narrator

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/llm"
	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/route"
)

type Kind string

const (
	KindClarify Kind = "CLARIFY"
	KindSummary Kind = "SUMMARY"
	KindFailure Kind = "FAILURE"
	KindStop    Kind = "STOP"
)

const (
	ActionShareLocation = "SHARE_LOCATION"
	ActionRefineQuery   = "REFINE_QUERY"
	ActionBroadenSearch = "BROADEN_SEARCH"
	ActionRetry         = "RETRY"
)

var allowedActions = map[Kind][]string{
	KindClarify: {ActionShareLocation, ActionRefineQuery},
	KindSummary: {ActionRefineQuery, ActionBroadenSearch},
	KindFailure: {ActionRetry},
	KindStop:    {ActionRefineQuery},
}

// MaxMessageRunes bounds the visible message.
const MaxMessageRunes = 500

// Request describes the message to write. Language must come from the
// request's LangCtx.
type Request struct {
	Kind        Kind
	Reason      route.Reason
	Language    langctx.Language
	Query       string
	ResultCount int
	TopNames    []string
	CuisineKey  string
	FailureCode string
}

// Message is the assist block of a response and the payload of an
// `assistant` frame.
type Message struct {
	Type            Kind             `json:"type"`
	Message         string           `json:"message"`
	Question        string           `json:"question,omitempty"`
	Language        langctx.Language `json:"language"`
	BlocksSearch    bool             `json:"blocksSearch"`
	SuggestedAction string           `json:"suggestedAction,omitempty"`
	Fallback        bool             `json:"-"`
}

type output struct {
	Type            string `json:"type" validate:"required,oneof=CLARIFY SUMMARY FAILURE STOP"`
	Language        string `json:"language" validate:"required"`
	Message         string `json:"message" validate:"required"`
	Question        string `json:"question"`
	BlocksSearch    bool   `json:"blocksSearch"`
	SuggestedAction string `json:"suggestedAction"`
}

// Check enforces the rules a clarify message cannot be shown without.
func (o *output) Check() error {
	if o.Type == string(KindClarify) {
		if strings.TrimSpace(o.Question) == "" {
			return fmt.Errorf("CLARIFY without question")
		}
		if !o.BlocksSearch {
			return fmt.Errorf("CLARIFY must block search")
		}
	}
	return nil
}

type Narrator struct {
	llm     llm.LLMProvider
	timeout time.Duration
	logger  logger.ILogger
}

func NewNarrator(provider llm.LLMProvider, timeout time.Duration, log logger.ILogger) *Narrator {
	return &Narrator{llm: provider, timeout: timeout, logger: log}
}

// Narrate never fails. A model answer of the wrong type or language is
// replaced by the deterministic fallback; soft issues are corrected in place.
func (n *Narrator) Narrate(ctx context.Context, req Request) Message {
	out, err := llm.GenerateJSON[output](ctx, n.llm, "narrate", buildPrompt(req), n.timeout)
	if err != nil {
		n.logger.Warn("Narrator", "Narration failed, using fallback", map[string]interface{}{
			"type":  req.Kind,
			"error": err.Error(),
			"kind":  llm.KindOf(err),
		})
		return Fallback(req)
	}

	if Kind(out.Type) != req.Kind {
		n.logger.Warn("Narrator", "Narration type mismatch, using fallback", map[string]interface{}{
			"want": req.Kind,
			"got":  out.Type,
		})
		return Fallback(req)
	}
	if langctx.Normalize(out.Language) != req.Language || out.Language == "" {
		n.logger.Warn("Narrator", "Narration language mismatch, using fallback", map[string]interface{}{
			"want": req.Language,
			"got":  out.Language,
		})
		return Fallback(req)
	}

	msg := Message{
		Type:            req.Kind,
		Message:         strings.TrimSpace(out.Message),
		Question:        strings.TrimSpace(out.Question),
		Language:        req.Language,
		BlocksSearch:    out.BlocksSearch,
		SuggestedAction: out.SuggestedAction,
	}
	return n.normalize(msg)
}

// normalize corrects soft violations and logs each correction.
func (n *Narrator) normalize(msg Message) Message {
	if msg.Type != KindClarify && msg.BlocksSearch {
		n.logger.Warn("Narrator", "Only clarify messages block search", map[string]interface{}{"type": msg.Type})
		msg.BlocksSearch = false
	}
	if msg.Type != KindClarify && msg.Question != "" {
		msg.Question = ""
	}

	if msg.SuggestedAction != "" && !actionAllowed(msg.Type, msg.SuggestedAction) {
		n.logger.Warn("Narrator", "Dropping unsupported suggested action", map[string]interface{}{
			"type":   msg.Type,
			"action": msg.SuggestedAction,
		})
		msg.SuggestedAction = ""
	}

	if utf8.RuneCountInString(msg.Message) > MaxMessageRunes {
		n.logger.Warn("Narrator", "Message too long, truncating", map[string]interface{}{
			"type":  msg.Type,
			"runes": utf8.RuneCountInString(msg.Message),
		})
		msg.Message = truncateRunes(msg.Message, MaxMessageRunes)
	}
	return msg
}

func actionAllowed(kind Kind, action string) bool {
	for _, a := range allowedActions[kind] {
		if a == action {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}

var languageNames = map[langctx.Language]string{
	langctx.English: "English",
	langctx.Hebrew:  "Hebrew",
	langctx.Russian: "Russian",
	langctx.Arabic:  "Arabic",
	langctx.French:  "French",
	langctx.Spanish: "Spanish",
}

func buildPrompt(req Request) string {
	var prompt strings.Builder
	prompt.WriteString("<task>narrate</task>\n")
	prompt.WriteString("<system>\n")
	prompt.WriteString("You are the assistant of a restaurant search app. Write one short message to the user.\n")
	prompt.WriteString(fmt.Sprintf("Write ONLY in %s (language code %q), whatever language the data below is in.\n",
		languageNames[req.Language], req.Language))
	prompt.WriteString(fmt.Sprintf("Keep the message under %d characters. Do not invent places or facts.\n", MaxMessageRunes))
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<situation>\n")
	prompt.WriteString(fmt.Sprintf("TYPE: %s\n", req.Kind))
	switch req.Kind {
	case KindClarify:
		prompt.WriteString(fmt.Sprintf("REASON: %s\n", req.Reason))
		prompt.WriteString("Ask exactly one question that lets the search continue. Set blocksSearch to true.\n")
	case KindSummary:
		prompt.WriteString(fmt.Sprintf("RESULT_COUNT: %d\n", req.ResultCount))
		if req.CuisineKey != "" {
			prompt.WriteString(fmt.Sprintf("CUISINE: %s\n", req.CuisineKey))
		}
		if len(req.TopNames) > 0 {
			prompt.WriteString(fmt.Sprintf("TOP_RESULTS: %s\n", strings.Join(req.TopNames, "; ")))
		}
	case KindFailure:
		prompt.WriteString(fmt.Sprintf("FAILURE_CODE: %s\n", req.FailureCode))
	case KindStop:
		prompt.WriteString("The request is not about food. Explain politely what you can help with.\n")
	}
	prompt.WriteString("</situation>\n\n")

	prompt.WriteString("<user_query>\n")
	prompt.WriteString(req.Query)
	prompt.WriteString("\n</user_query>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString(fmt.Sprintf("{\"type\": %q, \"language\": %q, \"message\": \"...\", \"question\": \"\", \"blocksSearch\": false, \"suggestedAction\": \"%s\"}\n",
		req.Kind, req.Language, strings.Join(allowedActions[req.Kind], "|")))
	prompt.WriteString("</output_format>")
	return prompt.String()
}
