package narrator

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/llm/llmtest"
	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/route"
)

func narrate(reply string, req Request) Message {
	fake := llmtest.New().JSON("narrate", reply)
	return NewNarrator(fake, time.Second, logger.NewNop()).Narrate(context.Background(), req)
}

func TestNarrateSummary(t *testing.T) {
	msg := narrate(
		`{"type":"SUMMARY","language":"fr","message":"Voici 5 bonnes adresses italiennes.","question":"","blocksSearch":false,"suggestedAction":"REFINE_QUERY"}`,
		Request{Kind: KindSummary, Language: langctx.French, ResultCount: 5},
	)

	assert.False(t, msg.Fallback)
	assert.Equal(t, langctx.French, msg.Language)
	assert.Equal(t, "Voici 5 bonnes adresses italiennes.", msg.Message)
	assert.Equal(t, ActionRefineQuery, msg.SuggestedAction)
}

func TestNarrateWrongLanguageFallsBack(t *testing.T) {
	msg := narrate(
		`{"type":"SUMMARY","language":"en","message":"Found 5 places.","question":"","blocksSearch":false,"suggestedAction":""}`,
		Request{Kind: KindSummary, Language: langctx.Hebrew, ResultCount: 5},
	)

	assert.True(t, msg.Fallback)
	assert.Equal(t, langctx.Hebrew, msg.Language)
	assert.Equal(t, "מצאתי עבורך 5 מקומות.", msg.Message)
}

func TestNarrateClarifyHardRules(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"no question", `{"type":"CLARIFY","language":"en","message":"Where?","question":"","blocksSearch":true,"suggestedAction":""}`},
		{"not blocking", `{"type":"CLARIFY","language":"en","message":"Where?","question":"Which city?","blocksSearch":false,"suggestedAction":""}`},
		{"wrong type", `{"type":"SUMMARY","language":"en","message":"Here you go","question":"","blocksSearch":false,"suggestedAction":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := narrate(tt.reply, Request{Kind: KindClarify, Reason: route.ReasonMissingLocation, Language: langctx.English})

			require.True(t, msg.Fallback)
			assert.Equal(t, KindClarify, msg.Type)
			assert.True(t, msg.BlocksSearch)
			assert.NotEmpty(t, msg.Question)
			assert.Equal(t, ActionShareLocation, msg.SuggestedAction)
		})
	}
}

func TestNarrateSoftRulesAreNormalized(t *testing.T) {
	long := strings.Repeat("a", 700)
	msg := narrate(
		`{"type":"SUMMARY","language":"en","message":"`+long+`","question":"why?","blocksSearch":true,"suggestedAction":"BOOK_TABLE"}`,
		Request{Kind: KindSummary, Language: langctx.English, ResultCount: 3},
	)

	assert.False(t, msg.Fallback)
	assert.False(t, msg.BlocksSearch)
	assert.Empty(t, msg.Question)
	assert.Empty(t, msg.SuggestedAction)
	assert.Equal(t, MaxMessageRunes, utf8.RuneCountInString(msg.Message))
}

func TestNarrateProviderFailureFallsBack(t *testing.T) {
	fake := llmtest.New().On("narrate", llmtest.Reply{Text: `{}`, Delay: time.Second})
	msg := NewNarrator(fake, 20*time.Millisecond, logger.NewNop()).Narrate(context.Background(), Request{Kind: KindStop, Language: langctx.Russian})

	assert.True(t, msg.Fallback)
	assert.Equal(t, langctx.Russian, msg.Language)
	assert.Contains(t, msg.Message, "поесть")
}

func TestFallbackCoversEveryLanguage(t *testing.T) {
	kinds := []Request{
		{Kind: KindClarify, Reason: route.ReasonMissingLocation},
		{Kind: KindClarify, Reason: route.ReasonAmbiguous},
		{Kind: KindStop},
		{Kind: KindSummary, ResultCount: 4},
		{Kind: KindSummary},
		{Kind: KindFailure, FailureCode: CodeProviderUnavailable},
		{Kind: KindFailure, FailureCode: "SOMETHING_NEW"},
	}
	for _, lang := range langctx.Supported {
		for _, req := range kinds {
			req.Language = lang
			msg := Fallback(req)
			assert.NotEmpty(t, msg.Message, "%s %s %s", lang, req.Kind, req.Reason)
			assert.Equal(t, lang, msg.Language)
			assert.LessOrEqual(t, utf8.RuneCountInString(msg.Message), MaxMessageRunes)
		}
	}
}

func TestFailureText(t *testing.T) {
	assert.Equal(t, failureTexts[CodeTimeout][langctx.Spanish], FailureText(langctx.Spanish, CodeTimeout))
	assert.Equal(t, failureTexts[CodeInternal][langctx.English], FailureText(langctx.English, "NOPE"))
}
