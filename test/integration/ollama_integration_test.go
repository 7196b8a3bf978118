package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/llm/ollama"
	"ai-restaurant-search-be/pkg/search/intent"
	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/route"

	"github.com/stretchr/testify/assert"
)

// Runs the two classification stages against a local Ollama server.
// OLLAMA_BASE_URL=http://localhost:11434 OLLAMA_MODEL=qwen2.5:7b go test ./test/integration/...
func TestOllamaClassification(t *testing.T) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		t.Skip("Skipping integration test: OLLAMA_BASE_URL not set")
	}
	modelName := os.Getenv("OLLAMA_MODEL")
	if modelName == "" {
		modelName = "qwen2.5:7b"
	}

	provider := ollama.NewOllamaProvider(baseURL, modelName, 60*time.Second)
	gate := intent.NewGate(provider, 20*time.Second, logger.NewNop())
	resolver := intent.NewResolver(provider, 20*time.Second, logger.NewNop())

	tests := []struct {
		name        string
		query       string
		hasLocation bool
		wantSignal  intent.FoodSignal
		wantRoutes  []route.Kind
	}{
		{
			name:       "City text search",
			query:      "best ramen in Haifa",
			wantSignal: intent.FoodYes,
			wantRoutes: []route.Kind{route.TextSearch},
		},
		{
			name:        "Near me with location",
			query:       "pizza near me",
			hasLocation: true,
			wantSignal:  intent.FoodYes,
			wantRoutes:  []route.Kind{route.Nearby},
		},
		{
			name:       "Near me without location",
			query:      "pizza near me",
			wantSignal: intent.FoodYes,
			wantRoutes: []route.Kind{route.Clarify},
		},
		{
			name:       "Not a food query",
			query:      "what is the weather tomorrow",
			wantSignal: intent.FoodNo,
			wantRoutes: []route.Kind{route.Stop},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			lc := langctx.New("en", "")

			start := time.Now()
			gateResult := gate.Classify(ctx, tt.query, lc)
			decision := resolver.Resolve(ctx, intent.Input{Query: tt.query, HasLocation: tt.hasLocation}, gateResult, lc)
			t.Logf("[%s] signal=%s lang=%s route=%s reason=%s fallback=%v",
				time.Since(start), gateResult.Signal, lc.Assistant(), decision.Kind, decision.Reason, decision.Fallback)

			assert.False(t, gateResult.Fallback, "gate fell back")
			assert.Equal(t, tt.wantSignal, gateResult.Signal)
			assert.Contains(t, tt.wantRoutes, decision.Kind)
		})
	}
}
