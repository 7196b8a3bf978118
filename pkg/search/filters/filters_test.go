package filters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/llm/llmtest"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		reply llmtest.Reply
		want  Resolved
	}{
		{
			name:  "open now and cheap",
			reply: llmtest.Reply{Text: `{"openState":"OPEN_NOW","priceIntent":"BUDGET","dietary":[],"minRating":0,"qualityIntent":false}`},
			want:  Resolved{OpenState: OpenNow, PriceIntent: PriceBudget, Dietary: []string{}},
		},
		{
			name:  "quality with rating",
			reply: llmtest.Reply{Text: `{"openState":"ANY","priceIntent":"ANY","dietary":["vegan"],"minRating":4.5,"qualityIntent":true}`},
			want:  Resolved{OpenState: OpenAny, PriceIntent: PriceAny, Dietary: []string{"vegan"}, MinRating: 4.5, QualityIntent: true},
		},
		{
			name:  "unknown dietary falls back",
			reply: llmtest.Reply{Text: `{"openState":"ANY","priceIntent":"ANY","dietary":["paleo"],"minRating":0,"qualityIntent":false}`},
			want:  Resolved{OpenState: OpenAny, PriceIntent: PriceAny, Fallback: true},
		},
		{
			name:  "rating below scale falls back",
			reply: llmtest.Reply{Text: `{"openState":"ANY","priceIntent":"ANY","dietary":[],"minRating":0.5,"qualityIntent":false}`},
			want:  Resolved{OpenState: OpenAny, PriceIntent: PriceAny, Fallback: true},
		},
		{
			name:  "provider error falls back",
			reply: llmtest.Reply{Err: errors.New("connection refused")},
			want:  Resolved{OpenState: OpenAny, PriceIntent: PriceAny, Fallback: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := llmtest.New().On("filters", tt.reply)
			r := NewResolver(fake, time.Second, logger.NewNop())

			got := r.Resolve(context.Background(), "whatever")

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriceBand(t *testing.T) {
	min, max, ok := Resolved{PriceIntent: PriceBudget}.PriceBand()
	assert.True(t, ok)
	assert.Equal(t, 0, min)
	assert.Equal(t, 1, max)

	_, _, ok = Any().PriceBand()
	assert.False(t, ok)
}
