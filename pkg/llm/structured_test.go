package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-restaurant-search-be/pkg/llm"
	"ai-restaurant-search-be/pkg/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Label string  `json:"label" validate:"required,oneof=YES NO"`
	Score float64 `json:"score" validate:"gte=0,lte=1"`
}

func (v *verdict) Check() error {
	if v.Label == "NO" && v.Score > 0.5 {
		return errors.New("NO verdict with high score")
	}
	return nil
}

func TestGenerateJSONDecodesValidOutput(t *testing.T) {
	p := llmtest.New().JSON("verdict", "```json\n{\"label\":\"YES\",\"score\":0.9}\n```")

	got, err := llm.GenerateJSON[verdict](context.Background(), p, "verdict", "<task>verdict</task>", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "YES", got.Label)
	assert.InDelta(t, 0.9, got.Score, 1e-9)
}

func TestGenerateJSONRejectsInvalidOutput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "sure, here you go"},
		{"unknown field", `{"label":"YES","score":0.2,"extra":true}`},
		{"enum violation", `{"label":"MAYBE","score":0.2}`},
		{"range violation", `{"label":"YES","score":1.7}`},
		{"cross-field rule", `{"label":"NO","score":0.9}`},
		{"trailing data", `{"label":"YES","score":0.2} {"label":"NO"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := llmtest.New().JSON("verdict", tt.text)
			got, err := llm.GenerateJSON[verdict](context.Background(), p, "verdict", "<task>verdict</task>", time.Second)

			require.Error(t, err)
			assert.ErrorIs(t, err, llm.ErrSchemaInvalid)
			assert.Equal(t, llm.KindSchemaInvalid, llm.KindOf(err))
			assert.Equal(t, verdict{}, got, "partial objects must not leak")
		})
	}
}

func TestGenerateJSONTimeout(t *testing.T) {
	p := llmtest.New().On("verdict", llmtest.Reply{Text: `{"label":"YES","score":1}`, Delay: 200 * time.Millisecond})

	_, err := llm.GenerateJSON[verdict](context.Background(), p, "verdict", "<task>verdict</task>", 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, llm.KindTimeout, llm.KindOf(err))
}

func TestGenerateJSONDisabled(t *testing.T) {
	_, err := llm.GenerateJSON[verdict](context.Background(), llm.Disabled{}, "verdict", "<task>verdict</task>", time.Second)
	require.Error(t, err)
	assert.Equal(t, llm.KindDisabled, llm.KindOf(err))
}
