package factory

import (
	"ai-restaurant-search-be/pkg/llm"
	"ai-restaurant-search-be/pkg/llm/huggingface"
	"ai-restaurant-search-be/pkg/llm/ollama"
	"fmt"
	"time"
)

func NewLLMProvider(providerType, modelName, baseURL, apiKey string, timeout time.Duration) (llm.LLMProvider, error) {
	switch providerType {
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, modelName, timeout), nil
	case "huggingface":
		if apiKey == "" {
			return nil, fmt.Errorf("huggingface provider requires an API key")
		}
		return huggingface.NewHuggingFaceProvider(apiKey, baseURL, modelName, timeout), nil
	case "", "none", "disabled":
		return llm.Disabled{}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
