package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/ability-forge/internal/config"
	"github.com/jwebster45206/ability-forge/pkg/chat"
)

const msgNoResponse = "(no response)"

// LLMService defines the interface for interacting with the LLM API
type LLMService interface {
	// InitModel prepares the model on startup
	InitModel(ctx context.Context, modelName string) error

	// Chat generates one complete response for messages
	Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)
}

// NewLLMService builds the provider named in cfg.
func NewLLMService(cfg *config.Config, logger *slog.Logger) (LLMService, error) {
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		return NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, logger), nil
	case config.ProviderVenice:
		return NewVeniceService(cfg.VeniceAPIKey, cfg.ModelName), nil
	case config.ProviderOpenAI:
		return NewOpenAIService(cfg.OpenAIAPIKey, cfg.ModelName, logger), nil
	case config.ProviderOllama:
		return NewOllamaService(cfg.OllamaURL, cfg.ModelName, logger), nil
	case config.ProviderMock:
		return NewMockLLM(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}
