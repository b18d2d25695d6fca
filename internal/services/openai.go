package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/jwebster45206/ability-forge/pkg/chat"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"

	DefaultOpenAITemperature = 0.8
	DefaultOpenAIMaxTokens   = 2048
)

// OpenAIService implements LLMService for OpenAI chat completions
type OpenAIService struct {
	apiKey     string
	modelName  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// OpenAIChatRequest represents the request structure for chat completions
type OpenAIChatRequest struct {
	Model               string             `json:"model"`
	Messages            []chat.ChatMessage `json:"messages"`
	Temperature         float64            `json:"temperature,omitempty"`
	MaxCompletionTokens int                `json:"max_completion_tokens,omitempty"`
	ResponseFormat      *ResponseFormat    `json:"response_format,omitempty"`
}

// OpenAIChatChoice represents a single choice in the response
type OpenAIChatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
		Refusal string `json:"refusal,omitempty"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// OpenAIChatResponse represents the response structure for chat completions
type OpenAIChatResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []OpenAIChatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// OpenAIModelsResponse represents the response from the models endpoint
type OpenAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
	Error *openAIError `json:"error,omitempty"`
}

// NewOpenAIService creates a new OpenAI service
func NewOpenAIService(apiKey string, modelName string, logger *slog.Logger) *OpenAIService {
	return &OpenAIService{
		apiKey:    apiKey,
		modelName: modelName,
		baseURL:   openAIBaseURL,
		httpClient: &http.Client{
			Timeout: 90 * time.Second, // reasoning models can be slow
		},
		logger: logger,
	}
}

// InitModel checks that the account can see the configured model.
func (o *OpenAIService) InitModel(ctx context.Context, modelName string) error {
	models, err := o.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	if !slices.Contains(models, modelName) {
		return fmt.Errorf("model %q is not available to this API key", modelName)
	}
	o.logger.Info("OpenAI model available", "model", modelName)
	return nil
}

// ListModels retrieves the model ids visible to the API key
func (o *OpenAIService) ListModels(ctx context.Context) ([]string, error) {
	body, err := o.do(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}

	var modelsResp OpenAIModelsResponse
	if err := json.Unmarshal(body, &modelsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if modelsResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", modelsResp.Error.Message)
	}

	names := make([]string, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// Chat generates an ability response using structured output
func (o *OpenAIService) Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	format, err := abilityResponseFormat()
	if err != nil {
		return nil, fmt.Errorf("failed to build response format: %w", err)
	}

	reqBody, err := json.Marshal(OpenAIChatRequest{
		Model:               o.modelName,
		Messages:            messages,
		Temperature:         DefaultOpenAITemperature,
		MaxCompletionTokens: DefaultOpenAIMaxTokens,
		ResponseFormat:      format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := o.do(ctx, http.MethodPost, "/chat/completions", reqBody)
	if err != nil {
		return nil, err
	}

	var resp OpenAIChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return &chat.ChatResponse{Message: msgNoResponse, Model: resp.Model}, nil
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("model refused to respond: %s", choice.Message.Refusal)
	}
	if choice.FinishReason == "length" {
		// The truncated reply still goes through repair.
		o.logger.Warn("OpenAI reply hit the token limit", "max_tokens", DefaultOpenAIMaxTokens)
	}
	o.logger.Debug("OpenAI usage", "prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)

	return &chat.ChatResponse{
		Message: choice.Message.Content,
		Model:   resp.Model,
	}, nil
}

func (o *OpenAIService) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
