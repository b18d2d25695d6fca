package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jwebster45206/ability-forge/pkg/chat"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAnthropicService(t *testing.T) {
	service := NewAnthropicService("test-api-key", "claude-sonnet", discardLogger())

	if service.apiKey != "test-api-key" {
		t.Errorf("Expected API key test-api-key, got %s", service.apiKey)
	}
	if service.modelName != "claude-sonnet" {
		t.Errorf("Expected model name claude-sonnet, got %s", service.modelName)
	}
	if service.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if err := service.InitModel(context.Background(), "claude-sonnet"); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestAnthropicService_BuildRequest(t *testing.T) {
	service := NewAnthropicService("k", "claude-sonnet", discardLogger())
	req := service.buildRequest([]chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: "Design abilities."},
		{Role: chat.ChatRoleUser, Content: "fire+water"},
		{Role: chat.ChatRoleSystem, Content: "JSON only."},
	})

	if req.System != "Design abilities.\n\nJSON only." {
		t.Errorf("unexpected system prompt %q", req.System)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("Expected user turn plus prefill, got %d messages", len(req.Messages))
	}
	last := req.Messages[1]
	if last.Role != chat.ChatRoleAgent || last.Content != "{" {
		t.Errorf("Expected assistant prefill, got %+v", last)
	}
}

func TestAnthropicService_Chat(t *testing.T) {
	var got AnthropicChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "k" || r.Header.Get("anthropic-version") == "" {
			t.Error("missing auth headers")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(AnthropicChatResponse{
			Model:   "claude-sonnet",
			Content: []AnthropicContentBlock{{Type: "text", Text: `"name":"Steam"}`}},
		})
	}))
	defer srv.Close()

	service := NewAnthropicService("k", "claude-sonnet", discardLogger())
	service.baseURL = srv.URL

	resp, err := service.Chat(context.Background(), []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "fire+water"}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Message != `{"name":"Steam"}` {
		t.Errorf("Expected prefill to be restored, got %q", resp.Message)
	}
	if got.Model != "claude-sonnet" || got.MaxTokens != DefaultAnthropicMaxTokens {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestAnthropicService_ChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	service := NewAnthropicService("k", "claude-sonnet", discardLogger())
	service.baseURL = srv.URL
	if _, err := service.Chat(context.Background(), nil); err == nil {
		t.Error("Expected an error for a 503")
	}
}
