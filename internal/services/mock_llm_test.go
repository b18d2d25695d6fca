package services

import (
	"context"
	"errors"
	"testing"

	"github.com/jwebster45206/ability-forge/pkg/chat"
	"github.com/jwebster45206/ability-forge/pkg/ingest"
)

func TestMockLLM_DefaultIsValidAbility(t *testing.T) {
	mock := NewMockLLM()
	resp, err := mock.Chat(context.Background(), []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "fire+water"}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	ab, err := ingest.ParseAbility(resp.Message)
	if err != nil {
		t.Fatalf("default response should parse: %v", err)
	}
	if ab.Malformed() {
		t.Error("default response should be a usable ability")
	}

	_, calls := mock.GetCalls()
	if len(calls) != 1 || calls[0].Messages[0].Content != "fire+water" {
		t.Errorf("Expected one recorded call, got %+v", calls)
	}
}

func TestMockLLM_Overrides(t *testing.T) {
	mock := NewMockLLM()
	mock.SetResponse(`{"a":1}`)
	resp, err := mock.Chat(context.Background(), nil)
	if err != nil || resp.Message != `{"a":1}` {
		t.Errorf("Expected canned response, got %v %v", resp, err)
	}

	boom := errors.New("unreachable")
	mock.SetChatError(boom)
	if _, err := mock.Chat(context.Background(), nil); !errors.Is(err, boom) {
		t.Errorf("Expected %v, got %v", boom, err)
	}

	mock.SetInitModelError(boom)
	if err := mock.InitModel(context.Background(), "m"); !errors.Is(err, boom) {
		t.Errorf("Expected %v, got %v", boom, err)
	}

	mock.Reset()
	initCalls, chatCalls := mock.GetCalls()
	if len(initCalls) != 0 || len(chatCalls) != 0 {
		t.Error("Reset should clear call tracking")
	}
}
