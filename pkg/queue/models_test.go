package queue

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewRequest(t *testing.T) {
	req := NewRequest("player-1", []string{" Water", "fire"}, true)

	if _, err := uuid.Parse(req.RequestID); err != nil {
		t.Errorf("expected a uuid request id, got %q", req.RequestID)
	}
	if req.ComboKey != "fire+water" {
		t.Errorf("expected combo key fire+water, got %q", req.ComboKey)
	}
	if len(req.Primitives) != 2 || req.Primitives[0] != "water" {
		t.Errorf("primitives should be normalized in submission order, got %v", req.Primitives)
	}
	if !req.Force {
		t.Error("expected force flag")
	}
	if req.EnqueuedAt.IsZero() {
		t.Error("expected enqueue time")
	}
}

func TestRequestJSON(t *testing.T) {
	req := NewRequest("player-1", []string{"ice", "air"}, false)
	data, err := req.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	back, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if back.RequestID != req.RequestID || back.ComboKey != req.ComboKey || back.PlayerID != req.PlayerID {
		t.Errorf("request changed after JSON: %+v vs %+v", back, req)
	}
	if !back.EnqueuedAt.Equal(req.EnqueuedAt) {
		t.Errorf("enqueue time changed: %v vs %v", back.EnqueuedAt, req.EnqueuedAt)
	}
}

func TestStatusTerminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusQueued:     false,
		StatusInProgress: false,
		StatusCompleted:  true,
		StatusFailed:     true,
	} {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
