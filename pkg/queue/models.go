package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/jwebster45206/ability-forge/pkg/schema"
)

// Status is the lifecycle state of a generation request.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Request asks the worker to generate one ability.
type Request struct {
	RequestID  string    `json:"request_id"`
	PlayerID   string    `json:"player_id"`
	Primitives []string  `json:"primitives"`
	ComboKey   string    `json:"combo_key"`
	Force      bool      `json:"force,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewRequest builds a request with a fresh ID and derived combo key.
func NewRequest(playerID string, primitives []string, force bool) *Request {
	prims := effect.NormalizePrimitives(primitives)
	return &Request{
		RequestID:  uuid.New().String(),
		PlayerID:   playerID,
		Primitives: prims,
		ComboKey:   effect.ComboKey(prims),
		Force:      force,
		EnqueuedAt: time.Now().UTC(),
	}
}

// ToJSON converts the request to JSON bytes
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Result is what the worker hands back for one request. Ability is always
// set: a failed or unusable generation carries the fallback ability.
type Result struct {
	RequestID   string              `json:"request_id"`
	PlayerID    string              `json:"player_id"`
	ComboKey    string              `json:"combo_key"`
	Status      Status              `json:"status"`
	Ability     *effect.AbilityV2   `json:"ability"`
	AbilityJSON string              `json:"-"`
	Fallback    bool                `json:"fallback"`
	Diagnostics []schema.Diagnostic `json:"diagnostics,omitempty"`
	Error       string              `json:"error,omitempty"`
	Duration    time.Duration       `json:"duration"`
	Cacheable   bool                `json:"-"`
}
