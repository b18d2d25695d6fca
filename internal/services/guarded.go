package services

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jwebster45206/ability-forge/pkg/chat"
)

// GuardedLLM serializes every call to the wrapped service. The worker and
// direct callers (tools, tests) share one GuardedLLM, so at most one
// inference is in flight no matter who is calling.
type GuardedLLM struct {
	inner LLMService

	mu       sync.Mutex
	inFlight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
}

var _ LLMService = (*GuardedLLM)(nil)

// NewGuardedLLM wraps inner.
func NewGuardedLLM(inner LLMService) *GuardedLLM {
	return &GuardedLLM{inner: inner}
}

// InitModel runs under the same lock as Chat.
func (g *GuardedLLM) InitModel(ctx context.Context, modelName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.InitModel(ctx, modelName)
}

// Chat waits for the lock, then calls the wrapped service.
func (g *GuardedLLM) Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	g.calls.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}

	return g.inner.Chat(ctx, messages)
}

// InFlight is the number of calls currently inside the wrapped service.
func (g *GuardedLLM) InFlight() int64 { return g.inFlight.Load() }

// PeakInFlight is the highest InFlight value ever observed.
func (g *GuardedLLM) PeakInFlight() int64 { return g.peak.Load() }

// Calls is the total number of calls that reached the wrapped service.
func (g *GuardedLLM) Calls() int64 { return g.calls.Load() }
