package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jwebster45206/ability-forge/internal/cache"
	"github.com/jwebster45206/ability-forge/internal/services"
	"github.com/jwebster45206/ability-forge/pkg/chat"
	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/jwebster45206/ability-forge/pkg/queue"
	"github.com/jwebster45206/ability-forge/pkg/textfilter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(t *testing.T, llm services.LLMService, opts Options) *Worker {
	t.Helper()
	w := New(NewGenerator(llm, time.Second, testLogger()), testLogger(), opts)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop(time.Second) })
	return w
}

func collect(t *testing.T, w *Worker, n int) []*queue.Result {
	t.Helper()
	var out []*queue.Result
	for len(out) < n {
		select {
		case res := <-w.Results():
			out = append(out, res)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d results", len(out), n)
		}
	}
	return out
}

func TestWorker_SequentialInference(t *testing.T) {
	var active, worst atomic.Int64
	mock := services.NewMockLLM()
	valid, err := effect.Fallback([]string{"air", "ice"}).ToJSON()
	require.NoError(t, err)
	mock.ChatFunc = func(ctx context.Context, _ []chat.ChatMessage) (*chat.ChatResponse, error) {
		n := active.Add(1)
		defer active.Add(-1)
		if n > worst.Load() {
			worst.Store(n)
		}
		time.Sleep(10 * time.Millisecond)
		return &chat.ChatResponse{Message: string(valid)}, nil
	}
	guarded := services.NewGuardedLLM(mock)
	w := newTestWorker(t, guarded, Options{})

	var ids []string
	for _, combo := range [][]string{{"fire", "water"}, {"air", "ice"}, {"earth", "shadow"}} {
		req := queue.NewRequest("p1", combo, false)
		ids = append(ids, req.RequestID)
		require.NoError(t, w.Submit(req))
	}

	results := collect(t, w, 3)
	for i, res := range results {
		assert.Equal(t, ids[i], res.RequestID, "results arrive in submission order")
		assert.Equal(t, queue.StatusCompleted, res.Status)
		assert.False(t, res.Fallback)
		assert.True(t, res.Cacheable)
	}
	assert.Equal(t, int64(3), guarded.Calls())
	assert.LessOrEqual(t, guarded.PeakInFlight(), int64(1))
	assert.Equal(t, int64(1), worst.Load())

	// The model's primitives are replaced by the requested set.
	assert.Equal(t, []string{"earth", "shadow"}, results[2].Ability.Primitives)
}

func TestWorker_TruncatedReplyCachesFallback(t *testing.T) {
	mock := services.NewMockLLM()
	mock.SetResponse(`{"name": "Steam", "effe`)
	w := newTestWorker(t, services.NewGuardedLLM(mock), Options{})
	store := cache.NewMemoryStore()

	req := queue.NewRequest("p1", []string{"fire", "water"}, false)
	require.NoError(t, w.Submit(req))
	res := collect(t, w, 1)[0]

	require.True(t, res.Cacheable)
	require.NoError(t, store.Put(context.Background(), res.ComboKey, res.AbilityJSON, res.Ability.Version))

	rec, err := store.Get(context.Background(), "fire+water")
	require.NoError(t, err)
	require.NotNil(t, rec)
	ab, err := rec.Ability()
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Equal(t, queue.StatusCompleted, res.Status)
	assert.Equal(t, []string{"fire", "water"}, ab.Primitives)
	require.Len(t, ab.Effects, 1)
	require.Len(t, ab.Effects[0].Script, 1)
	proj := ab.Effects[0].Script[0]
	assert.Equal(t, effect.ActionSpawnProjectile, proj.Action)
	require.Len(t, proj.OnHit, 1)
	assert.Equal(t, effect.ActionDamage, proj.OnHit[0].Action)
}

func TestWorker_TransportFailure(t *testing.T) {
	mock := services.NewMockLLM()
	mock.SetChatError(errors.New("connection refused"))
	w := newTestWorker(t, mock, Options{})

	require.NoError(t, w.Submit(queue.NewRequest("p1", []string{"air", "earth"}, false)))
	res := collect(t, w, 1)[0]

	assert.Equal(t, queue.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "connection refused")
	assert.False(t, res.Cacheable, "transport failures are not cached")
	require.NotNil(t, res.Ability)
	assert.True(t, res.Fallback)
}

func TestWorker_TopLevelTerminalFallsBack(t *testing.T) {
	mock := services.NewMockLLM()
	mock.SetResponse(`{"ability":{"primitives":["ice","air"],"cooldown":2,"effects":[{"script":[{"action":"damage","args":{"amount":50}}]}]}}`)
	w := newTestWorker(t, mock, Options{})

	require.NoError(t, w.Submit(queue.NewRequest("p1", []string{"ice", "air"}, false)))
	res := collect(t, w, 1)[0]
	assert.True(t, res.Fallback)
	assert.True(t, res.Cacheable)
	require.NotEmpty(t, res.Diagnostics)
}

type blockingLLM struct {
	started chan struct{}
	calls   atomic.Int64
}

func (b *blockingLLM) InitModel(context.Context, string) error { return nil }

func (b *blockingLLM) Chat(ctx context.Context, _ []chat.ChatMessage) (*chat.ChatResponse, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWorker_StopDropsPendingAndAbandonsInFlight(t *testing.T) {
	llm := &blockingLLM{started: make(chan struct{})}
	w := New(NewGenerator(llm, time.Minute, testLogger()), testLogger(), Options{})
	require.NoError(t, w.Start())

	first := queue.NewRequest("p1", []string{"fire", "ice"}, false)
	require.NoError(t, w.Submit(first))
	<-llm.started
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Submit(queue.NewRequest("p1", []string{"air", "water"}, false)))
	}
	assert.Equal(t, 3, w.Pending())
	status, ok := w.Status(first.RequestID)
	require.True(t, ok)
	assert.Equal(t, queue.StatusInProgress, status)

	err := w.Stop(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrGraceExceeded)
	assert.Equal(t, int64(1), llm.calls.Load(), "pending requests never reach the model")
	assert.Equal(t, 0, w.Pending())

	assert.ErrorIs(t, w.Submit(queue.NewRequest("p1", []string{"fire"}, false)), ErrQueueClosed)
	assert.ErrorIs(t, w.Start(), ErrStopped)
	assert.NoError(t, w.Stop(time.Millisecond), "second Stop is a no-op")
}

func TestWorker_StopForgetsUnstartedBatch(t *testing.T) {
	llm := &blockingLLM{started: make(chan struct{})}
	w := New(NewGenerator(llm, time.Minute, testLogger()), testLogger(), Options{})

	// Submitted before Start, so the loop takes all three as one batch.
	var reqs []*queue.Request
	for _, prims := range [][]string{{"fire"}, {"ice"}, {"air"}} {
		req := queue.NewRequest("p1", prims, false)
		require.NoError(t, w.Submit(req))
		reqs = append(reqs, req)
	}
	require.NoError(t, w.Start())
	<-llm.started
	assert.Equal(t, 0, w.Pending(), "batch already taken off the queue")

	_ = w.Stop(50 * time.Millisecond)
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker loop did not exit")
	}

	for _, req := range reqs {
		_, ok := w.Status(req.RequestID)
		assert.False(t, ok, "request %s still tracked after Stop", req.ComboKey)
	}
	assert.Equal(t, int64(1), llm.calls.Load())
}

func TestWorker_StopIdle(t *testing.T) {
	w := New(NewGenerator(services.NewMockLLM(), time.Second, testLogger()), testLogger(), Options{})
	require.NoError(t, w.Start())
	assert.NoError(t, w.Stop(time.Second))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) add(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, s)
}

func (p *recordingPublisher) PublishProcessing(_ context.Context, playerID, requestID, comboKey string) error {
	p.add("processing:" + comboKey)
	return nil
}

func (p *recordingPublisher) PublishCompleted(_ context.Context, playerID, requestID, comboKey string, ability json.RawMessage, fallback bool) error {
	if !json.Valid(ability) {
		p.add("invalid-json")
	}
	p.add("completed:" + comboKey)
	return nil
}

func (p *recordingPublisher) PublishFailed(_ context.Context, playerID, requestID, comboKey, errorMsg string) error {
	p.add("failed:" + comboKey)
	return errors.New("redis down")
}

func (p *recordingPublisher) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func TestWorker_PublishesLifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	mock := services.NewMockLLM()
	w := newTestWorker(t, mock, Options{Publisher: pub})

	require.NoError(t, w.Submit(queue.NewRequest("p1", []string{"water", "fire"}, false)))
	collect(t, w, 1)

	mock.SetChatError(errors.New("timeout"))
	require.NoError(t, w.Submit(queue.NewRequest("p1", []string{"air", "ice"}, false)))
	res := collect(t, w, 1)[0]
	assert.Equal(t, queue.StatusFailed, res.Status, "a failing publisher does not change the result")

	assert.Equal(t, []string{
		"processing:fire+water", "completed:fire+water",
		"processing:air+ice", "failed:air+ice",
	}, pub.snapshot())
}

func TestGenerator_RetriesWithFeedback(t *testing.T) {
	valid, err := effect.Fallback([]string{"fire", "earth"}).ToJSON()
	require.NoError(t, err)

	mock := services.NewMockLLM()
	var n atomic.Int64
	mock.ChatFunc = func(_ context.Context, _ []chat.ChatMessage) (*chat.ChatResponse, error) {
		if n.Add(1) == 1 {
			return &chat.ChatResponse{Message: `{"effects":[{"script":[{"action":"heal","args":{"amount":5}}]}]}`}, nil
		}
		return &chat.ChatResponse{Message: "Sure! " + string(valid)}, nil
	}

	gen := NewGenerator(mock, time.Second, testLogger()).WithAttempts(2).
		Generate(context.Background(), []string{"fire", "earth"})
	assert.False(t, gen.Fallback)
	assert.Equal(t, 2, gen.Attempts)
	assert.NoError(t, gen.Err)

	_, calls := mock.GetCalls()
	require.Len(t, calls, 2)
	last := calls[1].Messages[len(calls[1].Messages)-1]
	assert.True(t, strings.HasPrefix(last.Content, "Your previous answer was rejected"), last.Content)
}

func TestGenerator_FilterCleansText(t *testing.T) {
	ability := effect.Fallback([]string{"poison", "shadow"})
	ability.Name = "**bullshit barrage**"
	ability.Description = "Rains   venom\non foes."
	data, err := ability.ToJSON()
	require.NoError(t, err)

	mock := services.NewMockLLM()
	mock.SetResponse(string(data))

	gen := NewGenerator(mock, time.Second, testLogger()).WithFilter(textfilter.New()).
		Generate(context.Background(), []string{"poison", "shadow"})
	require.False(t, gen.Fallback)
	assert.Equal(t, "Nonsense Barrage", gen.Ability.Name)
	assert.Equal(t, "Rains venom on foes.", gen.Ability.Description)
	assert.Contains(t, gen.JSON, "Nonsense Barrage")

	raw := NewGenerator(mock, time.Second, testLogger()).
		Generate(context.Background(), []string{"poison", "shadow"})
	assert.Equal(t, "**bullshit barrage**", raw.Ability.Name)
}

func TestGenerator_TimeoutIsTransportFailure(t *testing.T) {
	llm := &blockingLLM{started: make(chan struct{})}
	gen := NewGenerator(llm, 10*time.Millisecond, testLogger()).Generate(context.Background(), []string{"ice"})
	assert.ErrorIs(t, gen.Err, context.DeadlineExceeded)
	assert.True(t, gen.Fallback)
	assert.NotEmpty(t, gen.JSON)
}

func TestLifecycle_RejectsInvalidTransitions(t *testing.T) {
	lc := newLifecycle("r1", testLogger())
	assert.Equal(t, queue.StatusQueued, lc.status())
	assert.Error(t, lc.fire(eventComplete))
	require.NoError(t, lc.fire(eventStart))
	require.NoError(t, lc.fire(eventComplete))
	assert.Equal(t, queue.StatusCompleted, lc.status())
	assert.Error(t, lc.fire(eventFail))
}
