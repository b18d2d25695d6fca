package forge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jwebster45206/ability-forge/internal/cache"
	"github.com/jwebster45206/ability-forge/internal/services"
	"github.com/jwebster45206/ability-forge/internal/worker"
	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/jwebster45206/ability-forge/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestForge(t *testing.T, llm services.LLMService) (*Forge, *cache.Registry) {
	t.Helper()
	w := worker.New(worker.NewGenerator(llm, time.Second, testLogger()), testLogger(), worker.Options{})
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop(time.Second) })

	reg := cache.NewRegistry(cache.MemoryOpener())
	t.Cleanup(func() { _ = reg.Close() })
	return New(reg, w, testLogger()), reg
}

// tickUntil drives the owner loop by hand until n results were handled.
func tickUntil(t *testing.T, f *Forge, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	got := 0
	for got < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %d of %d results", got, n)
		}
		got += f.Tick(context.Background())
		time.Sleep(time.Millisecond)
	}
}

func TestForge_FallbackIsCachedThenHit(t *testing.T) {
	mock := services.NewMockLLM()
	mock.SetResponse(`{"name": "Steam", "effe`)
	f, reg := newTestForge(t, mock)
	ctx := context.Background()

	var seen []*queue.Result
	f.OnResult(func(r *queue.Result) { seen = append(seen, r) })

	out, err := f.Request(ctx, "p1", []string{"fire", "water"}, false)
	require.NoError(t, err)
	require.False(t, out.Hit)
	require.NotNil(t, out.Request)
	id := out.Request.RequestID

	tickUntil(t, f, 1)
	require.Len(t, seen, 1)

	st, ok := f.RequestStatus(id)
	require.True(t, ok)
	assert.Equal(t, queue.StatusCompleted, st.Status)
	assert.True(t, st.Fallback)
	assert.NotNil(t, st.FinishedAt)

	store, err := reg.For("p1")
	require.NoError(t, err)
	rec, err := store.Get(ctx, "fire+water")
	require.NoError(t, err)
	require.NotNil(t, rec)
	ab, err := rec.Ability()
	require.NoError(t, err)
	assert.Equal(t, []string{"fire", "water"}, ab.Primitives)
	require.Len(t, ab.Effects, 1)
	require.Len(t, ab.Effects[0].Script, 1)
	assert.Equal(t, effect.ActionSpawnProjectile, ab.Effects[0].Script[0].Action)
	assert.Equal(t, effect.ActionDamage, ab.Effects[0].Script[0].OnHit[0].Action)

	hit, err := f.Request(ctx, "p1", []string{"water", "fire"}, false)
	require.NoError(t, err)
	assert.True(t, hit.Hit, "order of primitives does not matter")
	assert.Equal(t, 2, hit.Record.UseCount)
	assert.True(t, ab.Equal(hit.Ability))

	_, calls := mock.GetCalls()
	assert.Len(t, calls, 1)
}

func TestForge_DeduplicatesInFlight(t *testing.T) {
	mock := services.NewMockLLM()
	f, _ := newTestForge(t, mock)
	ctx := context.Background()

	a, err := f.Request(ctx, "p1", []string{"air", "ice"}, false)
	require.NoError(t, err)
	b, err := f.Request(ctx, "p1", []string{"ice", "air"}, false)
	require.NoError(t, err)
	assert.Equal(t, a.Request.RequestID, b.Request.RequestID)

	other, err := f.Request(ctx, "p2", []string{"ice", "air"}, false)
	require.NoError(t, err)
	assert.NotEqual(t, a.Request.RequestID, other.Request.RequestID, "players are independent")

	tickUntil(t, f, 2)
	_, calls := mock.GetCalls()
	assert.Len(t, calls, 2)
}

func TestForge_ForceRegenerates(t *testing.T) {
	mock := services.NewMockLLM()
	f, _ := newTestForge(t, mock)
	ctx := context.Background()

	_, err := f.Request(ctx, "p1", []string{"earth", "fire"}, false)
	require.NoError(t, err)
	tickUntil(t, f, 1)

	out, err := f.Request(ctx, "p1", []string{"earth", "fire"}, true)
	require.NoError(t, err)
	assert.False(t, out.Hit)
	tickUntil(t, f, 1)

	rec, err := f.Cached(ctx, "p1", "earth+fire")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.UseCount, "the second Put upserts")

	stats, err := f.Stats(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, cache.Stats{Count: 1, TotalUses: 2}, stats)

	list, err := f.List(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.Clear(ctx, "p1"))
	stats, err = f.Stats(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
}

func TestForge_FailedGenerationIsNotCached(t *testing.T) {
	mock := services.NewMockLLM()
	mock.SetChatError(errors.New("model offline"))
	f, _ := newTestForge(t, mock)
	ctx := context.Background()

	out, err := f.Request(ctx, "p1", []string{"poison", "shadow"}, false)
	require.NoError(t, err)
	tickUntil(t, f, 1)

	st, ok := f.RequestStatus(out.Request.RequestID)
	require.True(t, ok)
	assert.Equal(t, queue.StatusFailed, st.Status)
	assert.Contains(t, st.Error, "model offline")

	rec, err := f.Cached(ctx, "p1", "poison+shadow")
	require.NoError(t, err)
	assert.Nil(t, rec)

	again, err := f.Request(ctx, "p1", []string{"poison", "shadow"}, false)
	require.NoError(t, err)
	assert.NotEqual(t, out.Request.RequestID, again.Request.RequestID, "a failed request is retried")
}

func TestForge_RejectsBadInput(t *testing.T) {
	f, _ := newTestForge(t, services.NewMockLLM())
	_, err := f.Request(context.Background(), "p1", []string{" ", ""}, false)
	assert.ErrorIs(t, err, ErrNoPrimitives)
	_, err = f.Request(context.Background(), "p1", []string{"fire+water"}, false)
	assert.ErrorIs(t, err, effect.ErrPrimitiveSeparator)
	_, err = f.Request(context.Background(), "../p1", []string{"fire"}, false)
	assert.ErrorIs(t, err, cache.ErrInvalidPlayer)
	_, ok := f.RequestStatus("nope")
	assert.False(t, ok)
}

func TestForge_DoRunsOnOwnerLoop(t *testing.T) {
	f, _ := newTestForge(t, services.NewMockLLM())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx, 5*time.Millisecond)

	var out Outcome
	var reqErr error
	require.NoError(t, f.Do(ctx, func() {
		out, reqErr = f.Request(ctx, "p1", []string{"fire", "ice"}, false)
	}))
	require.NoError(t, reqErr)
	require.NotNil(t, out.Request)

	require.Eventually(t, func() bool {
		var status queue.Status
		_ = f.Do(ctx, func() {
			st, _ := f.RequestStatus(out.Request.RequestID)
			status = st.Status
		})
		return status == queue.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestForge_DoHonorsContext(t *testing.T) {
	f, _ := newTestForge(t, services.NewMockLLM())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Do(ctx, func() {}), context.DeadlineExceeded, "nobody is running the loop")
}

func TestForge_PrunesOldRequests(t *testing.T) {
	f, _ := newTestForge(t, services.NewMockLLM())
	out, err := f.Request(context.Background(), "p1", []string{"air"}, false)
	require.NoError(t, err)
	tickUntil(t, f, 1)

	f.now = func() time.Time { return time.Now().Add(2 * RequestRetention) }
	f.Tick(context.Background())
	_, ok := f.RequestStatus(out.Request.RequestID)
	assert.False(t, ok)
}
