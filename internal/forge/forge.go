// Package forge is the owner side of ability generation. A Forge owns the
// per-player caches and the view of request state; every method except Do
// and Run must be called from the goroutine running Run (or the test
// driving Tick).
package forge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/ability-forge/internal/cache"
	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/jwebster45206/ability-forge/pkg/queue"
)

// RequestRetention is how long finished request states stay queryable.
const RequestRetention = 10 * time.Minute

// ErrNoPrimitives rejects a request with nothing to combine.
var ErrNoPrimitives = errors.New("at least one primitive is required")

// Submitter is the worker side of the queue.
type Submitter interface {
	Submit(req *queue.Request) error
	Results() <-chan *queue.Result
	Status(requestID string) (queue.Status, bool)
}

// RequestState is the owner's record of one submitted request.
type RequestState struct {
	RequestID   string       `json:"request_id"`
	PlayerID    string       `json:"player_id"`
	ComboKey    string       `json:"combo_key"`
	Status      queue.Status `json:"status"`
	Fallback    bool         `json:"fallback,omitempty"`
	Error       string       `json:"error,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

// Outcome answers Request: either a cache hit or the request now pending.
type Outcome struct {
	Hit     bool
	Ability *effect.AbilityV2
	Record  *cache.CachedAbility
	Request *RequestState
}

type call struct {
	fn   func()
	done chan struct{}
}

// Forge drains worker results once per tick and stores them in the
// requesting player's cache.
type Forge struct {
	caches      *cache.Registry
	worker      Submitter
	log         *slog.Logger
	calls       chan call
	requests    map[string]*RequestState
	inflight    map[string]string
	subscribers []func(*queue.Result)
	now         func() time.Time
}

// New returns a Forge writing to caches and submitting to worker.
func New(caches *cache.Registry, worker Submitter, log *slog.Logger) *Forge {
	return &Forge{
		caches:   caches,
		worker:   worker,
		log:      log,
		calls:    make(chan call, 64),
		requests: map[string]*RequestState{},
		inflight: map[string]string{},
		now:      time.Now,
	}
}

// OnResult registers fn to run on the owner goroutine after each result is
// stored.
func (f *Forge) OnResult(fn func(*queue.Result)) {
	f.subscribers = append(f.subscribers, fn)
}

func inflightKey(playerID, comboKey string) string {
	return playerID + "|" + comboKey
}

// Request returns the cached ability for the combination, or submits a
// generation request. force skips the cache lookup; a request already in
// flight for the same player and combination is reused either way.
func (f *Forge) Request(ctx context.Context, playerID string, primitives []string, force bool) (Outcome, error) {
	prims := effect.NormalizePrimitives(primitives)
	if len(prims) == 0 {
		return Outcome{}, ErrNoPrimitives
	}
	if err := effect.CheckPrimitives(prims); err != nil {
		return Outcome{}, err
	}
	key := effect.ComboKey(prims)
	store, err := f.caches.For(playerID)
	if err != nil {
		return Outcome{}, err
	}
	log := f.log.With("player_id", playerID, "combo_key", key)

	if !force {
		rec, err := store.Get(ctx, key)
		if err != nil {
			return Outcome{}, fmt.Errorf("cache lookup: %w", err)
		}
		if rec != nil {
			ability, err := rec.Ability()
			if err == nil {
				if err := store.RecordUse(ctx, key); err != nil {
					log.Error("Failed to record cache use", "error", err)
				} else {
					rec.UseCount++
				}
				log.Debug("Cache hit", "use_count", rec.UseCount)
				return Outcome{Hit: true, Ability: ability, Record: rec}, nil
			}
			log.Warn("Cached ability is unreadable, regenerating", "error", err)
		}
	}

	if id, ok := f.inflight[inflightKey(playerID, key)]; ok {
		if st, ok := f.requests[id]; ok && !st.Status.Terminal() {
			return Outcome{Request: f.snapshot(st)}, nil
		}
	}

	req := queue.NewRequest(playerID, prims, force)
	if err := f.worker.Submit(req); err != nil {
		return Outcome{}, fmt.Errorf("submit request: %w", err)
	}
	st := &RequestState{
		RequestID:   req.RequestID,
		PlayerID:    playerID,
		ComboKey:    key,
		Status:      queue.StatusQueued,
		SubmittedAt: req.EnqueuedAt,
	}
	f.requests[req.RequestID] = st
	f.inflight[inflightKey(playerID, key)] = req.RequestID
	log.Info("Generation requested", "request_id", req.RequestID, "force", force)
	return Outcome{Request: f.snapshot(st)}, nil
}

// RequestStatus reports a request's state. Queued requests the worker has
// already started report in_progress.
func (f *Forge) RequestStatus(requestID string) (RequestState, bool) {
	st, ok := f.requests[requestID]
	if !ok {
		return RequestState{}, false
	}
	return *f.snapshot(st), true
}

func (f *Forge) snapshot(st *RequestState) *RequestState {
	cp := *st
	if cp.Status == queue.StatusQueued {
		if live, ok := f.worker.Status(cp.RequestID); ok {
			cp.Status = live
		}
	}
	return &cp
}

// Cached returns the stored record without counting a use.
func (f *Forge) Cached(ctx context.Context, playerID, comboKey string) (*cache.CachedAbility, error) {
	store, err := f.caches.For(playerID)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, comboKey)
}

// List returns a player's cached abilities, most recently used first.
func (f *Forge) List(ctx context.Context, playerID string) ([]cache.CachedAbility, error) {
	store, err := f.caches.For(playerID)
	if err != nil {
		return nil, err
	}
	return store.List(ctx)
}

// Stats returns a player's cache totals.
func (f *Forge) Stats(ctx context.Context, playerID string) (cache.Stats, error) {
	store, err := f.caches.For(playerID)
	if err != nil {
		return cache.Stats{}, err
	}
	return store.Stats(ctx)
}

// Clear deletes every cached ability for a player.
func (f *Forge) Clear(ctx context.Context, playerID string) error {
	store, err := f.caches.For(playerID)
	if err != nil {
		return err
	}
	f.log.Info("Clearing ability cache", "player_id", playerID)
	return store.Clear(ctx)
}

// Tick runs queued deferred calls, then stores every result already waiting
// from the worker. It never blocks. It returns the number of results.
func (f *Forge) Tick(ctx context.Context) int {
	for drained := false; !drained; {
		select {
		case c := <-f.calls:
			c.fn()
			close(c.done)
		default:
			drained = true
		}
	}

	n := 0
	for drained := false; !drained; {
		select {
		case res := <-f.worker.Results():
			f.handle(ctx, res)
			n++
		default:
			drained = true
		}
	}
	f.prune()
	return n
}

func (f *Forge) handle(ctx context.Context, res *queue.Result) {
	log := f.log.With("request_id", res.RequestID, "player_id", res.PlayerID, "combo_key", res.ComboKey)
	now := f.now()

	if st, ok := f.requests[res.RequestID]; ok {
		st.Status = res.Status
		st.Fallback = res.Fallback
		st.Error = res.Error
		st.FinishedAt = &now
	}
	if f.inflight[inflightKey(res.PlayerID, res.ComboKey)] == res.RequestID {
		delete(f.inflight, inflightKey(res.PlayerID, res.ComboKey))
	}

	if res.Cacheable && res.Ability != nil {
		store, err := f.caches.For(res.PlayerID)
		if err != nil {
			log.Error("Failed to open player cache", "error", err)
		} else if err := store.Put(ctx, res.ComboKey, res.AbilityJSON, res.Ability.Version); err != nil {
			log.Error("Failed to cache ability", "error", err)
		} else {
			log.Info("Ability cached", "fallback", res.Fallback, "duration", res.Duration)
		}
	}

	for _, fn := range f.subscribers {
		fn(res)
	}
}

func (f *Forge) prune() {
	cutoff := f.now().Add(-RequestRetention)
	for id, st := range f.requests {
		if st.FinishedAt != nil && st.FinishedAt.Before(cutoff) {
			delete(f.requests, id)
		}
	}
}

// Do runs fn on the owner goroutine and waits for it to finish. It returns
// ctx's error if fn could not run in time; fn may still run later.
func (f *Forge) Do(ctx context.Context, fn func()) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case f.calls <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run ticks every rate until ctx is done. Deferred calls run as soon as
// they arrive. Results already delivered when ctx ends are still stored.
func (f *Forge) Run(ctx context.Context, rate time.Duration) {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	f.log.Info("Forge loop started", "tick_rate", rate)
	for {
		select {
		case <-ctx.Done():
			n := f.Tick(context.WithoutCancel(ctx))
			f.log.Info("Forge loop stopped", "drained", n)
			return
		case c := <-f.calls:
			c.fn()
			close(c.done)
		case <-ticker.C:
			f.Tick(ctx)
		}
	}
}
