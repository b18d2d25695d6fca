package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/ability-forge/pkg/queue"
)

// DefaultResultBuffer is the capacity of the results channel.
const DefaultResultBuffer = 64

var (
	// ErrQueueClosed is returned by Submit once Stop has been called.
	ErrQueueClosed = errors.New("worker queue is closed")
	// ErrStopped is returned by Start on a worker that was already stopped.
	ErrStopped = errors.New("worker stopped")
	// ErrGraceExceeded is returned by Stop when the in-flight request did
	// not finish in time and was abandoned.
	ErrGraceExceeded = errors.New("worker did not stop within the grace period")
)

// Publisher receives request lifecycle notifications. events.Broadcaster
// implements it.
type Publisher interface {
	PublishProcessing(ctx context.Context, playerID, requestID, comboKey string) error
	PublishCompleted(ctx context.Context, playerID, requestID, comboKey string, ability json.RawMessage, fallback bool) error
	PublishFailed(ctx context.Context, playerID, requestID, comboKey, errorMsg string) error
}

// Options configure a Worker.
type Options struct {
	ID           string
	ResultBuffer int
	Publisher    Publisher
}

// Worker owns the generation queue. Submit never blocks; one goroutine
// takes requests in FIFO order and runs the Generator synchronously, then
// hands each Result to the owner through Results.
type Worker struct {
	id        string
	gen       *Generator
	publisher Publisher
	log       *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []*queue.Request
	states   map[string]*lifecycle
	closed   bool
	started  bool
	inFlight string

	results chan *queue.Result
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a new worker instance
func New(gen *Generator, log *slog.Logger, opts Options) *Worker {
	if opts.ID == "" {
		opts.ID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if opts.ResultBuffer < 1 {
		opts.ResultBuffer = DefaultResultBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		id:        opts.ID,
		gen:       gen,
		publisher: opts.Publisher,
		log:       log.With("worker_id", opts.ID),
		states:    map[string]*lifecycle{},
		results:   make(chan *queue.Result, opts.ResultBuffer),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Results delivers one Result per processed request, in submission order.
func (w *Worker) Results() <-chan *queue.Result {
	return w.results
}

// Start launches the worker goroutine. It returns immediately.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrStopped
	}
	if w.started {
		return nil
	}
	w.started = true
	w.log.Info("Worker starting")
	go w.loop()
	return nil
}

// Submit appends req to the queue.
func (w *Worker) Submit(req *queue.Request) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrQueueClosed
	}
	w.pending = append(w.pending, req)
	w.states[req.RequestID] = newLifecycle(req.RequestID, w.log)
	w.cond.Signal()
	return nil
}

// Pending is the number of requests waiting to start.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Status reports the live state of a request the worker still holds.
// Requests that have delivered their Result are forgotten.
func (w *Worker) Status(requestID string) (queue.Status, bool) {
	w.mu.Lock()
	lc, ok := w.states[requestID]
	w.mu.Unlock()
	if !ok {
		return "", false
	}
	return lc.status(), true
}

// Stop closes the queue, drops requests that have not started and waits up
// to grace for the in-flight one. After grace the in-flight call's context
// is cancelled and Stop waits one more grace period for the goroutine.
func (w *Worker) Stop(grace time.Duration) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	dropped := len(w.pending)
	for _, req := range w.pending {
		delete(w.states, req.RequestID)
	}
	w.pending = nil
	started := w.started
	w.cond.Broadcast()
	w.mu.Unlock()

	w.log.Info("Worker stop requested", "dropped", dropped)
	if !started {
		w.cancel()
		return nil
	}

	select {
	case <-w.done:
		w.cancel()
		return nil
	case <-time.After(grace):
	}

	w.log.Warn("Abandoning in-flight request", "request_id", w.current())
	w.cancel()
	select {
	case <-w.done:
		return ErrGraceExceeded
	case <-time.After(grace):
		return ErrGraceExceeded
	}
}

func (w *Worker) current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.pending) == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.closed {
			w.mu.Unlock()
			w.log.Info("Worker shutting down")
			return
		}
		batch := w.pending
		w.pending = nil
		w.mu.Unlock()

		for i, req := range batch {
			if !w.begin(req, batch[i+1:]) {
				return
			}
			w.process(req)
		}
	}
}

// begin marks req in flight, or reports false once the worker is closed.
// After Stop, req and the rest of its batch are dropped like pending ones.
func (w *Worker) begin(req *queue.Request, rest []*queue.Request) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		delete(w.states, req.RequestID)
		for _, r := range rest {
			delete(w.states, r.RequestID)
		}
		w.log.Info("Dropped unstarted batch requests", "dropped", len(rest)+1)
		return false
	}
	w.inFlight = req.RequestID
	return true
}

func (w *Worker) process(req *queue.Request) {
	log := w.log.With("request_id", req.RequestID, "player_id", req.PlayerID, "combo_key", req.ComboKey)
	lc := w.lifecycleFor(req.RequestID)
	if err := lc.fire(eventStart); err != nil {
		log.Error("Invalid request transition", "error", err)
	}
	if w.publisher != nil {
		if err := w.publisher.PublishProcessing(w.ctx, req.PlayerID, req.RequestID, req.ComboKey); err != nil {
			log.Error("Failed to publish processing event", "error", err)
		}
	}

	log.Info("Processing request", "primitives", req.Primitives)
	start := time.Now()
	gen := w.gen.Generate(w.ctx, req.Primitives)

	res := &queue.Result{
		RequestID:   req.RequestID,
		PlayerID:    req.PlayerID,
		ComboKey:    req.ComboKey,
		Ability:     gen.Ability,
		AbilityJSON: gen.JSON,
		Fallback:    gen.Fallback,
		Diagnostics: gen.Diagnostics,
		Duration:    time.Since(start),
	}

	if gen.Err != nil {
		res.Status = queue.StatusFailed
		res.Error = gen.Err.Error()
		if err := lc.fire(eventFail); err != nil {
			log.Error("Invalid request transition", "error", err)
		}
		log.Error("Request failed", "error", gen.Err, "duration", res.Duration)
		if w.publisher != nil {
			if err := w.publisher.PublishFailed(w.ctx, req.PlayerID, req.RequestID, req.ComboKey, res.Error); err != nil {
				log.Error("Failed to publish failed event", "error", err)
			}
		}
	} else {
		res.Status = queue.StatusCompleted
		res.Cacheable = true
		if err := lc.fire(eventComplete); err != nil {
			log.Error("Invalid request transition", "error", err)
		}
		log.Info("Request completed", "fallback", gen.Fallback, "duration", res.Duration, "attempts", gen.Attempts)
		if w.publisher != nil {
			if err := w.publisher.PublishCompleted(w.ctx, req.PlayerID, req.RequestID, req.ComboKey, json.RawMessage(gen.JSON), gen.Fallback); err != nil {
				log.Error("Failed to publish completed event", "error", err)
			}
		}
	}

	w.deliver(res, log)
}

func (w *Worker) lifecycleFor(requestID string) *lifecycle {
	w.mu.Lock()
	defer w.mu.Unlock()
	lc, ok := w.states[requestID]
	if !ok {
		lc = newLifecycle(requestID, w.log)
		w.states[requestID] = lc
	}
	return lc
}

// deliver hands res to the owner. It blocks while the results channel is
// full and gives up once the worker is cancelled.
func (w *Worker) deliver(res *queue.Result, log *slog.Logger) {
	defer func() {
		w.mu.Lock()
		delete(w.states, res.RequestID)
		w.inFlight = ""
		w.mu.Unlock()
	}()
	select {
	case w.results <- res:
	case <-w.ctx.Done():
		log.Warn("Dropping result during shutdown")
	}
}
