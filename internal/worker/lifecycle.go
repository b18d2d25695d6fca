package worker

import (
	"context"
	"log/slog"

	"github.com/jwebster45206/ability-forge/pkg/queue"
	"github.com/looplab/fsm"
)

const (
	eventStart    = "start"
	eventComplete = "complete"
	eventFail     = "fail"
)

// lifecycle tracks one request through queued, in_progress and a terminal
// state. Transitions outside that graph are rejected by the FSM.
type lifecycle struct {
	machine *fsm.FSM
}

func newLifecycle(requestID string, log *slog.Logger) *lifecycle {
	return &lifecycle{
		machine: fsm.NewFSM(
			string(queue.StatusQueued),
			fsm.Events{
				{Name: eventStart, Src: []string{string(queue.StatusQueued)}, Dst: string(queue.StatusInProgress)},
				{Name: eventComplete, Src: []string{string(queue.StatusInProgress)}, Dst: string(queue.StatusCompleted)},
				{Name: eventFail, Src: []string{string(queue.StatusQueued), string(queue.StatusInProgress)}, Dst: string(queue.StatusFailed)},
			},
			fsm.Callbacks{
				"enter_state": func(_ context.Context, e *fsm.Event) {
					log.Debug("Request state changed", "request_id", requestID, "from", e.Src, "to", e.Dst)
				},
			},
		),
	}
}

func (l *lifecycle) fire(event string) error {
	return l.machine.Event(context.Background(), event)
}

func (l *lifecycle) status() queue.Status {
	return queue.Status(l.machine.Current())
}
