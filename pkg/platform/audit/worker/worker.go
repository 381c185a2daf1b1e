package worker

import (
	"context"
	"log/slog"

	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
)

// Worker consumes governance events from a channel, persists them, and
// fans them out to an optional sink. Store persistence is the source of
// truth; sink failures are logged and do not stop the worker.
type Worker struct {
	store  audit.Store
	sink   audit.Sink
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, sink audit.Sink, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
			if w.sink == nil {
				continue
			}
			if err := w.sink.Publish(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit fan-out failed",
					"event_type", string(event.Type),
					"record_id", event.RecordID.String(),
					"error", err,
				)
			}
		}
	}
}
