package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
)

// Worker consumes run and cancel requests from the event bus and drives the
// Runner. Runs execute in their own goroutines so a long workflow never
// blocks consumption of the cancel request that is meant to stop it.
type Worker struct {
	logger   *slog.Logger
	runner   *Runner
	eventBus eventbus.EventBus
}

func NewWorker(logger *slog.Logger, runner *Runner, eventBus eventbus.EventBus) *Worker {
	return &Worker{
		logger:   logger.With("module", "workflow_worker"),
		runner:   runner,
		eventBus: eventBus,
	}
}

// Start registers the request handlers and begins consuming. It returns once
// the subscriptions are established; consumption continues until ctx is done
// or the bus is closed.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.eventBus.Handle(events.WorkflowRunRequestedEvent, w.handleRunRequested); err != nil {
		return fmt.Errorf("register run handler: %w", err)
	}

	if err := w.eventBus.Handle(events.WorkflowCancelRequestedEvent, w.handleCancelRequested); err != nil {
		return fmt.Errorf("register cancel handler: %w", err)
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	w.logger.Info("Worker started")

	return nil
}

func (w *Worker) handleRunRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.WorkflowRunRequested)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	w.logger.Info("Run requested",
		"execution_id", request.ExecutionID,
		"workflow_id", request.WorkflowID,
	)

	go func() {
		if err := w.runner.Run(ctx, request.ExecutionID); err != nil {
			w.logger.Error("Run finished with error",
				"execution_id", request.ExecutionID,
				"error", err,
			)
		}
	}()

	return nil
}

func (w *Worker) handleCancelRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.WorkflowCancelRequested)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	if !w.runner.Cancel(request.ExecutionID, request.Reason) {
		// Another worker owns the run, or it already reached a terminal state.
		w.logger.Debug("Cancel request for execution not running here",
			"execution_id", request.ExecutionID,
		)
	}

	return nil
}
