package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
)

// Execution triggers, cancels and queries workflow runs. Actual execution
// happens on workers; this service only persists the run request and hands
// it to the event bus.
type Execution struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewExecution(logger *slog.Logger, persist persistence.Persistence, eventBus eventbus.EventBus) *Execution {
	return &Execution{
		logger:      logger.With("module", "execution_service"),
		persistence: persist,
		eventBus:    eventBus,
		validate:    validator.New(),
	}
}

// TriggerRunRequest asks for a new run of a workflow.
type TriggerRunRequest struct {
	WorkflowID  string `validate:"required"`
	ExecutionID string `validate:"omitempty,uuid4"`
	UserID      string
	InputData   map[string]any
}

// TriggerRun creates a PENDING execution and publishes the run request for
// a worker to pick up. The returned execution reflects the persisted row,
// not the eventual outcome.
func (s *Execution) TriggerRun(ctx context.Context, req TriggerRunRequest) (*models.WorkflowExecution, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	execution := &models.WorkflowExecution{
		ID:         req.ExecutionID,
		WorkflowID: workflow.ID,
		UserID:     req.UserID,
		Status:     models.ExecutionStatusPending,
		InputData:  req.InputData,
		CreatedAt:  time.Now().UTC(),
	}
	if execution.ID == "" {
		execution.ID = uuid.NewString()
	}

	if err := s.persistence.ExecutionRepository().CreateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	err = s.eventBus.Publish(ctx, execution.ID, events.WorkflowRunRequested{
		BaseEvent: events.BaseEvent{
			ID:         s.eventBus.GenerateID(),
			Type:       events.WorkflowRunRequestedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: workflow.ID,
		},
		ExecutionID: execution.ID,
		UserID:      req.UserID,
		InputData:   req.InputData,
	})
	if err != nil {
		// The PENDING row stays behind; a retried trigger with the same
		// execution id will conflict, a fresh one starts clean.
		return nil, fmt.Errorf("failed to publish run request: %w", err)
	}

	s.logger.Info("Run triggered", "execution_id", execution.ID, "workflow_id", workflow.ID)

	return execution, nil
}

// CancelRun requests cancellation of a run. PENDING executions are marked
// CANCELLED directly since no worker owns them yet; RUNNING ones get a
// cancel request on the bus and the owning worker writes the terminal state.
func (s *Execution) CancelRun(ctx context.Context, executionID, reason string) (*models.WorkflowExecution, error) {
	repo := s.persistence.ExecutionRepository()

	execution, err := repo.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: execution %s is %s", ErrExecutionNotCancellable, executionID, execution.Status)
	}

	if execution.Status == models.ExecutionStatusPending {
		now := time.Now().UTC()
		execution.Status = models.ExecutionStatusCancelled
		execution.Error = reason
		execution.CompletedAt = &now

		if err := repo.UpdateExecution(ctx, execution); err != nil {
			return nil, fmt.Errorf("failed to cancel execution: %w", err)
		}

		s.logger.Info("Pending run cancelled", "execution_id", executionID)

		return execution, nil
	}

	err = s.eventBus.Publish(ctx, executionID, events.WorkflowCancelRequested{
		BaseEvent: events.BaseEvent{
			ID:         s.eventBus.GenerateID(),
			Type:       events.WorkflowCancelRequestedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: execution.WorkflowID,
		},
		ExecutionID: executionID,
		Reason:      reason,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish cancel request: %w", err)
	}

	s.logger.Info("Cancel requested", "execution_id", executionID)

	return execution, nil
}

// ExecutionDetail is a run together with its per-node trail.
type ExecutionDetail struct {
	Execution      *models.WorkflowExecution `json:"execution"`
	NodeExecutions []*models.NodeExecution   `json:"node_executions"`
}

// GetExecution retrieves a run and its node execution records.
func (s *Execution) GetExecution(ctx context.Context, executionID string) (*ExecutionDetail, error) {
	repo := s.persistence.ExecutionRepository()

	execution, err := repo.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	nodeExecutions, err := repo.NodeExecutions(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load node executions: %w", err)
	}

	return &ExecutionDetail{Execution: execution, NodeExecutions: nodeExecutions}, nil
}

// ListExecutionsRequest contains options for listing runs.
type ListExecutionsRequest struct {
	WorkflowID string
	Status     string
	Limit      int
	Offset     int
}

// ListExecutionsResponse contains the result of listing runs.
type ListExecutionsResponse struct {
	Executions  []*models.WorkflowExecution `json:"executions"`
	TotalCount  int64                       `json:"total_count"`
	HasNextPage bool                        `json:"has_next_page"`
}

// ListExecutions retrieves runs with filtering and pagination, newest first.
func (s *Execution) ListExecutions(ctx context.Context, req ListExecutionsRequest) (*ListExecutionsResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	opts := persistence.ListExecutionsOptions{
		WorkflowID: req.WorkflowID,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}

	if req.Status != "" {
		status := models.ExecutionStatus(req.Status)

		switch status {
		case models.ExecutionStatusPending, models.ExecutionStatusRunning,
			models.ExecutionStatusSuccess, models.ExecutionStatusFailed,
			models.ExecutionStatusCancelled:
			opts.Status = &status
		default:
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, req.Status)
		}
	}

	result, err := s.persistence.ExecutionRepository().ListExecutions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return &ListExecutionsResponse{
		Executions:  result.Executions,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}
