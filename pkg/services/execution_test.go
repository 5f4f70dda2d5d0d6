package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/channels/gochannel"
	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/persistence/file"
	"github.com/loomworks/loom/pkg/testutil"
)

func newExecutionService(t *testing.T) (*Execution, eventbus.EventBus, persistence.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	persist := file.NewPersistence(t.TempDir())
	t.Cleanup(func() {
		_ = persist.Close(context.Background())
	})

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	return NewExecution(logger, persist, bus), bus, persist
}

func saveWorkflow(t *testing.T, persist persistence.Persistence) *models.Workflow {
	t.Helper()

	workflow := testutil.CreateTestWorkflow(
		[]*models.WorkflowNode{
			testutil.StartNode("s"),
			testutil.CreateTestNode(testutil.WithNodeID("a")),
		},
		[]*models.Connection{testutil.Connect("s", "a")},
	)
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))

	return workflow
}

func TestTriggerRunCreatesPendingAndPublishes(t *testing.T) {
	service, bus, persist := newExecutionService(t)
	workflow := saveWorkflow(t, persist)

	received := make(chan *events.WorkflowRunRequested, 1)
	require.NoError(t, bus.Handle(events.WorkflowRunRequestedEvent, func(_ context.Context, event any) error {
		request, ok := event.(*events.WorkflowRunRequested)
		require.True(t, ok)
		received <- request

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	execution, err := service.TriggerRun(ctx, TriggerRunRequest{
		WorkflowID: workflow.ID,
		UserID:     "user-1",
		InputData:  map[string]any{"id": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, execution.Status)
	assert.NotEmpty(t, execution.ID)

	stored, err := persist.ExecutionRepository().ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, stored.Status)

	select {
	case request := <-received:
		assert.Equal(t, execution.ID, request.ExecutionID)
		assert.Equal(t, workflow.ID, request.WorkflowID)
		assert.Equal(t, "user-1", request.UserID)
	case <-time.After(5 * time.Second):
		t.Fatal("run request was never published")
	}
}

func TestTriggerRunUnknownWorkflow(t *testing.T) {
	service, _, _ := newExecutionService(t)

	_, err := service.TriggerRun(context.Background(), TriggerRunRequest{WorkflowID: "ghost"})
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
}

func TestTriggerRunRequiresWorkflowID(t *testing.T) {
	service, _, _ := newExecutionService(t)

	_, err := service.TriggerRun(context.Background(), TriggerRunRequest{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestCancelRunPendingIsCancelledDirectly(t *testing.T) {
	service, _, persist := newExecutionService(t)
	workflow := saveWorkflow(t, persist)
	ctx := context.Background()

	execution, err := service.TriggerRun(ctx, TriggerRunRequest{WorkflowID: workflow.ID})
	require.NoError(t, err)

	cancelled, err := service.CancelRun(ctx, execution.ID, "not needed anymore")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)

	stored, err := persist.ExecutionRepository().ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, stored.Status)
	assert.Equal(t, "not needed anymore", stored.Error)
}

func TestCancelRunRunningPublishesRequest(t *testing.T) {
	service, bus, persist := newExecutionService(t)
	workflow := saveWorkflow(t, persist)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.WorkflowCancelRequested, 1)
	require.NoError(t, bus.Handle(events.WorkflowCancelRequestedEvent, func(_ context.Context, event any) error {
		request, ok := event.(*events.WorkflowCancelRequested)
		require.True(t, ok)
		received <- request

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	execution, err := service.TriggerRun(ctx, TriggerRunRequest{WorkflowID: workflow.ID})
	require.NoError(t, err)

	execution.Status = models.ExecutionStatusRunning
	require.NoError(t, persist.ExecutionRepository().UpdateExecution(ctx, execution))

	_, err = service.CancelRun(ctx, execution.ID, "operator request")
	require.NoError(t, err)

	select {
	case request := <-received:
		assert.Equal(t, execution.ID, request.ExecutionID)
		assert.Equal(t, "operator request", request.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("cancel request was never published")
	}
}

func TestCancelRunTerminalConflicts(t *testing.T) {
	service, _, persist := newExecutionService(t)
	workflow := saveWorkflow(t, persist)
	ctx := context.Background()

	execution, err := service.TriggerRun(ctx, TriggerRunRequest{WorkflowID: workflow.ID})
	require.NoError(t, err)

	execution.Status = models.ExecutionStatusSuccess
	require.NoError(t, persist.ExecutionRepository().UpdateExecution(ctx, execution))

	_, err = service.CancelRun(ctx, execution.ID, "too late")
	require.ErrorIs(t, err, ErrExecutionNotCancellable)
	assert.True(t, IsConflictError(err))
}

func TestGetExecutionIncludesNodeTrail(t *testing.T) {
	service, _, persist := newExecutionService(t)
	workflow := saveWorkflow(t, persist)
	ctx := context.Background()

	execution, err := service.TriggerRun(ctx, TriggerRunRequest{WorkflowID: workflow.ID})
	require.NoError(t, err)

	nodeExecution := &models.NodeExecution{
		ID:          "ne-1",
		ExecutionID: execution.ID,
		NodeID:      "s",
		NodeType:    models.NodeTypeStart,
		Status:      models.ExecutionStatusSuccess,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, persist.ExecutionRepository().CreateNodeExecution(ctx, nodeExecution))

	detail, err := service.GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.ID, detail.Execution.ID)
	require.Len(t, detail.NodeExecutions, 1)
	assert.Equal(t, "s", detail.NodeExecutions[0].NodeID)
}

func TestListExecutionsFiltersByStatus(t *testing.T) {
	service, _, persist := newExecutionService(t)
	workflow := saveWorkflow(t, persist)
	ctx := context.Background()

	first, err := service.TriggerRun(ctx, TriggerRunRequest{WorkflowID: workflow.ID})
	require.NoError(t, err)

	_, err = service.TriggerRun(ctx, TriggerRunRequest{WorkflowID: workflow.ID})
	require.NoError(t, err)

	first.Status = models.ExecutionStatusFailed
	require.NoError(t, persist.ExecutionRepository().UpdateExecution(ctx, first))

	result, err := service.ListExecutions(ctx, ListExecutionsRequest{
		WorkflowID: workflow.ID,
		Status:     string(models.ExecutionStatusFailed),
	})
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)
	assert.Equal(t, first.ID, result.Executions[0].ID)
}

func TestListExecutionsRejectsUnknownStatus(t *testing.T) {
	service, _, _ := newExecutionService(t)

	_, err := service.ListExecutions(context.Background(), ListExecutionsRequest{Status: "DONE"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}
