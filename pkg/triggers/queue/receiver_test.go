package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/services"
)

type fakeExecutionService struct {
	triggered []services.TriggerRunRequest
	cancelled []string
	err       error
}

func (f *fakeExecutionService) TriggerRun(_ context.Context, req services.TriggerRunRequest) (*models.WorkflowExecution, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.triggered = append(f.triggered, req)

	return &models.WorkflowExecution{ID: "exec-1", WorkflowID: req.WorkflowID}, nil
}

func (f *fakeExecutionService) CancelRun(_ context.Context, executionID, _ string) (*models.WorkflowExecution, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.cancelled = append(f.cancelled, executionID)

	return &models.WorkflowExecution{ID: executionID}, nil
}

func newReceiverForTest(t *testing.T, executions ExecutionService) *Receiver {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	receiver, err := NewReceiver(logger, Config{Stream: "loom.triggers", Group: "loom"}, executions)
	require.NoError(t, err)

	return receiver
}

func TestNewReceiverRequiresStreamAndGroup(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewReceiver(logger, Config{Group: "loom"}, &fakeExecutionService{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream name is required")

	_, err = NewReceiver(logger, Config{Stream: "loom.triggers"}, &fakeExecutionService{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consumer group is required")
}

func TestNewReceiverAppliesDefaults(t *testing.T) {
	receiver := newReceiverForTest(t, &fakeExecutionService{})

	assert.Equal(t, "localhost:6379", receiver.config.Addr)
	assert.Equal(t, "loom-receiver", receiver.config.Consumer)
}

func TestDispatchRunMessage(t *testing.T) {
	executions := &fakeExecutionService{}
	receiver := newReceiverForTest(t, executions)

	err := receiver.dispatch(context.Background(), Message{
		Type:       messageTypeRun,
		WorkflowID: "wf-1",
		UserID:     "user-1",
		InputData:  map[string]any{"id": "42"},
	})
	require.NoError(t, err)

	require.Len(t, executions.triggered, 1)
	assert.Equal(t, "wf-1", executions.triggered[0].WorkflowID)
	assert.Equal(t, "user-1", executions.triggered[0].UserID)
}

func TestDispatchCancelMessage(t *testing.T) {
	executions := &fakeExecutionService{}
	receiver := newReceiverForTest(t, executions)

	err := receiver.dispatch(context.Background(), Message{
		Type:        messageTypeCancel,
		ExecutionID: "exec-9",
		Reason:      "external abort",
	})
	require.NoError(t, err)

	require.Len(t, executions.cancelled, 1)
	assert.Equal(t, "exec-9", executions.cancelled[0])
}

func TestDispatchCancelRequiresExecutionID(t *testing.T) {
	receiver := newReceiverForTest(t, &fakeExecutionService{})

	err := receiver.dispatch(context.Background(), Message{Type: messageTypeCancel})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution_id")
}

func TestDispatchUnknownType(t *testing.T) {
	receiver := newReceiverForTest(t, &fakeExecutionService{})

	err := receiver.dispatch(context.Background(), Message{Type: "pause"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown trigger message type")
}
