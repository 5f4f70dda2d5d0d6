package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
)

func newTestPersistence(t *testing.T) persistence.Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func testWorkflow(id, name string) *models.Workflow {
	return &models.Workflow{
		ID:   id,
		Name: name,
		Nodes: []*models.WorkflowNode{
			{ID: "start", Type: models.NodeTypeStart, Name: "Start"},
			{ID: "email", Type: models.NodeTypeEmail, Name: "Notify"},
		},
		Connections: []*models.Connection{
			{SourceNodeID: "start", TargetNodeID: "email"},
		},
	}
}

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	workflow := testWorkflow("wf-1", "notify")
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	loaded, err := p.WorkflowRepository().GetByID(ctx, "wf-1")
	require.NoError(t, err)

	assert.Equal(t, "notify", loaded.Name)
	assert.Len(t, loaded.Nodes, 2)
	assert.Len(t, loaded.Connections, 1)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestWorkflowRepository_GetMissing(t *testing.T) {
	p := newTestPersistence(t)

	_, err := p.WorkflowRepository().GetByID(context.Background(), "absent")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_Delete(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	require.NoError(t, p.WorkflowRepository().Save(ctx, testWorkflow("wf-1", "a")))
	require.NoError(t, p.WorkflowRepository().Delete(ctx, "wf-1"))

	_, err := p.WorkflowRepository().GetByID(ctx, "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = p.WorkflowRepository().Delete(ctx, "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_ListPagination(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	for _, id := range []string{"wf-a", "wf-b", "wf-c"} {
		require.NoError(t, p.WorkflowRepository().Save(ctx, testWorkflow(id, id)))
	}

	result, err := p.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{
		Limit:     2,
		SortBy:    "name",
		SortOrder: "asc",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.TotalCount)
	assert.True(t, result.HasNextPage)
	require.Len(t, result.Workflows, 2)
	assert.Equal(t, "wf-a", result.Workflows[0].Name)

	result, err = p.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{
		Limit:     2,
		Offset:    2,
		SortBy:    "name",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.False(t, result.HasNextPage)
	require.Len(t, result.Workflows, 1)
	assert.Equal(t, "wf-c", result.Workflows[0].Name)
}

func TestWorkflowRepository_ListRejectsUnknownSort(t *testing.T) {
	p := newTestPersistence(t)

	_, err := p.WorkflowRepository().List(context.Background(), persistence.ListWorkflowsOptions{
		SortBy: "owner; DROP TABLE workflows",
	})
	require.Error(t, err)
}

func TestExecutionRepository_Lifecycle(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	now := time.Now().UTC()
	execution := &models.WorkflowExecution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		Status:     models.ExecutionStatusPending,
		InputData:  map[string]any{"source": "api"},
		CreatedAt:  now,
	}

	require.NoError(t, p.ExecutionRepository().CreateExecution(ctx, execution))

	execution.Status = models.ExecutionStatusRunning
	execution.StartedAt = &now
	require.NoError(t, p.ExecutionRepository().UpdateExecution(ctx, execution))

	loaded, err := p.ExecutionRepository().ExecutionByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, loaded.Status)
	assert.NotNil(t, loaded.StartedAt)
}

func TestExecutionRepository_UpdateMissing(t *testing.T) {
	p := newTestPersistence(t)

	err := p.ExecutionRepository().UpdateExecution(context.Background(), &models.WorkflowExecution{ID: "ghost"})
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionRepository_NodeExecutions(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	require.NoError(t, p.ExecutionRepository().CreateExecution(ctx, &models.WorkflowExecution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		Status:     models.ExecutionStatusRunning,
	}))

	node := &models.NodeExecution{
		ID:          "ne-1",
		ExecutionID: "exec-1",
		NodeID:      "start",
		NodeType:    models.NodeTypeStart,
		Status:      models.ExecutionStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, p.ExecutionRepository().CreateNodeExecution(ctx, node))

	node.Status = models.ExecutionStatusSuccess
	node.OutputData = map[string]any{"message": "Workflow started"}
	require.NoError(t, p.ExecutionRepository().UpdateNodeExecution(ctx, node))

	nodes, err := p.ExecutionRepository().NodeExecutions(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, models.ExecutionStatusSuccess, nodes[0].Status)
	assert.Equal(t, "Workflow started", nodes[0].OutputData["message"])

	err = p.ExecutionRepository().UpdateNodeExecution(ctx, &models.NodeExecution{
		ID:          "ghost",
		ExecutionID: "exec-1",
	})
	assert.True(t, persistence.IsNodeExecutionNotFound(err))
}

func TestExecutionRepository_ListFiltersByWorkflowAndStatus(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	base := time.Now().UTC()

	for i, spec := range []struct {
		id         string
		workflowID string
		status     models.ExecutionStatus
	}{
		{"exec-1", "wf-1", models.ExecutionStatusSuccess},
		{"exec-2", "wf-1", models.ExecutionStatusFailed},
		{"exec-3", "wf-2", models.ExecutionStatusSuccess},
	} {
		require.NoError(t, p.ExecutionRepository().CreateExecution(ctx, &models.WorkflowExecution{
			ID:         spec.id,
			WorkflowID: spec.workflowID,
			Status:     spec.status,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	result, err := p.ExecutionRepository().ListExecutions(ctx, persistence.ListExecutionsOptions{WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalCount)

	success := models.ExecutionStatusSuccess
	result, err = p.ExecutionRepository().ListExecutions(ctx, persistence.ListExecutionsOptions{Status: &success})
	require.NoError(t, err)
	require.Len(t, result.Executions, 2)

	// Newest first.
	assert.Equal(t, "exec-3", result.Executions[0].ID)
}

func TestHealthCheck(t *testing.T) {
	dir := t.TempDir()

	p := NewPersistence(dir)
	assert.NoError(t, p.HealthCheck(context.Background()))

	missing := NewPersistence(dir + "/does-not-exist")
	assert.Error(t, missing.HealthCheck(context.Background()))
}
