package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_NodeByID(t *testing.T) {
	workflow := &Workflow{
		ID: "wf-1",
		Nodes: []*WorkflowNode{
			{ID: "start-1", Type: NodeTypeStart, Name: "Start"},
			{ID: "http-1", Type: NodeTypeHTTPRequest, Name: "Fetch"},
		},
	}

	node := workflow.NodeByID("http-1")
	require.NotNil(t, node)
	assert.Equal(t, NodeTypeHTTPRequest, node.Type)

	assert.Nil(t, workflow.NodeByID("missing"))
}

func TestWorkflow_StartNode(t *testing.T) {
	workflow := &Workflow{
		Nodes: []*WorkflowNode{
			{ID: "action-1", Type: NodeTypeAction},
			{ID: "start-1", Type: NodeTypeStart},
		},
	}

	start := workflow.StartNode()
	require.NotNil(t, start)
	assert.Equal(t, "start-1", start.ID)

	empty := &Workflow{Nodes: []*WorkflowNode{{ID: "a", Type: NodeTypeAction}}}
	assert.Nil(t, empty.StartNode())
}

func TestConnection_OutputKey(t *testing.T) {
	named := &Connection{SourceNodeID: "start-1", SourceOutput: "trigger"}
	assert.Equal(t, "trigger", named.OutputKey())

	unnamed := &Connection{SourceNodeID: "start-1"}
	assert.Equal(t, "start-1", unnamed.OutputKey())
}

func TestExecutionStatus_IsTerminal(t *testing.T) {
	assert.False(t, ExecutionStatusPending.IsTerminal())
	assert.False(t, ExecutionStatusRunning.IsTerminal())
	assert.True(t, ExecutionStatusSuccess.IsTerminal())
	assert.True(t, ExecutionStatusFailed.IsTerminal())
	assert.True(t, ExecutionStatusCancelled.IsTerminal())
}

func TestExecutionContext_Outputs(t *testing.T) {
	ctx := NewExecutionContext("exec-1", "wf-1", "user-1", map[string]any{"id": "42"})

	_, ok := ctx.Output("start-1")
	assert.False(t, ok)

	ctx.SetOutput("start-1", map[string]any{"message": "Workflow started"})

	output, ok := ctx.Output("start-1")
	require.True(t, ok)
	assert.Equal(t, "Workflow started", output["message"])
}

func TestNewValidationResult(t *testing.T) {
	ok := NewValidationResult(nil)
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Errors)

	bad := NewValidationResult([]string{"Endpoint URL is required"})
	assert.False(t, bad.Valid)
	assert.Len(t, bad.Errors, 1)
}
