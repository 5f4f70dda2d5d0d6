package models

import (
	"log/slog"
	"time"
)

// ExecutionStatus is the lifecycle state shared by runs and node executions.
// Terminal states are final; no further node execution happens after one is
// reached.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusSuccess   ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
)

// IsTerminal reports whether the status permits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// WorkflowExecution is one end-to-end invocation of a workflow graph.
// OutputData accumulates per-node results keyed by node id.
type WorkflowExecution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id" validate:"required"`
	UserID      string          `json:"user_id,omitempty"`
	Status      ExecutionStatus `json:"status"`
	InputData   map[string]any  `json:"input_data,omitempty"`
	OutputData  map[string]any  `json:"output_data,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NodeExecution records one node's outcome within a run. It is created
// RUNNING immediately before the executor is invoked and never re-executed
// within the same run.
type NodeExecution struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id" validate:"required"`
	NodeID      string          `json:"node_id"      validate:"required"`
	NodeType    NodeType        `json:"node_type"`
	Status      ExecutionStatus `json:"status"`
	InputData   map[string]any  `json:"input_data,omitempty"`
	OutputData  map[string]any  `json:"output_data,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ExecutionContext is the accumulated state threaded through one run. It is
// owned exclusively by the run's orchestrator loop and mutated only between
// steps; executors see it only through the input map they are handed.
type ExecutionContext struct {
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	UserID      string         `json:"user_id,omitempty"`
	Input       map[string]any `json:"input"`
	NodeOutputs map[string]any `json:"node_outputs"`
}

// NewExecutionContext seeds a context with the run's input data.
func NewExecutionContext(executionID, workflowID, userID string, input map[string]any) *ExecutionContext {
	if input == nil {
		input = make(map[string]any)
	}

	return &ExecutionContext{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		UserID:      userID,
		Input:       input,
		NodeOutputs: make(map[string]any),
	}
}

// SetOutput stores a completed node's output under its node id.
func (c *ExecutionContext) SetOutput(nodeID string, output map[string]any) {
	c.NodeOutputs[nodeID] = output
}

// Output looks up a node's stored output.
func (c *ExecutionContext) Output(nodeID string) (map[string]any, bool) {
	raw, ok := c.NodeOutputs[nodeID]
	if !ok {
		return nil, false
	}

	output, ok := raw.(map[string]any)

	return output, ok
}

// RuntimeContext carries run identity into an executor invocation.
type RuntimeContext struct {
	ExecutionID string
	NodeID      string
	WorkflowID  string
	UserID      string
	StartedAt   time.Time
	Logger      *slog.Logger
}

// Log returns the run logger, falling back to the default logger when the
// context was built without one.
func (r RuntimeContext) Log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}

	return slog.Default()
}
