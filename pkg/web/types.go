package web

import "github.com/loomworks/loom/pkg/models"

// CreateWorkflowRequest carries a full workflow definition, nodes and
// connections included.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"        validate:"required,min=3"`
	Description string                 `json:"description"`
	Owner       string                 `json:"owner"`
	Nodes       []*models.WorkflowNode `json:"nodes"`
	Connections []*models.Connection   `json:"connections"`
	Metadata    map[string]any         `json:"metadata"`
}

// UpdateWorkflowRequest applies partial updates; nil fields are left as-is.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name"        validate:"omitempty,min=3"`
	Description *string                `json:"description"`
	Owner       *string                `json:"owner"`
	Nodes       []*models.WorkflowNode `json:"nodes"`
	Connections []*models.Connection   `json:"connections"`
	Metadata    map[string]any         `json:"metadata"`
}

// TriggerRunRequest starts a new execution of a workflow.
type TriggerRunRequest struct {
	UserID    string         `json:"user_id"`
	InputData map[string]any `json:"input_data"`
}

// CancelExecutionRequest asks for a run to be stopped.
type CancelExecutionRequest struct {
	Reason string `json:"reason"`
}

// ExecutorInfo describes one registered executor for the catalog endpoint.
type ExecutorInfo struct {
	Type        models.NodeType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      map[string]any  `json:"schema"`
}
