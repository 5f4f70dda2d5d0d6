package models

import "time"

// NodeType is the wire-stable discriminator for a node's executor.
type NodeType string

const (
	NodeTypeStart         NodeType = "START"
	NodeTypeAction        NodeType = "ACTION"
	NodeTypeCondition     NodeType = "CONDITION"
	NodeTypeHTTPRequest   NodeType = "HTTP_REQUEST"
	NodeTypeEmail         NodeType = "EMAIL"
	NodeTypeDatabaseQuery NodeType = "DATABASE_QUERY"
	NodeTypeEnd           NodeType = "END" // Reserved, no executor ships for it yet
)

// WorkflowNode is a unit of work in a workflow graph. Data holds the
// type-specific configuration map; Position* are editor concerns the engine
// ignores.
type WorkflowNode struct {
	ID         string         `json:"id"          validate:"required"`
	WorkflowID string         `json:"workflow_id"`
	Type       NodeType       `json:"type"        validate:"required"`
	Name       string         `json:"name"        validate:"required,min=1"`
	Data       map[string]any `json:"data"`
	PositionX  int            `json:"position_x"`
	PositionY  int            `json:"position_y"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (n *WorkflowNode) IsStart() bool {
	return n.Type == NodeTypeStart
}

// Connection is a directed edge wiring one node's output channel to another
// node's input. SourceHandle/TargetHandle are editor port identifiers; only
// SourceOutput participates in execution semantics, naming the context key
// the upstream output is placed under for the downstream node.
type Connection struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflow_id"`
	SourceNodeID string    `json:"source_node_id" validate:"required"`
	TargetNodeID string    `json:"target_node_id" validate:"required"`
	SourceHandle string    `json:"source_handle,omitempty"`
	TargetHandle string    `json:"target_handle,omitempty"`
	SourceOutput string    `json:"source_output,omitempty"`
	TargetInput  string    `json:"target_input,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OutputKey returns the context key upstream output is delivered under.
// Falls back to the source node id when the connection does not rename it.
func (c *Connection) OutputKey() string {
	if c.SourceOutput != "" {
		return c.SourceOutput
	}

	return c.SourceNodeID
}

// ValidationResult is the outcome of validating a node configuration.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// NewValidationResult builds a result whose validity follows from the
// presence of errors.
func NewValidationResult(errs []string) ValidationResult {
	if len(errs) == 0 {
		return ValidationResult{Valid: true, Errors: []string{}}
	}

	return ValidationResult{Valid: false, Errors: errs}
}
