// Package models defines the core domain models for node-based workflow execution.
package models

import "time"

// Workflow is the node+connection set for one workflow. The engine treats it
// as an immutable snapshot once a run has started.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Owner       string          `json:"owner"`
	Nodes       []*WorkflowNode `json:"nodes"`
	Connections []*Connection   `json:"connections"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// StartNode returns the first START-typed node, or nil if the workflow has none.
func (w *Workflow) StartNode() *WorkflowNode {
	for _, node := range w.Nodes {
		if node.Type == NodeTypeStart {
			return node
		}
	}

	return nil
}
