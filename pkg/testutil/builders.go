// Package testutil provides test data builders shared across packages.
package testutil

import (
	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/models"
)

// CreateTestNode creates a WorkflowNode with default values that can be
// overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:        uuid.New().String(),
		Type:      models.NodeTypeAction,
		Name:      "Test Node",
		Data:      map[string]any{"actionType": "webhook"},
		PositionX: 100,
		PositionY: 200,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithNodeID sets the node id.
func WithNodeID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// WithNodeType sets the node type.
func WithNodeType(nodeType models.NodeType) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithNodeData sets the node configuration map.
func WithNodeData(data map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Data = data
	}
}

// WithNodeName sets the node name.
func WithNodeName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = name
	}
}

// StartNode creates a START node with the given id.
func StartNode(id string) *models.WorkflowNode {
	return CreateTestNode(
		WithNodeID(id),
		WithNodeType(models.NodeTypeStart),
		WithNodeName("Start"),
		WithNodeData(map[string]any{}),
	)
}

// Connect creates a connection between two nodes.
func Connect(sourceID, targetID string, overrides ...func(*models.Connection)) *models.Connection {
	conn := &models.Connection{
		ID:           uuid.New().String(),
		SourceNodeID: sourceID,
		TargetNodeID: targetID,
	}

	for _, override := range overrides {
		override(conn)
	}

	return conn
}

// WithSourceOutput sets the key the upstream output is delivered under.
func WithSourceOutput(key string) func(*models.Connection) {
	return func(c *models.Connection) {
		c.SourceOutput = key
	}
}

// WithSourceHandle sets the branch handle on a connection.
func WithSourceHandle(handle string) func(*models.Connection) {
	return func(c *models.Connection) {
		c.SourceHandle = handle
	}
}

// CreateTestWorkflow creates a workflow from the given nodes and connections.
func CreateTestWorkflow(nodes []*models.WorkflowNode, connections []*models.Connection, overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Nodes:       nodes,
		Connections: connections,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}
