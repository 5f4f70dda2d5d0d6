package protocol

import (
	"context"

	"github.com/loomworks/loom/pkg/models"
)

// Executor runs a single workflow node. Implementations are registered by
// node type and must be safe for concurrent use across executions.
type Executor interface {
	// Type returns the node type this executor handles.
	Type() models.NodeType

	// Name returns a short human readable name for catalog listings.
	Name() string

	// Description explains what the executor does.
	Description() string

	// Execute runs the node with its resolved configuration and the input
	// gathered from upstream nodes. The returned map becomes the node's
	// output in the execution context.
	Execute(ctx context.Context, config map[string]any, input map[string]any, run models.RuntimeContext) (map[string]any, error)

	// Validate checks the node configuration without executing it.
	Validate(config map[string]any) models.ValidationResult

	// Schema returns the JSON schema describing the node configuration.
	Schema() map[string]any
}

// ExecutorFactory creates executor instances, allowing implementations to
// capture shared dependencies at construction time.
type ExecutorFactory interface {
	Create() (Executor, error)
}
