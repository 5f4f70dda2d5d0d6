// Package start provides the START node executor that seeds a run with its
// trigger data.
package start

import (
	"context"
	"time"

	"github.com/loomworks/loom/pkg/models"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// StartExecutor passes trigger input through, annotated with run metadata.
type StartExecutor struct{}

func NewStartExecutor() *StartExecutor {
	return &StartExecutor{}
}

func (e *StartExecutor) Type() models.NodeType {
	return models.NodeTypeStart
}

func (e *StartExecutor) Name() string {
	return "Start Node"
}

func (e *StartExecutor) Description() string {
	return "Workflow trigger that initializes execution data"
}

func (e *StartExecutor) Execute(_ context.Context, _ map[string]any, input map[string]any, run models.RuntimeContext) (map[string]any, error) {
	logger := run.Log()
	logger.Info("Initializing workflow execution")

	result := map[string]any{
		"message":     "Workflow started",
		"timestamp":   time.Now().UTC().Format(timestampFormat),
		"executionId": run.ExecutionID,
		"nodeId":      run.NodeID,
	}

	// Input fields win over the metadata on key collisions.
	for key, value := range input {
		result[key] = value
	}

	logger.Info("Workflow initialized", "input_fields", len(input))

	return result, nil
}

// Validate accepts any configuration. Start nodes carry no required fields.
func (e *StartExecutor) Validate(_ map[string]any) models.ValidationResult {
	return models.NewValidationResult(nil)
}

func (e *StartExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label": map[string]any{
				"type":        "string",
				"title":       "Label",
				"description": "Display name for the start node",
			},
			"description": map[string]any{
				"type":        "string",
				"title":       "Description",
				"description": "What this start node does",
			},
		},
	}
}
