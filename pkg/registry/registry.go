// Package registry provides executor registration and lookup by node type.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	executors map[models.NodeType]protocol.Executor
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		executors: make(map[models.NodeType]protocol.Executor),
	}
}

// Register adds an executor for its node type. Registering the same type
// twice is an error.
func (r *Registry) Register(executor protocol.Executor) error {
	nodeType := executor.Type()
	if _, exists := r.executors[nodeType]; exists {
		return fmt.Errorf("executor for node type '%s' already registered", nodeType)
	}

	r.executors[nodeType] = executor
	r.logger.Debug("Registered executor", "node_type", nodeType)

	return nil
}

func (r *Registry) Get(nodeType models.NodeType) (protocol.Executor, error) {
	executor, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("executor for node type '%s' not registered", nodeType)
	}

	return executor, nil
}

// Validate checks a node configuration with the executor's own validation
// first, then against its JSON schema.
func (r *Registry) Validate(nodeType models.NodeType, config map[string]any) models.ValidationResult {
	executor, err := r.Get(nodeType)
	if err != nil {
		return models.NewValidationResult([]string{err.Error()})
	}

	result := executor.Validate(config)
	if !result.Valid {
		return result
	}

	schema := executor.Schema()
	if schema == nil {
		return result
	}

	return validateSchema(config, schema)
}

// Schema returns the JSON schema for a node type.
func (r *Registry) Schema(nodeType models.NodeType) (map[string]any, error) {
	executor, err := r.Get(nodeType)
	if err != nil {
		return nil, err
	}

	return executor.Schema(), nil
}

// All returns the registered executors ordered by node type.
func (r *Registry) All() []protocol.Executor {
	executors := make([]protocol.Executor, 0, len(r.executors))
	for _, executor := range r.executors {
		executors = append(executors, executor)
	}

	sort.Slice(executors, func(i, j int) bool {
		return executors[i].Type() < executors[j].Type()
	})

	return executors
}

func validateSchema(config map[string]any, schema map[string]any) models.ValidationResult {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return models.NewValidationResult([]string{fmt.Sprintf("schema validation failed: %s", err)})
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, strings.TrimSpace(desc.String()))
		}

		return models.NewValidationResult(errs)
	}

	return models.NewValidationResult(nil)
}
