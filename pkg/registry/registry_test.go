package registry

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/executors/start"
	"github.com/loomworks/loom/pkg/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	return NewRegistry(slog.Default())
}

func TestRegistry_RegisterDuplicateFails(t *testing.T) {
	registry := newTestRegistry(t)

	require.NoError(t, registry.Register(start.NewStartExecutor()))

	err := registry.Register(start.NewStartExecutor())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_GetUnknownType(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := registry.Get(models.NodeTypeEmail)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_RegisterDefaults(t *testing.T) {
	registry := newTestRegistry(t)

	require.NoError(t, registry.RegisterDefaults())

	for _, nodeType := range []models.NodeType{
		models.NodeTypeStart,
		models.NodeTypeAction,
		models.NodeTypeCondition,
		models.NodeTypeHTTPRequest,
		models.NodeTypeEmail,
		models.NodeTypeDatabaseQuery,
	} {
		executor, err := registry.Get(nodeType)
		require.NoError(t, err, "expected executor for %s", nodeType)
		assert.Equal(t, nodeType, executor.Type())
	}

	assert.Len(t, registry.All(), 6)
}

func TestRegistry_AllIsSortedByType(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.RegisterDefaults())

	executors := registry.All()

	for i := 1; i < len(executors); i++ {
		assert.Less(t, string(executors[i-1].Type()), string(executors[i].Type()))
	}
}

func TestRegistry_ValidateUnknownType(t *testing.T) {
	registry := newTestRegistry(t)

	result := registry.Validate(models.NodeTypeCondition, map[string]any{})
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "not registered")
}

func TestRegistry_ValidateDelegatesToExecutor(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.RegisterDefaults())

	result := registry.Validate(models.NodeTypeHTTPRequest, map[string]any{})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "Endpoint URL is required")

	result = registry.Validate(models.NodeTypeHTTPRequest, map[string]any{
		"endpoint": "https://example.com/hook",
		"method":   "POST",
	})
	assert.True(t, result.Valid)
}

func TestRegistry_ValidateAppliesSchema(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.RegisterDefaults())

	// Passes executor validation but violates the schema's timeout bounds.
	result := registry.Validate(models.NodeTypeHTTPRequest, map[string]any{
		"endpoint": "https://example.com/hook",
		"timeout":  float64(10),
	})
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestRegistry_Schema(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.RegisterDefaults())

	schema, err := registry.Schema(models.NodeTypeEmail)
	require.NoError(t, err)
	assert.Equal(t, "object", schema["type"])

	_, err = registry.Schema(models.NodeType("UNKNOWN"))
	require.Error(t, err)
}
