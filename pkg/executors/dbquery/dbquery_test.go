package dbquery

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

func newTestExecutor() *DatabaseQueryExecutor {
	return NewDatabaseQueryExecutor(template.NewResolver(slog.Default()))
}

func TestDatabaseQueryExecutor_Execute_Select(t *testing.T) {
	executor := newTestExecutor()

	config := map[string]any{
		"queryType": "SELECT",
		"query":     "SELECT * FROM users WHERE id = {{userId}}",
	}

	output, err := executor.Execute(context.Background(), config, map[string]any{"userId": "7"}, models.RuntimeContext{})
	require.NoError(t, err)

	assert.Equal(t, "SELECT", output["queryType"])
	assert.Equal(t, 2, output["rowCount"])
	assert.Equal(t, "users", output["tableName"])
	assert.Equal(t, "SELECT * FROM users WHERE id = 7", output["originalQuery"])
	assert.Equal(t, true, output["success"])

	rows, ok := output["rows"].([]any)
	require.True(t, ok)
	assert.Len(t, rows, 2)
}

func TestDatabaseQueryExecutor_Execute_Insert(t *testing.T) {
	executor := newTestExecutor()

	config := map[string]any{
		"queryType": "INSERT",
		"query":     "INSERT INTO orders (total) VALUES (10)",
		"tableName": "orders",
	}

	output, err := executor.Execute(context.Background(), config, nil, models.RuntimeContext{})
	require.NoError(t, err)

	assert.Equal(t, "INSERT", output["queryType"])
	assert.Equal(t, 1, output["affectedRows"])
	assert.Equal(t, "orders", output["tableName"])

	insertedID, ok := output["insertedId"].(int)
	require.True(t, ok)
	assert.GreaterOrEqual(t, insertedID, 100)
	assert.Less(t, insertedID, 1100)
}

func TestDatabaseQueryExecutor_Execute_UnknownTypeReturnsEmptySelect(t *testing.T) {
	executor := newTestExecutor()

	output, err := executor.Execute(context.Background(), map[string]any{"query": "SHOW TABLES"}, nil, models.RuntimeContext{})
	require.NoError(t, err)

	assert.Equal(t, "SELECT", output["queryType"])
	assert.Equal(t, 0, output["rowCount"])
	assert.Equal(t, []any{}, output["rows"])
}

func TestDatabaseQueryExecutor_Validate(t *testing.T) {
	executor := newTestExecutor()

	result := executor.Validate(map[string]any{})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "SQL query is required")

	result = executor.Validate(map[string]any{
		"query":     "SELECT 1",
		"queryType": "MERGE",
	})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "Invalid query type. Must be one of: SELECT, INSERT, UPDATE, DELETE")

	result = executor.Validate(map[string]any{"query": "DROP TABLE users"})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "DROP statements are not allowed for security reasons")

	result = executor.Validate(map[string]any{
		"query":     "SELECT * FROM users",
		"queryType": "SELECT",
	})
	assert.True(t, result.Valid)
}

func TestDatabaseQueryExecutor_ValidateRejectsDropVariants(t *testing.T) {
	executor := newTestExecutor()

	for _, query := range []string{
		"SELECT 1; drop\ntable users",
		"select 1;\tDROP\ttable users",
		"SELECT 1; DROP",
		"delete from t; drop table t;",
	} {
		result := executor.Validate(map[string]any{"query": query})
		assert.False(t, result.Valid, "query %q should be rejected", query)
		assert.Contains(t, result.Errors, "DROP statements are not allowed for security reasons")
	}

	// "drop" inside a larger identifier is not a DROP statement.
	result := executor.Validate(map[string]any{
		"query":     "SELECT dropdown_state FROM widgets",
		"queryType": "SELECT",
	})
	assert.True(t, result.Valid)
}
