// Package dbquery provides the DATABASE_QUERY node executor. Query results
// are simulated until a real database integration lands.
package dbquery

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

const (
	defaultQuery     = "SELECT * FROM users WHERE id = {{trigger.data.userId}}"
	defaultTableName = "users"
	queryDelay       = 150 * time.Millisecond
	timestampFormat  = "2006-01-02T15:04:05.000Z07:00"
)

var validQueryTypes = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
}

// DatabaseQueryExecutor resolves a templated SQL query and simulates
// executing it.
type DatabaseQueryExecutor struct {
	resolver *template.Resolver
}

func NewDatabaseQueryExecutor(resolver *template.Resolver) *DatabaseQueryExecutor {
	return &DatabaseQueryExecutor{resolver: resolver}
}

func (e *DatabaseQueryExecutor) Type() models.NodeType {
	return models.NodeTypeDatabaseQuery
}

func (e *DatabaseQueryExecutor) Name() string {
	return "Database Query Node"
}

func (e *DatabaseQueryExecutor) Description() string {
	return "Executes database queries"
}

func (e *DatabaseQueryExecutor) Execute(ctx context.Context, config map[string]any, input map[string]any, run models.RuntimeContext) (map[string]any, error) {
	logger := run.Log()
	logger.Info("Executing database query node")

	query, _ := config["query"].(string)
	if query == "" {
		query = defaultQuery
	}

	queryType, _ := config["queryType"].(string)

	tableName, _ := config["tableName"].(string)
	if tableName == "" {
		tableName = defaultTableName
	}

	processedQuery := e.resolver.Resolve(query, input)

	logger.Info("Executing query", "query_type", queryTypeOrSelect(queryType), "query", processedQuery)

	result := simulateQuery(queryType, tableName)

	// Simulated query latency.
	select {
	case <-time.After(queryDelay):
	case <-ctx.Done():
		return nil, fmt.Errorf("database query failed: %w", ctx.Err())
	}

	result["timestamp"] = time.Now().UTC().Format(timestampFormat)
	result["originalQuery"] = processedQuery
	result["success"] = true

	logger.Info("Database query completed successfully")

	return result, nil
}

func (e *DatabaseQueryExecutor) Validate(config map[string]any) models.ValidationResult {
	var errs []string

	query, _ := config["query"].(string)
	if query == "" {
		errs = append(errs, "SQL query is required")
	}

	if queryType, ok := config["queryType"].(string); ok && queryType != "" && !validQueryTypes[queryType] {
		errs = append(errs, "Invalid query type. Must be one of: SELECT, INSERT, UPDATE, DELETE")
	}

	if containsDropStatement(query) {
		errs = append(errs, "DROP statements are not allowed for security reasons")
	}

	return models.NewValidationResult(errs)
}

// containsDropStatement reports whether the query contains DROP as a
// standalone word, whatever whitespace or punctuation surrounds it.
func containsDropStatement(query string) bool {
	for _, word := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if word == "drop" {
			return true
		}
	}

	return false
}

func (e *DatabaseQueryExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"queryType": map[string]any{
				"type":        "string",
				"enum":        []any{"SELECT", "INSERT", "UPDATE", "DELETE"},
				"title":       "Query Type",
				"description": "Type of SQL query to execute",
			},
			"query": map[string]any{
				"type":        "string",
				"title":       "SQL Query",
				"description": "SQL query to execute (supports templating)",
			},
			"tableName": map[string]any{
				"type":        "string",
				"title":       "Table Name",
				"description": "Target table name (for SELECT queries)",
			},
		},
		"required": []any{"query"},
	}
}

func simulateQuery(queryType, tableName string) map[string]any {
	switch queryType {
	case "SELECT":
		return map[string]any{
			"queryType": "SELECT",
			"rows": []any{
				map[string]any{"id": 1, "name": "John Doe", "email": "john@example.com"},
				map[string]any{"id": 2, "name": "Jane Smith", "email": "jane@example.com"},
			},
			"rowCount":  2,
			"tableName": tableName,
		}
	case "INSERT":
		return map[string]any{
			"queryType":    "INSERT",
			"insertedId":   rand.Intn(1000) + 100,
			"affectedRows": 1,
			"tableName":    tableName,
		}
	case "UPDATE":
		return map[string]any{
			"queryType":    "UPDATE",
			"affectedRows": 1,
			"tableName":    tableName,
		}
	case "DELETE":
		return map[string]any{
			"queryType":    "DELETE",
			"affectedRows": 1,
			"tableName":    tableName,
		}
	default:
		return map[string]any{
			"queryType": "SELECT",
			"rows":      []any{},
			"rowCount":  0,
			"tableName": tableName,
		}
	}
}

func queryTypeOrSelect(queryType string) string {
	if queryType == "" {
		return "SELECT"
	}

	return queryType
}
