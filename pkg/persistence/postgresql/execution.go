package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
)

// ExecutionRepository stores runs and their node execution trail.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (er *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	inputData, outputData, err := marshalExecutionData(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	_, err = er.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, user_id, status, input_data, output_data, error, started_at, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		execution.ID, execution.WorkflowID, nullString(execution.UserID), execution.Status,
		inputData, outputData, nullString(execution.Error),
		execution.StartedAt, execution.CompletedAt, execution.CreatedAt)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	inputData, outputData, err := marshalExecutionData(execution)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	result, err := er.db.ExecContext(ctx, `
		UPDATE workflow_executions
		SET status = $2, input_data = $3, output_data = $4, error = $5, started_at = $6, completed_at = $7
		WHERE id = $1`,
		execution.ID, execution.Status, inputData, outputData,
		nullString(execution.Error), execution.StartedAt, execution.CompletedAt)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	return nil
}

func (er *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	row := er.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, user_id, status, input_data, output_data, error, started_at, completed_at, created_at
		FROM workflow_executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

func (er *ExecutionRepository) ListExecutions(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	where := "WHERE 1=1"
	args := []any{}

	if opts.WorkflowID != "" {
		args = append(args, opts.WorkflowID)
		where += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var totalCount int64
	if err := er.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_executions "+where, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, workflow_id, user_id, status, input_data, output_data, error, started_at, completed_at, created_at
		FROM workflow_executions %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)

	args = append(args, opts.Limit, opts.Offset)

	rows, err := er.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	executions := make([]*models.WorkflowExecution, 0, opts.Limit)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return &persistence.ExecutionListResult{
		Executions:  executions,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(executions)) < totalCount,
	}, nil
}

func (er *ExecutionRepository) CreateNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error {
	inputData, outputData, err := marshalNodeData(nodeExecution)
	if err != nil {
		return persistence.NewExecutionError("CreateNode", nodeExecution.ExecutionID, err)
	}

	_, err = er.db.ExecContext(ctx, `
		INSERT INTO node_executions (id, execution_id, node_id, node_type, status, input_data, output_data, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		nodeExecution.ID, nodeExecution.ExecutionID, nodeExecution.NodeID, nodeExecution.NodeType,
		nodeExecution.Status, inputData, outputData, nullString(nodeExecution.Error),
		nodeExecution.StartedAt, nodeExecution.CompletedAt)
	if err != nil {
		return persistence.NewExecutionError("CreateNode", nodeExecution.ExecutionID, err)
	}

	return nil
}

func (er *ExecutionRepository) UpdateNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error {
	inputData, outputData, err := marshalNodeData(nodeExecution)
	if err != nil {
		return persistence.NewExecutionError("UpdateNode", nodeExecution.ExecutionID, err)
	}

	result, err := er.db.ExecContext(ctx, `
		UPDATE node_executions
		SET status = $2, input_data = $3, output_data = $4, error = $5, completed_at = $6
		WHERE id = $1`,
		nodeExecution.ID, nodeExecution.Status, inputData, outputData,
		nullString(nodeExecution.Error), nodeExecution.CompletedAt)
	if err != nil {
		return persistence.NewExecutionError("UpdateNode", nodeExecution.ExecutionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("UpdateNode", nodeExecution.ExecutionID, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("UpdateNode", nodeExecution.ExecutionID, persistence.ErrNodeExecutionNotFound)
	}

	return nil
}

func (er *ExecutionRepository) NodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	rows, err := er.db.QueryContext(ctx, `
		SELECT id, execution_id, node_id, node_type, status, input_data, output_data, error, started_at, completed_at
		FROM node_executions WHERE execution_id = $1
		ORDER BY started_at ASC`, executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("Nodes", executionID, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	nodes := make([]*models.NodeExecution, 0)

	for rows.Next() {
		var (
			node       models.NodeExecution
			inputData  []byte
			outputData []byte
			nodeErr    sql.NullString
		)

		err := rows.Scan(&node.ID, &node.ExecutionID, &node.NodeID, &node.NodeType, &node.Status,
			&inputData, &outputData, &nodeErr, &node.StartedAt, &node.CompletedAt)
		if err != nil {
			return nil, persistence.NewExecutionError("Nodes", executionID, err)
		}

		node.Error = nodeErr.String

		if err := unmarshalInto(inputData, &node.InputData); err != nil {
			return nil, persistence.NewExecutionError("Nodes", executionID, err)
		}

		if err := unmarshalInto(outputData, &node.OutputData); err != nil {
			return nil, persistence.NewExecutionError("Nodes", executionID, err)
		}

		nodes = append(nodes, &node)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewExecutionError("Nodes", executionID, err)
	}

	return nodes, nil
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution  models.WorkflowExecution
		userID     sql.NullString
		inputData  []byte
		outputData []byte
		execErr    sql.NullString
	)

	err := row.Scan(&execution.ID, &execution.WorkflowID, &userID, &execution.Status,
		&inputData, &outputData, &execErr,
		&execution.StartedAt, &execution.CompletedAt, &execution.CreatedAt)
	if err != nil {
		return nil, err
	}

	execution.UserID = userID.String
	execution.Error = execErr.String

	if err := unmarshalInto(inputData, &execution.InputData); err != nil {
		return nil, err
	}

	if err := unmarshalInto(outputData, &execution.OutputData); err != nil {
		return nil, err
	}

	return &execution, nil
}

func marshalExecutionData(execution *models.WorkflowExecution) ([]byte, []byte, error) {
	return marshalDataPair(execution.InputData, execution.OutputData)
}

func marshalNodeData(nodeExecution *models.NodeExecution) ([]byte, []byte, error) {
	return marshalDataPair(nodeExecution.InputData, nodeExecution.OutputData)
}

func marshalDataPair(input, output map[string]any) ([]byte, []byte, error) {
	var (
		inputData  []byte
		outputData []byte
		err        error
	)

	if input != nil {
		inputData, err = json.Marshal(input)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode input data: %w", err)
		}
	}

	if output != nil {
		outputData, err = json.Marshal(output)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode output data: %w", err)
		}
	}

	return inputData, outputData, nil
}

func unmarshalInto(data []byte, target *map[string]any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, target)
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
