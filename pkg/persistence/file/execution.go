package file

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
)

// ExecutionRepository stores each run in its own directory under
// <root>/executions: execution.json for the run record and nodes.json for
// the per-node trail.
type ExecutionRepository struct {
	root string
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) dir() string {
	return filepath.Join(er.root, "executions")
}

func (er *ExecutionRepository) executionPath(id string) string {
	return filepath.Join(er.dir(), id, "execution.json")
}

func (er *ExecutionRepository) nodesPath(id string) string {
	return filepath.Join(er.dir(), id, "nodes.json")
}

func (er *ExecutionRepository) CreateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	if err := os.MkdirAll(filepath.Join(er.dir(), execution.ID), dirPerm); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return er.writeExecution("Create", execution)
}

func (er *ExecutionRepository) UpdateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	if _, err := os.Stat(er.executionPath(execution.ID)); os.IsNotExist(err) {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	return er.writeExecution("Update", execution)
}

func (er *ExecutionRepository) writeExecution(op string, execution *models.WorkflowExecution) error {
	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return persistence.NewExecutionError(op, execution.ID, err)
	}

	if err := os.WriteFile(er.executionPath(execution.ID), data, filePerm); err != nil {
		return persistence.NewExecutionError(op, execution.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) ExecutionByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	data, err := os.ReadFile(er.executionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	var execution models.WorkflowExecution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return &execution, nil
}

func (er *ExecutionRepository) ListExecutions(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	entries, err := fs.Glob(os.DirFS(er.dir()), "*/execution.json")
	if err != nil || len(entries) == 0 {
		return &persistence.ExecutionListResult{
			Executions: make([]*models.WorkflowExecution, 0),
		}, nil
	}

	executions := make([]*models.WorkflowExecution, 0, len(entries))

	for _, entry := range entries {
		id := strings.Split(entry, "/")[0]

		execution, err := er.ExecutionByID(ctx, id)
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			return nil, err
		}

		if opts.WorkflowID != "" && execution.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.Status != nil && execution.Status != *opts.Status {
			continue
		}

		executions = append(executions, execution)
	}

	// Newest first.
	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	totalCount := int64(len(executions))

	start := opts.Offset
	if start > len(executions) {
		start = len(executions)
	}

	end := start + opts.Limit
	if end > len(executions) {
		end = len(executions)
	}

	return &persistence.ExecutionListResult{
		Executions:  executions[start:end],
		TotalCount:  totalCount,
		HasNextPage: int64(end) < totalCount,
	}, nil
}

func (er *ExecutionRepository) CreateNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error {
	nodes, err := er.readNodes(nodeExecution.ExecutionID)
	if err != nil {
		return persistence.NewExecutionError("CreateNode", nodeExecution.ExecutionID, err)
	}

	nodes = append(nodes, nodeExecution)

	return er.writeNodes("CreateNode", nodeExecution.ExecutionID, nodes)
}

func (er *ExecutionRepository) UpdateNodeExecution(_ context.Context, nodeExecution *models.NodeExecution) error {
	nodes, err := er.readNodes(nodeExecution.ExecutionID)
	if err != nil {
		return persistence.NewExecutionError("UpdateNode", nodeExecution.ExecutionID, err)
	}

	for i, node := range nodes {
		if node.ID == nodeExecution.ID {
			nodes[i] = nodeExecution

			return er.writeNodes("UpdateNode", nodeExecution.ExecutionID, nodes)
		}
	}

	return persistence.NewExecutionError("UpdateNode", nodeExecution.ExecutionID, persistence.ErrNodeExecutionNotFound)
}

func (er *ExecutionRepository) NodeExecutions(_ context.Context, executionID string) ([]*models.NodeExecution, error) {
	nodes, err := er.readNodes(executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("Nodes", executionID, err)
	}

	return nodes, nil
}

func (er *ExecutionRepository) readNodes(executionID string) ([]*models.NodeExecution, error) {
	data, err := os.ReadFile(er.nodesPath(executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return make([]*models.NodeExecution, 0), nil
		}

		return nil, err
	}

	var nodes []*models.NodeExecution
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, err
	}

	return nodes, nil
}

func (er *ExecutionRepository) writeNodes(op, executionID string, nodes []*models.NodeExecution) error {
	if err := os.MkdirAll(filepath.Join(er.dir(), executionID), dirPerm); err != nil {
		return persistence.NewExecutionError(op, executionID, err)
	}

	data, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return persistence.NewExecutionError(op, executionID, err)
	}

	if err := os.WriteFile(er.nodesPath(executionID), data, filePerm); err != nil {
		return persistence.NewExecutionError(op, executionID, err)
	}

	return nil
}
