// Package persistence provides the data storage abstraction for workflows
// and executions.
package persistence

import (
	"context"

	"github.com/loomworks/loom/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	List(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores runs and their per-node records. Node
// executions are written as the run progresses, so a crashed run leaves an
// inspectable trail.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ListExecutions(ctx context.Context, opts ListExecutionsOptions) (*ExecutionListResult, error)

	CreateNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error
	UpdateNodeExecution(ctx context.Context, nodeExecution *models.NodeExecution) error
	NodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecution, error)
}

// ListWorkflowsOptions filters and paginates workflow listings.
type ListWorkflowsOptions struct {
	OwnerID   string
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

type WorkflowListResult struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

// ListExecutionsOptions filters and paginates execution listings.
type ListExecutionsOptions struct {
	WorkflowID string
	Status     *models.ExecutionStatus
	Limit      int
	Offset     int
}

type ExecutionListResult struct {
	Executions  []*models.WorkflowExecution
	TotalCount  int64
	HasNextPage bool
}
