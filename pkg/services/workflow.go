package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/graph"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/registry"
)

var workflowSortFields = []string{"created_at", "updated_at", "name"}

// Workflow is the workflow management service.
type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
}

// NewWorkflow creates a workflow service. The registry is used to validate
// node configurations during pre-flight validation; pass nil to limit
// validation to graph structure.
func NewWorkflow(persist persistence.Persistence, reg *registry.Registry) *Workflow {
	return &Workflow{
		persistence: persist,
		registry:    reg,
		validate:    validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if err := w.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	Limit     int
	Offset    int
	OwnerID   string
	SortBy    string
	SortOrder string
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering, sorting and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	if !slices.Contains(workflowSortFields, req.SortBy) {
		return nil, ErrInvalidSortField
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return nil, ErrInvalidSortOrder
	}

	result, err := w.persistence.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{
		OwnerID:   req.OwnerID,
		Limit:     req.Limit,
		Offset:    req.Offset,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   result.Workflows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// GetWorkflow retrieves a workflow by id.
func (w *Workflow) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// SaveWorkflowRequest carries a workflow definition to create or replace.
type SaveWorkflowRequest struct {
	ID          string                 `validate:"omitempty"`
	Name        string                 `validate:"required,min=3"`
	Description string                 `validate:"omitempty"`
	Owner       string                 `validate:"omitempty"`
	Nodes       []*models.WorkflowNode `validate:"dive"`
	Connections []*models.Connection   `validate:"dive"`
	Metadata    map[string]any
}

// SaveWorkflow creates or replaces a workflow definition. The graph is not
// structurally validated here; drafts with dangling edges are storable and
// rejected at run time or by ValidateWorkflow.
func (w *Workflow) SaveWorkflow(ctx context.Context, req SaveWorkflowRequest) (*models.Workflow, error) {
	if err := w.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	workflow := &models.Workflow{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Owner:       req.Owner,
		Nodes:       req.Nodes,
		Connections: req.Connections,
		Metadata:    req.Metadata,
	}
	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// DeleteWorkflow removes a workflow definition.
func (w *Workflow) DeleteWorkflow(ctx context.Context, id string) error {
	return w.persistence.WorkflowRepository().Delete(ctx, id)
}

// ValidationReport is the outcome of pre-flight workflow validation.
type ValidationReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidateWorkflow runs structural graph checks plus per-node configuration
// validation against the executor registry, without executing anything.
func (w *Workflow) ValidateWorkflow(ctx context.Context, id string) (*ValidationReport, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	errs := graph.ValidateWorkflow(workflow.Nodes, workflow.Connections)

	if w.registry != nil {
		for _, node := range workflow.Nodes {
			result := w.registry.Validate(node.Type, node.Data)
			if !result.Valid {
				errs = append(errs, fmt.Sprintf("node %s (%s): %s",
					node.Name, node.ID, strings.Join(result.Errors, "; ")))
			}
		}
	}

	if len(errs) == 0 {
		return &ValidationReport{Valid: true, Errors: []string{}}, nil
	}

	return &ValidationReport{Valid: false, Errors: errs}, nil
}
