// Package workflow drives single workflow executions end to end: load the
// graph snapshot, validate it, compute an execution order, run nodes through
// the executor registry, persist per-step records and publish lifecycle
// events along the way.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/events"
	"github.com/loomworks/loom/pkg/graph"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/otelhelper"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/registry"
)

// MetricsRecorder receives run and node outcomes. Implementations must be
// safe for concurrent use; a nil recorder disables instrumentation.
type MetricsRecorder interface {
	ObserveExecution(status models.ExecutionStatus, duration time.Duration)
	ObserveNode(nodeType models.NodeType, status models.ExecutionStatus, duration time.Duration)
}

// Runner executes workflow runs sequentially, one node at a time. A single
// Runner may serve many concurrent runs; per-run state lives on the stack of
// each Run call. The cancellation registry maps execution ids to the cancel
// function of their in-flight run.
type Runner struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	workerID    string
	metrics     MetricsRecorder
	tracer      trace.Tracer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewRunner(
	logger *slog.Logger,
	persist persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	workerID string,
) *Runner {
	return &Runner{
		logger:      logger.With("module", "workflow_runner", "worker_id", workerID),
		persistence: persist,
		registry:    reg,
		eventBus:    eventBus,
		workerID:    workerID,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// SetMetrics attaches a metrics recorder. Call before the first Run.
func (r *Runner) SetMetrics(metrics MetricsRecorder) {
	r.metrics = metrics
}

// SetTracer attaches a tracer; spans then wrap runs and node executions.
// Call before the first Run.
func (r *Runner) SetTracer(tracer trace.Tracer) {
	r.tracer = tracer
}

// startSpan opens a span when tracing is enabled. The returned finish
// function records the error, if any, and ends the span.
func (r *Runner) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if r.tracer == nil {
		return ctx, func(error) {}
	}

	spanCtx, span := otelhelper.StartSpan(ctx, r.tracer, name, attrs...)

	return spanCtx, func(err error) {
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}
}

// Cancel requests cancellation of an in-flight run owned by this Runner.
// It reports whether the execution was found locally; the run itself winds
// down asynchronously and writes its own terminal state.
func (r *Runner) Cancel(executionID, reason string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[executionID]
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.logger.Info("Cancelling execution", "execution_id", executionID, "reason", reason)
	cancel()

	return true
}

// Run executes a PENDING execution to a terminal state. Executions in any
// other state are skipped, which makes redelivered run requests harmless.
// The returned error covers infrastructure failures (storage, missing
// workflow); node failures are absorbed into a FAILED execution record.
func (r *Runner) Run(ctx context.Context, executionID string) error {
	ctx, finish := r.startSpan(ctx, "workflow.run",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.WorkerIDKey, r.workerID),
	)

	err := r.run(ctx, executionID)
	finish(err)

	return err
}

func (r *Runner) run(ctx context.Context, executionID string) error {
	repo := r.persistence.ExecutionRepository()

	execution, err := repo.ExecutionByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("load execution %s: %w", executionID, err)
	}

	logger := r.logger.With("execution_id", execution.ID, "workflow_id", execution.WorkflowID)

	if execution.Status != models.ExecutionStatusPending {
		logger.Warn("Execution is not pending, skipping", "status", execution.Status)

		return nil
	}

	workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return fmt.Errorf("load workflow %s: %w", execution.WorkflowID, err)
	}

	if errs := graph.ValidateWorkflow(workflow.Nodes, workflow.Connections); len(errs) > 0 {
		return r.rejectRun(ctx, execution, workflow,
			fmt.Sprintf("workflow validation failed: %s", strings.Join(errs, "; ")))
	}

	startNode := workflow.StartNode()

	analysis := graph.Analyze(workflow.Nodes, workflow.Connections, startNode.ID)
	if !analysis.Valid {
		return r.rejectRun(ctx, execution, workflow,
			fmt.Sprintf("workflow contains cycles through nodes: %s", strings.Join(analysis.Cycles, ", ")))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.cancels[execution.ID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.cancels, execution.ID)
		r.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	execution.Status = models.ExecutionStatusRunning
	execution.StartedAt = &startedAt

	if execution.OutputData == nil {
		execution.OutputData = make(map[string]any)
	}

	if err := repo.UpdateExecution(ctx, execution); err != nil {
		return fmt.Errorf("mark execution %s running: %w", execution.ID, err)
	}

	logger.Info("Execution started", "nodes", len(workflow.Nodes))
	r.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:    r.baseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID:  execution.ID,
		WorkflowName: workflow.Name,
		InputData:    execution.InputData,
		Initiator:    execution.UserID,
	})

	execCtx := models.NewExecutionContext(execution.ID, workflow.ID, execution.UserID, execution.InputData)
	incoming := incomingConnections(workflow.Connections)
	skipped := make(map[string]bool)
	branches := make(map[string]string)
	executed := 0

	for _, nodeID := range analysis.Order {
		if runCtx.Err() != nil {
			return r.finishCancelled(ctx, execution, workflow, startedAt, "cancel requested")
		}

		node := workflow.NodeByID(nodeID)

		// A node with no incoming connections is an entry point and always
		// runs; skipping applies only to nodes whose every incoming edge
		// sits on an untaken branch.
		if node.ID != startNode.ID && len(incoming[node.ID]) > 0 && !anyEdgeTaken(incoming[node.ID], skipped, branches) {
			skipped[node.ID] = true

			logger.Info("Skipping node on untaken branch", "node_id", node.ID, "node_type", node.Type)

			continue
		}

		input := gatherInput(execCtx, incoming[node.ID], skipped, branches)

		output, nodeErr := r.runNode(runCtx, execution, workflow, node, input)
		if nodeErr != nil {
			if runCtx.Err() != nil && errors.Is(nodeErr, context.Canceled) {
				return r.finishCancelled(ctx, execution, workflow, startedAt, "cancel requested")
			}

			return r.finishFailed(ctx, execution, workflow, startedAt, node.ID, executed, nodeErr)
		}

		executed++

		execCtx.SetOutput(node.ID, output)
		execution.OutputData[node.ID] = output

		if err := repo.UpdateExecution(ctx, execution); err != nil {
			logger.Error("Failed to persist step output", "node_id", node.ID, "error", err)
		}

		if node.Type == models.NodeTypeCondition {
			if branch, ok := output["branch"].(string); ok {
				branches[node.ID] = branch
			}
		}
	}

	completedAt := time.Now().UTC()
	execution.Status = models.ExecutionStatusSuccess
	execution.CompletedAt = &completedAt

	if err := repo.UpdateExecution(ctx, execution); err != nil {
		return fmt.Errorf("mark execution %s succeeded: %w", execution.ID, err)
	}

	duration := completedAt.Sub(startedAt)

	logger.Info("Execution completed", "nodes_executed", executed, "duration_ms", duration.Milliseconds())
	r.observeExecution(models.ExecutionStatusSuccess, duration)
	r.publish(ctx, execution.ID, events.ExecutionCompleted{
		BaseEvent:     r.baseEvent(events.ExecutionCompletedEvent, workflow.ID),
		ExecutionID:   execution.ID,
		Status:        string(models.ExecutionStatusSuccess),
		DurationMs:    duration.Milliseconds(),
		NodesExecuted: executed,
		FinalResults:  execution.OutputData,
	})

	return nil
}

// runNode executes a single node with a persisted RUNNING step record
// bracketing the executor call.
func (r *Runner) runNode(
	ctx context.Context,
	execution *models.WorkflowExecution,
	workflow *models.Workflow,
	node *models.WorkflowNode,
	input map[string]any,
) (map[string]any, error) {
	repo := r.persistence.ExecutionRepository()
	logger := r.logger.With(
		"execution_id", execution.ID,
		"node_id", node.ID,
		"node_type", node.Type,
	)

	startedAt := time.Now().UTC()
	nodeExecution := &models.NodeExecution{
		ID:          uuid.NewString(),
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Status:      models.ExecutionStatusRunning,
		InputData:   input,
		StartedAt:   startedAt,
	}

	if err := repo.CreateNodeExecution(ctx, nodeExecution); err != nil {
		return nil, fmt.Errorf("create node execution record: %w", err)
	}

	logger.Info("Executing node", "name", node.Name)
	r.publish(ctx, execution.ID, events.NodeStarted{
		BaseEvent:   r.baseEvent(events.NodeStartedEvent, workflow.ID),
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		InputData:   input,
	})

	nodeCtx, finish := r.startSpan(ctx, "workflow.node",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)

	output, err := r.executeNode(nodeCtx, execution, node, input, logger)
	finish(err)

	completedAt := time.Now().UTC()
	nodeExecution.CompletedAt = &completedAt
	duration := completedAt.Sub(startedAt)

	if err != nil {
		status := models.ExecutionStatusFailed
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			status = models.ExecutionStatusCancelled
		}

		nodeExecution.Status = status
		nodeExecution.Error = err.Error()

		if updateErr := repo.UpdateNodeExecution(context.WithoutCancel(ctx), nodeExecution); updateErr != nil {
			logger.Error("Failed to persist node failure", "error", updateErr)
		}

		logger.Error("Node execution failed", "error", err, "duration_ms", duration.Milliseconds())
		r.observeNode(node.Type, status, duration)
		r.publish(ctx, execution.ID, events.NodeFailed{
			BaseEvent:   r.baseEvent(events.NodeFailedEvent, workflow.ID),
			ExecutionID: execution.ID,
			NodeID:      node.ID,
			NodeType:    node.Type,
			Error:       err.Error(),
			DurationMs:  duration.Milliseconds(),
		})

		return nil, err
	}

	nodeExecution.Status = models.ExecutionStatusSuccess
	nodeExecution.OutputData = output

	if updateErr := repo.UpdateNodeExecution(ctx, nodeExecution); updateErr != nil {
		logger.Error("Failed to persist node success", "error", updateErr)
	}

	logger.Info("Node execution completed", "duration_ms", duration.Milliseconds())
	r.observeNode(node.Type, models.ExecutionStatusSuccess, duration)
	r.publish(ctx, execution.ID, events.NodeCompleted{
		BaseEvent:   r.baseEvent(events.NodeCompletedEvent, workflow.ID),
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		OutputData:  output,
		DurationMs:  duration.Milliseconds(),
		CompletedAt: completedAt,
	})

	return output, nil
}

// executeNode resolves the executor, validates the node configuration and
// invokes it.
func (r *Runner) executeNode(
	ctx context.Context,
	execution *models.WorkflowExecution,
	node *models.WorkflowNode,
	input map[string]any,
	logger *slog.Logger,
) (map[string]any, error) {
	executor, err := r.registry.Get(node.Type)
	if err != nil {
		return nil, err
	}

	if result := r.registry.Validate(node.Type, node.Data); !result.Valid {
		return nil, fmt.Errorf("invalid node configuration: %s", strings.Join(result.Errors, "; "))
	}

	runtime := models.RuntimeContext{
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		WorkflowID:  execution.WorkflowID,
		UserID:      execution.UserID,
		StartedAt:   time.Now().UTC(),
		Logger:      logger,
	}

	return executor.Execute(ctx, node.Data, input, runtime)
}

// rejectRun fails an execution before any node ran, for structural problems
// caught up front.
func (r *Runner) rejectRun(
	ctx context.Context,
	execution *models.WorkflowExecution,
	workflow *models.Workflow,
	reason string,
) error {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.Error = reason
	execution.StartedAt = &now
	execution.CompletedAt = &now

	if err := r.persistence.ExecutionRepository().UpdateExecution(ctx, execution); err != nil {
		return fmt.Errorf("mark execution %s failed: %w", execution.ID, err)
	}

	r.logger.Error("Execution rejected", "execution_id", execution.ID, "error", reason)
	r.observeExecution(models.ExecutionStatusFailed, 0)
	r.publish(ctx, execution.ID, events.ExecutionFailed{
		BaseEvent:   r.baseEvent(events.ExecutionFailedEvent, workflow.ID),
		ExecutionID: execution.ID,
		Error:       events.ExecutionError{Message: reason},
	})

	return errors.New(reason)
}

func (r *Runner) finishFailed(
	ctx context.Context,
	execution *models.WorkflowExecution,
	workflow *models.Workflow,
	startedAt time.Time,
	nodeID string,
	executed int,
	nodeErr error,
) error {
	completedAt := time.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.Error = fmt.Sprintf("node %s failed: %v", nodeID, nodeErr)
	execution.CompletedAt = &completedAt

	persistCtx := context.WithoutCancel(ctx)

	if err := r.persistence.ExecutionRepository().UpdateExecution(persistCtx, execution); err != nil {
		r.logger.Error("Failed to persist execution failure", "execution_id", execution.ID, "error", err)
	}

	duration := completedAt.Sub(startedAt)

	r.logger.Error("Execution failed",
		"execution_id", execution.ID,
		"node_id", nodeID,
		"error", nodeErr,
		"duration_ms", duration.Milliseconds(),
	)
	r.observeExecution(models.ExecutionStatusFailed, duration)
	r.publish(persistCtx, execution.ID, events.ExecutionFailed{
		BaseEvent:   r.baseEvent(events.ExecutionFailedEvent, workflow.ID),
		ExecutionID: execution.ID,
		DurationMs:  duration.Milliseconds(),
		Error: events.ExecutionError{
			NodeID:  nodeID,
			Message: nodeErr.Error(),
		},
		NodesExecuted:  executed,
		PartialResults: execution.OutputData,
	})

	return fmt.Errorf("execution %s failed at node %s: %w", execution.ID, nodeID, nodeErr)
}

// finishCancelled writes the terminal CANCELLED state and forces any step
// still recorded RUNNING to CANCELLED so the trail has no dangling rows.
func (r *Runner) finishCancelled(
	ctx context.Context,
	execution *models.WorkflowExecution,
	workflow *models.Workflow,
	startedAt time.Time,
	reason string,
) error {
	persistCtx := context.WithoutCancel(ctx)
	repo := r.persistence.ExecutionRepository()

	completedAt := time.Now().UTC()
	execution.Status = models.ExecutionStatusCancelled
	execution.Error = reason
	execution.CompletedAt = &completedAt

	if err := repo.UpdateExecution(persistCtx, execution); err != nil {
		r.logger.Error("Failed to persist execution cancellation", "execution_id", execution.ID, "error", err)
	}

	nodeExecutions, err := repo.NodeExecutions(persistCtx, execution.ID)
	if err != nil {
		r.logger.Error("Failed to list node executions during cancellation", "execution_id", execution.ID, "error", err)
	}

	for _, nodeExecution := range nodeExecutions {
		if nodeExecution.Status != models.ExecutionStatusRunning {
			continue
		}

		nodeExecution.Status = models.ExecutionStatusCancelled
		nodeExecution.CompletedAt = &completedAt

		if err := repo.UpdateNodeExecution(persistCtx, nodeExecution); err != nil {
			r.logger.Error("Failed to cancel node execution record",
				"execution_id", execution.ID,
				"node_id", nodeExecution.NodeID,
				"error", err,
			)
		}
	}

	duration := completedAt.Sub(startedAt)

	r.logger.Info("Execution cancelled", "execution_id", execution.ID, "duration_ms", duration.Milliseconds())
	r.observeExecution(models.ExecutionStatusCancelled, duration)
	r.publish(persistCtx, execution.ID, events.ExecutionCancelled{
		BaseEvent:   r.baseEvent(events.ExecutionCancelledEvent, workflow.ID),
		ExecutionID: execution.ID,
		DurationMs:  duration.Milliseconds(),
		Reason:      reason,
	})

	return nil
}

// publish is fire and forget: a broken event bus must not fail a run.
func (r *Runner) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.eventBus == nil {
		return
	}

	if err := r.eventBus.Publish(ctx, key, event); err != nil {
		r.logger.Error("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (r *Runner) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	var id string
	if r.eventBus != nil {
		id = r.eventBus.GenerateID()
	}

	return events.BaseEvent{
		ID:         id,
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		WorkerID:   r.workerID,
	}
}

func (r *Runner) observeExecution(status models.ExecutionStatus, duration time.Duration) {
	if r.metrics != nil {
		r.metrics.ObserveExecution(status, duration)
	}
}

func (r *Runner) observeNode(nodeType models.NodeType, status models.ExecutionStatus, duration time.Duration) {
	if r.metrics != nil {
		r.metrics.ObserveNode(nodeType, status, duration)
	}
}

// incomingConnections indexes connections by target node id.
func incomingConnections(connections []*models.Connection) map[string][]*models.Connection {
	incoming := make(map[string][]*models.Connection, len(connections))
	for _, conn := range connections {
		incoming[conn.TargetNodeID] = append(incoming[conn.TargetNodeID], conn)
	}

	return incoming
}

// edgeTaken reports whether data flows over a connection. Edges leaving a
// skipped node never carry data. Edges whose source handle names a condition
// branch ("true"/"false") carry data only when the source condition took
// that branch; all other edges always propagate.
func edgeTaken(conn *models.Connection, skipped map[string]bool, branches map[string]string) bool {
	if skipped[conn.SourceNodeID] {
		return false
	}

	if conn.SourceHandle != "true" && conn.SourceHandle != "false" {
		return true
	}

	branch, conditional := branches[conn.SourceNodeID]
	if !conditional {
		return true
	}

	return branch == conn.SourceHandle
}

func anyEdgeTaken(conns []*models.Connection, skipped map[string]bool, branches map[string]string) bool {
	for _, conn := range conns {
		if edgeTaken(conn, skipped, branches) {
			return true
		}
	}

	return false
}

// gatherInput builds a node's input: the run's original input data plus each
// taken incoming connection's upstream output placed under the connection's
// output key. Connection-delivered data wins over same-named run input keys.
func gatherInput(
	execCtx *models.ExecutionContext,
	conns []*models.Connection,
	skipped map[string]bool,
	branches map[string]string,
) map[string]any {
	input := make(map[string]any, len(execCtx.Input)+len(conns))

	for key, value := range execCtx.Input {
		input[key] = value
	}

	for _, conn := range conns {
		if !edgeTaken(conn, skipped, branches) {
			continue
		}

		if output, ok := execCtx.Output(conn.SourceNodeID); ok {
			input[conn.OutputKey()] = output
		}
	}

	return input
}
