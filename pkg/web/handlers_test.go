package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/channels/gochannel"
	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/metrics"
	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/persistence/file"
	"github.com/loomworks/loom/pkg/registry"
	"github.com/loomworks/loom/pkg/services"
	"github.com/loomworks/loom/pkg/testutil"
	"github.com/loomworks/loom/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, persistence.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	persist := file.NewPersistence(t.TempDir())
	t.Cleanup(func() {
		_ = persist.Close(context.Background())
	})

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.RegisterDefaults())

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(persist, reg),
		services.NewExecution(logger, persist, bus),
		validator.New(validator.WithRequiredStructEnabled()),
		reg,
	)

	app := fiber.New()
	web.RegisterRoutes(app, handlers, metrics.NewCollector().HTTPHandler())

	return app, persist
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()

	var body io.Reader

	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(http.MethodPost, path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func getJSON(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()

	defer func() {
		_ = resp.Body.Close()
	}()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func TestCreateWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := postJSON(t, app, "/workflows/", web.CreateWorkflowRequest{
		Name:        "Signup Pipeline",
		Description: "Welcome emails for new users",
		Nodes:       []*models.WorkflowNode{testutil.StartNode("s")},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created models.Workflow

	decodeBody(t, resp, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Signup Pipeline", created.Name)
}

func TestCreateWorkflowRejectsShortName(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := postJSON(t, app, "/workflows/", web.CreateWorkflowRequest{Name: "ab"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var problem map[string]any

	decodeBody(t, resp, &problem)
	assert.Equal(t, "validation_error", problem["type"])
}

func TestGetWorkflowNotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := getJSON(t, app, "/workflows/ghost")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestListWorkflows(t *testing.T) {
	app, persist := setupTestApp(t)

	workflow := testutil.CreateTestWorkflow([]*models.WorkflowNode{testutil.StartNode("s")}, nil)
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))

	resp := getJSON(t, app, "/workflows/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result struct {
		Workflows  []*models.Workflow `json:"workflows"`
		TotalCount int64              `json:"total_count"`
	}

	decodeBody(t, resp, &result)
	assert.Equal(t, int64(1), result.TotalCount)
	require.Len(t, result.Workflows, 1)
	assert.Equal(t, workflow.ID, result.Workflows[0].ID)
}

func TestValidateWorkflowEndpoint(t *testing.T) {
	app, persist := setupTestApp(t)

	broken := testutil.CreateTestWorkflow(
		[]*models.WorkflowNode{testutil.CreateTestNode(testutil.WithNodeID("a"))},
		[]*models.Connection{testutil.Connect("a", "missing")},
	)
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), broken))

	resp := postJSON(t, app, "/workflows/"+broken.ID+"/validate", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var report services.ValidationReport

	decodeBody(t, resp, &report)
	assert.False(t, report.Valid)
	assert.NotEmpty(t, report.Errors)
}

func TestTriggerAndCancelExecution(t *testing.T) {
	app, persist := setupTestApp(t)

	workflow := testutil.CreateTestWorkflow([]*models.WorkflowNode{testutil.StartNode("s")}, nil)
	require.NoError(t, persist.WorkflowRepository().Save(context.Background(), workflow))

	resp := postJSON(t, app, "/workflows/"+workflow.ID+"/executions", web.TriggerRunRequest{
		UserID:    "user-1",
		InputData: map[string]any{"id": "42"},
	})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var execution models.WorkflowExecution

	decodeBody(t, resp, &execution)
	assert.Equal(t, models.ExecutionStatusPending, execution.Status)
	assert.Equal(t, workflow.ID, execution.WorkflowID)

	resp = postJSON(t, app, "/executions/"+execution.ID+"/cancel", web.CancelExecutionRequest{
		Reason: "changed my mind",
	})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var cancelled models.WorkflowExecution

	decodeBody(t, resp, &cancelled)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)

	// A second cancel conflicts with the terminal state.
	resp = postJSON(t, app, "/executions/"+execution.ID+"/cancel", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestTriggerRunUnknownWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := postJSON(t, app, "/workflows/ghost/executions", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestGetExecutionWithNodeTrail(t *testing.T) {
	app, persist := setupTestApp(t)
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow([]*models.WorkflowNode{testutil.StartNode("s")}, nil)
	require.NoError(t, persist.WorkflowRepository().Save(ctx, workflow))

	resp := postJSON(t, app, "/workflows/"+workflow.ID+"/executions", nil)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var execution models.WorkflowExecution

	decodeBody(t, resp, &execution)

	resp = getJSON(t, app, "/executions/"+execution.ID)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var detail services.ExecutionDetail

	decodeBody(t, resp, &detail)
	assert.Equal(t, execution.ID, detail.Execution.ID)
	assert.Empty(t, detail.NodeExecutions)
}

func TestListExecutionsRejectsUnknownStatus(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := getJSON(t, app, "/executions/?status=DONE")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestGetExecutorsCatalog(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := getJSON(t, app, "/executors")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var catalog struct {
		Executors []web.ExecutorInfo `json:"executors"`
	}

	decodeBody(t, resp, &catalog)
	require.Len(t, catalog.Executors, 6)

	types := make([]models.NodeType, 0, len(catalog.Executors))
	for _, executor := range catalog.Executors {
		types = append(types, executor.Type)
		assert.NotEmpty(t, executor.Name)
		assert.NotNil(t, executor.Schema)
	}

	assert.Contains(t, types, models.NodeTypeStart)
	assert.Contains(t, types, models.NodeTypeCondition)
	assert.Contains(t, types, models.NodeTypeHTTPRequest)
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := getJSON(t, app, "/health")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var health map[string]any

	decodeBody(t, resp, &health)
	assert.Equal(t, "healthy", health["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := getJSON(t, app, "/metrics")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "go_goroutines")
}
