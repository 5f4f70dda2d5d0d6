package httprequest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

func newTestExecutor() *HTTPRequestExecutor {
	return NewHTTPRequestExecutor(template.NewResolver(slog.Default()))
}

func TestHTTPRequestExecutor_Execute_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "ok"}`))
	}))
	defer server.Close()

	executor := newTestExecutor()

	config := map[string]any{
		"endpoint": server.URL,
		"method":   "GET",
	}

	output, err := executor.Execute(context.Background(), config, nil, models.RuntimeContext{})
	require.NoError(t, err)

	assert.Equal(t, 200, output["status"])
	assert.Equal(t, "OK", output["statusText"])
	assert.Equal(t, true, output["success"])
	assert.Equal(t, server.URL, output["url"])
	assert.Equal(t, "GET", output["method"])

	data, ok := output["data"].(map[string]any)
	require.True(t, ok, "expected JSON response to be parsed")
	assert.Equal(t, "ok", data["message"])
}

func TestHTTPRequestExecutor_Execute_NonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("plain text"))
	}))
	defer server.Close()

	executor := newTestExecutor()

	output, err := executor.Execute(context.Background(), map[string]any{"endpoint": server.URL}, nil, models.RuntimeContext{})
	require.NoError(t, err)

	assert.Equal(t, "plain text", output["data"])
}

func TestHTTPRequestExecutor_Execute_HTTPErrorIsNotExecutionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	executor := newTestExecutor()

	output, err := executor.Execute(context.Background(), map[string]any{"endpoint": server.URL}, nil, models.RuntimeContext{})
	require.NoError(t, err)

	assert.Equal(t, 500, output["status"])
	assert.Equal(t, false, output["success"])
}

func TestHTTPRequestExecutor_Execute_NetworkErrorFailsNode(t *testing.T) {
	executor := newTestExecutor()

	config := map[string]any{
		"endpoint": "http://127.0.0.1:1/unreachable",
		"timeout":  float64(500),
	}

	_, err := executor.Execute(context.Background(), config, nil, models.RuntimeContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP request failed")
}

func TestHTTPRequestExecutor_Execute_TemplatedEndpointAndBody(t *testing.T) {
	var (
		gotPath string
		gotBody []byte
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	executor := newTestExecutor()

	config := map[string]any{
		"endpoint":    server.URL + "/users/{{user.id}}",
		"method":      "POST",
		"requestBody": `{"name": "{{user.name}}"}`,
	}

	input := map[string]any{
		"user": map[string]any{"id": "42", "name": "Ada"},
	}

	output, err := executor.Execute(context.Background(), config, input, models.RuntimeContext{})
	require.NoError(t, err)

	assert.Equal(t, "/users/42", gotPath)
	assert.Equal(t, 201, output["status"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, "Ada", body["name"])
}

func TestHTTPRequestExecutor_Validate(t *testing.T) {
	executor := newTestExecutor()

	result := executor.Validate(map[string]any{})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "Endpoint URL is required")

	result = executor.Validate(map[string]any{
		"endpoint": "https://example.com",
		"method":   "TRACE",
	})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "Invalid HTTP method. Must be one of: GET, POST, PUT, DELETE, PATCH")

	result = executor.Validate(map[string]any{"endpoint": "not a url"})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "Invalid endpoint URL format")

	result = executor.Validate(map[string]any{
		"endpoint": "https://example.com/webhook",
		"method":   "POST",
	})
	assert.True(t, result.Valid)
}
