// Package httprequest provides the HTTP_REQUEST node executor for calling
// external APIs from a workflow.
package httprequest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

const (
	defaultMethod    = "GET"
	defaultTimeoutMS = 30000
	timestampFormat  = "2006-01-02T15:04:05.000Z07:00"
)

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true,
}

// HTTPRequestExecutor performs an HTTP call described by the node
// configuration. Non-2xx responses are reported through the output's
// "success" field, not as execution errors; only transport failures fail
// the node.
type HTTPRequestExecutor struct {
	resolver *template.Resolver
	client   *http.Client
}

func NewHTTPRequestExecutor(resolver *template.Resolver) *HTTPRequestExecutor {
	return &HTTPRequestExecutor{
		resolver: resolver,
		client:   &http.Client{},
	}
}

func (e *HTTPRequestExecutor) Type() models.NodeType {
	return models.NodeTypeHTTPRequest
}

func (e *HTTPRequestExecutor) Name() string {
	return "HTTP Request Node"
}

func (e *HTTPRequestExecutor) Description() string {
	return "Makes HTTP requests to external APIs"
}

func (e *HTTPRequestExecutor) Execute(ctx context.Context, config map[string]any, input map[string]any, run models.RuntimeContext) (map[string]any, error) {
	logger := run.Log()
	logger.Info("Executing HTTP request node")

	endpoint, _ := config["endpoint"].(string)
	method := strings.ToUpper(stringOr(config["method"], defaultMethod))
	timeout := timeoutFrom(config["timeout"])

	requestURL := e.resolver.Resolve(endpoint, input)

	var body string
	if rawBody, ok := config["requestBody"].(string); ok && rawBody != "" {
		body = e.resolver.Resolve(rawBody, input)
	}

	logger.Info("Making HTTP request", "method", method, "url", requestURL)

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, requestURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, value := range headers {
			if strVal, ok := value.(string); ok {
				req.Header.Set(key, e.resolver.Resolve(strVal, input))
			}
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		logger.Error("HTTP request failed", "error", err)

		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	var data any = string(respBody)

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var jsonData any
		if err := json.Unmarshal(respBody, &jsonData); err == nil {
			data = jsonData
		}
	}

	logger.Info("HTTP request completed", "status", resp.StatusCode)

	return map[string]any{
		"status":     resp.StatusCode,
		"statusText": http.StatusText(resp.StatusCode),
		"headers":    flattenHeaders(resp.Header),
		"data":       data,
		"success":    resp.StatusCode >= 200 && resp.StatusCode < 300,
		"url":        requestURL,
		"method":     method,
	}, nil
}

func (e *HTTPRequestExecutor) Validate(config map[string]any) models.ValidationResult {
	var errs []string

	endpoint, _ := config["endpoint"].(string)
	if endpoint == "" {
		errs = append(errs, "Endpoint URL is required")
	}

	if method, ok := config["method"].(string); ok && method != "" && !validMethods[method] {
		errs = append(errs, "Invalid HTTP method. Must be one of: GET, POST, PUT, DELETE, PATCH")
	}

	if endpoint != "" && !isValidURL(endpoint) {
		errs = append(errs, "Invalid endpoint URL format")
	}

	return models.NewValidationResult(errs)
}

func (e *HTTPRequestExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"method": map[string]any{
				"type":    "string",
				"enum":    []any{"GET", "POST", "PUT", "DELETE", "PATCH"},
				"default": "POST",
				"title":   "HTTP Method",
			},
			"endpoint": map[string]any{
				"type":        "string",
				"title":       "Endpoint URL",
				"description": "URL for HTTP requests (supports templating)",
			},
			"headers": map[string]any{
				"type":        "object",
				"title":       "Headers",
				"description": "HTTP headers",
			},
			"requestBody": map[string]any{
				"type":        "string",
				"title":       "Request Body",
				"description": "JSON request body template (supports templating)",
			},
			"timeout": map[string]any{
				"type":    "number",
				"minimum": 1000,
				"maximum": 300000,
				"default": defaultTimeoutMS,
				"title":   "Timeout (ms)",
			},
		},
		"required": []any{"endpoint"},
	}
}

// isValidURL requires an absolute URL with a scheme and host. Templated
// endpoints resolve later, so placeholders in the path are fine.
func isValidURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return parsed.Scheme != "" && parsed.Host != ""
}

func flattenHeaders(headers http.Header) map[string]any {
	flat := make(map[string]any, len(headers))
	for key, values := range headers {
		if len(values) > 0 {
			flat[strings.ToLower(key)] = values[0]
		}
	}

	return flat
}

func stringOr(value any, fallback string) string {
	if str, ok := value.(string); ok && str != "" {
		return str
	}

	return fallback
}

func timeoutFrom(value any) time.Duration {
	switch v := value.(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Millisecond
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Millisecond
		}
	}

	return defaultTimeoutMS * time.Millisecond
}
