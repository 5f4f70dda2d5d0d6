// Package action provides the generic ACTION node executor. It predates the
// dedicated HTTP_REQUEST executor and is kept for workflows that still use
// action nodes for HTTP calls, webhooks and delays.
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

const (
	defaultDelayMS   = 1000
	maxDelayMS       = 300000
	defaultTimeoutMS = 30000
	timestampFormat  = "2006-01-02T15:04:05.000Z07:00"
)

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true,
}

// ActionExecutor dispatches on the configured actionType.
type ActionExecutor struct {
	resolver *template.Resolver
	client   *http.Client
}

func NewActionExecutor(resolver *template.Resolver) *ActionExecutor {
	return &ActionExecutor{
		resolver: resolver,
		client:   &http.Client{},
	}
}

func (e *ActionExecutor) Type() models.NodeType {
	return models.NodeTypeAction
}

func (e *ActionExecutor) Name() string {
	return "Action Node"
}

func (e *ActionExecutor) Description() string {
	return "Performs HTTP requests and other actions"
}

func (e *ActionExecutor) Execute(ctx context.Context, config map[string]any, input map[string]any, run models.RuntimeContext) (map[string]any, error) {
	logger := run.Log()
	logger.Info("Executing action node")

	actionType, _ := config["actionType"].(string)

	switch actionType {
	case "http_request":
		return e.executeHTTPRequest(ctx, config, input, run)
	case "webhook":
		return e.executeWebhook(input, run)
	case "delay":
		return e.executeDelay(ctx, config, input, run)
	default:
		return e.executeGeneric(config, input, run)
	}
}

func (e *ActionExecutor) executeHTTPRequest(ctx context.Context, config map[string]any, input map[string]any, run models.RuntimeContext) (map[string]any, error) {
	endpoint, _ := config["endpoint"].(string)
	method, _ := config["method"].(string)

	requestURL := e.resolver.Resolve(endpoint, input)

	var body string
	if rawBody, ok := config["requestBody"].(string); ok && rawBody != "" {
		body = e.resolver.Resolve(rawBody, input)
	}

	run.Log().Info("Making HTTP request", "method", method, "url", requestURL)

	reqCtx, cancel := context.WithTimeout(ctx, durationMS(config["timeout"], defaultTimeoutMS))
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
				req.Header.Set(key, strVal)
			}
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		run.Log().Error("HTTP request failed", "error", err)

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

	run.Log().Info("HTTP request completed", "status", resp.StatusCode)

	headers := make(map[string]any, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			headers[strings.ToLower(key)] = values[0]
		}
	}

	return map[string]any{
		"status":     resp.StatusCode,
		"statusText": http.StatusText(resp.StatusCode),
		"headers":    headers,
		"data":       data,
		"success":    resp.StatusCode >= 200 && resp.StatusCode < 300,
		"url":        requestURL,
		"method":     method,
	}, nil
}

func (e *ActionExecutor) executeWebhook(input map[string]any, run models.RuntimeContext) (map[string]any, error) {
	run.Log().Info("Executing webhook action")

	return map[string]any{
		"webhookExecuted": true,
		"timestamp":       time.Now().UTC().Format(timestampFormat),
		"data":            input,
	}, nil
}

func (e *ActionExecutor) executeDelay(ctx context.Context, config map[string]any, input map[string]any, run models.RuntimeContext) (map[string]any, error) {
	delay := durationMS(config["delayMs"], defaultDelayMS)

	run.Log().Info("Delaying execution", "delay", delay)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result := map[string]any{
		"delayed":   true,
		"delayMs":   delay.Milliseconds(),
		"timestamp": time.Now().UTC().Format(timestampFormat),
	}

	for key, value := range input {
		result[key] = value
	}

	return result, nil
}

func (e *ActionExecutor) executeGeneric(config map[string]any, input map[string]any, run models.RuntimeContext) (map[string]any, error) {
	actionType, _ := config["actionType"].(string)
	if actionType == "" {
		actionType = "executed"
	}

	nodeName, _ := config["name"].(string)
	if nodeName == "" {
		nodeName = "action node"
	}

	run.Log().Info("Executing generic action", "action_type", actionType)

	return map[string]any{
		"action":    actionType,
		"input":     input,
		"output":    fmt.Sprintf("Processed by %s", nodeName),
		"timestamp": time.Now().UTC().Format(timestampFormat),
	}, nil
}

func (e *ActionExecutor) Validate(config map[string]any) models.ValidationResult {
	var errs []string

	actionType, _ := config["actionType"].(string)
	if actionType == "" {
		errs = append(errs, "Action type is required")
	}

	if actionType == "http_request" {
		for _, field := range []string{"endpoint", "method"} {
			if value, _ := config[field].(string); value == "" {
				errs = append(errs, fmt.Sprintf("Required field '%s' is missing", field))
			}
		}

		if method, ok := config["method"].(string); ok && method != "" && !validMethods[method] {
			errs = append(errs, "Invalid HTTP method")
		}
	}

	if actionType == "delay" {
		if delayMs, ok := numberValue(config["delayMs"]); ok && (delayMs < 0 || delayMs > maxDelayMS) {
			errs = append(errs, "Delay must be between 0 and 300000 milliseconds (5 minutes)")
		}
	}

	return models.NewValidationResult(errs)
}

func (e *ActionExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"actionType": map[string]any{
				"type":        "string",
				"enum":        []any{"http_request", "webhook", "delay", "custom"},
				"title":       "Action Type",
				"description": "Type of action to perform",
			},
			"endpoint": map[string]any{
				"type":        "string",
				"title":       "Endpoint URL",
				"description": "URL for HTTP requests",
			},
			"method": map[string]any{
				"type":  "string",
				"enum":  []any{"GET", "POST", "PUT", "DELETE", "PATCH"},
				"title": "HTTP Method",
			},
			"headers": map[string]any{
				"type":        "object",
				"title":       "Headers",
				"description": "HTTP headers",
			},
			"requestBody": map[string]any{
				"type":        "string",
				"title":       "Request Body",
				"description": "JSON request body template",
			},
			"timeout": map[string]any{
				"type":    "number",
				"minimum": 1000,
				"maximum": 300000,
				"default": defaultTimeoutMS,
				"title":   "Timeout (ms)",
			},
			"delayMs": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": maxDelayMS,
				"title":   "Delay (ms)",
			},
		},
		"required": []any{"actionType"},
	}
}

func numberValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}

	return 0, false
}

func durationMS(value any, fallback float64) time.Duration {
	ms, ok := numberValue(value)
	if !ok || ms <= 0 {
		ms = fallback
	}

	return time.Duration(ms) * time.Millisecond
}
