// Package email provides the EMAIL node executor. Delivery is simulated
// until an outbound mail integration lands.
package email

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

const (
	defaultTo       = "{{trigger.data.email}}"
	defaultSubject  = "Workflow Notification"
	defaultBody     = "Hello {{trigger.data.name}},\n\nYour workflow has completed."
	defaultFrom     = "noreply@yourdomain.com"
	sendDelay       = 100 * time.Millisecond
	timestampFormat = "2006-01-02T15:04:05.000Z07:00"
)

// EmailExecutor resolves templated email fields and simulates sending.
type EmailExecutor struct {
	resolver *template.Resolver
}

func NewEmailExecutor(resolver *template.Resolver) *EmailExecutor {
	return &EmailExecutor{resolver: resolver}
}

func (e *EmailExecutor) Type() models.NodeType {
	return models.NodeTypeEmail
}

func (e *EmailExecutor) Name() string {
	return "Email Node"
}

func (e *EmailExecutor) Description() string {
	return "Sends email notifications"
}

func (e *EmailExecutor) Execute(ctx context.Context, config map[string]any, input map[string]any, run models.RuntimeContext) (map[string]any, error) {
	logger := run.Log()
	logger.Info("Executing email node")

	emailData := map[string]any{
		"to":      e.resolver.Resolve(fieldOr(config, "to", defaultTo), input),
		"subject": e.resolver.Resolve(fieldOr(config, "subject", defaultSubject), input),
		"body":    e.resolver.Resolve(fieldOr(config, "body", defaultBody), input),
		"from":    e.resolver.Resolve(fieldOr(config, "from", defaultFrom), input),
	}

	logger.Info("Sending email", "to", emailData["to"], "subject", emailData["subject"])

	// Simulated delivery latency.
	select {
	case <-time.After(sendDelay):
	case <-ctx.Done():
		return nil, fmt.Errorf("email sending failed: %w", ctx.Err())
	}

	messageID := fmt.Sprintf("msg_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:9])

	logger.Info("Email sent successfully", "message_id", messageID)

	return map[string]any{
		"emailSent": true,
		"timestamp": time.Now().UTC().Format(timestampFormat),
		"emailData": emailData,
		"messageId": messageID,
	}, nil
}

func (e *EmailExecutor) Validate(config map[string]any) models.ValidationResult {
	var errs []string

	to, _ := config["to"].(string)
	from, _ := config["from"].(string)

	if to == "" && from == "" {
		errs = append(errs, "At least 'to' or 'from' field must be specified")
	}

	return models.NewValidationResult(errs)
}

func (e *EmailExecutor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"title":       "To Email",
				"description": "Recipient email address (use {{variable}} syntax)",
			},
			"subject": map[string]any{
				"type":        "string",
				"title":       "Subject",
				"description": "Email subject line",
			},
			"body": map[string]any{
				"type":        "string",
				"title":       "Email Body",
				"description": "Email content (supports templating)",
			},
			"from": map[string]any{
				"type":        "string",
				"title":       "From Email",
				"description": "Sender email address",
			},
		},
	}
}

func fieldOr(config map[string]any, key, fallback string) string {
	if value, ok := config[key].(string); ok && value != "" {
		return value
	}

	return fallback
}
