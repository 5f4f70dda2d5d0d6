package email

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

func newTestExecutor() *EmailExecutor {
	return NewEmailExecutor(template.NewResolver(slog.Default()))
}

func TestEmailExecutor_Execute(t *testing.T) {
	executor := newTestExecutor()

	config := map[string]any{
		"to":      "{{trigger.data.email}}",
		"subject": "Hello {{trigger.data.name}}",
	}

	input := map[string]any{
		"trigger": map[string]any{
			"data": map[string]any{
				"email": "ada@example.com",
				"name":  "Ada",
			},
		},
	}

	output, err := executor.Execute(context.Background(), config, input, models.RuntimeContext{})
	require.NoError(t, err)

	assert.Equal(t, true, output["emailSent"])
	assert.NotEmpty(t, output["timestamp"])

	emailData, ok := output["emailData"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", emailData["to"])
	assert.Equal(t, "Hello Ada", emailData["subject"])
	assert.Equal(t, "noreply@yourdomain.com", emailData["from"])

	messageID, ok := output["messageId"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(messageID, "msg_"), "message id should have msg_ prefix, got %s", messageID)
}

func TestEmailExecutor_Execute_Cancelled(t *testing.T) {
	executor := newTestExecutor()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.Execute(ctx, map[string]any{"to": "a@b.c"}, nil, models.RuntimeContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email sending failed")
}

func TestEmailExecutor_Validate(t *testing.T) {
	executor := newTestExecutor()

	result := executor.Validate(map[string]any{})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "At least 'to' or 'from' field must be specified")

	result = executor.Validate(map[string]any{"to": "ada@example.com"})
	assert.True(t, result.Valid)

	result = executor.Validate(map[string]any{"from": "noreply@example.com"})
	assert.True(t, result.Valid)
}
