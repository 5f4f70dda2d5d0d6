package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowError_WrapsSentinel(t *testing.T) {
	err := NewWorkflowError("GetByID", "wf-1", ErrWorkflowNotFound)

	assert.True(t, errors.Is(err, ErrWorkflowNotFound))
	assert.True(t, IsWorkflowNotFound(err))
	assert.Contains(t, err.Error(), "GetByID")
	assert.Contains(t, err.Error(), "wf-1")
}

func TestExecutionError_WrapsSentinel(t *testing.T) {
	err := NewExecutionError("Update", "exec-1", ErrExecutionNotFound)

	assert.True(t, IsExecutionNotFound(err))
	assert.False(t, IsWorkflowNotFound(err))
	assert.Contains(t, err.Error(), "exec-1")
}

func TestIsHelpers_WithDoubleWrapping(t *testing.T) {
	inner := NewExecutionError("Get", "exec-2", ErrNodeExecutionNotFound)
	outer := fmt.Errorf("loading step history: %w", inner)

	assert.True(t, IsNodeExecutionNotFound(outer))
	assert.False(t, IsExecutionNotFound(outer))
}
