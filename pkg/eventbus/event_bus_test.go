package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/channels/gochannel"
	"github.com/loomworks/loom/pkg/events"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	return NewWatermillEventBus(pub, sub)
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.ExecutionStarted, 1)

	err := bus.Handle(events.ExecutionStartedEvent, func(_ context.Context, event any) error {
		started, ok := event.(*events.ExecutionStarted)
		require.True(t, ok)
		received <- started

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	event := events.ExecutionStarted{
		BaseEvent: events.BaseEvent{
			ID:         bus.GenerateID(),
			Type:       events.ExecutionStartedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: "wf-1",
		},
		ExecutionID:  "exec-1",
		WorkflowName: "daily-report",
	}

	require.NoError(t, bus.Publish(ctx, "wf-1", event))

	select {
	case got := <-received:
		assert.Equal(t, "exec-1", got.ExecutionID)
		assert.Equal(t, "daily-report", got.WorkflowName)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBus_RunRequestsUseOwnTopic(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.WorkflowRunRequested, 1)

	err := bus.Handle(events.WorkflowRunRequestedEvent, func(_ context.Context, event any) error {
		request, ok := event.(*events.WorkflowRunRequested)
		require.True(t, ok)
		received <- request

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	request := events.WorkflowRunRequested{
		BaseEvent: events.BaseEvent{
			ID:         bus.GenerateID(),
			Type:       events.WorkflowRunRequestedEvent,
			WorkflowID: "wf-2",
		},
		ExecutionID: "exec-2",
		InputData:   map[string]any{"source": "queue"},
	}

	require.NoError(t, bus.Publish(ctx, "wf-2", request))

	select {
	case got := <-received:
		assert.Equal(t, "exec-2", got.ExecutionID)
		assert.Equal(t, "queue", got.InputData["source"])
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run request")
	}
}

func TestWatermillEventBus_UnhandledEventIsDropped(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for this type; publish must still succeed.
	err := bus.Publish(ctx, "wf-3", events.NodeStarted{
		ExecutionID: "exec-3",
		NodeID:      "node-1",
	})
	require.NoError(t, err)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, events.RunRequestTopic, topicFor(events.WorkflowRunRequestedEvent))
	assert.Equal(t, events.RunRequestTopic, topicFor(events.WorkflowCancelRequestedEvent))
	assert.Equal(t, events.Topic, topicFor(events.ExecutionCompletedEvent))
	assert.Equal(t, events.Topic, topicFor(events.NodeFailedEvent))
}
