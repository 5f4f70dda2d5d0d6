// Package queue receives external run and cancel requests from a Redis
// stream and feeds them into the execution service. It exists for systems
// that trigger workflows from outside the REST API.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/services"
)

const (
	messageTypeRun    = "run"
	messageTypeCancel = "cancel"

	readBlock = time.Second
	readCount = 10
)

// Message is the wire format accepted on the stream, carried in the "data"
// field of each stream entry as JSON.
type Message struct {
	Type        string         `json:"type"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	InputData   map[string]any `json:"input_data,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// ExecutionService is the slice of the execution service the receiver needs.
type ExecutionService interface {
	TriggerRun(ctx context.Context, req services.TriggerRunRequest) (*models.WorkflowExecution, error)
	CancelRun(ctx context.Context, executionID, reason string) (*models.WorkflowExecution, error)
}

// Config holds the Redis connection and stream settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
}

// Receiver consumes trigger messages from a Redis stream through a consumer
// group, so multiple receiver instances share the work.
type Receiver struct {
	logger     *slog.Logger
	config     Config
	executions ExecutionService

	client redis.UniversalClient
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewReceiver(logger *slog.Logger, config Config, executions ExecutionService) (*Receiver, error) {
	if config.Stream == "" {
		return nil, errors.New("queue receiver stream name is required")
	}

	if config.Group == "" {
		return nil, errors.New("queue receiver consumer group is required")
	}

	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	if config.Consumer == "" {
		config.Consumer = "loom-receiver"
	}

	return &Receiver{
		logger: logger.With(
			"module", "queue_receiver",
			"stream", config.Stream,
			"group", config.Group,
		),
		config:     config,
		executions: executions,
		stopCh:     make(chan struct{}),
	}, nil
}

// Start connects to Redis, ensures the consumer group exists and begins
// consuming in the background.
func (r *Receiver) Start(ctx context.Context) error {
	r.client = redis.NewClient(&redis.Options{
		Addr:     r.config.Addr,
		Password: r.config.Password,
		DB:       r.config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	err := r.client.XGroupCreateMkStream(ctx, r.config.Stream, r.config.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	r.logger.InfoContext(ctx, "Queue receiver started", "addr", r.config.Addr)

	r.wg.Add(1)

	go r.consume(ctx)

	return nil
}

func (r *Receiver) consume(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    r.config.Group,
				Consumer: r.config.Consumer,
				Streams:  []string{r.config.Stream, ">"},
				Count:    readCount,
				Block:    readBlock,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
					continue
				}

				r.logger.ErrorContext(ctx, "Failed to read from stream", "error", err)
				time.Sleep(time.Second)

				continue
			}

			for _, stream := range streams {
				for _, entry := range stream.Messages {
					r.processEntry(ctx, entry)
				}
			}
		}
	}
}

// processEntry handles one stream entry. Malformed entries are acked and
// dropped so they cannot wedge the group.
func (r *Receiver) processEntry(ctx context.Context, entry redis.XMessage) {
	defer r.ack(ctx, entry.ID)

	data, ok := entry.Values["data"].(string)
	if !ok {
		r.logger.WarnContext(ctx, "Dropping entry without data field", "entry_id", entry.ID)

		return
	}

	var message Message
	if err := json.Unmarshal([]byte(data), &message); err != nil {
		r.logger.WarnContext(ctx, "Dropping malformed entry", "entry_id", entry.ID, "error", err)

		return
	}

	if err := r.dispatch(ctx, message); err != nil {
		r.logger.ErrorContext(ctx, "Failed to handle trigger message",
			"entry_id", entry.ID,
			"type", message.Type,
			"error", err,
		)
	}
}

func (r *Receiver) dispatch(ctx context.Context, message Message) error {
	switch message.Type {
	case messageTypeRun:
		execution, err := r.executions.TriggerRun(ctx, services.TriggerRunRequest{
			WorkflowID:  message.WorkflowID,
			ExecutionID: message.ExecutionID,
			UserID:      message.UserID,
			InputData:   message.InputData,
		})
		if err != nil {
			return err
		}

		r.logger.InfoContext(ctx, "Run triggered from queue",
			"execution_id", execution.ID,
			"workflow_id", message.WorkflowID,
		)

		return nil

	case messageTypeCancel:
		if message.ExecutionID == "" {
			return errors.New("cancel message requires execution_id")
		}

		_, err := r.executions.CancelRun(ctx, message.ExecutionID, message.Reason)

		return err

	default:
		return fmt.Errorf("unknown trigger message type: %q", message.Type)
	}
}

func (r *Receiver) ack(ctx context.Context, entryID string) {
	if err := r.client.XAck(ctx, r.config.Stream, r.config.Group, entryID).Err(); err != nil {
		r.logger.ErrorContext(ctx, "Failed to ack entry", "entry_id", entryID, "error", err)
	}
}

// Stop shuts the consumer down and closes the Redis connection.
func (r *Receiver) Stop(ctx context.Context) error {
	close(r.stopCh)
	r.wg.Wait()

	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	r.logger.InfoContext(ctx, "Queue receiver stopped")

	return nil
}
