// Package main provides the Loom worker: it consumes run and cancel
// requests and executes workflows.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/loomworks/loom/pkg/cmd"
	"github.com/loomworks/loom/pkg/log"
	"github.com/loomworks/loom/pkg/metrics"
	"github.com/loomworks/loom/pkg/otelhelper"
	"github.com/loomworks/loom/pkg/services"
	"github.com/loomworks/loom/pkg/triggers/queue"
	"github.com/loomworks/loom/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "loom-worker",
		Usage:                 "Start a worker to execute workflow runs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.IntFlag{
				Name:    "metrics-port",
				Usage:   "Port for the /metrics endpoint (0 disables it)",
				Value:   9092,
				Sources: cli.EnvVars("METRICS_PORT"),
			},
			&cli.StringFlag{
				Name:    "trigger-stream",
				Usage:   "Redis stream to receive external trigger messages from (empty disables the receiver)",
				Sources: cli.EnvVars("TRIGGER_STREAM"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the trigger stream receiver",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.BoolFlag{
				Name:    "enable-tracing",
				Usage:   "Export OTLP traces for runs and node executions",
				Sources: cli.EnvVars("ENABLE_TRACING"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("loom-worker").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing Loom worker")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := cmd.NewRegistry(logger)

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "loom-worker", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	collector := metrics.NewCollector()

	runner := workflow.NewRunner(logger, persistence, registry, eventBus, workerID)
	runner.SetMetrics(collector)

	if command.Bool("enable-tracing") {
		tracer, err := otelhelper.NewTracer(ctx, "loom-worker")
		if err != nil {
			return err
		}

		runner.SetTracer(tracer)
	}

	worker := workflow.NewWorker(logger, runner, eventBus)
	if err := worker.Start(ctx); err != nil {
		return err
	}

	if stream := command.String("trigger-stream"); stream != "" {
		executionService := services.NewExecution(logger, persistence, eventBus)

		receiver, err := queue.NewReceiver(logger, queue.Config{
			Addr:     command.String("redis-addr"),
			Stream:   stream,
			Group:    "loom-workers",
			Consumer: workerID,
		}, executionService)
		if err != nil {
			return err
		}

		if err := receiver.Start(ctx); err != nil {
			return err
		}

		defer func() {
			if err := receiver.Stop(context.Background()); err != nil {
				logger.Error("Failed to stop queue receiver", "error", err)
			}
		}()
	}

	if port := command.Int("metrics-port"); port > 0 {
		go serveMetrics(logger, collector, port)
	}

	logger.InfoContext(ctx, "Worker running")
	<-ctx.Done()
	logger.Info("Shutting down worker")

	return nil
}

func serveMetrics(logger *slog.Logger, collector *metrics.Collector, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.HTTPHandler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server stopped", "error", err)
	}
}
