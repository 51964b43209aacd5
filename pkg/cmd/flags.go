package cmd

import (
	"time"

	"github.com/dukex/drip/pkg/delivery"
	"github.com/dukex/drip/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

// StoreFlags configure persistence, definitions and the event bus, shared by
// every binary.
func StoreFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (memory:// or postgres://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "definitions-url",
			Usage:   "Location of workflow and goal definitions",
			Value:   "file://./definitions",
			Sources: cli.EnvVars("DEFINITIONS_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the shared definition cache and the inbound event queue",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.DurationFlag{
			Name:    "definitions-cache-ttl",
			Usage:   "Expiry of definition snapshots cached in Redis",
			Value:   time.Hour,
			Sources: cli.EnvVars("DEFINITIONS_CACHE_TTL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (kafka, gochannel)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP (configured by OTEL_EXPORTER_OTLP_*)",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}

// EngineFlags configure the workflow scheduler, executor and side-effect
// collaborators.
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Interval between due-enrollment polls",
			Value:   time.Second,
			Sources: cli.EnvVars("POLL_INTERVAL"),
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Usage:   "Maximum enrollments claimed per poll",
			Value:   50,
			Sources: cli.EnvVars("BATCH_SIZE"),
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Usage:   "Maximum enrollments executed at once",
			Value:   8,
			Sources: cli.EnvVars("CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:    "lease",
			Usage:   "Claim lease; an expired lease makes a running enrollment due again",
			Value:   5 * time.Minute,
			Sources: cli.EnvVars("LEASE"),
		},
		&cli.IntFlag{
			Name:    "max-attempts",
			Usage:   "Attempts per side-effecting action before the enrollment fails",
			Value:   3,
			Sources: cli.EnvVars("MAX_ATTEMPTS"),
		},
		&cli.DurationFlag{
			Name:    "retry-base",
			Usage:   "Base delay of the exponential action retry backoff",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("RETRY_BASE"),
		},
		&cli.StringFlag{
			Name:    "gateway-url",
			Usage:   "Base URL of the side-effect gateway (log-only when empty)",
			Sources: cli.EnvVars("GATEWAY_URL"),
		},
		&cli.StringFlag{
			Name:    "gateway-token",
			Usage:   "Bearer token sent to the side-effect gateway",
			Sources: cli.EnvVars("GATEWAY_TOKEN"),
		},
	}
}

// DeliveryFlags configure the webhook delivery dispatcher.
func DeliveryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "webhook-max-retries",
			Usage:   "Retries after the first webhook attempt before a delivery is abandoned",
			Value:   3,
			Sources: cli.EnvVars("WEBHOOK_MAX_RETRIES"),
		},
		&cli.DurationFlag{
			Name:    "webhook-retry-base",
			Usage:   "Base delay of the webhook retry schedule",
			Value:   60 * time.Second,
			Sources: cli.EnvVars("WEBHOOK_RETRY_BASE"),
		},
		&cli.FloatFlag{
			Name:    "webhook-rate",
			Usage:   "Webhook requests per second per host (0 disables limiting)",
			Sources: cli.EnvVars("WEBHOOK_RATE"),
		},
		&cli.DurationFlag{
			Name:    "webhook-timeout",
			Usage:   "Timeout of a single webhook request",
			Value:   10 * time.Second,
			Sources: cli.EnvVars("WEBHOOK_TIMEOUT"),
		},
	}
}

// WorkerID returns the configured worker id or generates one with prefix.
func WorkerID(command *cli.Command, prefix string) string {
	id := command.String("worker-id")
	if id == "" {
		id = prefix + "-" + uuid.New().String()[:8]
	}

	return id
}

// SchedulerConfig reads the EngineFlags scheduler settings.
func SchedulerConfig(command *cli.Command, workerID string) workflow.SchedulerConfig {
	config := workflow.DefaultSchedulerConfig(workerID)
	config.PollInterval = command.Duration("poll-interval")
	config.BatchSize = command.Int("batch-size")
	config.Concurrency = command.Int("concurrency")
	config.Lease = command.Duration("lease")

	return config
}

// ExecutorConfig reads the EngineFlags retry settings.
func ExecutorConfig(command *cli.Command) workflow.ExecutorConfig {
	return workflow.ExecutorConfig{
		MaxAttempts: command.Int("max-attempts"),
		RetryBase:   command.Duration("retry-base"),
		Lease:       command.Duration("lease"),
	}
}

// DeliveryConfig reads the DeliveryFlags settings.
func DeliveryConfig(command *cli.Command, workerID string) delivery.Config {
	config := delivery.DefaultConfig(workerID)
	config.MaxRetries = command.Int("webhook-max-retries")
	config.RetryBase = command.Duration("webhook-retry-base")
	config.RatePerHost = command.Float("webhook-rate")
	config.Timeout = command.Duration("webhook-timeout")

	return config
}
