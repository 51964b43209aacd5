package main

import (
	"context"
	"os"
	"slices"

	"github.com/dukex/drip/pkg/cmd"
	"github.com/dukex/drip/pkg/log"
	"github.com/dukex/drip/pkg/sources/redisqueue"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "drip-worker",
		EnableShellCompletion: true,
		Usage:                 "Claim due enrollments, execute their actions and route inbound contact events",
		Flags: slices.Concat(cmd.StoreFlags(), cmd.EngineFlags(), cmd.DeliveryFlags(), []cli.Flag{
			&cli.BoolFlag{
				Name:    "deliver-webhooks",
				Usage:   "Also run the webhook delivery dispatcher in this process",
				Sources: cli.EnvVars("DELIVER_WEBHOOKS"),
			},
			&cli.StringFlag{
				Name:    "redis-queue",
				Usage:   "Redis list consumed for inbound domain events (requires --redis-url)",
				Value:   redisqueue.DefaultQueue,
				Sources: cli.EnvVars("REDIS_QUEUE"),
			},
			&cli.IntFlag{
				Name:    "redis-max-deliveries",
				Usage:   "Failed handler attempts before a queued event is dead-lettered",
				Value:   redisqueue.DefaultMaxDeliveries,
				Sources: cli.EnvVars("REDIS_MAX_DELIVERIES"),
			},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := cmd.WorkerID(command, "worker")
			logger := log.WithModule("drip-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Drip Worker")

			stack, err := cmd.OpenStack(ctx, command, "drip-worker", logger)
			if err != nil {
				return err
			}
			defer stack.Close(context.WithoutCancel(ctx))

			worker, err := NewWorker(WorkerConfig{
				ID:              workerID,
				Scheduler:       cmd.SchedulerConfig(command, workerID),
				Executor:        cmd.ExecutorConfig(command),
				Delivery:        cmd.DeliveryConfig(command, workerID),
				DeliverWebhooks: command.Bool("deliver-webhooks"),
				GatewayURL:      command.String("gateway-url"),
				GatewayToken:    command.String("gateway-token"),
				RedisQueue:      command.String("redis-queue"),
				RedisDeliveries: command.Int("redis-max-deliveries"),
			}, stack, logger)
			if err != nil {
				return err
			}

			return worker.Start(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
