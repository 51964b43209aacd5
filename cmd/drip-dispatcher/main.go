package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/dukex/drip/pkg/cmd"
	"github.com/dukex/drip/pkg/delivery"
	"github.com/dukex/drip/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "drip-dispatcher",
		EnableShellCompletion: true,
		Usage:                 "Deliver signed webhooks with retries and an attempt log",
		Flags: slices.Concat(cmd.StoreFlags(), cmd.DeliveryFlags(), []cli.Flag{
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Interval between due-attempt polls",
				Value:   delivery.DefaultConfig("").PollInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Maximum webhook requests in flight",
				Value:   delivery.DefaultConfig("").Concurrency,
				Sources: cli.EnvVars("CONCURRENCY"),
			},
		}),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := cmd.WorkerID(command, "dispatcher")
			logger := log.WithModule("drip-dispatcher").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Drip Dispatcher")

			stack, err := cmd.OpenStack(ctx, command, "drip-dispatcher", logger)
			if err != nil {
				return err
			}
			defer stack.Close(context.WithoutCancel(ctx))

			config := cmd.DeliveryConfig(command, workerID)
			config.PollInterval = command.Duration("poll-interval")
			config.Concurrency = command.Int("concurrency")

			dispatcher, err := delivery.NewDispatcher(config, stack.Persistence, stack.EventBus, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return dispatcher.Run(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
