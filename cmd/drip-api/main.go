package main

import (
	"context"
	"os"
	"slices"

	"github.com/dukex/drip/pkg/cmd"
	"github.com/dukex/drip/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "drip-api",
		Usage:                 "Enroll contacts, ingest events and inspect enrollments and deliveries",
		EnableShellCompletion: true,
		Flags: slices.Concat([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}, cmd.StoreFlags(), cmd.DeliveryFlags()),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := cmd.WorkerID(command, "api")
			logger := log.WithModule("drip-api")

			logger.InfoContext(ctx, "Initializing Drip API")

			stack, err := cmd.OpenStack(ctx, command, "drip-api", logger)
			if err != nil {
				return err
			}
			defer stack.Close(context.WithoutCancel(ctx))

			api := NewAPI(
				workerID,
				logger,
				stack.Persistence,
				stack.Definitions,
				stack.EventBus,
				cmd.DeliveryConfig(command, workerID),
			)

			port := command.Int("port")
			logger.InfoContext(ctx, "Starting API server", "port", port)

			return api.Start(port)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
