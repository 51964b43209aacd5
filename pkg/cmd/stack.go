package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/drip/pkg/definitions"
	"github.com/dukex/drip/pkg/eventbus"
	"github.com/dukex/drip/pkg/otelhelper"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
)

// Stack holds the infrastructure every binary opens from StoreFlags.
type Stack struct {
	Persistence persistence.Persistence
	Definitions definitions.Store
	Redis       redis.UniversalClient
	EventBus    eventbus.EventBus

	closers []func(ctx context.Context) error
	logger  *slog.Logger
}

// OpenStack connects persistence, the definition store, Redis and the event
// bus. On error everything opened so far is closed.
func OpenStack(ctx context.Context, command *cli.Command, serviceName string, logger *slog.Logger) (*Stack, error) {
	stack := &Stack{logger: logger}

	err := stack.open(ctx, command, serviceName)
	if err != nil {
		stack.Close(ctx)

		return nil, err
	}

	return stack, nil
}

func (s *Stack) open(ctx context.Context, command *cli.Command, serviceName string) error {
	if command.Bool("tracing") {
		_, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return err
		}

		s.closers = append(s.closers, shutdown)
	}

	p, err := NewPersistence(ctx, s.logger, command.String("database-url"))
	if err != nil {
		return err
	}

	s.Persistence = p
	s.closers = append(s.closers, p.Close)

	client, err := NewRedisClient(command.String("redis-url"))
	if err != nil {
		return err
	}

	if client != nil {
		s.Redis = client
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
	}

	store, err := NewDefinitions(command.String("definitions-url"), client, command.Duration("definitions-cache-ttl"), s.logger)
	if err != nil {
		return err
	}

	s.Definitions = store

	bus, err := NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, s.logger)
	if err != nil {
		return err
	}

	s.EventBus = bus
	s.closers = append(s.closers, func(context.Context) error { return bus.Close() })

	return nil
}

// Close releases resources in reverse order of opening.
func (s *Stack) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		err := s.closers[i](ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to close resource", "error", err)
		}
	}

	s.closers = nil
}
