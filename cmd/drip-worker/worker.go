package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/dukex/drip/pkg/cmd"
	"github.com/dukex/drip/pkg/delivery"
	"github.com/dukex/drip/pkg/events"
	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/sources/redisqueue"
	"github.com/dukex/drip/pkg/workflow"
	"golang.org/x/sync/errgroup"
)

type WorkerConfig struct {
	ID              string
	Scheduler       workflow.SchedulerConfig
	Executor        workflow.ExecutorConfig
	Delivery        delivery.Config
	DeliverWebhooks bool
	GatewayURL      string
	GatewayToken    string
	RedisQueue      string
	RedisDeliveries int
}

// Worker runs the scheduler claim loop and feeds inbound domain events from
// the event bus, and optionally a Redis list, to the event router.
type Worker struct {
	config     WorkerConfig
	stack      *cmd.Stack
	scheduler  *workflow.Scheduler
	router     *workflow.EventRouter
	dispatcher *delivery.Dispatcher
	consumer   *redisqueue.Consumer
	logger     *slog.Logger
}

func NewWorker(config WorkerConfig, stack *cmd.Stack, logger *slog.Logger) (*Worker, error) {
	notifier := workflow.NewBusNotifier(stack.EventBus, config.ID, logger)
	ledger := workflow.NewLedger(stack.Persistence, stack.Definitions, notifier, logger)

	dispatcher, err := delivery.NewDispatcher(config.Delivery, stack.Persistence, stack.EventBus, logger)
	if err != nil {
		return nil, err
	}

	collaborators := cmd.NewCollaborators(config.GatewayURL, config.GatewayToken, dispatcher, logger)
	executor := workflow.NewExecutor(ledger, stack.Persistence, stack.Definitions, collaborators, config.Executor, logger)

	scheduler, err := workflow.NewScheduler(config.Scheduler, stack.Persistence, ledger, executor, logger)
	if err != nil {
		return nil, err
	}

	goals := workflow.NewGoalEvaluator(ledger, stack.Persistence, stack.Definitions, logger)
	router := workflow.NewEventRouter(ledger, stack.Persistence, goals, scheduler, logger)

	w := &Worker{
		config:     config,
		stack:      stack,
		scheduler:  scheduler,
		router:     router,
		dispatcher: dispatcher,
		logger:     logger,
	}

	if stack.Redis != nil && config.RedisQueue != "" {
		w.consumer, err = redisqueue.NewConsumer(stack.Redis, config.RedisQueue, w.route, logger)
		if err != nil {
			return nil, err
		}

		w.consumer.WithMaxDeliveries(config.RedisDeliveries)
	}

	return w, nil
}

// Start runs until SIGINT or SIGTERM, or until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w.logger.InfoContext(ctx, "Starting worker")

	err := w.stack.EventBus.Handle(events.DomainEventReceivedEvent, w.router.HandleDomainEvent)
	if err != nil {
		return err
	}

	err = w.stack.EventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if w.consumer != nil {
		err = w.consumer.Start(ctx)
		if err != nil {
			return err
		}

		defer w.consumer.Stop(context.WithoutCancel(ctx))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return w.scheduler.Run(groupCtx) })

	if w.config.DeliverWebhooks {
		group.Go(func() error { return w.dispatcher.Run(groupCtx) })
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	err = group.Wait()

	w.logger.InfoContext(context.WithoutCancel(ctx), "Shutting down worker...")

	return err
}

func (w *Worker) route(ctx context.Context, event *models.DomainEvent) error {
	_, err := w.router.Route(ctx, event)

	return err
}
