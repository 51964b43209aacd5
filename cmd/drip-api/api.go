// Package main provides the Drip operational API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/drip/pkg/definitions"
	"github.com/dukex/drip/pkg/delivery"
	"github.com/dukex/drip/pkg/eventbus"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/dukex/drip/pkg/web"
	"github.com/dukex/drip/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	definitions definitions.Store
	eventBus    eventbus.EventBus
	delivery    delivery.Config
	validate    *validator.Validate
}

func NewAPI(
	id string,
	logger *slog.Logger,
	persistence persistence.Persistence,
	definitions definitions.Store,
	eventBus eventbus.EventBus,
	delivery delivery.Config,
) *API {
	return &API{
		id:          id,
		persistence: persistence,
		definitions: definitions,
		logger:      logger,
		eventBus:    eventBus,
		delivery:    delivery,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// App wires the engine into a fiber app. Deliveries and woken enrollments are
// left to the dispatcher and worker processes polling the same store.
func (a *API) App() (*fiber.App, error) {
	var notifier workflow.Notifier = workflow.NopNotifier()
	if a.eventBus != nil {
		notifier = workflow.NewBusNotifier(a.eventBus, a.id, a.logger)
	}

	ledger := workflow.NewLedger(a.persistence, a.definitions, notifier, a.logger)
	goals := workflow.NewGoalEvaluator(ledger, a.persistence, a.definitions, a.logger)
	router := workflow.NewEventRouter(ledger, a.persistence, goals, nil, a.logger)

	var publisher eventbus.EventPublisher
	if a.eventBus != nil {
		publisher = a.eventBus
	}

	dispatcher, err := delivery.NewDispatcher(a.delivery, a.persistence, publisher, a.logger)
	if err != nil {
		return nil, err
	}

	handlers := web.NewAPIHandlers(ledger, router, dispatcher, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Drip API")
	})

	handlers.Register(app)

	return app, nil
}

func (a *API) Start(port int) error {
	app, err := a.App()
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
