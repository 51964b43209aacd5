// Package web provides the operational HTTP surface of the engine.
package web

import (
	"net/http"
	"time"

	"github.com/dukex/drip/pkg/delivery"
	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/dukex/drip/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	ledger      *workflow.Ledger
	router      *workflow.EventRouter
	dispatcher  *delivery.Dispatcher
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	ledger *workflow.Ledger,
	router *workflow.EventRouter,
	dispatcher *delivery.Dispatcher,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		ledger:      ledger,
		router:      router,
		dispatcher:  dispatcher,
		persistence: persistence,
		validator:   validator,
	}
}

// Register mounts every route on app.
func (h *APIHandlers) Register(app *fiber.App) {
	e := app.Group("/enrollments")
	e.Post("/", h.Enroll)
	e.Get("/:id", h.GetEnrollment)
	e.Post("/:id/cancel", h.CancelEnrollment)

	app.Post("/events", h.IngestEvent)

	d := app.Group("/deliveries")
	d.Get("/:id/attempts", h.GetDeliveryAttempts)
	d.Post("/:id/redeliver", h.Redeliver)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	repository := "ok"

	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
		repository = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repository,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) Enroll(c fiber.Ctx) error {
	var req EnrollRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	enrollment, err := h.ledger.Enroll(c.Context(), workflow.EnrollRequest{
		WorkflowID: req.WorkflowID,
		TenantID:   req.TenantID,
		ContactID:  req.ContactID,
		Context:    req.Context,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(enrollment)
}

func (h *APIHandlers) GetEnrollment(c fiber.Ctx) error {
	id := c.Params("id")

	enrollment, err := h.ledger.Get(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	records, err := h.persistence.ExecutionRecordRepository().ByEnrollment(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	achievements, err := h.persistence.AchievementRepository().ByEnrollment(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(EnrollmentResponse{
		Enrollment:   enrollment,
		Records:      records,
		Achievements: achievements,
	})
}

func (h *APIHandlers) CancelEnrollment(c fiber.Ctx) error {
	var req CancelRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	enrollment, err := h.ledger.Cancel(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(enrollment)
}

func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	var event models.DomainEvent
	if err := c.Bind().JSON(&event); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result, err := h.router.Route(c.Context(), &event)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"event_id":     event.ID,
		"achievements": result.Achievements,
		"woken":        result.Woken,
	})
}

func (h *APIHandlers) GetDeliveryAttempts(c fiber.Ctx) error {
	id := c.Params("id")

	found, err := h.dispatcher.Get(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	attempts, err := h.dispatcher.Attempts(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(AttemptsResponse{Delivery: found, Attempts: attempts})
}

func (h *APIHandlers) Redeliver(c fiber.Ctx) error {
	redelivery, err := h.dispatcher.Redeliver(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(redelivery)
}
