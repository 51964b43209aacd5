package web

import (
	"errors"

	"github.com/dukex/drip/pkg/delivery"
	"github.com/dukex/drip/pkg/events"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/dukex/drip/pkg/protocol"
	"github.com/dukex/drip/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, problemType string, err error) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(err.Error())

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps engine errors to problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, workflow.ErrInvalidRequest),
		errors.Is(err, events.ErrInvalidEventData),
		protocol.IsValidation(err):
		return badRequest(c, err.Error())

	case persistence.IsEnrollmentNotFound(err):
		return notFound(c, "enrollment_not_found", "enrollment not found")

	case persistence.IsDefinitionNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	case persistence.IsDeliveryNotFound(err):
		return notFound(c, "delivery_not_found", "delivery not found")

	case persistence.IsActiveEnrollmentExists(err):
		return conflict(c, "active_enrollment_exists", err)

	case workflow.IsEnrollmentTerminal(err):
		return conflict(c, "enrollment_terminal", err)

	case errors.Is(err, workflow.ErrWorkflowNotActive):
		return conflict(c, "workflow_not_active", err)

	case errors.Is(err, delivery.ErrNotAbandoned):
		return conflict(c, "delivery_not_abandoned", err)

	default:
		return internalError(c, err)
	}
}
