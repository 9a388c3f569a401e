package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/msp-sla/internal/api/dto"
	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/service"
	"github.com/spec-kit/msp-sla/internal/workflow"
)

// WorkflowService executes and analyses workflows.
type WorkflowService interface {
	ExecuteTransition(ctx context.Context, actor domain.Actor, ticketID, transitionID string, now time.Time) (*service.TransitionOutcome, error)
	ValidateWorkflow(ctx context.Context, actor domain.Actor, workflowID string) (workflow.Report, error)
}

// WorkflowHandler serves transitions and workflow validation.
type WorkflowHandler struct {
	service WorkflowService
	clock   Clock
}

// NewWorkflowHandler constructs the handler.
func NewWorkflowHandler(svc WorkflowService, clock Clock) *WorkflowHandler {
	return &WorkflowHandler{service: svc, clock: clock}
}

// Execute POST /tickets/:id/transitions/:transitionId.
func (h *WorkflowHandler) Execute(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	outcome, err := h.service.ExecuteTransition(c.UserContext(), actor, c.Params("id"), c.Params("transitionId"), h.clock.now())
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewTransitionResponse(outcome))
}

// Validate GET /workflows/:id/validation.
func (h *WorkflowHandler) Validate(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	report, err := h.service.ValidateWorkflow(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewWorkflowValidationResponse(id, report))
}
