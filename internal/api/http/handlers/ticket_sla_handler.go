package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/msp-sla/internal/api/dto"
	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/escalation"
	"github.com/spec-kit/msp-sla/internal/service"
)

// TicketSLAService maintains ticket SLA state.
type TicketSLAService interface {
	InitializeSLA(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (*service.SLAStatus, error)
	GetSLAStatus(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (*service.SLAStatus, error)
	RecordFirstResponse(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (*service.SLAStatus, error)
	ResolveTicket(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (*service.SLAStatus, error)
	EvaluateEscalation(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (escalation.Evaluation, error)
	SLAHistory(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.TicketHistory, error)
}

// TicketSLAHandler serves /tickets/:id/sla and the lifecycle stamps.
type TicketSLAHandler struct {
	service TicketSLAService
	clock   Clock
}

// NewTicketSLAHandler constructs the handler.
func NewTicketSLAHandler(svc TicketSLAService, clock Clock) *TicketSLAHandler {
	return &TicketSLAHandler{service: svc, clock: clock}
}

type statusCall func(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (*service.SLAStatus, error)

func (h *TicketSLAHandler) respond(c *fiber.Ctx, status int, call statusCall) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	result, err := call(c.UserContext(), actor, c.Params("id"), h.clock.now())
	if err != nil {
		return err
	}
	return data(c, status, dto.NewSLAStatusResponse(result))
}

// Initialize POST /tickets/:id/sla.
func (h *TicketSLAHandler) Initialize(c *fiber.Ctx) error {
	return h.respond(c, http.StatusOK, h.service.InitializeSLA)
}

// Get GET /tickets/:id/sla.
func (h *TicketSLAHandler) Get(c *fiber.Ctx) error {
	return h.respond(c, http.StatusOK, h.service.GetSLAStatus)
}

// FirstResponse POST /tickets/:id/first-response.
func (h *TicketSLAHandler) FirstResponse(c *fiber.Ctx) error {
	return h.respond(c, http.StatusOK, h.service.RecordFirstResponse)
}

// Resolve POST /tickets/:id/resolve.
func (h *TicketSLAHandler) Resolve(c *fiber.Ctx) error {
	return h.respond(c, http.StatusOK, h.service.ResolveTicket)
}

// Evaluate POST /tickets/:id/escalation/evaluate.
func (h *TicketSLAHandler) Evaluate(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	eval, err := h.service.EvaluateEscalation(c.UserContext(), actor, c.Params("id"), h.clock.now())
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewEvaluationResponse(eval))
}

// History GET /tickets/:id/sla/history.
func (h *TicketSLAHandler) History(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	entries, err := h.service.SLAHistory(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewHistoryResponse(entries))
}
