package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/msp-sla/internal/api/dto"
	"github.com/spec-kit/msp-sla/internal/domain"
	apperrors "github.com/spec-kit/msp-sla/pkg/util/errorutil"
)

// PolicyService administers SLA policies.
type PolicyService interface {
	Validate(policy *domain.SLAPolicy) []apperrors.FieldError
	Create(ctx context.Context, actor domain.Actor, policy *domain.SLAPolicy) (*domain.SLAPolicy, error)
	Update(ctx context.Context, actor domain.Actor, id string, input *domain.SLAPolicy) (*domain.SLAPolicy, error)
	Get(ctx context.Context, actor domain.Actor, id string) (*domain.SLAPolicy, error)
	List(ctx context.Context, actor domain.Actor, activeOnly bool) ([]domain.SLAPolicy, error)
	Deactivate(ctx context.Context, actor domain.Actor, id string) (*domain.SLAPolicy, error)
}

// SLAPolicyHandler serves /sla-policies.
type SLAPolicyHandler struct {
	service PolicyService
	clock   Clock
}

// NewSLAPolicyHandler constructs the handler.
func NewSLAPolicyHandler(svc PolicyService, clock Clock) *SLAPolicyHandler {
	return &SLAPolicyHandler{service: svc, clock: clock}
}

// Validate POST /sla-policies/validate. Reports problems without saving.
func (h *SLAPolicyHandler) Validate(c *fiber.Ctx) error {
	req, err := parsePolicy(c)
	if err != nil {
		return err
	}
	errs := h.service.Validate(req.ToDomain(h.clock.now()))
	if errs == nil {
		errs = []apperrors.FieldError{}
	}
	return data(c, http.StatusOK, dto.PolicyValidationResponse{Valid: len(errs) == 0, Errors: errs})
}

// Create POST /sla-policies.
func (h *SLAPolicyHandler) Create(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	req, err := parsePolicy(c)
	if err != nil {
		return err
	}
	policy, err := h.service.Create(c.UserContext(), actor, req.ToDomain(h.clock.now()))
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, dto.NewSLAPolicyResponse(policy))
}

// Update PUT /sla-policies/:id.
func (h *SLAPolicyHandler) Update(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	req, err := parsePolicy(c)
	if err != nil {
		return err
	}
	policy, err := h.service.Update(c.UserContext(), actor, c.Params("id"), req.ToDomain(h.clock.now()))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewSLAPolicyResponse(policy))
}

// Get GET /sla-policies/:id.
func (h *SLAPolicyHandler) Get(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	policy, err := h.service.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewSLAPolicyResponse(policy))
}

// List GET /sla-policies?active=true.
func (h *SLAPolicyHandler) List(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	policies, err := h.service.List(c.UserContext(), actor, c.QueryBool("active", false))
	if err != nil {
		return err
	}
	items := make([]dto.SLAPolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, dto.NewSLAPolicyResponse(&policies[i]))
	}
	return data(c, http.StatusOK, items)
}

// Deactivate POST /sla-policies/:id/deactivate.
func (h *SLAPolicyHandler) Deactivate(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	policy, err := h.service.Deactivate(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewSLAPolicyResponse(policy))
}

func parsePolicy(c *fiber.Ctx) (dto.SLAPolicyRequest, error) {
	var req dto.SLAPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return req, apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}
	return req, nil
}
