package dto

import (
	"time"

	"github.com/spec-kit/msp-sla/internal/calendar"
	"github.com/spec-kit/msp-sla/internal/domain"
	apperrors "github.com/spec-kit/msp-sla/pkg/util/errorutil"
)

// SLATargetPayload is the minute budget of one priority.
type SLATargetPayload struct {
	ResponseMinutes   int `json:"response_minutes"`
	ResolutionMinutes int `json:"resolution_minutes"`
}

// SLAPolicyRequest is the body of create, update and validate calls.
type SLAPolicyRequest struct {
	Name                    string                      `json:"name"`
	IsDefault               bool                        `json:"is_default"`
	Targets                 map[string]SLATargetPayload `json:"targets"`
	Coverage                calendar.Coverage           `json:"coverage"`
	BreachWarningPercentage int                         `json:"breach_warning_percentage"`
	EffectiveFrom           *time.Time                  `json:"effective_from"`
	EffectiveTo             *time.Time                  `json:"effective_to"`
}

// ToDomain converts the request. A missing effective_from means now. Priority keys
// are kept as sent so validation can report unknown ones.
func (r SLAPolicyRequest) ToDomain(now time.Time) *domain.SLAPolicy {
	targets := make(map[domain.TicketPriority]domain.SLATarget, len(r.Targets))
	for key, t := range r.Targets {
		priority := domain.TicketPriority(key)
		if parsed, ok := domain.ParsePriority(key); ok {
			priority = parsed
		}
		targets[priority] = domain.SLATarget{ResponseMinutes: t.ResponseMinutes, ResolutionMinutes: t.ResolutionMinutes}
	}
	from := now
	if r.EffectiveFrom != nil {
		from = *r.EffectiveFrom
	}
	return &domain.SLAPolicy{
		Name:                    r.Name,
		IsDefault:               r.IsDefault,
		Targets:                 targets,
		Coverage:                r.Coverage,
		BreachWarningPercentage: r.BreachWarningPercentage,
		EffectiveFrom:           from,
		EffectiveTo:             r.EffectiveTo,
	}
}

// SLAPolicyResponse is the API view of a policy.
type SLAPolicyResponse struct {
	ID                      string                      `json:"id"`
	Name                    string                      `json:"name"`
	IsDefault               bool                        `json:"is_default"`
	IsActive                bool                        `json:"is_active"`
	Targets                 map[string]SLATargetPayload `json:"targets"`
	Coverage                calendar.Coverage           `json:"coverage"`
	BreachWarningPercentage int                         `json:"breach_warning_percentage"`
	EffectiveFrom           time.Time                   `json:"effective_from"`
	EffectiveTo             *time.Time                  `json:"effective_to,omitempty"`
	CreatedAt               time.Time                   `json:"created_at"`
	UpdatedAt               time.Time                   `json:"updated_at"`
}

// NewSLAPolicyResponse maps a policy.
func NewSLAPolicyResponse(p *domain.SLAPolicy) SLAPolicyResponse {
	targets := make(map[string]SLATargetPayload, len(p.Targets))
	for priority, t := range p.Targets {
		targets[string(priority)] = SLATargetPayload{ResponseMinutes: t.ResponseMinutes, ResolutionMinutes: t.ResolutionMinutes}
	}
	return SLAPolicyResponse{
		ID:                      p.ID,
		Name:                    p.Name,
		IsDefault:               p.IsDefault,
		IsActive:                p.IsActive,
		Targets:                 targets,
		Coverage:                p.Coverage,
		BreachWarningPercentage: p.BreachWarningPercentage,
		EffectiveFrom:           p.EffectiveFrom,
		EffectiveTo:             p.EffectiveTo,
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

// PolicyValidationResponse lists configuration problems.
type PolicyValidationResponse struct {
	Valid  bool                   `json:"valid"`
	Errors []apperrors.FieldError `json:"errors"`
}
