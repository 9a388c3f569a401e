package domain

import (
	"time"

	"github.com/spec-kit/msp-sla/internal/calendar"
)

// SLATarget is the minute budget for one priority.
type SLATarget struct {
	ResponseMinutes   int `json:"response_minutes" yaml:"response_minutes" validate:"gt=0"`
	ResolutionMinutes int `json:"resolution_minutes" yaml:"resolution_minutes" validate:"gt=0"`
}

// SLAPolicy is one SLA tier. Once effective it is treated as immutable; changes produce
// a new revision and the old one is deactivated.
type SLAPolicy struct {
	ID                      string                       `json:"id" yaml:"id"`
	CompanyID               string                       `json:"company_id" yaml:"company_id"`
	Name                    string                       `json:"name" yaml:"name" validate:"required,max=200"`
	IsDefault               bool                         `json:"is_default" yaml:"is_default"`
	IsActive                bool                         `json:"is_active" yaml:"is_active"`
	Targets                 map[TicketPriority]SLATarget `json:"targets" yaml:"targets" validate:"required,dive"`
	Coverage                calendar.Coverage            `json:"coverage" yaml:"coverage"`
	BreachWarningPercentage int                          `json:"breach_warning_percentage" yaml:"breach_warning_percentage" validate:"gt=0,lte=100"`
	EffectiveFrom           time.Time                    `json:"effective_from" yaml:"effective_from"`
	EffectiveTo             *time.Time                   `json:"effective_to,omitempty" yaml:"effective_to,omitempty"`
	CreatedAt               time.Time                    `json:"created_at" yaml:"-"`
	UpdatedAt               time.Time                    `json:"updated_at" yaml:"-"`
}

// IsEffective reports whether the policy is active and inside its effective window at now.
func (p *SLAPolicy) IsEffective(now time.Time) bool {
	if p == nil || !p.IsActive {
		return false
	}
	if !p.EffectiveFrom.IsZero() && now.Before(p.EffectiveFrom) {
		return false
	}
	if p.EffectiveTo != nil && now.After(*p.EffectiveTo) {
		return false
	}
	return true
}

// Target returns the minute budget for priority, matching case-insensitively.
func (p *SLAPolicy) Target(priority TicketPriority) (SLATarget, bool) {
	if p == nil {
		return SLATarget{}, false
	}
	want := priority.Normalize()
	for key, target := range p.Targets {
		if parsed, ok := ParsePriority(string(key)); ok && parsed == want {
			return target, true
		}
	}
	return SLATarget{}, false
}
