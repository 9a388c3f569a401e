package sla

import (
	"time"

	"github.com/spec-kit/msp-sla/internal/calendar"
	"github.com/spec-kit/msp-sla/internal/domain"
)

// 2024-01-01 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func businessHoursPolicy() *domain.SLAPolicy {
	return &domain.SLAPolicy{
		ID:        "pol-business",
		CompanyID: "co-1",
		Name:      "Business hours",
		IsActive:  true,
		Targets: map[domain.TicketPriority]domain.SLATarget{
			domain.TicketPriorityCritical: {ResponseMinutes: 30, ResolutionMinutes: 240},
			domain.TicketPriorityHigh:     {ResponseMinutes: 240, ResolutionMinutes: 960},
			domain.TicketPriorityMedium:   {ResponseMinutes: 480, ResolutionMinutes: 2400},
			domain.TicketPriorityLow:      {ResponseMinutes: 960, ResolutionMinutes: 4800},
		},
		Coverage: calendar.Coverage{
			Type:               calendar.CoverageBusinessHours,
			BusinessHoursStart: "09:00",
			BusinessHoursEnd:   "17:00",
			BusinessDays:       []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
			Timezone:           "UTC",
		},
		BreachWarningPercentage: 75,
		EffectiveFrom:           at(1, 0, 0),
	}
}

func ticketAt(priority domain.TicketPriority, created time.Time) domain.Ticket {
	return domain.Ticket{
		ID:        "t-1",
		CompanyID: "co-1",
		ClientID:  "cl-1",
		Status:    domain.TicketStatusOpen,
		Priority:  priority,
		CreatedAt: created,
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }
