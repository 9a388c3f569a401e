package domain

import "time"

// EscalationReason names the SLA condition that triggered an escalation.
type EscalationReason string

const (
	ReasonNone              EscalationReason = ""
	ReasonResolutionBreach  EscalationReason = "resolution_breach"
	ReasonResolutionWarning EscalationReason = "resolution_warning"
	ReasonResponseBreach    EscalationReason = "response_breach"
	ReasonResponseWarning   EscalationReason = "response_warning"
)

// IsBreach reports whether the reason is an actual breach rather than a warning.
func (r EscalationReason) IsBreach() bool {
	return r == ReasonResolutionBreach || r == ReasonResponseBreach
}

// EscalationEvent is emitted for the notification collaborator once per escalation cycle.
type EscalationEvent struct {
	ID                 string           `json:"id"`
	TicketID           string           `json:"ticket_id"`
	CompanyID          string           `json:"company_id"`
	Reason             EscalationReason `json:"reason"`
	TriggeredAt        time.Time        `json:"triggered_at"`
	PreviousPriority   TicketPriority   `json:"previous_priority"`
	NewPriority        TicketPriority   `json:"new_priority"`
	PreviousAssigneeID *string          `json:"previous_assignee_id,omitempty"`
	NewAssigneeID      *string          `json:"new_assignee_id,omitempty"`
}
