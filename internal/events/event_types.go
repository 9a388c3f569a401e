package events

import (
	"time"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSLADeadlinesComputed  EventType = "sla_deadlines_computed"
	EventSLAEscalated          EventType = "sla_escalated"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.ActorType `json:"type"`
	StaffID *string          `json:"staff_id,omitempty"`
}

// ActorFrom converts a domain actor.
func ActorFrom(a domain.Actor) Actor {
	return Actor{Type: a.Type, StaffID: a.HistoryID()}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	CompanyID string    `json:"company_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// SLADeadlinesComputedPayload payload.
type SLADeadlinesComputedPayload struct {
	SLAPolicyID        *string               `json:"sla_policy_id,omitempty"`
	Priority           domain.TicketPriority `json:"priority"`
	ResponseDeadline   time.Time             `json:"response_deadline"`
	ResolutionDeadline time.Time             `json:"resolution_deadline"`
	PriorityScore      float64               `json:"priority_score"`
}

// SLAEscalatedPayload payload.
type SLAEscalatedPayload struct {
	EscalationID       string                  `json:"escalation_id"`
	Reason             domain.EscalationReason `json:"reason"`
	TriggeredAt        time.Time               `json:"triggered_at"`
	PreviousPriority   domain.TicketPriority   `json:"previous_priority"`
	NewPriority        domain.TicketPriority   `json:"new_priority"`
	PreviousAssigneeID *string                 `json:"previous_assignee_id,omitempty"`
	NewAssigneeID      *string                 `json:"new_assignee_id,omitempty"`
	Title              string                  `json:"title"`
	Supervisors        []Recipient             `json:"supervisors,omitempty"`
}

// Recipient is a staff member a notification is addressed to.
type Recipient struct {
	StaffID string           `json:"staff_id"`
	Name    string           `json:"name,omitempty"`
	Email   string           `json:"email,omitempty"`
	Role    domain.StaffRole `json:"role"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeStaffID string `json:"assignee_staff_id"`
	AssigneeName    string `json:"assignee_name,omitempty"`
	AssigneeEmail   string `json:"assignee_email,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus    domain.TicketStatus `json:"old_status"`
	NewStatus    domain.TicketStatus `json:"new_status"`
	TransitionID string              `json:"transition_id,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}
