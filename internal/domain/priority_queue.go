package domain

import "time"

// PriorityQueueEntry holds the computed SLA state of one ticket.
type PriorityQueueEntry struct {
	TicketID           string
	SLAPolicyID        *string
	PriorityScore      float64
	ResponseDeadline   time.Time
	ResolutionDeadline time.Time
	ResponseMetSLA     *bool
	ResolutionMetSLA   *bool
	IsEscalated        bool
	EscalatedAt        *time.Time
	EscalationReason   string
	UpdatedAt          time.Time
}

// Escalation is the claim written when an entry flips to escalated.
type Escalation struct {
	TicketID string
	Reason   EscalationReason
	At       time.Time
}
