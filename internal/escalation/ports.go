package escalation

import (
	"context"
	"time"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// NotificationSink delivers escalation side effects. Calls may fail independently.
type NotificationSink interface {
	NotifyEscalation(ctx context.Context, ticket domain.Ticket, event domain.EscalationEvent) error
	NotifyTicketAssigned(ctx context.Context, ticket domain.Ticket, staff domain.StaffMember) error
}

// UserDirectory finds escalation targets.
type UserDirectory interface {
	// FindSeniorTechnician returns an active senior staff member other than
	// excludeStaffID, nil when none qualifies.
	FindSeniorTechnician(ctx context.Context, companyID, excludeStaffID string, excludeOverloaded bool) (*domain.StaffMember, error)
}

// QueueStore persists priority queue entries.
type QueueStore interface {
	ListEscalationCandidates(ctx context.Context, responseBefore, resolutionBefore time.Time) ([]domain.PriorityQueueEntry, error)
	GetByTicketID(ctx context.Context, ticketID string) (*domain.PriorityQueueEntry, error)
	// MarkEscalated flips is_escalated only when it is still false and reports whether
	// this caller won.
	MarkEscalated(ctx context.Context, escalation domain.Escalation) (bool, error)
	// UpdateDeadlines rewrites computed fields, never the escalation fields.
	UpdateDeadlines(ctx context.Context, entry domain.PriorityQueueEntry) error
}

// TicketStore reads and updates the ticket fields escalation touches.
type TicketStore interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority, at time.Time) error
	UpdateAssignee(ctx context.Context, id string, assigneeID *string, at time.Time) error
}

// HistoryRecorder appends audit entries.
type HistoryRecorder interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
}

// PolicyStore loads the policy that produced an entry's deadlines.
type PolicyStore interface {
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
}

// Recorder receives scan metrics.
type Recorder interface {
	ObserveScan(duration time.Duration, checked, escalated, skipped, failed int)
	RecordEscalation(reason domain.EscalationReason)
	RecordScanFailure()
}

type nopRecorder struct{}

func (nopRecorder) ObserveScan(time.Duration, int, int, int, int) {}
func (nopRecorder) RecordEscalation(domain.EscalationReason)      {}
func (nopRecorder) RecordScanFailure()                            {}
