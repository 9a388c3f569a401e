package domain

import (
	"slices"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusInProgress  TicketStatus = "IN_PROGRESS"
	TicketStatusPendingUser TicketStatus = "PENDING_USER"
	TicketStatusResolved    TicketStatus = "RESOLVED"
	TicketStatusClosed      TicketStatus = "CLOSED"
	TicketStatusCancelled   TicketStatus = "CANCELLED"
)

// Statuses lists every lifecycle state.
var Statuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusPendingUser,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusCancelled,
}

// ParseStatus matches a status name case-insensitively.
func ParseStatus(s string) (TicketStatus, bool) {
	status := TicketStatus(strings.ToUpper(strings.TrimSpace(s)))
	if slices.Contains(Statuses, status) {
		return status, true
	}
	return "", false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// Priorities lists priorities from least to most urgent.
var Priorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityCritical,
}

// ParsePriority matches a priority name case-insensitively.
func ParsePriority(s string) (TicketPriority, bool) {
	p := TicketPriority(strings.ToUpper(strings.TrimSpace(s)))
	if slices.Contains(Priorities, p) {
		return p, true
	}
	return "", false
}

// Normalize returns the canonical priority, MEDIUM when unknown.
func (p TicketPriority) Normalize() TicketPriority {
	if parsed, ok := ParsePriority(string(p)); ok {
		return parsed
	}
	return TicketPriorityMedium
}

// Rank orders priorities, higher is more urgent.
func (p TicketPriority) Rank() int {
	return slices.Index(Priorities, p.Normalize())
}

// Escalated returns the next priority toward CRITICAL. CRITICAL stays CRITICAL.
func (p TicketPriority) Escalated() TicketPriority {
	rank := p.Rank()
	if rank >= len(Priorities)-1 {
		return TicketPriorityCritical
	}
	return Priorities[rank+1]
}

// IsTerminal reports statuses in which SLA clocks no longer matter.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// Ticket is the subset of the ticket aggregate the SLA core reads and writes.
type Ticket struct {
	ID              string
	CompanyID       string
	ClientID        string
	Title           string
	Category        string
	CreatedBy       *string
	AssignedTo      *string
	Status          TicketStatus
	Priority        TicketPriority
	Tags            []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	// Version increments on every write that touches workflow-mutable columns.
	Version         int64
}

// IsClosed reports whether the ticket left the active lifecycle.
func (t *Ticket) IsClosed() bool {
	return t.ClosedAt != nil || t.Status.IsTerminal()
}

// SLAStopped reports whether both SLA clocks have stopped for good.
func (t *Ticket) SLAStopped() bool {
	return t.IsClosed() || t.ResolvedAt != nil
}

// HasTag matches tags case-insensitively.
func (t *Ticket) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if strings.EqualFold(existing, tag) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so pure transformations never alias the caller's ticket.
func (t Ticket) Clone() Ticket {
	out := t
	out.Tags = slices.Clone(t.Tags)
	out.CreatedBy = cloneString(t.CreatedBy)
	out.AssignedTo = cloneString(t.AssignedTo)
	out.FirstResponseAt = cloneTime(t.FirstResponseAt)
	out.ResolvedAt = cloneTime(t.ResolvedAt)
	out.ClosedAt = cloneTime(t.ClosedAt)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
