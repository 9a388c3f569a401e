package domain

import "time"

// ActorType indicates who made a change.
type ActorType string

const (
	ActorTypeStaff  ActorType = "STAFF"
	ActorTypeSystem ActorType = "SYSTEM"
)

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus       TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee     TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypePriority     TicketChangeType = "PRIORITY_CHANGE"
	ChangeTypeTags         TicketChangeType = "TAGS_CHANGE"
	ChangeTypeField        TicketChangeType = "FIELD_CHANGE"
	ChangeTypeNote         TicketChangeType = "NOTE_ADDED"
	ChangeTypeEscalation   TicketChangeType = "SLA_ESCALATION"
	ChangeTypeSLADeadlines TicketChangeType = "SLA_DEADLINES"
)

// SLAChangeTypes are the entries that make up a ticket's SLA audit trail: deadline
// computations and everything an escalation writes.
var SLAChangeTypes = []TicketChangeType{
	ChangeTypeSLADeadlines,
	ChangeTypeEscalation,
	ChangeTypePriority,
	ChangeTypeAssignee,
}

// TicketHistory is an immutable audit trail entry. ChangedByID is nil for
// automated changes.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByType ActorType
	ChangedByID   *string
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
