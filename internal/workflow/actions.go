package workflow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// Action types.
const (
	ActionAssign      = "assign"
	ActionSetPriority = "set_priority"
	ActionAddTag      = "add_tag"
	ActionRemoveTag   = "remove_tag"
	ActionUpdateField = "update_field"
	ActionAddNote     = "add_note"
)

// updatableFields is the allow-list for update_field.
var updatableFields = map[string]bool{"title": true, "category": true, "status": true}

// unassignValues clear the assignee.
var unassignValues = map[string]bool{"": true, "none": true, "unassigned": true}

// Action is a parsed side effect. The set of implementations is closed.
type Action interface {
	Kind() string
	apply(state *actionState)
}

// AssignAction sets or clears the assignee. "actor" assigns to the acting staff member.
type AssignAction struct{ AssigneeID string }

// SetPriorityAction sets the ticket priority.
type SetPriorityAction struct{ Priority domain.TicketPriority }

// AddTagAction adds a tag if missing.
type AddTagAction struct{ Tag string }

// RemoveTagAction removes a tag.
type RemoveTagAction struct{ Tag string }

// UpdateFieldAction sets an allow-listed ticket field.
type UpdateFieldAction struct {
	Field string
	Value string
}

// AddNoteAction records an internal note.
type AddNoteAction struct{ Note string }

// UnknownAction is skipped.
type UnknownAction struct {
	Type   string
	Reason string
}

func (AssignAction) Kind() string      { return ActionAssign }
func (SetPriorityAction) Kind() string { return ActionSetPriority }
func (AddTagAction) Kind() string      { return ActionAddTag }
func (RemoveTagAction) Kind() string   { return ActionRemoveTag }
func (UpdateFieldAction) Kind() string { return ActionUpdateField }
func (AddNoteAction) Kind() string     { return ActionAddNote }
func (UnknownAction) Kind() string     { return "unknown" }

// Change is one field-level change produced by an action, ready for the audit trail.
type Change struct {
	Type     domain.TicketChangeType
	OldValue map[string]any
	NewValue map[string]any
}

// SkippedAction records an action that did nothing and why.
type SkippedAction struct {
	Type   string
	Reason string
}

// ActionResult is the outcome of applying a list of actions.
type ActionResult struct {
	Ticket  domain.Ticket
	Applied []string
	Skipped []SkippedAction
	Changes []Change
	Notes   []string
}

type actionState struct {
	ticket domain.Ticket
	actor  domain.Actor
	result *ActionResult
}

func (s *actionState) change(ct domain.TicketChangeType, key string, oldValue, newValue any) {
	s.result.Changes = append(s.result.Changes, Change{
		Type:     ct,
		OldValue: map[string]any{key: oldValue},
		NewValue: map[string]any{key: newValue},
	})
}

// ParseAction maps a declarative action to its variant.
func ParseAction(raw domain.TransitionAction) Action {
	value := strings.TrimSpace(string(raw.Value))
	switch strings.ToLower(strings.TrimSpace(raw.Type)) {
	case ActionAssign:
		return AssignAction{AssigneeID: value}
	case ActionSetPriority:
		priority, ok := domain.ParsePriority(value)
		if !ok {
			return UnknownAction{Type: raw.Type, Reason: fmt.Sprintf("unknown priority %q", value)}
		}
		return SetPriorityAction{Priority: priority}
	case ActionAddTag, ActionRemoveTag:
		if value == "" {
			return UnknownAction{Type: raw.Type, Reason: "tag is required"}
		}
		if strings.EqualFold(raw.Type, ActionAddTag) {
			return AddTagAction{Tag: value}
		}
		return RemoveTagAction{Tag: value}
	case ActionUpdateField:
		field := strings.ToLower(strings.TrimSpace(raw.Field))
		if !updatableFields[field] {
			return UnknownAction{Type: raw.Type, Reason: fmt.Sprintf("field %q is not updatable", raw.Field)}
		}
		if field == "status" {
			status, ok := domain.ParseStatus(value)
			if !ok {
				return UnknownAction{Type: raw.Type, Reason: fmt.Sprintf("unknown status %q", value)}
			}
			value = string(status)
		}
		return UpdateFieldAction{Field: field, Value: value}
	case ActionAddNote:
		if value == "" {
			return UnknownAction{Type: raw.Type, Reason: "note is empty"}
		}
		return AddNoteAction{Note: value}
	}
	return UnknownAction{Type: raw.Type, Reason: "unknown action type"}
}

func (a AssignAction) apply(s *actionState) {
	previous := deref(s.ticket.AssignedTo)
	var next *string
	switch {
	case unassignValues[strings.ToLower(a.AssigneeID)]:
	case strings.EqualFold(a.AssigneeID, actorValue):
		if s.actor.ID == "" || s.actor.IsSystem() {
			s.skip(a.Kind(), "no staff actor to assign")
			return
		}
		id := s.actor.ID
		next = &id
	default:
		id := a.AssigneeID
		next = &id
	}
	if previous == deref(next) {
		s.skip(a.Kind(), "assignee unchanged")
		return
	}
	s.ticket.AssignedTo = next
	s.applied(a.Kind())
	s.change(domain.ChangeTypeAssignee, "assigned_to", nilIfEmpty(previous), nilIfEmpty(deref(next)))
}

func (a SetPriorityAction) apply(s *actionState) {
	previous := s.ticket.Priority
	if previous == a.Priority {
		s.skip(a.Kind(), "priority unchanged")
		return
	}
	s.ticket.Priority = a.Priority
	s.applied(a.Kind())
	s.change(domain.ChangeTypePriority, "priority", previous, a.Priority)
}

func (a AddTagAction) apply(s *actionState) {
	if s.ticket.HasTag(a.Tag) {
		s.skip(a.Kind(), "tag already present")
		return
	}
	previous := slices.Clone(s.ticket.Tags)
	s.ticket.Tags = append(s.ticket.Tags, a.Tag)
	s.applied(a.Kind())
	s.change(domain.ChangeTypeTags, "tags", previous, slices.Clone(s.ticket.Tags))
}

func (a RemoveTagAction) apply(s *actionState) {
	if !s.ticket.HasTag(a.Tag) {
		s.skip(a.Kind(), "tag not present")
		return
	}
	previous := slices.Clone(s.ticket.Tags)
	s.ticket.Tags = slices.DeleteFunc(s.ticket.Tags, func(tag string) bool {
		return strings.EqualFold(tag, a.Tag)
	})
	s.applied(a.Kind())
	s.change(domain.ChangeTypeTags, "tags", previous, slices.Clone(s.ticket.Tags))
}

func (a UpdateFieldAction) apply(s *actionState) {
	var previous string
	changeType := domain.ChangeTypeField
	switch a.Field {
	case "title":
		previous = s.ticket.Title
		s.ticket.Title = a.Value
	case "category":
		previous = s.ticket.Category
		s.ticket.Category = a.Value
	case "status":
		previous = string(s.ticket.Status)
		s.ticket.Status = domain.TicketStatus(a.Value)
		changeType = domain.ChangeTypeStatus
	}
	s.applied(a.Kind())
	s.change(changeType, a.Field, previous, a.Value)
}

func (a AddNoteAction) apply(s *actionState) {
	s.result.Notes = append(s.result.Notes, a.Note)
	s.applied(a.Kind())
	s.change(domain.ChangeTypeNote, "note", nil, a.Note)
}

func (a UnknownAction) apply(s *actionState) {
	s.skip(a.Type, a.Reason)
}

func (s *actionState) applied(kind string) {
	s.result.Applied = append(s.result.Applied, kind)
}

func (s *actionState) skip(kind, reason string) {
	s.result.Skipped = append(s.result.Skipped, SkippedAction{Type: kind, Reason: reason})
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
