// Package workflow executes declarative ticket status transitions.
package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/msp-sla/internal/calendar"
	"github.com/spec-kit/msp-sla/internal/domain"
)

// Condition types.
const (
	ConditionField         = "field"
	ConditionTag           = "tag"
	ConditionAssignedTo    = "assigned_to"
	ConditionCreatedBy     = "created_by"
	ConditionAgeHours      = "age_hours"
	ConditionBusinessHours = "business_hours"
)

// Operators.
const (
	OpEquals         = "equals"
	OpNotEquals      = "not_equals"
	OpContains       = "contains"
	OpNotContains    = "not_contains"
	OpGreaterThan    = "greater_than"
	OpLessThan       = "less_than"
	OpGreaterOrEqual = "greater_or_equal"
	OpLessOrEqual    = "less_or_equal"
	OpHas            = "has"
	OpNotHas         = "not_has"
	OpIsSet          = "is_set"
	OpIsUnset        = "is_unset"
)

// actorValue in an assignment or creator condition refers to the acting staff member.
const actorValue = "actor"

var comparisonOps = map[string]bool{
	OpEquals: true, OpNotEquals: true,
	OpGreaterThan: true, OpLessThan: true,
	OpGreaterOrEqual: true, OpLessOrEqual: true,
}

// EvalContext is everything a condition may look at. Now is always supplied by the caller.
type EvalContext struct {
	Ticket   domain.Ticket
	Actor    domain.Actor
	Now      time.Time
	Coverage *calendar.Coverage
}

// Condition is a parsed guard. The set of implementations is closed.
type Condition interface {
	Kind() string
	Evaluate(ec EvalContext) bool
	sealedCondition()
}

// FieldCondition compares a ticket field.
type FieldCondition struct {
	Field    string
	Operator string
	Value    string
}

// TagCondition checks tag presence.
type TagCondition struct {
	Present bool
	Tag     string
}

// AssignedToCondition matches the assignee.
type AssignedToCondition struct {
	Operator string
	Value    string
}

// CreatedByCondition matches the creator.
type CreatedByCondition struct {
	Negate bool
	Value  string
}

// AgeCondition compares hours since creation.
type AgeCondition struct {
	Operator string
	Hours    float64
}

// BusinessHoursCondition checks whether the SLA clock is running now.
type BusinessHoursCondition struct {
	Want bool
}

// UnknownCondition never passes.
type UnknownCondition struct {
	Type   string
	Reason string
}

func (FieldCondition) Kind() string         { return ConditionField }
func (TagCondition) Kind() string           { return ConditionTag }
func (AssignedToCondition) Kind() string    { return ConditionAssignedTo }
func (CreatedByCondition) Kind() string     { return ConditionCreatedBy }
func (AgeCondition) Kind() string           { return ConditionAgeHours }
func (BusinessHoursCondition) Kind() string { return ConditionBusinessHours }
func (UnknownCondition) Kind() string       { return "unknown" }

func (FieldCondition) sealedCondition()         {}
func (TagCondition) sealedCondition()           {}
func (AssignedToCondition) sealedCondition()    {}
func (CreatedByCondition) sealedCondition()     {}
func (AgeCondition) sealedCondition()           {}
func (BusinessHoursCondition) sealedCondition() {}
func (UnknownCondition) sealedCondition()       {}

// ParseCondition maps a declarative condition to its variant. Anything that cannot be
// interpreted becomes an UnknownCondition.
func ParseCondition(raw domain.TransitionCondition) Condition {
	kind := strings.ToLower(strings.TrimSpace(raw.Type))
	op := strings.ToLower(strings.TrimSpace(raw.Operator))
	value := strings.TrimSpace(string(raw.Value))

	switch kind {
	case ConditionField:
		field := strings.ToLower(strings.TrimSpace(raw.Field))
		if _, ok := fieldValue(domain.Ticket{}, field); !ok {
			return UnknownCondition{Type: raw.Type, Reason: fmt.Sprintf("unsupported field %q", raw.Field)}
		}
		if op == "" {
			op = OpEquals
		}
		if !comparisonOps[op] && op != OpContains && op != OpNotContains {
			return UnknownCondition{Type: raw.Type, Reason: fmt.Sprintf("unsupported operator %q", raw.Operator)}
		}
		return FieldCondition{Field: field, Operator: op, Value: value}

	case ConditionTag:
		tag := value
		if tag == "" {
			tag = strings.TrimSpace(raw.Field)
		}
		switch op {
		case "", OpHas, OpContains, OpEquals:
			return TagCondition{Present: true, Tag: tag}
		case OpNotHas, OpNotContains, OpNotEquals:
			return TagCondition{Present: false, Tag: tag}
		}
		return UnknownCondition{Type: raw.Type, Reason: fmt.Sprintf("unsupported operator %q", raw.Operator)}

	case ConditionAssignedTo:
		switch op {
		case "":
			op = OpEquals
		case OpEquals, OpNotEquals, OpIsSet, OpIsUnset:
		default:
			return UnknownCondition{Type: raw.Type, Reason: fmt.Sprintf("unsupported operator %q", raw.Operator)}
		}
		return AssignedToCondition{Operator: op, Value: value}

	case ConditionCreatedBy:
		switch op {
		case "", OpEquals:
			return CreatedByCondition{Value: value}
		case OpNotEquals:
			return CreatedByCondition{Negate: true, Value: value}
		}
		return UnknownCondition{Type: raw.Type, Reason: fmt.Sprintf("unsupported operator %q", raw.Operator)}

	case ConditionAgeHours:
		if op == "" {
			op = OpGreaterOrEqual
		}
		if !comparisonOps[op] {
			return UnknownCondition{Type: raw.Type, Reason: fmt.Sprintf("unsupported operator %q", raw.Operator)}
		}
		hours, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return UnknownCondition{Type: raw.Type, Reason: fmt.Sprintf("age must be a number of hours, got %q", value)}
		}
		return AgeCondition{Operator: op, Hours: hours}

	case ConditionBusinessHours:
		if value == "" {
			return BusinessHoursCondition{Want: true}
		}
		want, err := strconv.ParseBool(value)
		if err != nil {
			return UnknownCondition{Type: raw.Type, Reason: fmt.Sprintf("business_hours expects true or false, got %q", value)}
		}
		return BusinessHoursCondition{Want: want}
	}
	return UnknownCondition{Type: raw.Type, Reason: "unknown condition type"}
}

func (c FieldCondition) Evaluate(ec EvalContext) bool {
	actual, _ := fieldValue(ec.Ticket, c.Field)
	switch c.Operator {
	case OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(c.Value))
	case OpNotContains:
		return !strings.Contains(strings.ToLower(actual), strings.ToLower(c.Value))
	}

	var cmp int
	switch c.Field {
	case "priority":
		expected, ok := domain.ParsePriority(c.Value)
		if !ok {
			return false
		}
		cmp = compareInts(ec.Ticket.Priority.Rank(), expected.Rank())
	default:
		cmp = compareValues(actual, c.Value)
	}
	return applyComparison(c.Operator, cmp)
}

func (c TagCondition) Evaluate(ec EvalContext) bool {
	return ec.Ticket.HasTag(c.Tag) == c.Present
}

func (c AssignedToCondition) Evaluate(ec EvalContext) bool {
	assigned := ec.Ticket.AssignedTo
	switch c.Operator {
	case OpIsSet:
		return assigned != nil && *assigned != ""
	case OpIsUnset:
		return assigned == nil || *assigned == ""
	}
	expected := resolveActor(c.Value, ec.Actor)
	matches := assigned != nil && expected != "" && *assigned == expected
	if c.Operator == OpNotEquals {
		return !matches
	}
	return matches
}

func (c CreatedByCondition) Evaluate(ec EvalContext) bool {
	expected := resolveActor(c.Value, ec.Actor)
	matches := ec.Ticket.CreatedBy != nil && expected != "" && *ec.Ticket.CreatedBy == expected
	return matches != c.Negate
}

func (c AgeCondition) Evaluate(ec EvalContext) bool {
	age := ec.Now.Sub(ec.Ticket.CreatedAt).Hours()
	switch {
	case age < c.Hours:
		return applyComparison(c.Operator, -1)
	case age > c.Hours:
		return applyComparison(c.Operator, 1)
	default:
		return applyComparison(c.Operator, 0)
	}
}

func (c BusinessHoursCondition) Evaluate(ec EvalContext) bool {
	covered := true
	if ec.Coverage != nil {
		var err error
		covered, err = calendar.IsCovered(ec.Now, *ec.Coverage)
		if err != nil {
			return false
		}
	}
	return covered == c.Want
}

func (UnknownCondition) Evaluate(EvalContext) bool {
	return false
}

func fieldValue(t domain.Ticket, field string) (string, bool) {
	switch field {
	case "status":
		return string(t.Status), true
	case "priority":
		return string(t.Priority), true
	case "category":
		return t.Category, true
	case "title":
		return t.Title, true
	case "client_id":
		return t.ClientID, true
	case "assigned_to":
		return deref(t.AssignedTo), true
	case "created_by":
		return deref(t.CreatedBy), true
	}
	return "", false
}

func resolveActor(value string, actor domain.Actor) string {
	if strings.EqualFold(value, actorValue) {
		return actor.ID
	}
	return value
}

// compareValues compares numerically when both sides are numbers and case-insensitively
// otherwise.
func compareValues(a, b string) int {
	af, aErr := strconv.ParseFloat(a, 64)
	bf, bErr := strconv.ParseFloat(b, 64)
	if aErr == nil && bErr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func applyComparison(op string, cmp int) bool {
	switch op {
	case OpEquals:
		return cmp == 0
	case OpNotEquals:
		return cmp != 0
	case OpGreaterThan:
		return cmp > 0
	case OpLessThan:
		return cmp < 0
	case OpGreaterOrEqual:
		return cmp >= 0
	case OpLessOrEqual:
		return cmp <= 0
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
