package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Scalar is a declarative rule value. JSON numbers and booleans are accepted and kept
// in their textual form.
type Scalar string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.(type) {
	case float64, bool:
		*s = Scalar(data)
		return nil
	default:
		return fmt.Errorf("scalar value expected, got %s", data)
	}
}

// TransitionCondition is one declarative guard of a transition.
type TransitionCondition struct {
	Type     string `json:"type" yaml:"type"`
	Field    string `json:"field,omitempty" yaml:"field,omitempty"`
	Operator string `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    Scalar `json:"value,omitempty" yaml:"value,omitempty"`
}

// TransitionAction is one declarative side effect of a transition.
type TransitionAction struct {
	Type  string `json:"type" yaml:"type"`
	Value Scalar `json:"value,omitempty" yaml:"value,omitempty"`
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
}

// WorkflowTransition is a company-defined edge between two ticket statuses.
type WorkflowTransition struct {
	ID           string                `json:"id" yaml:"id"`
	CompanyID    string                `json:"company_id,omitempty" yaml:"company_id,omitempty"`
	WorkflowID   string                `json:"workflow_id" yaml:"workflow_id"`
	Name         string                `json:"name,omitempty" yaml:"name,omitempty"`
	FromStatus   TicketStatus          `json:"from_status" yaml:"from_status"`
	ToStatus     TicketStatus          `json:"to_status" yaml:"to_status"`
	IsAutomatic  bool                  `json:"is_automatic" yaml:"is_automatic"`
	RequiredRole *StaffRole            `json:"required_role,omitempty" yaml:"required_role,omitempty"`
	Conditions   []TransitionCondition `json:"conditions" yaml:"conditions"`
	Actions      []TransitionAction    `json:"actions" yaml:"actions"`
}
