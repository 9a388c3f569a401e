// Package definitions reads SLA policies and workflows from YAML files.
package definitions

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// ErrEmptyDocument is returned for files without content.
var ErrEmptyDocument = errors.New("definition file is empty")

// LoadPolicy reads one SLA policy from path.
func LoadPolicy(path string) (*domain.SLAPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	policy, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return policy, nil
}

// ParsePolicy decodes a policy document. Unknown keys are rejected. A policy read
// from a file is active unless it says otherwise.
func ParsePolicy(data []byte) (*domain.SLAPolicy, error) {
	policy := domain.SLAPolicy{IsActive: true}
	if err := decodeStrict(data, &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

type workflowDocument struct {
	WorkflowID  string               `yaml:"workflow_id"`
	Transitions []transitionDocument `yaml:"transitions"`
}

type transitionDocument struct {
	ID           string              `yaml:"id"`
	Name         string              `yaml:"name"`
	FromStatus   string              `yaml:"from_status"`
	ToStatus     string              `yaml:"to_status"`
	IsAutomatic  bool                `yaml:"is_automatic"`
	RequiredRole string              `yaml:"required_role"`
	Conditions   []conditionDocument `yaml:"conditions"`
	Actions      []actionDocument    `yaml:"actions"`
}

type conditionDocument struct {
	Type     string `yaml:"type"`
	Field    string `yaml:"field"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value"`
}

type actionDocument struct {
	Type  string `yaml:"type"`
	Field string `yaml:"field"`
	Value any    `yaml:"value"`
}

// Workflow is a parsed workflow file.
type Workflow struct {
	ID          string
	Transitions []domain.WorkflowTransition
}

// LoadWorkflow reads a workflow from path.
func LoadWorkflow(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	wf, err := ParseWorkflow(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wf, nil
}

// ParseWorkflow decodes a workflow document. Statuses and roles are upper-cased;
// transitions without an id are numbered in file order.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var doc workflowDocument
	if err := decodeStrict(data, &doc); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.WorkflowID) == "" {
		return nil, errors.New("workflow_id is required")
	}

	wf := &Workflow{ID: doc.WorkflowID, Transitions: make([]domain.WorkflowTransition, 0, len(doc.Transitions))}
	for i, t := range doc.Transitions {
		if t.FromStatus == "" || t.ToStatus == "" {
			return nil, fmt.Errorf("transition %d: from_status and to_status are required", i+1)
		}
		id := t.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", doc.WorkflowID, i+1)
		}
		transition := domain.WorkflowTransition{
			ID:          id,
			WorkflowID:  doc.WorkflowID,
			Name:        t.Name,
			FromStatus:  domain.TicketStatus(strings.ToUpper(strings.TrimSpace(t.FromStatus))),
			ToStatus:    domain.TicketStatus(strings.ToUpper(strings.TrimSpace(t.ToStatus))),
			IsAutomatic: t.IsAutomatic,
			Conditions:  make([]domain.TransitionCondition, 0, len(t.Conditions)),
			Actions:     make([]domain.TransitionAction, 0, len(t.Actions)),
		}
		if role := strings.TrimSpace(t.RequiredRole); role != "" {
			r := domain.StaffRole(strings.ToUpper(role))
			transition.RequiredRole = &r
		}
		for _, c := range t.Conditions {
			transition.Conditions = append(transition.Conditions, domain.TransitionCondition{
				Type:     c.Type,
				Field:    c.Field,
				Operator: c.Operator,
				Value:    scalar(c.Value),
			})
		}
		for _, a := range t.Actions {
			transition.Actions = append(transition.Actions, domain.TransitionAction{
				Type:  a.Type,
				Field: a.Field,
				Value: scalar(a.Value),
			})
		}
		wf.Transitions = append(wf.Transitions, transition)
	}
	return wf, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyDocument
		}
		return err
	}
	return nil
}

// scalar keeps the textual form of YAML scalars, matching how rule values are stored.
func scalar(v any) domain.Scalar {
	if v == nil {
		return ""
	}
	return domain.Scalar(fmt.Sprint(v))
}
