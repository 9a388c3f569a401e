package dto

import (
	"time"

	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/service"
	"github.com/spec-kit/msp-sla/internal/workflow"
)

// TicketResponse is the ticket as stored after a transition.
type TicketResponse struct {
	ID         string                `json:"id"`
	ClientID   string                `json:"client_id,omitempty"`
	Title      string                `json:"title"`
	Category   string                `json:"category,omitempty"`
	Status     domain.TicketStatus   `json:"status"`
	Priority   domain.TicketPriority `json:"priority"`
	AssignedTo *string               `json:"assigned_to"`
	Tags       []string              `json:"tags"`
	UpdatedAt  time.Time             `json:"updated_at"`
	ResolvedAt *time.Time            `json:"resolved_at,omitempty"`
	ClosedAt   *time.Time            `json:"closed_at,omitempty"`
}

// AppliedTransitionResponse describes one executed transition.
type AppliedTransitionResponse struct {
	TransitionID string                   `json:"transition_id"`
	Name         string                   `json:"name,omitempty"`
	FromStatus   domain.TicketStatus      `json:"from_status"`
	ToStatus     domain.TicketStatus      `json:"to_status"`
	Automatic    bool                     `json:"automatic"`
	Applied      []string                 `json:"applied_actions"`
	Skipped      []workflow.SkippedAction `json:"skipped_actions"`
}

// TransitionResponse is the result of executing a transition.
type TransitionResponse struct {
	Ticket  TicketResponse              `json:"ticket"`
	Applied []AppliedTransitionResponse `json:"transitions"`
	Notes   []string                    `json:"notes"`
}

// NewTransitionResponse maps a transition outcome.
func NewTransitionResponse(o *service.TransitionOutcome) TransitionResponse {
	applied := make([]AppliedTransitionResponse, 0, len(o.Applied))
	for _, step := range o.Applied {
		applied = append(applied, AppliedTransitionResponse{
			TransitionID: step.Transition.ID,
			Name:         step.Transition.Name,
			FromStatus:   step.FromStatus,
			ToStatus:     step.Transition.ToStatus,
			Automatic:    step.Transition.IsAutomatic,
			Applied:      nonNil(step.Applied),
			Skipped:      nonNil(step.Skipped),
		})
	}
	t := o.Ticket
	return TransitionResponse{
		Ticket: TicketResponse{
			ID:         t.ID,
			ClientID:   t.ClientID,
			Title:      t.Title,
			Category:   t.Category,
			Status:     t.Status,
			Priority:   t.Priority,
			AssignedTo: t.AssignedTo,
			Tags:       nonNil(t.Tags),
			UpdatedAt:  t.UpdatedAt,
			ResolvedAt: t.ResolvedAt,
			ClosedAt:   t.ClosedAt,
		},
		Applied: applied,
		Notes:   nonNil(o.Notes),
	}
}

// WorkflowValidationResponse is the analysis of a workflow.
type WorkflowValidationResponse struct {
	WorkflowID string                `json:"workflow_id"`
	HasCycle   bool                  `json:"has_cycle"`
	Cycle      []domain.TicketStatus `json:"cycle,omitempty"`
	Warnings   []string              `json:"warnings"`
}

// NewWorkflowValidationResponse maps a report.
func NewWorkflowValidationResponse(workflowID string, r workflow.Report) WorkflowValidationResponse {
	return WorkflowValidationResponse{
		WorkflowID: workflowID,
		HasCycle:   len(r.Cycle) > 0,
		Cycle:      r.Cycle,
		Warnings:   nonNil(r.Warnings),
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
