package workflow

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/domain"
)

var (
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	ErrConditionsNotMet     = errors.New("transition conditions not met")
)

// Authorizer decides whether an actor may update a ticket at all.
type Authorizer interface {
	CanUpdateTicket(actor domain.Actor, ticket domain.Ticket) bool
}

// CompanyAuthorizer scopes updates to the actor's company. Technicians may only move
// tickets that are unassigned or assigned to them.
type CompanyAuthorizer struct{}

func (CompanyAuthorizer) CanUpdateTicket(actor domain.Actor, ticket domain.Ticket) bool {
	if actor.CompanyID == "" || actor.CompanyID != ticket.CompanyID {
		return false
	}
	if actor.IsSystem() {
		return true
	}
	switch actor.Role {
	case domain.StaffRoleAdmin, domain.StaffRoleManager, domain.StaffRoleSeniorTechnician:
		return true
	case domain.StaffRoleTechnician:
		return ticket.AssignedTo == nil || *ticket.AssignedTo == actor.ID
	}
	return false
}

// Engine applies workflow transitions.
type Engine struct {
	authorizer Authorizer
	logger     *zap.Logger
}

func NewEngine(authorizer Authorizer, logger *zap.Logger) *Engine {
	if authorizer == nil {
		authorizer = CompanyAuthorizer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{authorizer: authorizer, logger: logger}
}

// CanExecute checks the source status, the required role and ticket access.
func (e *Engine) CanExecute(ticket domain.Ticket, transition domain.WorkflowTransition, actor domain.Actor) bool {
	if !strings.EqualFold(string(ticket.Status), string(transition.FromStatus)) {
		return false
	}
	if transition.RequiredRole != nil && *transition.RequiredRole != "" && !actor.IsSystem() {
		if actor.Role != *transition.RequiredRole {
			return false
		}
	}
	return e.authorizer.CanUpdateTicket(actor, ticket)
}

// EvaluateConditions is the conjunction of all conditions; an empty list passes.
func (e *Engine) EvaluateConditions(conditions []domain.TransitionCondition, ec EvalContext) bool {
	for _, raw := range conditions {
		cond := ParseCondition(raw)
		if unknown, ok := cond.(UnknownCondition); ok {
			e.logger.Warn("workflow condition cannot be evaluated, treating as failed",
				zap.String("ticket_id", ec.Ticket.ID),
				zap.String("type", unknown.Type),
				zap.String("reason", unknown.Reason),
			)
			return false
		}
		if !cond.Evaluate(ec) {
			return false
		}
	}
	return true
}

// ExecuteActions applies actions in order to a copy of ticket.
func (e *Engine) ExecuteActions(actions []domain.TransitionAction, ticket domain.Ticket, actor domain.Actor) ActionResult {
	result := ActionResult{}
	state := &actionState{ticket: ticket.Clone(), actor: actor, result: &result}
	for _, raw := range actions {
		action := ParseAction(raw)
		if unknown, ok := action.(UnknownAction); ok {
			e.logger.Warn("workflow action skipped",
				zap.String("ticket_id", ticket.ID),
				zap.String("type", unknown.Type),
				zap.String("reason", unknown.Reason),
			)
		}
		action.apply(state)
	}
	result.Ticket = state.ticket
	return result
}

// TransitionResult is a ticket after one transition.
type TransitionResult struct {
	Transition domain.WorkflowTransition
	FromStatus domain.TicketStatus
	ActionResult
}

// Execute runs one transition: permission, conditions, then the status change followed by
// the actions.
func (e *Engine) Execute(transition domain.WorkflowTransition, ec EvalContext) (TransitionResult, error) {
	if !e.CanExecute(ec.Ticket, transition, ec.Actor) {
		return TransitionResult{}, fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, transition.FromStatus, transition.ToStatus)
	}
	if !e.EvaluateConditions(transition.Conditions, ec) {
		return TransitionResult{}, ErrConditionsNotMet
	}

	moved := ec.Ticket.Clone()
	moved.Status = transition.ToStatus
	result := e.ExecuteActions(transition.Actions, moved, ec.Actor)
	result.Changes = append([]Change{{
		Type:     domain.ChangeTypeStatus,
		OldValue: map[string]any{"status": ec.Ticket.Status},
		NewValue: map[string]any{"status": transition.ToStatus},
	}}, result.Changes...)
	return TransitionResult{Transition: transition, FromStatus: ec.Ticket.Status, ActionResult: result}, nil
}

// ResolveAutomatic follows automatic transitions from the ticket's current status while
// their conditions pass. At most len(transitions) steps run, so configured loops end.
func (e *Engine) ResolveAutomatic(transitions []domain.WorkflowTransition, ec EvalContext) []TransitionResult {
	var applied []TransitionResult
	for step := 0; step < len(transitions); step++ {
		var next *TransitionResult
		for _, t := range transitions {
			if !t.IsAutomatic {
				continue
			}
			res, err := e.Execute(t, ec)
			if err != nil {
				continue
			}
			next = &res
			break
		}
		if next == nil {
			break
		}
		applied = append(applied, *next)
		ec.Ticket = next.Ticket
	}
	if len(applied) == len(transitions) && len(applied) > 0 {
		e.logger.Warn("automatic transitions stopped at step limit",
			zap.String("ticket_id", ec.Ticket.ID),
			zap.Int("steps", len(applied)),
		)
	}
	return applied
}

// Report is the configuration-time analysis of a workflow.
type Report struct {
	Cycle    []domain.TicketStatus `json:"cycle,omitempty"`
	Warnings []string              `json:"warnings"`
}

// Validate analyses a workflow. Problems are warnings, the workflow stays usable.
func (e *Engine) Validate(transitions []domain.WorkflowTransition) Report {
	report := Report{Warnings: []string{}}
	if cycle := FindCycle(transitions); cycle != nil {
		report.Cycle = cycle
		parts := make([]string, len(cycle))
		for i, s := range cycle {
			parts[i] = string(s)
		}
		report.Warnings = append(report.Warnings, "circular transitions: "+strings.Join(parts, " -> "))
	}
	for _, t := range transitions {
		for _, raw := range t.Conditions {
			if u, ok := ParseCondition(raw).(UnknownCondition); ok {
				report.Warnings = append(report.Warnings, fmt.Sprintf("transition %s: condition %q never passes: %s", t.ID, u.Type, u.Reason))
			}
		}
		for _, raw := range t.Actions {
			if u, ok := ParseAction(raw).(UnknownAction); ok {
				report.Warnings = append(report.Warnings, fmt.Sprintf("transition %s: action %q is ignored: %s", t.ID, u.Type, u.Reason))
			}
		}
	}
	return report
}
