package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/calendar"
	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/events"
	"github.com/spec-kit/msp-sla/internal/repository"
	"github.com/spec-kit/msp-sla/internal/workflow"
	apperrors "github.com/spec-kit/msp-sla/pkg/util/errorutil"
)

// SLARefresher recomputes the SLA queue entry of a ticket.
type SLARefresher interface {
	Refresh(ctx context.Context, ticket domain.Ticket, now time.Time) (domain.PriorityQueueEntry, error)
}

// WorkflowService executes configured status transitions against stored tickets.
type WorkflowService struct {
	transitions repository.WorkflowTransitionRepository
	tickets     repository.TicketRepository
	history     repository.TicketHistoryRepository
	queue       repository.PriorityQueueRepository
	policies    PolicyLoader
	engine      *workflow.Engine
	sla         SLARefresher
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	TransitionRepo repository.WorkflowTransitionRepository
	TicketRepo     repository.TicketRepository
	HistoryRepo    repository.TicketHistoryRepository
	QueueRepo      repository.PriorityQueueRepository
	Policies       PolicyLoader
	Engine         *workflow.Engine
	SLA            SLARefresher
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// TransitionOutcome is the stored ticket after a manual transition and any
// automatic transitions it enabled.
type TransitionOutcome struct {
	Ticket  domain.Ticket
	Applied []workflow.TransitionResult
	Notes   []string
}

// NewWorkflowService constructs the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := deps.Engine
	if engine == nil {
		engine = workflow.NewEngine(workflow.CompanyAuthorizer{}, logger)
	}
	return &WorkflowService{
		transitions: deps.TransitionRepo,
		tickets:     deps.TicketRepo,
		history:     deps.HistoryRepo,
		queue:       deps.QueueRepo,
		policies:    deps.Policies,
		engine:      engine,
		sla:         deps.SLA,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
	}
}

// ExecuteTransition applies a manual transition, then follows automatic ones.
func (s *WorkflowService) ExecuteTransition(ctx context.Context, actor domain.Actor, ticketID, transitionID string, now time.Time) (*TransitionOutcome, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if actor.CompanyID != "" && ticket.CompanyID != actor.CompanyID {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	transition, err := s.transitions.GetByID(ctx, ticket.CompanyID, transitionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("workflow transition", map[string]any{"transition_id": transitionID})
		}
		return nil, apperrors.MapError(err)
	}

	ec := workflow.EvalContext{Ticket: *ticket, Actor: actor, Now: now, Coverage: s.coverageFor(ctx, ticket.ID)}
	first, err := s.engine.Execute(*transition, ec)
	switch {
	case errors.Is(err, workflow.ErrTransitionNotAllowed):
		return nil, apperrors.NewForbidden(err.Error())
	case errors.Is(err, workflow.ErrConditionsNotMet):
		return nil, apperrors.NewConflict("transition conditions not met", map[string]any{"transition_id": transitionID})
	case err != nil:
		return nil, apperrors.MapError(err)
	}

	applied := []workflow.TransitionResult{first}
	all, err := s.transitions.ListByWorkflow(ctx, ticket.CompanyID, transition.WorkflowID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	ec.Ticket = first.Ticket
	applied = append(applied, s.engine.ResolveAutomatic(all, ec)...)

	final := applied[len(applied)-1].Ticket
	stampLifecycle(&final, now)
	if err := s.tickets.Update(ctx, &final); err != nil {
		if errors.Is(err, repository.ErrStaleTicket) {
			return nil, apperrors.NewConflict("ticket was modified concurrently, retry the transition", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	outcome := &TransitionOutcome{Ticket: final, Applied: applied}
	for _, step := range applied {
		outcome.Notes = append(outcome.Notes, step.Notes...)
		for _, change := range step.Changes {
			if err := s.recordChange(ctx, actor, final.ID, change, now); err != nil {
				return nil, apperrors.MapError(err)
			}
		}
	}

	if s.sla != nil && slaInputsChanged(*ticket, final) {
		if _, err := s.sla.Refresh(ctx, final, now); err != nil {
			s.logger.Warn("sla refresh after transition failed", zap.String("ticket_id", final.ID), zap.Error(err))
		}
	}
	s.publishChanges(ctx, actor, *ticket, final, transitionID, now)
	return outcome, nil
}

// ValidateWorkflow analyses a stored workflow of the actor's company for cycles
// and unusable rules.
func (s *WorkflowService) ValidateWorkflow(ctx context.Context, actor domain.Actor, workflowID string) (workflow.Report, error) {
	transitions, err := s.transitions.ListByWorkflow(ctx, actor.CompanyID, workflowID)
	if err != nil {
		return workflow.Report{}, apperrors.MapError(err)
	}
	if len(transitions) == 0 {
		return workflow.Report{}, apperrors.NewNotFound("workflow", map[string]any{"workflow_id": workflowID})
	}
	report := s.engine.Validate(transitions)
	if len(report.Cycle) > 0 {
		s.logger.Warn("workflow has circular transitions",
			zap.String("workflow_id", workflowID),
			zap.Strings("warnings", report.Warnings))
	}
	return report, nil
}

// coverageFor returns the coverage of the policy that produced the ticket's
// deadlines. nil means the clock is always running.
func (s *WorkflowService) coverageFor(ctx context.Context, ticketID string) *calendar.Coverage {
	if s.queue == nil || s.policies == nil {
		return nil
	}
	entry, err := s.queue.GetByTicketID(ctx, ticketID)
	if err != nil || entry.SLAPolicyID == nil {
		return nil
	}
	policy, err := s.policies.GetByID(ctx, *entry.SLAPolicyID)
	if err != nil {
		s.logger.Warn("coverage lookup failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return nil
	}
	coverage := policy.Coverage
	return &coverage
}

func (s *WorkflowService) recordChange(ctx context.Context, actor domain.Actor, ticketID string, change workflow.Change, now time.Time) error {
	return s.history.Create(ctx, &domain.TicketHistory{
		ID:            uuid.NewString(),
		TicketID:      ticketID,
		ChangedByType: actorType(actor),
		ChangedByID:   actor.HistoryID(),
		ChangeType:    change.Type,
		OldValue:      change.OldValue,
		NewValue:      change.NewValue,
		CreatedAt:     now,
	})
}

func (s *WorkflowService) publishChanges(ctx context.Context, actor domain.Actor, before, after domain.Ticket, transitionID string, now time.Time) {
	if s.dispatcher == nil {
		return
	}
	publish := func(eventType events.EventType, payload any) {
		err := s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      eventType,
			TicketID:  after.ID,
			CompanyID: after.CompanyID,
			Actor:     events.ActorFrom(actor),
			Timestamp: now,
			Payload:   payload,
		})
		if err != nil {
			s.logger.Warn("event handlers failed", zap.String("event_type", string(eventType)), zap.Error(err))
		}
	}
	if before.Status != after.Status {
		publish(events.EventTicketStatusChanged, events.TicketStatusChangedPayload{
			OldStatus:    before.Status,
			NewStatus:    after.Status,
			TransitionID: transitionID,
		})
	}
	if before.Priority != after.Priority {
		publish(events.EventTicketPriorityChanged, events.TicketPriorityChangedPayload{
			OldPriority: before.Priority,
			NewPriority: after.Priority,
		})
	}
}

// stampLifecycle sets resolved_at and closed_at the first time a ticket enters
// those states.
func stampLifecycle(t *domain.Ticket, now time.Time) {
	if t.Status == domain.TicketStatusResolved && t.ResolvedAt == nil {
		at := now
		t.ResolvedAt = &at
	}
	if t.Status.IsTerminal() && t.ClosedAt == nil {
		at := now
		t.ClosedAt = &at
	}
}

func slaInputsChanged(before, after domain.Ticket) bool {
	return before.Priority.Normalize() != after.Priority.Normalize() ||
		(before.ResolvedAt == nil && after.ResolvedAt != nil)
}
