package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/escalation"
	"github.com/spec-kit/msp-sla/internal/events"
	"github.com/spec-kit/msp-sla/internal/repository"
	"github.com/spec-kit/msp-sla/internal/sla"
	apperrors "github.com/spec-kit/msp-sla/pkg/util/errorutil"
)

// PolicyResolver picks the SLA policy governing a ticket.
type PolicyResolver interface {
	Resolve(ctx context.Context, companyID, clientID string, now time.Time) (*domain.SLAPolicy, error)
}

// PolicyLoader loads a policy by id.
type PolicyLoader interface {
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
}

// EscalationEvaluator runs the escalation rules for one ticket.
type EscalationEvaluator interface {
	EvaluateTicket(ctx context.Context, ticketID string, now time.Time) (escalation.Evaluation, error)
}

// TicketService maintains the SLA state of tickets.
type TicketService struct {
	tickets     repository.TicketRepository
	queue       repository.PriorityQueueRepository
	history     repository.TicketHistoryRepository
	resolver    PolicyResolver
	policies    PolicyLoader
	escalations EscalationEvaluator
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	QueueRepo   repository.PriorityQueueRepository
	HistoryRepo repository.TicketHistoryRepository
	Resolver    PolicyResolver
	Policies    PolicyLoader
	Escalations EscalationEvaluator
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// SLAStatus is the SLA view of one ticket at a point in time.
type SLAStatus struct {
	TicketID           string
	PolicyID           *string
	Priority           domain.TicketPriority
	ResponseDeadline   time.Time
	ResolutionDeadline time.Time
	sla.Assessment
	State            escalation.State
	PriorityScore    float64
	ResponseMetSLA   *bool
	ResolutionMetSLA *bool
	IsEscalated      bool
	EscalatedAt      *time.Time
	EscalationReason string
	EvaluatedAt      time.Time
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		queue:       deps.QueueRepo,
		history:     deps.HistoryRepo,
		resolver:    deps.Resolver,
		policies:    deps.Policies,
		escalations: deps.Escalations,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
	}
}

// InitializeSLA resolves the policy for the ticket and (re)writes its queue entry.
// It is safe to call again after a priority or client change.
func (s *TicketService) InitializeSLA(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (*SLAStatus, error) {
	ticket, err := s.loadTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	entry, err := s.Refresh(ctx, *ticket, now)
	if err != nil {
		return nil, err
	}

	newValue := map[string]any{
		"sla_policy_id":       entry.SLAPolicyID,
		"priority":            ticket.Priority,
		"response_deadline":   entry.ResponseDeadline,
		"resolution_deadline": entry.ResolutionDeadline,
	}
	if err := s.record(ctx, actor, ticket.ID, domain.ChangeTypeSLADeadlines, nil, newValue, now); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSLADeadlinesComputed,
		TicketID:  ticket.ID,
		CompanyID: ticket.CompanyID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload: events.SLADeadlinesComputedPayload{
			SLAPolicyID:        entry.SLAPolicyID,
			Priority:           ticket.Priority,
			ResponseDeadline:   entry.ResponseDeadline,
			ResolutionDeadline: entry.ResolutionDeadline,
			PriorityScore:      entry.PriorityScore,
		},
	})
	return s.status(ctx, *ticket, entry, now), nil
}

// Refresh recomputes the queue entry of a ticket without touching its
// escalation state.
func (s *TicketService) Refresh(ctx context.Context, ticket domain.Ticket, now time.Time) (domain.PriorityQueueEntry, error) {
	policy, err := s.resolver.Resolve(ctx, ticket.CompanyID, ticket.ClientID, now)
	if err != nil {
		return domain.PriorityQueueEntry{}, apperrors.MapError(err)
	}
	entry, err := sla.BuildQueueEntry(ticket, policy, now)
	if err != nil {
		return domain.PriorityQueueEntry{}, apperrors.NewValidationError("sla policy cannot produce deadlines", map[string]any{
			"ticket_id": ticket.ID,
			"reason":    err.Error(),
		})
	}
	if err := s.queue.Upsert(ctx, &entry); err != nil {
		return domain.PriorityQueueEntry{}, apperrors.MapError(err)
	}
	if policy == nil {
		s.logger.Info("no sla policy applies; using fallback targets",
			zap.String("ticket_id", ticket.ID),
			zap.String("company_id", ticket.CompanyID))
	}
	return entry, nil
}

// RecordFirstResponse stamps first_response_at once. Later calls leave the
// original timestamp in place and return the current status.
func (s *TicketService) RecordFirstResponse(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (*SLAStatus, error) {
	ticket, err := s.loadTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	stamped, err := s.tickets.SetFirstResponse(ctx, ticket.ID, now)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !stamped {
		return s.GetSLAStatus(ctx, actor, ticketID, now)
	}
	ticket.FirstResponseAt = &now

	entry, err := s.loadEntry(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	met := sla.MetSLA(sla.KindResponse, *ticket, sla.EntryDeadlines(*entry))
	if err := s.queue.RecordOutcome(ctx, ticket.ID, met, nil, now); err != nil {
		return nil, apperrors.MapError(err)
	}
	if entry.ResponseMetSLA == nil {
		entry.ResponseMetSLA = met
	}
	if err := s.record(ctx, actor, ticket.ID, domain.ChangeTypeField,
		map[string]any{"first_response_at": nil},
		map[string]any{"first_response_at": now, "response_met_sla": met},
		now); err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.status(ctx, *ticket, *entry, now), nil
}

// ResolveTicket stops the resolution clock.
func (s *TicketService) ResolveTicket(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (*SLAStatus, error) {
	ticket, err := s.loadTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.tickets.SetResolved(ctx, ticket.ID, now)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !resolved {
		return nil, apperrors.NewConflict("ticket already resolved or closed", map[string]any{"ticket_id": ticket.ID})
	}
	oldStatus := ticket.Status
	ticket.Status = domain.TicketStatusResolved
	ticket.ResolvedAt = &now

	entry, err := s.loadEntry(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	met := sla.MetSLA(sla.KindResolution, *ticket, sla.EntryDeadlines(*entry))
	if err := s.queue.RecordOutcome(ctx, ticket.ID, nil, met, now); err != nil {
		return nil, apperrors.MapError(err)
	}
	if entry.ResolutionMetSLA == nil {
		entry.ResolutionMetSLA = met
	}
	if err := s.record(ctx, actor, ticket.ID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": ticket.Status, "resolution_met_sla": met},
		now); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketStatusChanged,
		TicketID:  ticket.ID,
		CompanyID: ticket.CompanyID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload:   events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: ticket.Status},
	})
	return s.status(ctx, *ticket, *entry, now), nil
}

// GetSLAStatus reports deadlines and breach or warning flags at now.
func (s *TicketService) GetSLAStatus(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (*SLAStatus, error) {
	ticket, err := s.loadTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	entry, err := s.loadEntry(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	return s.status(ctx, *ticket, *entry, now), nil
}

// EvaluateEscalation runs the escalation rules for one ticket right away.
func (s *TicketService) EvaluateEscalation(ctx context.Context, actor domain.Actor, ticketID string, now time.Time) (escalation.Evaluation, error) {
	if _, err := s.loadTicket(ctx, actor, ticketID); err != nil {
		return escalation.Evaluation{}, err
	}
	eval, err := s.escalations.EvaluateTicket(ctx, ticketID, now)
	if errors.Is(err, pgx.ErrNoRows) {
		return eval, apperrors.NewNotFound("sla queue entry", map[string]any{"ticket_id": ticketID})
	}
	if err != nil {
		return eval, apperrors.MapError(err)
	}
	return eval, nil
}

// SLAHistory returns the SLA audit trail of a ticket, oldest first.
func (s *TicketService) SLAHistory(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.loadTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID, domain.SLAChangeTypes...)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *TicketService) status(ctx context.Context, ticket domain.Ticket, entry domain.PriorityQueueEntry, now time.Time) *SLAStatus {
	var policy *domain.SLAPolicy
	if entry.SLAPolicyID != nil && s.policies != nil {
		p, err := s.policies.GetByID(ctx, *entry.SLAPolicyID)
		if err != nil {
			s.logger.Warn("sla policy unavailable; warning thresholds use fallback",
				zap.String("ticket_id", ticket.ID),
				zap.String("policy_id", *entry.SLAPolicyID),
				zap.Error(err))
		} else {
			policy = p
		}
	}
	deadlines := sla.EntryDeadlines(entry)
	assessment := sla.Assess(ticket, policy, deadlines, now)
	return &SLAStatus{
		TicketID:           ticket.ID,
		PolicyID:           entry.SLAPolicyID,
		Priority:           ticket.Priority.Normalize(),
		ResponseDeadline:   entry.ResponseDeadline,
		ResolutionDeadline: entry.ResolutionDeadline,
		Assessment:         assessment,
		State:              escalation.StateOf(entry, assessment),
		PriorityScore:      sla.PriorityScore(ticket, deadlines, now),
		ResponseMetSLA:     entry.ResponseMetSLA,
		ResolutionMetSLA:   entry.ResolutionMetSLA,
		IsEscalated:        entry.IsEscalated,
		EscalatedAt:        entry.EscalatedAt,
		EscalationReason:   entry.EscalationReason,
		EvaluatedAt:        now,
	}
}

func (s *TicketService) loadTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
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
	return ticket, nil
}

func (s *TicketService) loadEntry(ctx context.Context, ticketID string) (*domain.PriorityQueueEntry, error) {
	entry, err := s.queue.GetByTicketID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("sla queue entry", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return entry, nil
}

func (s *TicketService) record(ctx context.Context, actor domain.Actor, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any, now time.Time) error {
	return s.history.Create(ctx, &domain.TicketHistory{
		ID:            uuid.NewString(),
		TicketID:      ticketID,
		ChangedByType: actorType(actor),
		ChangedByID:   actor.HistoryID(),
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     now,
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func actorType(actor domain.Actor) domain.ActorType {
	if actor.Type == "" {
		return domain.ActorTypeStaff
	}
	return actor.Type
}
