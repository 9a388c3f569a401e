package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/config"
	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/events"
)

// Publisher delivers a notification to a broker topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key, eventType string, payload any) error
}

// SupervisorLookup lists the staff told about every escalation of a company.
type SupervisorLookup interface {
	ListSupervisors(ctx context.Context, companyID string) ([]domain.StaffMember, error)
}

// NotificationService turns escalation outcomes into events and forwards them to
// the broker. Delivery to people happens downstream.
type NotificationService struct {
	dispatcher  events.Dispatcher
	publisher   Publisher
	supervisors SupervisorLookup
	logger      *zap.Logger
	cfg         config.NotificationConfig
	topics      config.KafkaConfig
	clock       func() time.Time
}

// NewNotificationService creates the service. publisher may be nil, in which case
// events are only logged. supervisors may be nil, in which case escalations carry
// no supervisor recipients.
func NewNotificationService(dispatcher events.Dispatcher, publisher Publisher, supervisors SupervisorLookup, logger *zap.Logger, cfg config.NotificationConfig, topics config.KafkaConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher:  dispatcher,
		publisher:   publisher,
		supervisors: supervisors,
		logger:      logger,
		cfg:         cfg,
		topics:      topics,
		clock:       time.Now,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventSLAEscalated, n.handleEscalated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketPriorityChanged, n.logEvent)
	n.dispatcher.Subscribe(events.EventSLADeadlinesComputed, n.logEvent)
}

// NotifyEscalation publishes an escalation event.
func (n *NotificationService) NotifyEscalation(ctx context.Context, ticket domain.Ticket, event domain.EscalationEvent) error {
	return n.publish(ctx, events.Event{
		ID:        event.ID,
		Type:      events.EventSLAEscalated,
		TicketID:  ticket.ID,
		CompanyID: ticket.CompanyID,
		Actor:     events.Actor{Type: domain.ActorTypeSystem},
		Timestamp: event.TriggeredAt,
		Payload: events.SLAEscalatedPayload{
			EscalationID:       event.ID,
			Reason:             event.Reason,
			TriggeredAt:        event.TriggeredAt,
			PreviousPriority:   event.PreviousPriority,
			NewPriority:        event.NewPriority,
			PreviousAssigneeID: event.PreviousAssigneeID,
			NewAssigneeID:      event.NewAssigneeID,
			Title:              ticket.Title,
			Supervisors:        n.supervisorsOf(ctx, ticket.CompanyID),
		},
	})
}

// supervisorsOf never fails the escalation notice; a lookup error only drops the
// supervisor list.
func (n *NotificationService) supervisorsOf(ctx context.Context, companyID string) []events.Recipient {
	if n.supervisors == nil {
		return nil
	}
	staff, err := n.supervisors.ListSupervisors(ctx, companyID)
	if err != nil {
		n.logger.Warn("supervisor lookup failed", zap.String("company_id", companyID), zap.Error(err))
		return nil
	}
	recipients := make([]events.Recipient, 0, len(staff))
	for _, member := range staff {
		recipients = append(recipients, events.Recipient{
			StaffID: member.ID,
			Name:    member.Name,
			Email:   member.Email,
			Role:    member.Role,
		})
	}
	return recipients
}

// NotifyTicketAssigned publishes an assignment made by the escalation engine.
func (n *NotificationService) NotifyTicketAssigned(ctx context.Context, ticket domain.Ticket, staff domain.StaffMember) error {
	at := ticket.UpdatedAt
	if at.IsZero() {
		at = n.clock()
	}
	return n.publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketAssigned,
		TicketID:  ticket.ID,
		CompanyID: ticket.CompanyID,
		Actor:     events.Actor{Type: domain.ActorTypeSystem},
		Timestamp: at,
		Payload: events.TicketAssignedPayload{
			AssigneeStaffID: staff.ID,
			AssigneeName:    staff.Name,
			AssigneeEmail:   staff.Email,
			Reason:          "sla_escalation",
		},
	})
}

func (n *NotificationService) publish(ctx context.Context, event events.Event) error {
	if n.dispatcher == nil {
		return nil
	}
	return n.dispatcher.Publish(ctx, event)
}

func (n *NotificationService) handleEscalated(ctx context.Context, event events.Event) error {
	n.logger.Info("SLAEscalated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return n.forward(ctx, n.topics.EscalationTopic, event)
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketAssigned", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return n.forward(ctx, n.topics.AssignmentTopic, event)
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	n.logger.Debug(string(event.Type), zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) forward(ctx context.Context, topic string, event events.Event) error {
	if !n.cfg.Enabled || n.publisher == nil || topic == "" {
		return nil
	}
	return n.publisher.Publish(ctx, topic, event.TicketID, string(event.Type), event)
}
