package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/msp-sla/internal/config"
	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/events"
)

type publishedMessage struct {
	topic, key, eventType string
	payload               any
}

type recordingPublisher struct {
	messages []publishedMessage
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key, eventType string, payload any) error {
	p.messages = append(p.messages, publishedMessage{topic, key, eventType, payload})
	return p.err
}

var testTopics = config.KafkaConfig{EscalationTopic: "sla.escalations", AssignmentTopic: "sla.assignments"}

func escalationFixture() (domain.Ticket, domain.EscalationEvent) {
	ticket := openTicket("t-1", domain.TicketPriorityCritical, at(1, 9, 0))
	return ticket, domain.EscalationEvent{
		ID:               "esc-1",
		TicketID:         "t-1",
		CompanyID:        "co-1",
		Reason:           domain.ReasonResponseBreach,
		TriggeredAt:      at(1, 10, 0),
		PreviousPriority: domain.TicketPriorityHigh,
		NewPriority:      domain.TicketPriorityCritical,
		NewAssigneeID:    strPtr("st-9"),
	}
}

func TestNotificationServiceForwardsToBroker(t *testing.T) {
	ctx := context.Background()
	dispatcher := events.NewInMemoryDispatcher()
	publisher := &recordingPublisher{}
	svc := NewNotificationService(dispatcher, publisher, nil, nil, config.NotificationConfig{Enabled: true}, testTopics)
	svc.RegisterHandlers()

	ticket, event := escalationFixture()
	require.NoError(t, svc.NotifyEscalation(ctx, ticket, event))
	require.NoError(t, svc.NotifyTicketAssigned(ctx, ticket, domain.StaffMember{ID: "st-9", Name: "Sam", Email: "sam@example.com"}))

	require.Len(t, publisher.messages, 2)
	first := publisher.messages[0]
	assert.Equal(t, "sla.escalations", first.topic)
	assert.Equal(t, "t-1", first.key)
	assert.Equal(t, string(events.EventSLAEscalated), first.eventType)
	forwarded, ok := first.payload.(events.Event)
	require.True(t, ok)
	payload, ok := forwarded.Payload.(events.SLAEscalatedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonResponseBreach, payload.Reason)
	assert.Equal(t, "Mail server down", payload.Title)

	second := publisher.messages[1]
	assert.Equal(t, "sla.assignments", second.topic)
	assert.Equal(t, string(events.EventTicketAssigned), second.eventType)
}

func TestNotificationServiceDisabled(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	publisher := &recordingPublisher{}
	svc := NewNotificationService(dispatcher, publisher, nil, nil, config.NotificationConfig{Enabled: false}, testTopics)
	svc.RegisterHandlers()

	ticket, event := escalationFixture()
	require.NoError(t, svc.NotifyEscalation(context.Background(), ticket, event))
	assert.Empty(t, publisher.messages)
}

func TestNotificationServiceSurfacesPublishErrors(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	boom := errors.New("broker unavailable")
	svc := NewNotificationService(dispatcher, &recordingPublisher{err: boom}, nil, nil, config.NotificationConfig{Enabled: true}, testTopics)
	svc.RegisterHandlers()

	ticket, event := escalationFixture()
	err := svc.NotifyEscalation(context.Background(), ticket, event)
	assert.ErrorIs(t, err, boom)
}

func TestNotificationServiceAddressesSupervisors(t *testing.T) {
	ctx := context.Background()
	staff := &fakeStaff{members: []domain.StaffMember{
		{ID: "st-1", CompanyID: "co-1", Name: "Mia", Email: "mia@example.com", Role: domain.StaffRoleManager, Active: true},
		{ID: "st-2", CompanyID: "co-1", Name: "Ada", Role: domain.StaffRoleAdmin, Active: true},
		{ID: "st-3", CompanyID: "co-1", Role: domain.StaffRoleTechnician, Active: true},
		{ID: "st-4", CompanyID: "co-1", Role: domain.StaffRoleManager, Active: false},
		{ID: "st-5", CompanyID: "co-2", Role: domain.StaffRoleManager, Active: true},
	}}
	dir := NewDirectory(DirectoryDependencies{StaffRepo: staff})
	dispatcher := newRecordingDispatcher()
	svc := NewNotificationService(dispatcher, nil, dir, nil, config.NotificationConfig{Enabled: true}, testTopics)

	ticket, event := escalationFixture()
	require.NoError(t, svc.NotifyEscalation(ctx, ticket, event))

	require.Len(t, dispatcher.events, 1)
	payload, ok := dispatcher.events[0].Payload.(events.SLAEscalatedPayload)
	require.True(t, ok)
	assert.Equal(t, []events.Recipient{
		{StaffID: "st-1", Name: "Mia", Email: "mia@example.com", Role: domain.StaffRoleManager},
		{StaffID: "st-2", Name: "Ada", Role: domain.StaffRoleAdmin},
	}, payload.Supervisors)

	t.Run("lookup failure still notifies", func(t *testing.T) {
		failing := NewDirectory(DirectoryDependencies{StaffRepo: &fakeStaff{listErr: errors.New("db down")}})
		dispatcher := newRecordingDispatcher()
		svc := NewNotificationService(dispatcher, nil, failing, nil, config.NotificationConfig{Enabled: true}, testTopics)

		require.NoError(t, svc.NotifyEscalation(ctx, ticket, event))
		require.Len(t, dispatcher.events, 1)
		payload := dispatcher.events[0].Payload.(events.SLAEscalatedPayload)
		assert.Empty(t, payload.Supervisors)
	})
}
