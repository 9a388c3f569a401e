package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/events"
)

type recordingRefresher struct{ refreshed []domain.Ticket }

func (r *recordingRefresher) Refresh(_ context.Context, ticket domain.Ticket, now time.Time) (domain.PriorityQueueEntry, error) {
	r.refreshed = append(r.refreshed, ticket)
	return domain.PriorityQueueEntry{TicketID: ticket.ID, UpdatedAt: now}, nil
}

func supportWorkflow() fakeTransitions {
	manager := domain.StaffRoleManager
	return fakeTransitions{
		"tr-1": {
			ID: "tr-1", CompanyID: "co-1", WorkflowID: "wf-1", Name: "start work",
			FromStatus: domain.TicketStatusOpen, ToStatus: domain.TicketStatusInProgress,
			Actions: []domain.TransitionAction{
				{Type: "set_priority", Value: "HIGH"},
				{Type: "add_note", Value: "picked up"},
			},
		},
		"tr-2": {
			ID: "tr-2", CompanyID: "co-1", WorkflowID: "wf-1", Name: "wait for customer",
			FromStatus: domain.TicketStatusInProgress, ToStatus: domain.TicketStatusPendingUser,
			IsAutomatic: true,
			Conditions:  []domain.TransitionCondition{{Type: "tag", Operator: "has", Value: "waiting"}},
		},
		"tr-3": {
			ID: "tr-3", CompanyID: "co-1", WorkflowID: "wf-1", Name: "resolve",
			FromStatus: domain.TicketStatusOpen, ToStatus: domain.TicketStatusResolved,
			Conditions: []domain.TransitionCondition{{Type: "assigned_to", Operator: "is_set"}},
		},
		"tr-4": {
			ID: "tr-4", CompanyID: "co-1", WorkflowID: "wf-1", Name: "cancel",
			FromStatus: domain.TicketStatusOpen, ToStatus: domain.TicketStatusCancelled,
			RequiredRole: &manager,
		},
		"tr-a": {ID: "tr-a", CompanyID: "co-1", WorkflowID: "wf-loop", FromStatus: domain.TicketStatusOpen, ToStatus: domain.TicketStatusInProgress},
		"tr-b": {ID: "tr-b", CompanyID: "co-1", WorkflowID: "wf-loop", FromStatus: domain.TicketStatusInProgress, ToStatus: domain.TicketStatusOpen},
		"tr-other": {
			ID: "tr-other", CompanyID: "co-2", WorkflowID: "wf-other",
			FromStatus: domain.TicketStatusOpen, ToStatus: domain.TicketStatusClosed,
		},
	}
}

type workflowFixture struct {
	svc        *WorkflowService
	tickets    *fakeTickets
	history    *fakeHistory
	refresher  *recordingRefresher
	dispatcher *recordingDispatcher
}

func newWorkflowFixture(tickets ...domain.Ticket) workflowFixture {
	f := workflowFixture{
		tickets:    newFakeTickets(tickets...),
		history:    &fakeHistory{},
		refresher:  &recordingRefresher{},
		dispatcher: newRecordingDispatcher(),
	}
	f.svc = NewWorkflowService(WorkflowDependencies{
		TransitionRepo: supportWorkflow(),
		TicketRepo:     f.tickets,
		HistoryRepo:    f.history,
		QueueRepo:      newFakeQueue(),
		Policies:       newFakePolicies(),
		SLA:            f.refresher,
		Dispatcher:     f.dispatcher,
	})
	return f
}

func TestExecuteTransitionFollowsAutomaticTransitions(t *testing.T) {
	ctx := context.Background()
	ticket := openTicket("t-1", domain.TicketPriorityMedium, at(1, 9, 0))
	ticket.Tags = []string{"waiting"}
	f := newWorkflowFixture(ticket)

	outcome, err := f.svc.ExecuteTransition(ctx, staffActor("st-1", domain.StaffRoleTechnician), "t-1", "tr-1", at(1, 10, 0))
	require.NoError(t, err)

	require.Len(t, outcome.Applied, 2)
	assert.Equal(t, "tr-2", outcome.Applied[1].Transition.ID)
	assert.Equal(t, []string{"picked up"}, outcome.Notes)

	stored := f.tickets.get("t-1")
	assert.Equal(t, domain.TicketStatusPendingUser, stored.Status)
	assert.Equal(t, domain.TicketPriorityHigh, stored.Priority)

	assert.Equal(t, []domain.TicketChangeType{
		domain.ChangeTypeStatus,
		domain.ChangeTypePriority,
		domain.ChangeTypeNote,
		domain.ChangeTypeStatus,
	}, f.history.types())

	require.Len(t, f.refresher.refreshed, 1)
	assert.Equal(t, domain.TicketPriorityHigh, f.refresher.refreshed[0].Priority)
	assert.ElementsMatch(t, []events.EventType{events.EventTicketStatusChanged, events.EventTicketPriorityChanged}, f.dispatcher.types())
}

func TestExecuteTransitionStampsResolution(t *testing.T) {
	ctx := context.Background()
	ticket := openTicket("t-1", domain.TicketPriorityLow, at(1, 9, 0))
	ticket.AssignedTo = strPtr("st-1")
	f := newWorkflowFixture(ticket)

	_, err := f.svc.ExecuteTransition(ctx, staffActor("st-1", domain.StaffRoleTechnician), "t-1", "tr-3", at(1, 11, 0))
	require.NoError(t, err)

	stored := f.tickets.get("t-1")
	require.NotNil(t, stored.ResolvedAt)
	assert.Equal(t, at(1, 11, 0), *stored.ResolvedAt)
	assert.Len(t, f.refresher.refreshed, 1)
}

func TestExecuteTransitionRejections(t *testing.T) {
	ctx := context.Background()
	technician := staffActor("st-1", domain.StaffRoleTechnician)

	t.Run("conditions not met", func(t *testing.T) {
		f := newWorkflowFixture(openTicket("t-1", domain.TicketPriorityLow, at(1, 9, 0)))
		_, err := f.svc.ExecuteTransition(ctx, technician, "t-1", "tr-3", at(1, 10, 0))
		requireDomainError(t, err, http.StatusConflict)
		assert.Zero(t, f.tickets.updates)
		assert.Empty(t, f.history.types())
	})

	t.Run("required role", func(t *testing.T) {
		f := newWorkflowFixture(openTicket("t-1", domain.TicketPriorityLow, at(1, 9, 0)))
		_, err := f.svc.ExecuteTransition(ctx, technician, "t-1", "tr-4", at(1, 10, 0))
		requireDomainError(t, err, http.StatusForbidden)
	})

	t.Run("technician cannot move someone else's ticket", func(t *testing.T) {
		ticket := openTicket("t-1", domain.TicketPriorityLow, at(1, 9, 0))
		ticket.AssignedTo = strPtr("st-2")
		f := newWorkflowFixture(ticket)
		_, err := f.svc.ExecuteTransition(ctx, technician, "t-1", "tr-1", at(1, 10, 0))
		requireDomainError(t, err, http.StatusForbidden)
	})

	t.Run("transition of another company", func(t *testing.T) {
		f := newWorkflowFixture(openTicket("t-1", domain.TicketPriorityLow, at(1, 9, 0)))
		_, err := f.svc.ExecuteTransition(ctx, staffActor("st-1", domain.StaffRoleAdmin), "t-1", "tr-other", at(1, 10, 0))
		requireDomainError(t, err, http.StatusNotFound)
		assert.Equal(t, domain.TicketStatusOpen, f.tickets.get("t-1").Status)
		assert.Zero(t, f.tickets.updates)
	})

	t.Run("unknown transition", func(t *testing.T) {
		f := newWorkflowFixture(openTicket("t-1", domain.TicketPriorityLow, at(1, 9, 0)))
		_, err := f.svc.ExecuteTransition(ctx, technician, "t-1", "tr-missing", at(1, 10, 0))
		requireDomainError(t, err, http.StatusNotFound)
	})
}

func TestExecuteTransitionKeepsConcurrentEscalation(t *testing.T) {
	ctx := context.Background()
	f := newWorkflowFixture(openTicket("t-1", domain.TicketPriorityLow, at(1, 9, 0)))
	f.tickets.beforeUpdate = func() {
		require.NoError(t, f.tickets.UpdatePriority(ctx, "t-1", domain.TicketPriorityCritical, at(1, 10, 0)))
		require.NoError(t, f.tickets.UpdateAssignee(ctx, "t-1", strPtr("st-9"), at(1, 10, 0)))
	}

	_, err := f.svc.ExecuteTransition(ctx, staffActor("st-1", domain.StaffRoleManager), "t-1", "tr-1", at(1, 10, 0))
	requireDomainError(t, err, http.StatusConflict)

	stored := f.tickets.get("t-1")
	assert.Equal(t, domain.TicketPriorityCritical, stored.Priority)
	require.NotNil(t, stored.AssignedTo)
	assert.Equal(t, "st-9", *stored.AssignedTo)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
	assert.Empty(t, f.history.types())
	assert.Empty(t, f.dispatcher.types())

	// A retry reads the escalated ticket and applies on top of it.
	outcome, err := f.svc.ExecuteTransition(ctx, staffActor("st-1", domain.StaffRoleManager), "t-1", "tr-1", at(1, 10, 5))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, outcome.Ticket.Status)
	require.NotNil(t, f.tickets.get("t-1").AssignedTo)
	assert.Equal(t, "st-9", *f.tickets.get("t-1").AssignedTo)
}

func TestValidateWorkflow(t *testing.T) {
	ctx := context.Background()
	f := newWorkflowFixture()

	manager := staffActor("st-1", domain.StaffRoleManager)

	report, err := f.svc.ValidateWorkflow(ctx, manager, "wf-loop")
	require.NoError(t, err)
	assert.NotEmpty(t, report.Cycle)
	assert.NotEmpty(t, report.Warnings)

	report, err = f.svc.ValidateWorkflow(ctx, manager, "wf-1")
	require.NoError(t, err)
	assert.Empty(t, report.Cycle)

	_, err = f.svc.ValidateWorkflow(ctx, manager, "wf-none")
	requireDomainError(t, err, http.StatusNotFound)

	_, err = f.svc.ValidateWorkflow(ctx, manager, "wf-other")
	requireDomainError(t, err, http.StatusNotFound)
}
