package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/msp-sla/internal/calendar"
	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/escalation"
	"github.com/spec-kit/msp-sla/internal/events"
	"github.com/spec-kit/msp-sla/internal/repository"
)

type fakeTickets struct {
	mu      sync.Mutex
	tickets map[string]domain.Ticket
	updates int
	// beforeUpdate runs once, between the service's read and its write.
	beforeUpdate func()
}

func newFakeTickets(ts ...domain.Ticket) *fakeTickets {
	f := &fakeTickets{tickets: map[string]domain.Ticket{}}
	for _, t := range ts {
		f.tickets[t.ID] = t
	}
	return f
}

func (f *fakeTickets) get(id string) domain.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickets[id]
}

func (f *fakeTickets) Create(_ context.Context, t *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets[t.ID] = t.Clone()
	return nil
}

func (f *fakeTickets) Update(_ context.Context, t *domain.Ticket) error {
	if hook := f.beforeUpdate; hook != nil {
		f.beforeUpdate = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.tickets[t.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if existing.Version != t.Version {
		return repository.ErrStaleTicket
	}
	t.Version++
	updated := t.Clone()
	updated.FirstResponseAt = existing.FirstResponseAt
	f.tickets[t.ID] = updated
	f.updates++
	return nil
}

func (f *fakeTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := t.Clone()
	return &c, nil
}

func (f *fakeTickets) ListWithFilter(context.Context, repository.TicketFilter) ([]domain.Ticket, error) {
	return nil, errors.New("not used")
}

func (f *fakeTickets) UpdatePriority(_ context.Context, id string, p domain.TicketPriority, at time.Time) error {
	return f.mutate(id, func(t *domain.Ticket) { t.Priority = p; t.UpdatedAt = at })
}

func (f *fakeTickets) UpdateAssignee(_ context.Context, id string, a *string, at time.Time) error {
	return f.mutate(id, func(t *domain.Ticket) { t.AssignedTo = a; t.UpdatedAt = at })
}

func (f *fakeTickets) SetFirstResponse(_ context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok || t.FirstResponseAt != nil {
		return false, nil
	}
	t.FirstResponseAt = &at
	f.tickets[id] = t
	return true, nil
}

func (f *fakeTickets) SetResolved(_ context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok || t.ResolvedAt != nil || t.ClosedAt != nil {
		return false, nil
	}
	t.ResolvedAt = &at
	t.Status = domain.TicketStatusResolved
	t.Version++
	f.tickets[id] = t
	return true, nil
}

func (f *fakeTickets) mutate(id string, fn func(*domain.Ticket)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(&t)
	t.Version++
	f.tickets[id] = t
	return nil
}

type fakeQueue struct {
	mu      sync.Mutex
	entries map[string]domain.PriorityQueueEntry
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{entries: map[string]domain.PriorityQueueEntry{}}
}

func (q *fakeQueue) get(id string) (domain.PriorityQueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	return e, ok
}

func (q *fakeQueue) Upsert(_ context.Context, entry *domain.PriorityQueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if existing, ok := q.entries[entry.TicketID]; ok {
		entry.IsEscalated = existing.IsEscalated
		entry.EscalatedAt = existing.EscalatedAt
		entry.EscalationReason = existing.EscalationReason
		if existing.ResponseMetSLA != nil {
			entry.ResponseMetSLA = existing.ResponseMetSLA
		}
		if existing.ResolutionMetSLA != nil {
			entry.ResolutionMetSLA = existing.ResolutionMetSLA
		}
	}
	q.entries[entry.TicketID] = *entry
	return nil
}

func (q *fakeQueue) GetByTicketID(_ context.Context, id string) (*domain.PriorityQueueEntry, error) {
	e, ok := q.get(id)
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (q *fakeQueue) ListEscalationCandidates(context.Context, time.Time, time.Time) ([]domain.PriorityQueueEntry, error) {
	return nil, errors.New("not used")
}

func (q *fakeQueue) MarkEscalated(_ context.Context, esc domain.Escalation) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[esc.TicketID]
	if !ok || e.IsEscalated {
		return false, nil
	}
	at := esc.At
	e.IsEscalated, e.EscalatedAt, e.EscalationReason = true, &at, string(esc.Reason)
	q.entries[esc.TicketID] = e
	return true, nil
}

func (q *fakeQueue) UpdateDeadlines(_ context.Context, entry domain.PriorityQueueEntry) error {
	return q.Upsert(context.Background(), &entry)
}

func (q *fakeQueue) RecordOutcome(_ context.Context, id string, responseMet, resolutionMet *bool, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if e.ResponseMetSLA == nil {
		e.ResponseMetSLA = responseMet
	}
	if e.ResolutionMetSLA == nil {
		e.ResolutionMetSLA = resolutionMet
	}
	e.UpdatedAt = at
	q.entries[id] = e
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func (h *fakeHistory) Create(_ context.Context, entry *domain.TicketHistory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, *entry)
	return nil
}

func (h *fakeHistory) ListByTicket(_ context.Context, id string, types ...domain.TicketChangeType) ([]domain.TicketHistory, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.TicketHistory
	for _, e := range h.entries {
		if e.TicketID == id && (len(types) == 0 || slices.Contains(types, e.ChangeType)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (h *fakeHistory) types() []domain.TicketChangeType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.TicketChangeType, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.ChangeType
	}
	return out
}

type fakePolicies struct {
	mu       sync.Mutex
	policies map[string]domain.SLAPolicy
	seq      int
	now      time.Time
}

func newFakePolicies(ps ...domain.SLAPolicy) *fakePolicies {
	f := &fakePolicies{policies: map[string]domain.SLAPolicy{}, now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	for _, p := range ps {
		f.policies[p.ID] = p
	}
	return f
}

func (f *fakePolicies) Create(_ context.Context, p *domain.SLAPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	p.ID = fmt.Sprintf("pol-new-%d", f.seq)
	p.CreatedAt = f.now.Add(time.Duration(f.seq) * time.Minute)
	p.UpdatedAt = p.CreatedAt
	f.policies[p.ID] = *p
	return nil
}

func (f *fakePolicies) Update(_ context.Context, p *domain.SLAPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.policies[p.ID]; !ok {
		return pgx.ErrNoRows
	}
	f.policies[p.ID] = *p
	return nil
}

func (f *fakePolicies) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (f *fakePolicies) ListByCompany(_ context.Context, companyID string, activeOnly bool) ([]domain.SLAPolicy, error) {
	return f.filter(func(p domain.SLAPolicy) bool {
		return p.CompanyID == companyID && (!activeOnly || p.IsActive)
	}), nil
}

func (f *fakePolicies) ListEffectiveDefaults(_ context.Context, companyID string, now time.Time) ([]domain.SLAPolicy, error) {
	return f.filter(func(p domain.SLAPolicy) bool {
		return p.CompanyID == companyID && p.IsDefault && p.IsEffective(now)
	}), nil
}

func (f *fakePolicies) ClearDefaults(_ context.Context, companyID, exceptID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, p := range f.policies {
		if p.CompanyID == companyID && p.IsDefault && id != exceptID {
			p.IsDefault = false
			f.policies[id] = p
			n++
		}
	}
	return n, nil
}

func (f *fakePolicies) Deactivate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.IsActive, p.IsDefault = false, false
	f.policies[id] = p
	return nil
}

func (f *fakePolicies) filter(keep func(domain.SLAPolicy) bool) []domain.SLAPolicy {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SLAPolicy
	for _, p := range f.policies {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type fakeStaff struct {
	senior      *domain.StaffMember
	members     []domain.StaffMember
	listErr     error
	maxCritical []int
	excluded    []string
}

func (f *fakeStaff) GetByID(context.Context, string) (*domain.StaffMember, error) {
	return nil, pgx.ErrNoRows
}

func (f *fakeStaff) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.StaffMember
	for _, m := range f.members {
		if filter.CompanyID != nil && m.CompanyID != *filter.CompanyID {
			continue
		}
		if len(filter.Roles) > 0 && !slices.Contains(filter.Roles, m.Role) {
			continue
		}
		if filter.Active != nil && m.Active != *filter.Active {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStaff) FindSenior(_ context.Context, _, excludeID string, maxCritical int) (*domain.StaffMember, error) {
	f.maxCritical = append(f.maxCritical, maxCritical)
	f.excluded = append(f.excluded, excludeID)
	if f.senior == nil || f.senior.ID == excludeID {
		return nil, pgx.ErrNoRows
	}
	return f.senior, nil
}

type fakeClients map[string]domain.Client

func (f fakeClients) GetByID(_ context.Context, id string) (*domain.Client, error) {
	c, ok := f[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

func (f fakeClients) AssignSLAPolicy(context.Context, string, *string) error { return nil }

type fakeTransitions map[string]domain.WorkflowTransition

func (f fakeTransitions) GetByID(_ context.Context, companyID, id string) (*domain.WorkflowTransition, error) {
	t, ok := f[id]
	if !ok || t.CompanyID != companyID {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (f fakeTransitions) ListByWorkflow(_ context.Context, companyID, workflowID string) ([]domain.WorkflowTransition, error) {
	var out []domain.WorkflowTransition
	for _, t := range f {
		if t.CompanyID == companyID && t.WorkflowID == workflowID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeTransitions) Create(context.Context, *domain.WorkflowTransition) error { return nil }

type recordingDispatcher struct {
	mu       sync.Mutex
	events   []events.Event
	handlers map[events.EventType][]events.EventHandler
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{handlers: map[events.EventType][]events.EventHandler{}}
}

func (d *recordingDispatcher) Publish(ctx context.Context, e events.Event) error {
	d.mu.Lock()
	d.events = append(d.events, e)
	hs := append([]events.EventHandler{}, d.handlers[e.Type]...)
	d.mu.Unlock()
	var errs []error
	for _, h := range hs {
		if err := h(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *recordingDispatcher) Subscribe(t events.EventType, h events.EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = append(d.handlers[t], h)
}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, len(d.events))
	for i, e := range d.events {
		out[i] = e.Type
	}
	return out
}

type stubResolver struct {
	policy *domain.SLAPolicy
	err    error
}

func (r stubResolver) Resolve(context.Context, string, string, time.Time) (*domain.SLAPolicy, error) {
	return r.policy, r.err
}

type stubEvaluator struct {
	eval escalation.Evaluation
	err  error
}

func (s stubEvaluator) EvaluateTicket(_ context.Context, id string, _ time.Time) (escalation.Evaluation, error) {
	e := s.eval
	e.TicketID = id
	return e, s.err
}

func strPtr(s string) *string { return &s }

func staffActor(id string, role domain.StaffRole) domain.Actor {
	return domain.Actor{ID: id, Type: domain.ActorTypeStaff, CompanyID: "co-1", Role: role}
}

// 2024-01-01 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func validPolicy(id string) domain.SLAPolicy {
	return domain.SLAPolicy{
		ID:        id,
		CompanyID: "co-1",
		Name:      "Standard",
		IsActive:  true,
		Targets: map[domain.TicketPriority]domain.SLATarget{
			domain.TicketPriorityCritical: {ResponseMinutes: 30, ResolutionMinutes: 240},
			domain.TicketPriorityHigh:     {ResponseMinutes: 60, ResolutionMinutes: 480},
			domain.TicketPriorityMedium:   {ResponseMinutes: 240, ResolutionMinutes: 1440},
			domain.TicketPriorityLow:      {ResponseMinutes: 480, ResolutionMinutes: 2880},
		},
		Coverage:                calendar.Coverage{Type: calendar.Coverage247},
		BreachWarningPercentage: 80,
		EffectiveFrom:           at(1, 0, 0),
		CreatedAt:               at(1, 0, 0),
	}
}

func openTicket(id string, priority domain.TicketPriority, created time.Time) domain.Ticket {
	return domain.Ticket{
		ID:        id,
		CompanyID: "co-1",
		ClientID:  "cl-1",
		Title:     "Mail server down",
		Status:    domain.TicketStatusOpen,
		Priority:  priority,
		CreatedAt: created,
		UpdatedAt: created,
	}
}
