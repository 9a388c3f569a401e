package escalation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/sla"
)

// memQueue mimics the conditional update of the SQL repository.
type memQueue struct {
	mu      sync.Mutex
	entries map[string]domain.PriorityQueueEntry
	// beforeList runs after the snapshot is taken, letting tests hold scans at the
	// read/claim boundary.
	beforeList func()
	listErr    error
}

func newMemQueue() *memQueue {
	return &memQueue{entries: map[string]domain.PriorityQueueEntry{}}
}

func (q *memQueue) put(e domain.PriorityQueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[e.TicketID] = e
}

func (q *memQueue) get(id string) domain.PriorityQueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries[id]
}

func (q *memQueue) ListEscalationCandidates(_ context.Context, responseBefore, resolutionBefore time.Time) ([]domain.PriorityQueueEntry, error) {
	if q.listErr != nil {
		return nil, q.listErr
	}
	q.mu.Lock()
	var out []domain.PriorityQueueEntry
	for _, e := range q.entries {
		if e.IsEscalated {
			continue
		}
		if !e.ResponseDeadline.After(responseBefore) || !e.ResolutionDeadline.After(resolutionBefore) {
			out = append(out, e)
		}
	}
	q.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TicketID < out[j].TicketID })
	if q.beforeList != nil {
		q.beforeList()
	}
	return out, nil
}

func (q *memQueue) GetByTicketID(_ context.Context, ticketID string) (*domain.PriorityQueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (q *memQueue) MarkEscalated(_ context.Context, esc domain.Escalation) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[esc.TicketID]
	if !ok || e.IsEscalated {
		return false, nil
	}
	at := esc.At
	e.IsEscalated = true
	e.EscalatedAt = &at
	e.EscalationReason = string(esc.Reason)
	q.entries[esc.TicketID] = e
	return true, nil
}

func (q *memQueue) UpdateDeadlines(_ context.Context, entry domain.PriorityQueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[entry.TicketID]
	if !ok {
		return pgx.ErrNoRows
	}
	e.SLAPolicyID = entry.SLAPolicyID
	e.PriorityScore = entry.PriorityScore
	e.ResponseDeadline = entry.ResponseDeadline
	e.ResolutionDeadline = entry.ResolutionDeadline
	e.ResponseMetSLA = entry.ResponseMetSLA
	e.ResolutionMetSLA = entry.ResolutionMetSLA
	e.UpdatedAt = entry.UpdatedAt
	q.entries[entry.TicketID] = e
	return nil
}

type memTickets struct {
	mu      sync.Mutex
	tickets map[string]domain.Ticket
	panicOn string
}

func newMemTickets() *memTickets {
	return &memTickets{tickets: map[string]domain.Ticket{}}
}

func (s *memTickets) put(t domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
}

func (s *memTickets) get(id string) domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickets[id]
}

func (s *memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	if id == s.panicOn {
		panic("corrupt ticket row")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := t.Clone()
	return &clone, nil
}

func (s *memTickets) UpdatePriority(_ context.Context, id string, priority domain.TicketPriority, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tickets[id]
	t.Priority = priority
	t.UpdatedAt = at
	s.tickets[id] = t
	return nil
}

func (s *memTickets) UpdateAssignee(_ context.Context, id string, assigneeID *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tickets[id]
	t.AssignedTo = assigneeID
	t.UpdatedAt = at
	s.tickets[id] = t
	return nil
}

type memHistory struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func (h *memHistory) Create(_ context.Context, entry *domain.TicketHistory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, *entry)
	return nil
}

func (h *memHistory) changes(ticketID string) []domain.TicketChangeType {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.TicketChangeType
	for _, e := range h.entries {
		if e.TicketID == ticketID {
			out = append(out, e.ChangeType)
		}
	}
	return out
}

type memPolicies map[string]*domain.SLAPolicy

func (m memPolicies) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	p, ok := m[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

type stubUsers struct {
	senior *domain.StaffMember
	// backup is returned when senior is the excluded member.
	backup *domain.StaffMember
	err    error
}

func (u stubUsers) FindSeniorTechnician(_ context.Context, _, excludeStaffID string, _ bool) (*domain.StaffMember, error) {
	if u.err != nil {
		return nil, u.err
	}
	for _, candidate := range []*domain.StaffMember{u.senior, u.backup} {
		if candidate != nil && candidate.ID != excludeStaffID {
			return candidate, nil
		}
	}
	return nil, nil
}

type recordingSink struct {
	mu          sync.Mutex
	escalations []domain.EscalationEvent
	assigned    map[string]string
	failFor     map[string]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{assigned: map[string]string{}, failFor: map[string]bool{}}
}

func (s *recordingSink) NotifyEscalation(_ context.Context, ticket domain.Ticket, event domain.EscalationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[ticket.ID] {
		return errors.New("smtp relay unavailable")
	}
	s.escalations = append(s.escalations, event)
	return nil
}

func (s *recordingSink) NotifyTicketAssigned(_ context.Context, ticket domain.Ticket, staff domain.StaffMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assigned[ticket.ID] = staff.ID
	return nil
}

func (s *recordingSink) countFor(ticketID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.escalations {
		if e.TicketID == ticketID {
			n++
		}
	}
	return n
}

type fixture struct {
	queue   *memQueue
	tickets *memTickets
	history *memHistory
	sink    *recordingSink
	engine  *Engine
}

func newFixture(users UserDirectory, policies memPolicies) *fixture {
	f := &fixture{
		queue:   newMemQueue(),
		tickets: newMemTickets(),
		history: &memHistory{},
		sink:    newRecordingSink(),
	}
	f.engine = NewEngine(Dependencies{
		Queue:    f.queue,
		Tickets:  f.tickets,
		History:  f.history,
		Policies: policies,
		Users:    users,
		Notifier: f.sink,
	}, Config{Workers: 3})
	return f
}

// seed stores a ticket with a queue entry computed the way the service does.
func (f *fixture) seed(t domain.Ticket, policy *domain.SLAPolicy) {
	f.tickets.put(t)
	entry, err := sla.BuildQueueEntry(t, policy, t.CreatedAt)
	if err != nil {
		panic(err)
	}
	f.queue.put(entry)
}
