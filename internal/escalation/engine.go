// Package escalation scans priority queue entries for SLA breaches and warnings and
// escalates tickets exactly once per escalation cycle.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/sla"
)

const (
	DefaultWorkers             = 4
	DefaultResponseLookahead   = time.Hour
	DefaultResolutionLookahead = 2 * time.Hour
)

// State is the escalation state of a queue entry.
type State string

const (
	StateNormal    State = "normal"
	StateWarned    State = "warned"
	StateEscalated State = "escalated"
)

// Outcome describes what one evaluation did.
type Outcome string

const (
	OutcomeNoAction         Outcome = "no_action"
	OutcomeEscalated        Outcome = "escalated"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeAlreadyEscalated Outcome = "already_escalated"
	OutcomeFailed           Outcome = "failed"
)

// Config tunes the scan.
type Config struct {
	Workers             int
	ResponseLookahead   time.Duration
	ResolutionLookahead time.Duration
}

// Dependencies bundles collaborators.
type Dependencies struct {
	Queue    QueueStore
	Tickets  TicketStore
	History  HistoryRecorder
	Policies PolicyStore
	Users    UserDirectory
	Notifier NotificationSink
	Metrics  Recorder
	Logger   *zap.Logger
}

// Engine evaluates queue entries and escalates breached or nearly breached tickets.
type Engine struct {
	queue    QueueStore
	tickets  TicketStore
	history  HistoryRecorder
	policies PolicyStore
	users    UserDirectory
	notifier NotificationSink
	metrics  Recorder
	logger   *zap.Logger
	cfg      Config
}

// TicketError is a per-ticket failure recorded during a scan.
type TicketError struct {
	TicketID string
	Err      error
}

func (e TicketError) Error() string {
	return fmt.Sprintf("ticket %s: %v", e.TicketID, e.Err)
}

func (e TicketError) Unwrap() error {
	return e.Err
}

// ScanResult summarises one scan pass.
type ScanResult struct {
	Checked   int
	Escalated int
	Skipped   int
	Errors    []TicketError
}

// Evaluation is the result of evaluating one entry.
type Evaluation struct {
	TicketID   string
	State      State
	Assessment sla.Assessment
	Reason     domain.EscalationReason
	Outcome    Outcome
	Event      *domain.EscalationEvent
}

// NewEngine creates the engine.
func NewEngine(deps Dependencies, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.ResponseLookahead <= 0 {
		cfg.ResponseLookahead = DefaultResponseLookahead
	}
	if cfg.ResolutionLookahead <= 0 {
		cfg.ResolutionLookahead = DefaultResolutionLookahead
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Engine{
		queue:    deps.Queue,
		tickets:  deps.Tickets,
		history:  deps.History,
		policies: deps.Policies,
		users:    deps.Users,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		cfg:      cfg,
	}
}

// Scan evaluates every candidate entry at now. Candidate selection only narrows the work;
// each entry is re-evaluated against its policy thresholds. Per-ticket failures are
// recorded in the result and never abort the scan.
func (e *Engine) Scan(ctx context.Context, now time.Time) (ScanResult, error) {
	started := time.Now()
	entries, err := e.queue.ListEscalationCandidates(ctx,
		now.Add(e.cfg.ResponseLookahead),
		now.Add(e.cfg.ResolutionLookahead),
	)
	if err != nil {
		e.metrics.RecordScanFailure()
		return ScanResult{}, fmt.Errorf("list escalation candidates: %w", err)
	}

	var (
		mu     sync.Mutex
		result ScanResult
	)
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Workers)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			eval, err := e.evaluateGuarded(ctx, entry, now)

			mu.Lock()
			defer mu.Unlock()
			result.Checked++
			switch eval.Outcome {
			case OutcomeEscalated:
				result.Escalated++
			case OutcomeSkipped, OutcomeAlreadyEscalated:
				result.Skipped++
			}
			if err != nil {
				result.Errors = append(result.Errors, TicketError{TicketID: entry.TicketID, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].TicketID < result.Errors[j].TicketID
	})
	e.metrics.ObserveScan(time.Since(started), result.Checked, result.Escalated, result.Skipped, len(result.Errors))
	e.logger.Info("escalation scan finished",
		zap.Time("now", now),
		zap.Int("checked", result.Checked),
		zap.Int("escalated", result.Escalated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// EvaluateTicket runs the scan logic for a single ticket, for example after a state change.
func (e *Engine) EvaluateTicket(ctx context.Context, ticketID string, now time.Time) (Evaluation, error) {
	entry, err := e.queue.GetByTicketID(ctx, ticketID)
	if err != nil {
		return Evaluation{TicketID: ticketID, Outcome: OutcomeFailed}, fmt.Errorf("load queue entry: %w", err)
	}
	return e.evaluateGuarded(ctx, *entry, now)
}

func (e *Engine) evaluateGuarded(ctx context.Context, entry domain.PriorityQueueEntry, now time.Time) (eval Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("escalation evaluation panicked",
				zap.String("ticket_id", entry.TicketID),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			eval = Evaluation{TicketID: entry.TicketID, Outcome: OutcomeFailed}
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	eval, err = e.evaluate(ctx, entry, now)
	if err != nil {
		e.logger.Warn("escalation evaluation failed",
			zap.String("ticket_id", entry.TicketID),
			zap.String("outcome", string(eval.Outcome)),
			zap.Error(err),
		)
	}
	return eval, err
}

func (e *Engine) evaluate(ctx context.Context, entry domain.PriorityQueueEntry, now time.Time) (Evaluation, error) {
	eval := Evaluation{TicketID: entry.TicketID, State: StateNormal}
	if err := ctx.Err(); err != nil {
		eval.Outcome = OutcomeFailed
		return eval, err
	}
	if entry.IsEscalated {
		eval.State = StateEscalated
		eval.Outcome = OutcomeAlreadyEscalated
		return eval, nil
	}

	ticket, err := e.tickets.GetByID(ctx, entry.TicketID)
	if err != nil {
		eval.Outcome = OutcomeFailed
		return eval, fmt.Errorf("load ticket: %w", err)
	}
	if ticket.SLAStopped() {
		eval.Outcome = OutcomeSkipped
		return eval, nil
	}

	policy, err := e.policyFor(ctx, entry)
	if err != nil {
		eval.Outcome = OutcomeFailed
		return eval, err
	}

	eval.Assessment = sla.Assess(*ticket, policy, sla.EntryDeadlines(entry), now)
	eval.Reason = eval.Assessment.Reason()
	if eval.Reason == domain.ReasonNone {
		eval.Outcome = OutcomeNoAction
		return eval, nil
	}
	if !eval.Reason.IsBreach() {
		eval.State = StateWarned
	}

	return e.escalate(ctx, ticket, entry, policy, eval, now)
}

func (e *Engine) policyFor(ctx context.Context, entry domain.PriorityQueueEntry) (*domain.SLAPolicy, error) {
	if entry.SLAPolicyID == nil || e.policies == nil {
		return nil, nil
	}
	policy, err := e.policies.GetByID(ctx, *entry.SLAPolicyID)
	if errors.Is(err, pgx.ErrNoRows) {
		e.logger.Warn("queue entry references missing sla policy, using fallback targets",
			zap.String("ticket_id", entry.TicketID),
			zap.String("sla_policy_id", *entry.SLAPolicyID),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sla policy: %w", err)
	}
	return policy, nil
}

// escalate claims the entry first. Side effects only run for the caller that won the claim,
// so a concurrent scan that loses observes zero rows and stops.
func (e *Engine) escalate(ctx context.Context, ticket *domain.Ticket, entry domain.PriorityQueueEntry, policy *domain.SLAPolicy, eval Evaluation, now time.Time) (Evaluation, error) {
	claimed, err := e.queue.MarkEscalated(ctx, domain.Escalation{
		TicketID: ticket.ID,
		Reason:   eval.Reason,
		At:       now,
	})
	if err != nil {
		eval.Outcome = OutcomeFailed
		return eval, fmt.Errorf("claim escalation: %w", err)
	}
	if !claimed {
		e.logger.Debug("ticket already escalated by another scan", zap.String("ticket_id", ticket.ID))
		eval.State = StateEscalated
		eval.Outcome = OutcomeAlreadyEscalated
		return eval, nil
	}

	e.metrics.RecordEscalation(eval.Reason)
	eval.State = StateEscalated
	eval.Outcome = OutcomeEscalated

	var errs []error
	event := domain.EscalationEvent{
		ID:                 uuid.NewString(),
		TicketID:           ticket.ID,
		CompanyID:          ticket.CompanyID,
		Reason:             eval.Reason,
		TriggeredAt:        now,
		PreviousPriority:   ticket.Priority.Normalize(),
		NewPriority:        ticket.Priority.Normalize(),
		PreviousAssigneeID: ticket.AssignedTo,
		NewAssigneeID:      ticket.AssignedTo,
	}

	if next := event.PreviousPriority.Escalated(); next != event.PreviousPriority {
		if err := e.tickets.UpdatePriority(ctx, ticket.ID, next, now); err != nil {
			errs = append(errs, fmt.Errorf("bump priority: %w", err))
		} else {
			ticket.Priority = next
			event.NewPriority = next
			errs = append(errs, e.record(ctx, ticket.ID, domain.ChangeTypePriority,
				map[string]any{"priority": event.PreviousPriority},
				map[string]any{"priority": next}, now))
		}
	}

	if err := e.reassign(ctx, ticket, &event, now); err != nil {
		errs = append(errs, err)
	}

	if err := e.notifier.NotifyEscalation(ctx, *ticket, event); err != nil {
		errs = append(errs, fmt.Errorf("notify escalation: %w", err))
	}

	errs = append(errs, e.record(ctx, ticket.ID, domain.ChangeTypeEscalation,
		map[string]any{"is_escalated": false},
		map[string]any{
			"is_escalated":      true,
			"escalation_reason": eval.Reason,
			"escalation_id":     event.ID,
		}, now))

	if event.NewPriority != event.PreviousPriority {
		refreshed, err := sla.BuildQueueEntry(*ticket, policy, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("recompute deadlines: %w", err))
		} else if err := e.queue.UpdateDeadlines(ctx, refreshed); err != nil {
			errs = append(errs, fmt.Errorf("store deadlines: %w", err))
		}
	}

	eval.Event = &event
	e.logger.Info("ticket escalated",
		zap.String("ticket_id", ticket.ID),
		zap.String("reason", string(eval.Reason)),
		zap.String("priority", string(event.NewPriority)),
	)
	return eval, errors.Join(errs...)
}

func (e *Engine) reassign(ctx context.Context, ticket *domain.Ticket, event *domain.EscalationEvent, now time.Time) error {
	current := ""
	if ticket.AssignedTo != nil {
		current = *ticket.AssignedTo
	}
	senior, err := e.users.FindSeniorTechnician(ctx, ticket.CompanyID, current, true)
	if err != nil {
		return fmt.Errorf("find senior technician: %w", err)
	}
	if senior == nil || senior.ID == current {
		return nil
	}

	previous := ticket.AssignedTo
	assignee := senior.ID
	if err := e.tickets.UpdateAssignee(ctx, ticket.ID, &assignee, now); err != nil {
		return fmt.Errorf("reassign ticket: %w", err)
	}
	ticket.AssignedTo = &assignee
	event.NewAssigneeID = &assignee

	var errs []error
	errs = append(errs, e.record(ctx, ticket.ID, domain.ChangeTypeAssignee,
		map[string]any{"assigned_to": previous},
		map[string]any{"assigned_to": assignee}, now))
	if err := e.notifier.NotifyTicketAssigned(ctx, *ticket, *senior); err != nil {
		errs = append(errs, fmt.Errorf("notify assignment: %w", err))
	}
	return errors.Join(errs...)
}

func (e *Engine) record(ctx context.Context, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any, now time.Time) error {
	if e.history == nil {
		return nil
	}
	err := e.history.Create(ctx, &domain.TicketHistory{
		ID:            uuid.NewString(),
		TicketID:      ticketID,
		ChangedByType: domain.ActorTypeSystem,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     now,
	})
	if err != nil {
		return fmt.Errorf("record %s history: %w", change, err)
	}
	return nil
}

// StateOf derives the escalation state of an entry from its persisted flag and the
// current assessment.
func StateOf(entry domain.PriorityQueueEntry, a sla.Assessment) State {
	switch {
	case entry.IsEscalated:
		return StateEscalated
	case a.Reason() != domain.ReasonNone:
		return StateWarned
	default:
		return StateNormal
	}
}
