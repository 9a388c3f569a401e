package sla

import (
	"fmt"
	"math"
	"time"

	"github.com/spec-kit/msp-sla/internal/calendar"
	"github.com/spec-kit/msp-sla/internal/domain"
)

// Kind selects which SLA clock a predicate looks at.
type Kind string

const (
	KindResponse   Kind = "response"
	KindResolution Kind = "resolution"
)

// FallbackWarningPercentage applies when no policy is in effect.
const FallbackWarningPercentage = 80

// FallbackTargets are used with straight-minute math when no policy resolves.
var FallbackTargets = map[domain.TicketPriority]domain.SLATarget{
	domain.TicketPriorityCritical: {ResponseMinutes: 60, ResolutionMinutes: 240},
	domain.TicketPriorityHigh:     {ResponseMinutes: 240, ResolutionMinutes: 1440},
	domain.TicketPriorityMedium:   {ResponseMinutes: 480, ResolutionMinutes: 4320},
	domain.TicketPriorityLow:      {ResponseMinutes: 1440, ResolutionMinutes: 10080},
}

// Deadlines are the computed SLA instants of one ticket.
type Deadlines struct {
	Response   time.Time
	Resolution time.Time
	PolicyID   *string
}

// For returns the deadline of kind.
func (d Deadlines) For(kind Kind) time.Time {
	if kind == KindResolution {
		return d.Resolution
	}
	return d.Response
}

// TargetFor returns the minute budget for priority under policy, falling back to the
// built-in table when the policy is nil or lacks the priority.
func TargetFor(priority domain.TicketPriority, policy *domain.SLAPolicy) domain.SLATarget {
	if target, ok := policy.Target(priority); ok {
		return target
	}
	return FallbackTargets[priority.Normalize()]
}

// WarningPercentage returns the policy warning threshold, or the fallback.
func WarningPercentage(policy *domain.SLAPolicy) int {
	if policy == nil || policy.BreachWarningPercentage <= 0 || policy.BreachWarningPercentage > 100 {
		return FallbackWarningPercentage
	}
	return policy.BreachWarningPercentage
}

// ComputeDeadlines derives both deadlines from the ticket creation instant.
func ComputeDeadlines(ticket domain.Ticket, policy *domain.SLAPolicy) (Deadlines, error) {
	target := TargetFor(ticket.Priority, policy)
	if policy == nil {
		return Deadlines{
			Response:   ticket.CreatedAt.Add(time.Duration(target.ResponseMinutes) * time.Minute),
			Resolution: ticket.CreatedAt.Add(time.Duration(target.ResolutionMinutes) * time.Minute),
		}, nil
	}

	response, err := calendar.Advance(ticket.CreatedAt, target.ResponseMinutes, policy.Coverage)
	if err != nil {
		return Deadlines{}, fmt.Errorf("response deadline for policy %s: %w", policy.ID, err)
	}
	resolution, err := calendar.Advance(ticket.CreatedAt, target.ResolutionMinutes, policy.Coverage)
	if err != nil {
		return Deadlines{}, fmt.Errorf("resolution deadline for policy %s: %w", policy.ID, err)
	}
	id := policy.ID
	return Deadlines{Response: response, Resolution: resolution, PolicyID: &id}, nil
}

// IsBreached reports whether the kind deadline has passed without its qualifying event.
// The boundary is inclusive: now equal to the deadline is a breach.
func IsBreached(kind Kind, ticket domain.Ticket, policy *domain.SLAPolicy, now time.Time) (bool, error) {
	d, err := ComputeDeadlines(ticket, policy)
	if err != nil {
		return false, err
	}
	return Breached(kind, ticket, d, now), nil
}

// IsApproachingBreach reports whether the elapsed share of the allotted minutes crossed the
// warning threshold while the deadline is not yet breached. Elapsed time is wall-clock,
// not coverage-adjusted.
func IsApproachingBreach(kind Kind, ticket domain.Ticket, policy *domain.SLAPolicy, now time.Time) (bool, error) {
	d, err := ComputeDeadlines(ticket, policy)
	if err != nil {
		return false, err
	}
	return Approaching(kind, ticket, policy, d, now), nil
}

// Breached evaluates the breach predicate against precomputed deadlines.
func Breached(kind Kind, ticket domain.Ticket, d Deadlines, now time.Time) bool {
	switch kind {
	case KindResponse:
		return ticket.FirstResponseAt == nil && !now.Before(d.Response)
	case KindResolution:
		if ticket.ResolvedAt != nil {
			return ticket.ResolvedAt.After(d.Resolution)
		}
		return !now.Before(d.Resolution)
	default:
		return false
	}
}

// Approaching evaluates the warning predicate against precomputed deadlines.
func Approaching(kind Kind, ticket domain.Ticket, policy *domain.SLAPolicy, d Deadlines, now time.Time) bool {
	target := TargetFor(ticket.Priority, policy)
	var total int
	switch kind {
	case KindResponse:
		if ticket.FirstResponseAt != nil {
			return false
		}
		total = target.ResponseMinutes
	case KindResolution:
		if ticket.ResolvedAt != nil {
			return false
		}
		total = target.ResolutionMinutes
	default:
		return false
	}
	if total <= 0 || Breached(kind, ticket, d, now) {
		return false
	}

	elapsed := now.Sub(ticket.CreatedAt).Minutes()
	return elapsed/float64(total) >= float64(WarningPercentage(policy))/100
}

// Assessment is the breach and warning state of both clocks at one instant.
type Assessment struct {
	ResponseBreached   bool
	ResponseWarning    bool
	ResolutionBreached bool
	ResolutionWarning  bool
}

// Assess evaluates all four predicates.
func Assess(ticket domain.Ticket, policy *domain.SLAPolicy, d Deadlines, now time.Time) Assessment {
	return Assessment{
		ResponseBreached:   Breached(KindResponse, ticket, d, now),
		ResponseWarning:    Approaching(KindResponse, ticket, policy, d, now),
		ResolutionBreached: Breached(KindResolution, ticket, d, now),
		ResolutionWarning:  Approaching(KindResolution, ticket, policy, d, now),
	}
}

// Reason returns the first true reason in escalation precedence order.
func (a Assessment) Reason() domain.EscalationReason {
	switch {
	case a.ResolutionBreached:
		return domain.ReasonResolutionBreach
	case a.ResolutionWarning:
		return domain.ReasonResolutionWarning
	case a.ResponseBreached:
		return domain.ReasonResponseBreach
	case a.ResponseWarning:
		return domain.ReasonResponseWarning
	default:
		return domain.ReasonNone
	}
}

// MetSLA returns whether the qualifying event happened by the deadline, nil until it happens.
func MetSLA(kind Kind, ticket domain.Ticket, d Deadlines) *bool {
	var event *time.Time
	switch kind {
	case KindResponse:
		event = ticket.FirstResponseAt
	case KindResolution:
		event = ticket.ResolvedAt
	}
	if event == nil {
		return nil
	}
	met := !event.After(d.For(kind))
	return &met
}

const urgencyHorizon = 24 * time.Hour

// PriorityScore ranks tickets for the queue, higher is more urgent. Each priority level is
// worth 100 points; the nearest open deadline adds up to 100 more as it approaches, and a
// breached one adds the full 100.
func PriorityScore(ticket domain.Ticket, d Deadlines, now time.Time) float64 {
	score := float64(ticket.Priority.Rank()+1) * 100

	var nearest *time.Time
	if ticket.FirstResponseAt == nil {
		nearest = &d.Response
	}
	if ticket.ResolvedAt == nil && (nearest == nil || d.Resolution.Before(*nearest)) {
		nearest = &d.Resolution
	}
	if nearest == nil {
		return score
	}

	remaining := nearest.Sub(now)
	switch {
	case remaining <= 0:
		score += 100
	case remaining < urgencyHorizon:
		score += 100 * (1 - remaining.Hours()/urgencyHorizon.Hours())
	}
	return math.Round(score*100) / 100
}

// BuildQueueEntry computes the queue state of a ticket without touching escalation fields.
func BuildQueueEntry(ticket domain.Ticket, policy *domain.SLAPolicy, now time.Time) (domain.PriorityQueueEntry, error) {
	d, err := ComputeDeadlines(ticket, policy)
	if err != nil {
		return domain.PriorityQueueEntry{}, err
	}
	return domain.PriorityQueueEntry{
		TicketID:           ticket.ID,
		SLAPolicyID:        d.PolicyID,
		PriorityScore:      PriorityScore(ticket, d, now),
		ResponseDeadline:   d.Response,
		ResolutionDeadline: d.Resolution,
		ResponseMetSLA:     MetSLA(KindResponse, ticket, d),
		ResolutionMetSLA:   MetSLA(KindResolution, ticket, d),
		UpdatedAt:          now,
	}, nil
}

// EntryDeadlines reads the persisted deadlines of a queue entry.
func EntryDeadlines(e domain.PriorityQueueEntry) Deadlines {
	return Deadlines{Response: e.ResponseDeadline, Resolution: e.ResolutionDeadline, PolicyID: e.SLAPolicyID}
}
