package dto

import (
	"time"

	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/escalation"
	"github.com/spec-kit/msp-sla/internal/service"
)

// SLAStatusResponse reports the deadlines and flags of a ticket.
type SLAStatusResponse struct {
	TicketID           string                `json:"ticket_id"`
	SLAPolicyID        *string               `json:"sla_policy_id"`
	Priority           domain.TicketPriority `json:"priority"`
	ResponseDeadline   time.Time             `json:"response_deadline"`
	ResolutionDeadline time.Time             `json:"resolution_deadline"`
	ResponseBreached   bool                  `json:"response_breached"`
	ResponseWarning    bool                  `json:"response_warning"`
	ResolutionBreached bool                  `json:"resolution_breached"`
	ResolutionWarning  bool                  `json:"resolution_warning"`
	ResponseMetSLA     *bool                 `json:"response_met_sla"`
	ResolutionMetSLA   *bool                 `json:"resolution_met_sla"`
	State              escalation.State      `json:"state"`
	PriorityScore      float64               `json:"priority_score"`
	IsEscalated        bool                  `json:"is_escalated"`
	EscalatedAt        *time.Time            `json:"escalated_at,omitempty"`
	EscalationReason   string                `json:"escalation_reason,omitempty"`
	EvaluatedAt        time.Time             `json:"evaluated_at"`
}

// NewSLAStatusResponse maps a status.
func NewSLAStatusResponse(s *service.SLAStatus) SLAStatusResponse {
	return SLAStatusResponse{
		TicketID:           s.TicketID,
		SLAPolicyID:        s.PolicyID,
		Priority:           s.Priority,
		ResponseDeadline:   s.ResponseDeadline,
		ResolutionDeadline: s.ResolutionDeadline,
		ResponseBreached:   s.ResponseBreached,
		ResponseWarning:    s.ResponseWarning,
		ResolutionBreached: s.ResolutionBreached,
		ResolutionWarning:  s.ResolutionWarning,
		ResponseMetSLA:     s.ResponseMetSLA,
		ResolutionMetSLA:   s.ResolutionMetSLA,
		State:              s.State,
		PriorityScore:      s.PriorityScore,
		IsEscalated:        s.IsEscalated,
		EscalatedAt:        s.EscalatedAt,
		EscalationReason:   s.EscalationReason,
		EvaluatedAt:        s.EvaluatedAt,
	}
}

// EvaluationResponse is the outcome of evaluating one ticket.
type EvaluationResponse struct {
	TicketID string                  `json:"ticket_id"`
	State    escalation.State        `json:"state"`
	Reason   domain.EscalationReason `json:"reason,omitempty"`
	Outcome  escalation.Outcome      `json:"outcome"`
	Event    *domain.EscalationEvent `json:"event,omitempty"`
}

// NewEvaluationResponse maps an evaluation.
func NewEvaluationResponse(e escalation.Evaluation) EvaluationResponse {
	return EvaluationResponse{
		TicketID: e.TicketID,
		State:    e.State,
		Reason:   e.Reason,
		Outcome:  e.Outcome,
		Event:    e.Event,
	}
}

// ScanErrorResponse is a per-ticket scan failure.
type ScanErrorResponse struct {
	TicketID string `json:"ticket_id"`
	Error    string `json:"error"`
}

// ScanResponse summarises an on-demand scan.
type ScanResponse struct {
	Checked   int                 `json:"checked"`
	Escalated int                 `json:"escalated"`
	Skipped   int                 `json:"skipped"`
	Errors    []ScanErrorResponse `json:"errors"`
}

// NewScanResponse maps a scan result.
func NewScanResponse(r escalation.ScanResult) ScanResponse {
	errs := make([]ScanErrorResponse, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, ScanErrorResponse{TicketID: e.TicketID, Error: e.Err.Error()})
	}
	return ScanResponse{Checked: r.Checked, Escalated: r.Escalated, Skipped: r.Skipped, Errors: errs}
}

// HistoryEntryResponse is one audit trail entry.
type HistoryEntryResponse struct {
	ID            string                  `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByType domain.ActorType        `json:"changed_by_type"`
	ChangedByID   *string                 `json:"changed_by_id"`
	OldValue      map[string]any          `json:"old_value,omitempty"`
	NewValue      map[string]any          `json:"new_value,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// NewHistoryResponse maps entries, never returning nil.
func NewHistoryResponse(entries []domain.TicketHistory) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryResponse{
			ID:            e.ID,
			ChangeType:    e.ChangeType,
			ChangedByType: e.ChangedByType,
			ChangedByID:   e.ChangedByID,
			OldValue:      e.OldValue,
			NewValue:      e.NewValue,
			CreatedAt:     e.CreatedAt,
		})
	}
	return out
}
