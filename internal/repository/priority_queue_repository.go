package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// PriorityQueueRepository stores the per-ticket SLA queue rows.
type PriorityQueueRepository interface {
	Upsert(ctx context.Context, entry *domain.PriorityQueueEntry) error
	GetByTicketID(ctx context.Context, ticketID string) (*domain.PriorityQueueEntry, error)
	ListEscalationCandidates(ctx context.Context, responseBefore, resolutionBefore time.Time) ([]domain.PriorityQueueEntry, error)
	MarkEscalated(ctx context.Context, esc domain.Escalation) (bool, error)
	UpdateDeadlines(ctx context.Context, entry domain.PriorityQueueEntry) error
	RecordOutcome(ctx context.Context, ticketID string, responseMet, resolutionMet *bool, at time.Time) error
}

type priorityQueueRepository struct {
	pool *pgxpool.Pool
}

// NewPriorityQueueRepository builds the repository.
func NewPriorityQueueRepository(pool *pgxpool.Pool) PriorityQueueRepository {
	return &priorityQueueRepository{pool: pool}
}

const queueColumns = `ticket_id, sla_policy_id, priority_score, response_deadline, resolution_deadline,
               response_met_sla, resolution_met_sla, is_escalated, escalated_at, escalation_reason, updated_at`

// Upsert inserts the entry or refreshes its computed columns. The escalation
// columns are never written here.
func (r *priorityQueueRepository) Upsert(ctx context.Context, entry *domain.PriorityQueueEntry) error {
	const query = `
        INSERT INTO priority_queue_entries (ticket_id, sla_policy_id, priority_score, response_deadline,
            resolution_deadline, response_met_sla, resolution_met_sla, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (ticket_id) DO UPDATE SET
            sla_policy_id = EXCLUDED.sla_policy_id,
            priority_score = EXCLUDED.priority_score,
            response_deadline = EXCLUDED.response_deadline,
            resolution_deadline = EXCLUDED.resolution_deadline,
            response_met_sla = COALESCE(priority_queue_entries.response_met_sla, EXCLUDED.response_met_sla),
            resolution_met_sla = COALESCE(priority_queue_entries.resolution_met_sla, EXCLUDED.resolution_met_sla),
            updated_at = EXCLUDED.updated_at
        RETURNING is_escalated, escalated_at, escalation_reason`
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.SLAPolicyID,
		entry.PriorityScore,
		entry.ResponseDeadline,
		entry.ResolutionDeadline,
		entry.ResponseMetSLA,
		entry.ResolutionMetSLA,
		entry.UpdatedAt,
	).Scan(&entry.IsEscalated, &entry.EscalatedAt, &entry.EscalationReason)
}

func (r *priorityQueueRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.PriorityQueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM priority_queue_entries WHERE ticket_id=$1`
	entry, err := scanQueueEntry(r.pool.QueryRow(ctx, query, ticketID))
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListEscalationCandidates is a coarse pre-filter; callers re-check thresholds.
func (r *priorityQueueRepository) ListEscalationCandidates(ctx context.Context, responseBefore, resolutionBefore time.Time) ([]domain.PriorityQueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM priority_queue_entries
        WHERE is_escalated = false
          AND (response_deadline <= $1 OR resolution_deadline <= $2)
        ORDER BY priority_score DESC, ticket_id ASC`
	rows, err := r.pool.Query(ctx, query, responseBefore, resolutionBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PriorityQueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// MarkEscalated claims the entry. It reports false when another scan already did.
func (r *priorityQueueRepository) MarkEscalated(ctx context.Context, esc domain.Escalation) (bool, error) {
	const query = `
        UPDATE priority_queue_entries
        SET is_escalated=true, escalated_at=$2, escalation_reason=$3, updated_at=$2
        WHERE ticket_id=$1 AND is_escalated=false`
	cmd, err := r.pool.Exec(ctx, query, esc.TicketID, esc.At, string(esc.Reason))
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// UpdateDeadlines rewrites the computed columns of an existing entry.
func (r *priorityQueueRepository) UpdateDeadlines(ctx context.Context, entry domain.PriorityQueueEntry) error {
	const query = `
        UPDATE priority_queue_entries
        SET sla_policy_id=$2, priority_score=$3, response_deadline=$4, resolution_deadline=$5,
            response_met_sla=COALESCE(response_met_sla, $6), resolution_met_sla=COALESCE(resolution_met_sla, $7),
            updated_at=$8
        WHERE ticket_id=$1`
	cmd, err := r.pool.Exec(ctx, query,
		entry.TicketID,
		entry.SLAPolicyID,
		entry.PriorityScore,
		entry.ResponseDeadline,
		entry.ResolutionDeadline,
		entry.ResponseMetSLA,
		entry.ResolutionMetSLA,
		entry.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RecordOutcome sets the met-SLA flags that are still unset.
func (r *priorityQueueRepository) RecordOutcome(ctx context.Context, ticketID string, responseMet, resolutionMet *bool, at time.Time) error {
	const query = `
        UPDATE priority_queue_entries
        SET response_met_sla=COALESCE(response_met_sla, $2), resolution_met_sla=COALESCE(resolution_met_sla, $3),
            updated_at=$4
        WHERE ticket_id=$1`
	cmd, err := r.pool.Exec(ctx, query, ticketID, responseMet, resolutionMet, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanQueueEntry(row pgx.Row) (domain.PriorityQueueEntry, error) {
	var entry domain.PriorityQueueEntry
	err := row.Scan(
		&entry.TicketID,
		&entry.SLAPolicyID,
		&entry.PriorityScore,
		&entry.ResponseDeadline,
		&entry.ResolutionDeadline,
		&entry.ResponseMetSLA,
		&entry.ResolutionMetSLA,
		&entry.IsEscalated,
		&entry.EscalatedAt,
		&entry.EscalationReason,
		&entry.UpdatedAt,
	)
	return entry, err
}
