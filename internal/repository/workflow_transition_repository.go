package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// WorkflowTransitionRepository reads configured transitions. Conditions and
// actions are stored as JSONB arrays in declaration order. Reads are scoped to
// the owning company; a transition of another company reads as pgx.ErrNoRows.
type WorkflowTransitionRepository interface {
	GetByID(ctx context.Context, companyID, id string) (*domain.WorkflowTransition, error)
	ListByWorkflow(ctx context.Context, companyID, workflowID string) ([]domain.WorkflowTransition, error)
	Create(ctx context.Context, transition *domain.WorkflowTransition) error
}

type workflowTransitionRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowTransitionRepository builds the repository.
func NewWorkflowTransitionRepository(pool *pgxpool.Pool) WorkflowTransitionRepository {
	return &workflowTransitionRepository{pool: pool}
}

const transitionColumns = `id, company_id, workflow_id, name, from_status, to_status, is_automatic, required_role, conditions, actions`

func (r *workflowTransitionRepository) Create(ctx context.Context, transition *domain.WorkflowTransition) error {
	const query = `
        INSERT INTO workflow_transitions (company_id, workflow_id, name, from_status, to_status, is_automatic,
            required_role, conditions, actions, position)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,
            (SELECT COALESCE(MAX(position), 0) + 1 FROM workflow_transitions WHERE company_id=$1 AND workflow_id=$2))
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		transition.CompanyID,
		transition.WorkflowID,
		transition.Name,
		transition.FromStatus,
		transition.ToStatus,
		transition.IsAutomatic,
		transition.RequiredRole,
		conditionsOrEmpty(transition.Conditions),
		actionsOrEmpty(transition.Actions),
	).Scan(&transition.ID)
}

func (r *workflowTransitionRepository) GetByID(ctx context.Context, companyID, id string) (*domain.WorkflowTransition, error) {
	query := `SELECT ` + transitionColumns + ` FROM workflow_transitions WHERE id=$1 AND company_id=$2`
	transition, err := scanTransition(r.pool.QueryRow(ctx, query, id, companyID))
	if err != nil {
		return nil, err
	}
	return &transition, nil
}

func (r *workflowTransitionRepository) ListByWorkflow(ctx context.Context, companyID, workflowID string) ([]domain.WorkflowTransition, error) {
	query := `SELECT ` + transitionColumns + ` FROM workflow_transitions
        WHERE company_id=$1 AND workflow_id=$2 ORDER BY position ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, companyID, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WorkflowTransition
	for rows.Next() {
		transition, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, transition)
	}
	return result, rows.Err()
}

func scanTransition(row pgx.Row) (domain.WorkflowTransition, error) {
	var transition domain.WorkflowTransition
	err := row.Scan(
		&transition.ID,
		&transition.CompanyID,
		&transition.WorkflowID,
		&transition.Name,
		&transition.FromStatus,
		&transition.ToStatus,
		&transition.IsAutomatic,
		&transition.RequiredRole,
		&transition.Conditions,
		&transition.Actions,
	)
	return transition, err
}

func conditionsOrEmpty(c []domain.TransitionCondition) []domain.TransitionCondition {
	if c == nil {
		return []domain.TransitionCondition{}
	}
	return c
}

func actionsOrEmpty(a []domain.TransitionAction) []domain.TransitionAction {
	if a == nil {
		return []domain.TransitionAction{}
	}
	return a
}
