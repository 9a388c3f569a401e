package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// SLAPolicyRepository persists SLA policies. Policies are never deleted.
type SLAPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	Update(ctx context.Context, policy *domain.SLAPolicy) error
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	ListByCompany(ctx context.Context, companyID string, activeOnly bool) ([]domain.SLAPolicy, error)
	ListEffectiveDefaults(ctx context.Context, companyID string, now time.Time) ([]domain.SLAPolicy, error)
	ClearDefaults(ctx context.Context, companyID, exceptID string) (int64, error)
	Deactivate(ctx context.Context, id string) error
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository builds the repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

const policyColumns = `id, company_id, name, is_default, is_active, targets, coverage, breach_warning_percentage,
               effective_from, effective_to, created_at, updated_at`

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        INSERT INTO sla_policies (company_id, name, is_default, is_active, targets, coverage,
            breach_warning_percentage, effective_from, effective_to)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.CompanyID,
		policy.Name,
		policy.IsDefault,
		policy.IsActive,
		policy.Targets,
		policy.Coverage,
		policy.BreachWarningPercentage,
		policy.EffectiveFrom,
		policy.EffectiveTo,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

func (r *slaPolicyRepository) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        UPDATE sla_policies SET name=$1, is_default=$2, is_active=$3, targets=$4, coverage=$5,
            breach_warning_percentage=$6, effective_from=$7, effective_to=$8, updated_at=NOW()
        WHERE id=$9
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.Name,
		policy.IsDefault,
		policy.IsActive,
		policy.Targets,
		policy.Coverage,
		policy.BreachWarningPercentage,
		policy.EffectiveFrom,
		policy.EffectiveTo,
		policy.ID,
	).Scan(&policy.UpdatedAt)
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE id=$1`
	policy, err := scanPolicy(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *slaPolicyRepository) ListByCompany(ctx context.Context, companyID string, activeOnly bool) ([]domain.SLAPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies
        WHERE company_id=$1 AND ($2 = false OR is_active)
        ORDER BY created_at DESC`
	return r.list(ctx, query, companyID, activeOnly)
}

// ListEffectiveDefaults returns active defaults effective at now, newest first.
func (r *slaPolicyRepository) ListEffectiveDefaults(ctx context.Context, companyID string, now time.Time) ([]domain.SLAPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies
        WHERE company_id=$1 AND is_default AND is_active
          AND effective_from <= $2 AND (effective_to IS NULL OR effective_to >= $2)
        ORDER BY created_at DESC`
	return r.list(ctx, query, companyID, now)
}

// ClearDefaults unsets is_default on every other policy of the company.
func (r *slaPolicyRepository) ClearDefaults(ctx context.Context, companyID, exceptID string) (int64, error) {
	const query = `
        UPDATE sla_policies SET is_default=false, updated_at=NOW()
        WHERE company_id=$1 AND is_default AND id::text <> $2`
	cmd, err := r.pool.Exec(ctx, query, companyID, exceptID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *slaPolicyRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE sla_policies SET is_active=false, is_default=false, updated_at=NOW() WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slaPolicyRepository) list(ctx context.Context, query string, args ...any) ([]domain.SLAPolicy, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}

func scanPolicy(row pgx.Row) (domain.SLAPolicy, error) {
	var policy domain.SLAPolicy
	err := row.Scan(
		&policy.ID,
		&policy.CompanyID,
		&policy.Name,
		&policy.IsDefault,
		&policy.IsActive,
		&policy.Targets,
		&policy.Coverage,
		&policy.BreachWarningPercentage,
		&policy.EffectiveFrom,
		&policy.EffectiveTo,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
	return policy, err
}
