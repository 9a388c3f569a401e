package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// ClientRepository reads the client fields the SLA core needs.
type ClientRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Client, error)
	AssignSLAPolicy(ctx context.Context, clientID string, policyID *string) error
}

type clientRepository struct {
	pool *pgxpool.Pool
}

// NewClientRepository builds the repository.
func NewClientRepository(pool *pgxpool.Pool) ClientRepository {
	return &clientRepository{pool: pool}
}

func (r *clientRepository) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	const query = `SELECT id, company_id, name, sla_policy_id FROM clients WHERE id=$1`
	var client domain.Client
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&client.ID,
		&client.CompanyID,
		&client.Name,
		&client.SLAPolicyID,
	); err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *clientRepository) AssignSLAPolicy(ctx context.Context, clientID string, policyID *string) error {
	const query = `UPDATE clients SET sla_policy_id=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, policyID, clientID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
