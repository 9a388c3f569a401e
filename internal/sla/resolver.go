package sla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// ClientDirectory exposes the client and company SLA links the resolver needs.
type ClientDirectory interface {
	// GetAssignedSLAPolicyID returns the client's policy override, nil when none is set.
	GetAssignedSLAPolicyID(ctx context.Context, clientID string) (*string, error)
	// GetDefaultPolicy returns the company default effective at now, nil when none exists.
	GetDefaultPolicy(ctx context.Context, companyID string, now time.Time) (*domain.SLAPolicy, error)
}

// PolicyStore loads policies by id, including deactivated ones.
type PolicyStore interface {
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
}

// Resolver selects the effective SLA policy for a ticket.
type Resolver struct {
	clients  ClientDirectory
	policies PolicyStore
	logger   *zap.Logger
}

func NewResolver(clients ClientDirectory, policies PolicyStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{clients: clients, policies: policies, logger: logger}
}

// Resolve returns the client override when it is active and effective at now, else the
// company default, else nil. A nil policy means the fallback table applies.
func (r *Resolver) Resolve(ctx context.Context, companyID, clientID string, now time.Time) (*domain.SLAPolicy, error) {
	if clientID != "" {
		policy, err := r.clientOverride(ctx, clientID, now)
		if err != nil {
			return nil, err
		}
		if policy != nil {
			return policy, nil
		}
	}

	policy, err := r.clients.GetDefaultPolicy(ctx, companyID, now)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load default sla policy: %w", err)
	}
	if policy.IsEffective(now) {
		return policy, nil
	}

	r.logger.Debug("no effective sla policy, using fallback targets",
		zap.String("company_id", companyID),
		zap.String("client_id", clientID),
	)
	return nil, nil
}

func (r *Resolver) clientOverride(ctx context.Context, clientID string, now time.Time) (*domain.SLAPolicy, error) {
	policyID, err := r.clients.GetAssignedSLAPolicyID(ctx, clientID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && (policyID == nil || *policyID == "")) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load client sla link: %w", err)
	}

	policy, err := r.policies.GetByID(ctx, *policyID)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Warn("client references missing sla policy",
			zap.String("client_id", clientID),
			zap.String("sla_policy_id", *policyID),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sla policy %s: %w", *policyID, err)
	}
	if !policy.IsEffective(now) {
		return nil, nil
	}
	return policy, nil
}
