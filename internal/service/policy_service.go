package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/repository"
	"github.com/spec-kit/msp-sla/internal/sla"
	apperrors "github.com/spec-kit/msp-sla/pkg/util/errorutil"
)

// PolicyInvalidator drops cached copies of a policy.
type PolicyInvalidator interface {
	Invalidate(ctx context.Context, id string) error
}

// PolicyService administers SLA policies.
type PolicyService struct {
	policies repository.SLAPolicyRepository
	cache    PolicyInvalidator
	logger   *zap.Logger
}

// PolicyDependencies bundles collaborators for the policy service.
type PolicyDependencies struct {
	PolicyRepo repository.SLAPolicyRepository
	Cache      PolicyInvalidator
	Logger     *zap.Logger
}

// NewPolicyService constructs the service.
func NewPolicyService(deps PolicyDependencies) *PolicyService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{policies: deps.PolicyRepo, cache: deps.Cache, logger: logger}
}

// Validate reports every configuration problem of a policy without saving it.
func (s *PolicyService) Validate(policy *domain.SLAPolicy) []apperrors.FieldError {
	return sla.ValidatePolicy(policy)
}

// Create stores a new active policy for the actor's company.
func (s *PolicyService) Create(ctx context.Context, actor domain.Actor, policy *domain.SLAPolicy) (*domain.SLAPolicy, error) {
	if err := requireSupervisor(actor); err != nil {
		return nil, err
	}
	policy.CompanyID = actor.CompanyID
	policy.IsActive = true
	policy.Name = strings.TrimSpace(policy.Name)
	if errs := sla.ValidatePolicy(policy); len(errs) > 0 {
		return nil, apperrors.NewFieldValidationError("invalid sla policy", errs)
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.enforceSingleDefault(ctx, policy); err != nil {
		return nil, err
	}
	s.logger.Info("sla policy created",
		zap.String("policy_id", policy.ID),
		zap.String("company_id", policy.CompanyID),
		zap.Bool("is_default", policy.IsDefault))
	return policy, nil
}

// Update replaces the configurable fields of an active policy.
func (s *PolicyService) Update(ctx context.Context, actor domain.Actor, id string, input *domain.SLAPolicy) (*domain.SLAPolicy, error) {
	if err := requireSupervisor(actor); err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !existing.IsActive {
		return nil, apperrors.NewConflict("sla policy is deactivated", map[string]any{"policy_id": id})
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.IsDefault = input.IsDefault
	existing.Targets = input.Targets
	existing.Coverage = input.Coverage
	existing.BreachWarningPercentage = input.BreachWarningPercentage
	existing.EffectiveFrom = input.EffectiveFrom
	existing.EffectiveTo = input.EffectiveTo
	if errs := sla.ValidatePolicy(existing); len(errs) > 0 {
		return nil, apperrors.NewFieldValidationError("invalid sla policy", errs)
	}

	if err := s.policies.Update(ctx, existing); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.invalidate(ctx, existing.ID)
	if err := s.enforceSingleDefault(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Get loads a policy visible to the actor.
func (s *PolicyService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.SLAPolicy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("sla policy", map[string]any{"policy_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if actor.CompanyID != "" && policy.CompanyID != actor.CompanyID {
		return nil, apperrors.NewNotFound("sla policy", map[string]any{"policy_id": id})
	}
	return policy, nil
}

// List returns the company's policies, newest first.
func (s *PolicyService) List(ctx context.Context, actor domain.Actor, activeOnly bool) ([]domain.SLAPolicy, error) {
	policies, err := s.policies.ListByCompany(ctx, actor.CompanyID, activeOnly)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return policies, nil
}

// Deactivate soft-deletes a policy. Tickets keep the deadlines already computed.
func (s *PolicyService) Deactivate(ctx context.Context, actor domain.Actor, id string) (*domain.SLAPolicy, error) {
	if err := requireSupervisor(actor); err != nil {
		return nil, err
	}
	policy, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.IsActive {
		return policy, nil
	}
	if err := s.policies.Deactivate(ctx, id); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.invalidate(ctx, id)
	policy.IsActive = false
	policy.IsDefault = false
	s.logger.Info("sla policy deactivated", zap.String("policy_id", id))
	return policy, nil
}

func (s *PolicyService) enforceSingleDefault(ctx context.Context, policy *domain.SLAPolicy) error {
	if !policy.IsDefault {
		return nil
	}
	cleared, err := s.policies.ClearDefaults(ctx, policy.CompanyID, policy.ID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if cleared > 0 {
		s.logger.Info("previous default sla policy replaced",
			zap.String("company_id", policy.CompanyID),
			zap.String("policy_id", policy.ID),
			zap.Int64("cleared", cleared))
	}
	return nil
}

func (s *PolicyService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("policy cache invalidation failed", zap.String("policy_id", id), zap.Error(err))
	}
}

func requireSupervisor(actor domain.Actor) error {
	if actor.IsSystem() {
		return nil
	}
	if actor.ID == "" {
		return apperrors.NewUnauthorized("staff required")
	}
	if actor.Role != domain.StaffRoleManager && actor.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("insufficient role for sla policy changes")
	}
	return nil
}
