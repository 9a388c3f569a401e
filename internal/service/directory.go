package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/repository"
)

const supervisorLimit = 100

// Directory answers the staff and client lookups the SLA core needs.
type Directory struct {
	staff             repository.StaffRepository
	clients           repository.ClientRepository
	policies          repository.SLAPolicyRepository
	overloadThreshold int
	logger            *zap.Logger
}

// DirectoryDependencies bundles repositories for the directory.
type DirectoryDependencies struct {
	StaffRepo  repository.StaffRepository
	ClientRepo repository.ClientRepository
	PolicyRepo repository.SLAPolicyRepository
	// OverloadThreshold is the open CRITICAL ticket count at which a senior
	// technician stops receiving escalations.
	OverloadThreshold int
	Logger            *zap.Logger
}

// NewDirectory creates the directory.
func NewDirectory(deps DirectoryDependencies) *Directory {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		staff:             deps.StaffRepo,
		clients:           deps.ClientRepo,
		policies:          deps.PolicyRepo,
		overloadThreshold: deps.OverloadThreshold,
		logger:            logger,
	}
}

// FindSeniorTechnician returns the least loaded senior staff member of the company
// other than excludeStaffID, or nil when nobody qualifies.
func (d *Directory) FindSeniorTechnician(ctx context.Context, companyID, excludeStaffID string, excludeOverloaded bool) (*domain.StaffMember, error) {
	maxCritical := 0
	if excludeOverloaded {
		maxCritical = d.overloadThreshold
	}
	staff, err := d.staff.FindSenior(ctx, companyID, excludeStaffID, maxCritical)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return staff, nil
}

// ListSupervisors returns the active managers and admins of the company.
func (d *Directory) ListSupervisors(ctx context.Context, companyID string) ([]domain.StaffMember, error) {
	active := true
	return d.staff.List(ctx, repository.StaffFilter{
		CompanyID: &companyID,
		Roles:     []domain.StaffRole{domain.StaffRoleManager, domain.StaffRoleAdmin},
		Active:    &active,
		Limit:     supervisorLimit,
	})
}

// GetAssignedSLAPolicyID returns the policy linked to the client, if any.
func (d *Directory) GetAssignedSLAPolicyID(ctx context.Context, clientID string) (*string, error) {
	if clientID == "" {
		return nil, nil
	}
	client, err := d.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return client.SLAPolicyID, nil
}

// GetDefaultPolicy returns the company default effective at now. If several are
// marked default the newest wins.
func (d *Directory) GetDefaultPolicy(ctx context.Context, companyID string, now time.Time) (*domain.SLAPolicy, error) {
	defaults, err := d.policies.ListEffectiveDefaults(ctx, companyID, now)
	if err != nil {
		return nil, err
	}
	if len(defaults) == 0 {
		return nil, nil
	}
	if len(defaults) > 1 {
		ids := make([]string, len(defaults))
		for i, p := range defaults {
			ids[i] = p.ID
		}
		d.logger.Warn("multiple default sla policies",
			zap.String("company_id", companyID),
			zap.Strings("policy_ids", ids),
			zap.String("selected", defaults[0].ID),
		)
	}
	policy := defaults[0]
	return &policy, nil
}
