package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// StaffRepository handles persistence for staff members.
type StaffRepository interface {
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
	List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error)
	FindSenior(ctx context.Context, companyID, excludeID string, maxCritical int) (*domain.StaffMember, error)
}

// StaffFilter defines query params for staff listing.
type StaffFilter struct {
	CompanyID *string
	Roles     []domain.StaffRole
	Active    *bool
	Limit     int
	Offset    int
}

type staffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(pool *pgxpool.Pool) StaffRepository {
	return &staffRepository{pool: pool}
}

const staffColumns = `s.id, s.company_id, s.name, s.email, s.role, s.active_flag, s.created_at, s.updated_at`

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	query := `SELECT ` + staffColumns + ` FROM staff_members s WHERE s.id=$1`
	staff, err := scanStaff(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return &staff, nil
}

// FindSenior returns the active senior staff member with the fewest open tickets,
// skipping excludeID when set. When maxCritical is positive, members already holding
// that many open CRITICAL tickets are excluded. pgx.ErrNoRows means nobody qualifies.
func (r *staffRepository) FindSenior(ctx context.Context, companyID, excludeID string, maxCritical int) (*domain.StaffMember, error) {
	query := `
        SELECT ` + staffColumns + `
        FROM staff_members s
        LEFT JOIN LATERAL (
            SELECT COUNT(*) AS open_total,
                   COUNT(*) FILTER (WHERE t.priority = 'CRITICAL') AS open_critical
            FROM tickets t
            WHERE t.assigned_to = s.id AND t.closed_at IS NULL AND t.resolved_at IS NULL
        ) load ON TRUE
        WHERE s.company_id=$1 AND s.active_flag AND s.role = ANY($2)
          AND ($3 <= 0 OR load.open_critical < $3)
          AND ($4 = '' OR s.id::text <> $4)
        ORDER BY load.open_total ASC, s.created_at ASC
        LIMIT 1`
	staff, err := scanStaff(r.pool.QueryRow(ctx, query, companyID, roleStrings(domain.SeniorRoles), maxCritical, excludeID))
	if err != nil {
		return nil, err
	}
	return &staff, nil
}

func (r *staffRepository) List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error) {
	query := `SELECT ` + staffColumns + ` FROM staff_members s`
	args := []any{}
	clauses := []string{}

	if filter.CompanyID != nil {
		args = append(args, *filter.CompanyID)
		clauses = append(clauses, fmt.Sprintf("s.company_id=$%d", len(args)))
	}
	if len(filter.Roles) > 0 {
		args = append(args, roleStrings(filter.Roles))
		clauses = append(clauses, fmt.Sprintf("s.role = ANY($%d)", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("s.active_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY s.created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffMember
	for rows.Next() {
		staff, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, staff)
	}
	return result, rows.Err()
}

func scanStaff(row pgx.Row) (domain.StaffMember, error) {
	var staff domain.StaffMember
	err := row.Scan(
		&staff.ID,
		&staff.CompanyID,
		&staff.Name,
		&staff.Email,
		&staff.Role,
		&staff.Active,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	)
	return staff, err
}

func roleStrings(roles []domain.StaffRole) []string {
	out := make([]string, len(roles))
	for i, role := range roles {
		out[i] = string(role)
	}
	return out
}
