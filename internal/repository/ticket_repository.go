package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/msp-sla/internal/domain"
)

// ErrStaleTicket is returned by Update when the ticket was written after it was read.
var ErrStaleTicket = errors.New("ticket changed since it was read")

// TicketFilter captures list parameters.
type TicketFilter struct {
	CompanyID  *string
	ClientID   *string
	AssigneeID *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	OpenOnly   bool
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority, at time.Time) error
	UpdateAssignee(ctx context.Context, id string, assigneeID *string, at time.Time) error
	SetFirstResponse(ctx context.Context, id string, at time.Time) (bool, error)
	SetResolved(ctx context.Context, id string, at time.Time) (bool, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, company_id, client_id, title, category, created_by, assigned_to, status, priority, tags,
               created_at, updated_at, first_response_at, resolved_at, closed_at, version`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (company_id, client_id, title, category, created_by, assigned_to, status, priority, tags)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.CompanyID,
		nullable(ticket.ClientID),
		ticket.Title,
		ticket.Category,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.Status,
		ticket.Priority,
		tagsOrEmpty(ticket.Tags),
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

// Update writes the workflow-mutable fields when the stored version still matches
// ticket.Version, and returns ErrStaleTicket otherwise. first_response_at is never
// written here.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, category=$2, assigned_to=$3, status=$4, priority=$5, tags=$6,
            resolved_at=$7, closed_at=$8, updated_at=NOW(), version=version+1
        WHERE id=$9 AND version=$10
        RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Category,
		ticket.AssignedTo,
		ticket.Status,
		ticket.Priority,
		tagsOrEmpty(ticket.Tags),
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
		ticket.Version,
	).Scan(&ticket.Version, &ticket.UpdatedAt)
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrStaleTicket
	}
	return pgx.ErrNoRows
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CompanyID != nil {
		args = append(args, *filter.CompanyID)
		clauses = append(clauses, fmt.Sprintf("company_id=$%d", len(args)))
	}
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		clauses = append(clauses, fmt.Sprintf("client_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.OpenOnly {
		clauses = append(clauses, "closed_at IS NULL", "resolved_at IS NULL")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d", base, strings.Join(clauses, " AND "), limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority, at time.Time) error {
	const query = `UPDATE tickets SET priority=$1, updated_at=$2, version=version+1 WHERE id=$3`
	return r.execOne(ctx, query, priority, at, id)
}

func (r *ticketRepository) UpdateAssignee(ctx context.Context, id string, assigneeID *string, at time.Time) error {
	const query = `UPDATE tickets SET assigned_to=$1, updated_at=$2, version=version+1 WHERE id=$3`
	return r.execOne(ctx, query, assigneeID, at, id)
}

// SetFirstResponse records the first response once. It reports false when the
// timestamp was already set.
func (r *ticketRepository) SetFirstResponse(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE tickets SET first_response_at=$1, updated_at=$1 WHERE id=$2 AND first_response_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// SetResolved stamps resolved_at once and moves the ticket to RESOLVED.
func (r *ticketRepository) SetResolved(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
        UPDATE tickets SET resolved_at=$1, status=$2, updated_at=$1, version=version+1
        WHERE id=$3 AND resolved_at IS NULL AND closed_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, at, domain.TicketStatusResolved, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		clientID *string
	)
	err := row.Scan(
		&ticket.ID,
		&ticket.CompanyID,
		&clientID,
		&ticket.Title,
		&ticket.Category,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Tags,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.Version,
	)
	if clientID != nil {
		ticket.ClientID = *clientID
	}
	return ticket, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
