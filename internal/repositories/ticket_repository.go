package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"backcoffee-chat/internal/models"
)

var ErrTicketNotFound = errors.New("ticket not found")

// TicketRepository abstracts support ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, userID, title, description string, priority models.TicketPriority) (models.Ticket, error)
	FindActiveOpen(ctx context.Context, userID string) (*models.Ticket, error)
	Resolve(ctx context.Context, ticketID, userID string) (*models.Ticket, error)
	List(ctx context.Context, userID string, status *models.TicketStatus) ([]models.Ticket, error)
	ListAllOpen(ctx context.Context) ([]models.Ticket, error)
}

const ticketColumns = `id, user_id, title, description, priority, status, opened_at, resolved_at`

// TicketRepo is a sqlx implementation of TicketRepository.
type TicketRepo struct {
	db *sqlx.DB
}

// NewTicketRepo constructs a TicketRepo.
func NewTicketRepo(db *sqlx.DB) *TicketRepo {
	return &TicketRepo{db: db}
}

// Create opens a new ticket for the user.
func (r *TicketRepo) Create(ctx context.Context, userID, title, description string, priority models.TicketPriority) (models.Ticket, error) {
	if priority == "" {
		priority = models.PriorityMedium
	}
	var ticket models.Ticket
	err := r.db.QueryRowxContext(ctx, `INSERT INTO tickets (id, user_id, title, description, priority, status)
        VALUES ($1, $2, $3, $4, $5, 'open') RETURNING `+ticketColumns,
		uuid.NewString(), userID, title, description, priority).StructScan(&ticket)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	return ticket, nil
}

// FindActiveOpen returns the most recently opened open ticket, or nil.
func (r *TicketRepo) FindActiveOpen(ctx context.Context, userID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.GetContext(ctx, &ticket, `SELECT `+ticketColumns+` FROM tickets
        WHERE user_id=$1 AND status='open'
        ORDER BY opened_at DESC LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active ticket: %w", err)
	}
	return &ticket, nil
}

// Resolve moves an open ticket owned by userID to resolved. It returns nil
// when no such open ticket exists.
func (r *TicketRepo) Resolve(ctx context.Context, ticketID, userID string) (*models.Ticket, error) {
	if _, err := uuid.Parse(ticketID); err != nil {
		return nil, nil
	}
	var ticket models.Ticket
	err := r.db.QueryRowxContext(ctx, `UPDATE tickets SET status='resolved', resolved_at=NOW()
        WHERE id=$1 AND user_id=$2 AND status='open'
        RETURNING `+ticketColumns, ticketID, userID).StructScan(&ticket)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve ticket: %w", err)
	}
	return &ticket, nil
}

// List returns the user's tickets, newest first, optionally by status.
func (r *TicketRepo) List(ctx context.Context, userID string, status *models.TicketStatus) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := r.db.SelectContext(ctx, &tickets, `SELECT `+ticketColumns+` FROM tickets
        WHERE user_id=$1 AND ($2::text IS NULL OR status=$2)
        ORDER BY opened_at DESC`, userID, status)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// ListAllOpen returns every open ticket, oldest first.
func (r *TicketRepo) ListAllOpen(ctx context.Context) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	if err := r.db.SelectContext(ctx, &tickets, `SELECT `+ticketColumns+` FROM tickets WHERE status='open' ORDER BY opened_at ASC`); err != nil {
		return nil, fmt.Errorf("list open tickets: %w", err)
	}
	return tickets, nil
}
