package models

import "time"

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketResolved TicketStatus = "resolved"
)

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	return s == TicketOpen || s == TicketResolved
}

// TicketPriority ranks support tickets for admins.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Ticket is a customer support issue ("asunto"). Resolved is terminal.
type Ticket struct {
	ID          string         `db:"id" json:"id"`
	UserID      string         `db:"user_id" json:"userId"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Priority    TicketPriority `db:"priority" json:"priority"`
	Status      TicketStatus   `db:"status" json:"status"`
	OpenedAt    time.Time      `db:"opened_at" json:"openedAt"`
	ResolvedAt  *time.Time     `db:"resolved_at" json:"resolvedAt"`
}
