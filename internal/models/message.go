package models

import "time"

// Category partitions message streams.
type Category string

const (
	CategorySales   Category = "sales"
	CategorySupport Category = "support"
)

// Valid reports whether c is a known chat category.
func (c Category) Valid() bool {
	return c == CategorySales || c == CategorySupport
}

// Role is the side of the conversation a party speaks for.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// Counterpart returns the role on the other side of a conversation.
func (r Role) Counterpart() Role {
	if r == RoleAdmin {
		return RoleCustomer
	}
	return RoleAdmin
}

// Message represents a persisted chat message.
// A sales message never carries a TicketID.
type Message struct {
	ID          string      `db:"id" json:"id"`
	UserID      string      `db:"user_id" json:"userId"`
	Category    Category    `db:"category" json:"chatCategory"`
	TicketID    *string     `db:"ticket_id" json:"ticketId"`
	Body        string      `db:"body" json:"body"`
	SenderRole  Role        `db:"sender_role" json:"senderRole"`
	Attachments Attachments `db:"attachments" json:"attachments"`
	Read        bool        `db:"read" json:"read"`
	CreatedAt   time.Time   `db:"created_at" json:"timestamp"`
}
