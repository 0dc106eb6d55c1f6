package models

// UserProfile is the customer information shown to admins next to a conversation.
type UserProfile struct {
	ID        string `db:"id" json:"id"`
	FirstName string `db:"first_name" json:"firstName"`
	LastName  string `db:"last_name" json:"lastName"`
	Email     string `db:"email" json:"email"`
	Phone     string `db:"phone" json:"phone"`
	IsAdmin   bool   `db:"is_admin" json:"isAdmin"`
}
