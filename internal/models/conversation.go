package models

import "time"

// Conversation is a derived read-model over one user's message stream in a
// category, optionally scoped to a support ticket.
type Conversation struct {
	UserID        string       `json:"userId"`
	Category      Category     `json:"chatCategory"`
	Ticket        *Ticket      `json:"ticket,omitempty"`
	User          *UserProfile `json:"user,omitempty"`
	LastMessage   *Message     `json:"lastMessage,omitempty"`
	UnreadCount   int          `json:"unreadCount"`
	TotalMessages int          `json:"totalMessages"`
	Online        bool         `json:"online"`
}

// LastActivity is the time used to order conversations for admins.
func (c Conversation) LastActivity() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.CreatedAt
	}
	if c.Ticket != nil {
		return c.Ticket.OpenedAt
	}
	return time.Time{}
}

// ConversationDetail is a conversation with its full message stream.
type ConversationDetail struct {
	Conversation
	Messages []Message `json:"messages"`
}

// CategoryStats summarizes one category of a user's chat.
type CategoryStats struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}

// ChatStats summarizes a user's chat activity.
type ChatStats struct {
	Sales           CategoryStats `json:"sales"`
	Support         CategoryStats `json:"support"`
	OpenTickets     int           `json:"openTickets"`
	ResolvedTickets int           `json:"resolvedTickets"`
}

// PendingTicket is an open ticket shown in the admin queue.
type PendingTicket struct {
	Ticket
	User   *UserProfile `json:"user,omitempty"`
	Online bool         `json:"online"`
}
