package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"backcoffee-chat/internal/media"
	"backcoffee-chat/internal/models"
	"backcoffee-chat/internal/repositories"
)

var (
	ErrNoActiveTicket       = errors.New("no open support ticket")
	ErrTicketMismatch       = errors.New("ticket is not the active support ticket")
	ErrSalesTicket          = errors.New("sales messages cannot reference a ticket")
	ErrInvalidCategory      = errors.New("invalid chat category")
	ErrAttachmentNotFound   = errors.New("attachment not found")
	ErrInvalidAttachment    = errors.New("invalid attachment")
	ErrInvalidConversations = errors.New("chatCategory must be sales, support or all")
)

// ScopeAll selects both categories in ActiveConversations.
const ScopeAll = "all"

// PresenceLister reports which users currently hold a live connection.
type PresenceLister interface {
	List(ctx context.Context) (map[string]models.Role, error)
}

// ChatService holds the chat rules shared by the relay and the HTTP surface.
type ChatService struct {
	messages repositories.MessageRepository
	tickets  repositories.TicketRepository
	users    repositories.UserRepository
	uploader media.Uploader
	presence PresenceLister
}

// NewChatService constructs ChatService. uploader and presence may be nil.
func NewChatService(messages repositories.MessageRepository, tickets repositories.TicketRepository, users repositories.UserRepository, uploader media.Uploader, presence PresenceLister) *ChatService {
	if uploader == nil {
		uploader = media.Disabled()
	}
	return &ChatService{messages: messages, tickets: tickets, users: users, uploader: uploader, presence: presence}
}

// SetPresence replaces the presence source.
func (s *ChatService) SetPresence(presence PresenceLister) {
	s.presence = presence
}

// AppendMessage persists a message. Support messages are attached to the
// user's active open ticket.
func (s *ChatService) AppendMessage(ctx context.Context, userID string, category models.Category, body string, sender models.Role, ticketID *string, attachments []models.Attachment) (models.Message, error) {
	if !category.Valid() {
		return models.Message{}, ErrInvalidCategory
	}
	for _, att := range attachments {
		if err := att.Validate(); err != nil {
			return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidAttachment, err)
		}
	}

	msg := models.Message{
		UserID:      userID,
		Category:    category,
		Body:        body,
		SenderRole:  sender,
		Attachments: attachments,
	}
	switch category {
	case models.CategorySales:
		if ticketID != nil && *ticketID != "" {
			return models.Message{}, ErrSalesTicket
		}
	case models.CategorySupport:
		active, err := s.tickets.FindActiveOpen(ctx, userID)
		if err != nil {
			return models.Message{}, err
		}
		if active == nil {
			return models.Message{}, ErrNoActiveTicket
		}
		if ticketID != nil && *ticketID != "" && *ticketID != active.ID {
			return models.Message{}, ErrTicketMismatch
		}
		id := active.ID
		msg.TicketID = &id
	}
	return s.messages.Append(ctx, msg)
}

func (s *ChatService) ActiveTicket(ctx context.Context, userID string) (*models.Ticket, error) {
	return s.tickets.FindActiveOpen(ctx, userID)
}

// CreateTicket opens a ticket and returns it with the owner's profile when known.
func (s *ChatService) CreateTicket(ctx context.Context, userID, title, description string, priority models.TicketPriority) (models.Ticket, *models.UserProfile, error) {
	if priority == "" {
		priority = models.PriorityMedium
	}
	ticket, err := s.tickets.Create(ctx, userID, title, description, priority)
	if err != nil {
		return models.Ticket{}, nil, err
	}
	return ticket, s.Profile(ctx, userID), nil
}

// ResolveTicket returns nil when userID has no open ticket with that id.
func (s *ChatService) ResolveTicket(ctx context.Context, ticketID, userID string) (*models.Ticket, error) {
	return s.tickets.Resolve(ctx, ticketID, userID)
}

// History returns a message stream. A support request without a ticket id
// reads the active ticket; the returned ticket id is the one queried.
func (s *ChatService) History(ctx context.Context, userID string, category models.Category, ticketID *string) ([]models.Message, *string, error) {
	if !category.Valid() {
		return nil, nil, ErrInvalidCategory
	}
	if category == models.CategorySales {
		msgs, err := s.messages.Query(ctx, userID, category, nil)
		return msgs, nil, err
	}
	if ticketID == nil || *ticketID == "" {
		active, err := s.tickets.FindActiveOpen(ctx, userID)
		if err != nil {
			return nil, nil, err
		}
		if active == nil {
			return []models.Message{}, nil, nil
		}
		id := active.ID
		ticketID = &id
	}
	msgs, err := s.messages.Query(ctx, userID, category, ticketID)
	return msgs, ticketID, err
}

// FullHistory reads stored messages without active-ticket resolution. A nil
// category returns both streams ordered by time.
func (s *ChatService) FullHistory(ctx context.Context, userID string, category *models.Category, ticketID *string) ([]models.Message, error) {
	if category != nil {
		if !category.Valid() {
			return nil, ErrInvalidCategory
		}
		return s.messages.Query(ctx, userID, *category, ticketID)
	}
	var all []models.Message
	for _, c := range []models.Category{models.CategorySales, models.CategorySupport} {
		msgs, err := s.messages.Query(ctx, userID, c, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	if all == nil {
		all = []models.Message{}
	}
	return all, nil
}

// MarkRead flips the read flag on the messages reader has received.
func (s *ChatService) MarkRead(ctx context.Context, userID string, category models.Category, ticketID *string, reader models.Role) (int64, error) {
	if !category.Valid() {
		return 0, ErrInvalidCategory
	}
	if category == models.CategorySales {
		ticketID = nil
	}
	return s.messages.MarkRead(ctx, userID, category, ticketID, reader.Counterpart())
}

// ActiveConversations lists conversations for admins, most recent first.
// Support conversations exist only for users with an open ticket.
func (s *ChatService) ActiveConversations(ctx context.Context, scope string) ([]models.Conversation, error) {
	if scope == "" {
		scope = ScopeAll
	}
	if scope != ScopeAll && !models.Category(scope).Valid() {
		return nil, ErrInvalidConversations
	}
	online := s.online(ctx)
	convs := []models.Conversation{}

	if scope == ScopeAll || scope == string(models.CategorySales) {
		users, err := s.messages.DistinctUsers(ctx, models.CategorySales)
		if err != nil {
			return nil, err
		}
		for _, userID := range users {
			conv, _, err := s.conversation(ctx, userID, models.CategorySales, nil)
			if err != nil {
				return nil, err
			}
			conv.Online = online[userID]
			convs = append(convs, conv)
		}
	}

	if scope == ScopeAll || scope == string(models.CategorySupport) {
		open, err := s.tickets.ListAllOpen(ctx)
		if err != nil {
			return nil, err
		}
		active := latestPerUser(open)
		for _, ticket := range active {
			t := ticket
			conv, _, err := s.conversation(ctx, t.UserID, models.CategorySupport, &t)
			if err != nil {
				return nil, err
			}
			conv.Online = online[t.UserID]
			convs = append(convs, conv)
		}
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastActivity().After(convs[j].LastActivity())
	})
	return convs, nil
}

// ConversationDetail returns one conversation with its messages. For support
// without a ticket id the active ticket is used.
func (s *ChatService) ConversationDetail(ctx context.Context, userID string, category models.Category, ticketID *string) (models.ConversationDetail, error) {
	if !category.Valid() {
		return models.ConversationDetail{}, ErrInvalidCategory
	}
	var ticket *models.Ticket
	if category == models.CategorySupport {
		var err error
		if ticketID != nil && *ticketID != "" {
			ticket, err = s.findTicket(ctx, userID, *ticketID)
		} else {
			ticket, err = s.tickets.FindActiveOpen(ctx, userID)
		}
		if err != nil {
			return models.ConversationDetail{}, err
		}
		if ticket == nil {
			return models.ConversationDetail{}, repositories.ErrTicketNotFound
		}
	}
	conv, msgs, err := s.conversation(ctx, userID, category, ticket)
	if err != nil {
		return models.ConversationDetail{}, err
	}
	conv.Online = s.online(ctx)[userID]
	return models.ConversationDetail{Conversation: conv, Messages: msgs}, nil
}

// PendingTickets lists every open ticket, oldest first, with its owner.
func (s *ChatService) PendingTickets(ctx context.Context) ([]models.PendingTicket, error) {
	open, err := s.tickets.ListAllOpen(ctx)
	if err != nil {
		return nil, err
	}
	online := s.online(ctx)
	profiles := map[string]*models.UserProfile{}
	out := make([]models.PendingTicket, 0, len(open))
	for _, t := range open {
		profile, ok := profiles[t.UserID]
		if !ok {
			profile = s.Profile(ctx, t.UserID)
			profiles[t.UserID] = profile
		}
		out = append(out, models.PendingTicket{Ticket: t, User: profile, Online: online[t.UserID]})
	}
	return out, nil
}

func (s *ChatService) Tickets(ctx context.Context, userID string, status *models.TicketStatus) ([]models.Ticket, error) {
	return s.tickets.List(ctx, userID, status)
}

// Stats counts a user's messages per category and tickets per status.
func (s *ChatService) Stats(ctx context.Context, userID string) (models.ChatStats, error) {
	var stats models.ChatStats
	for _, c := range []models.Category{models.CategorySales, models.CategorySupport} {
		msgs, err := s.messages.Query(ctx, userID, c, nil)
		if err != nil {
			return models.ChatStats{}, err
		}
		unread, err := s.messages.CountUnread(ctx, userID, c, nil, "")
		if err != nil {
			return models.ChatStats{}, err
		}
		cs := models.CategoryStats{Total: len(msgs), Unread: unread}
		if c == models.CategorySales {
			stats.Sales = cs
		} else {
			stats.Support = cs
		}
	}

	tickets, err := s.tickets.List(ctx, userID, nil)
	if err != nil {
		return models.ChatStats{}, err
	}
	for _, t := range tickets {
		switch t.Status {
		case models.TicketOpen:
			stats.OpenTickets++
		case models.TicketResolved:
			stats.ResolvedTickets++
		}
	}
	return stats, nil
}

// ClearHistory deletes a user's messages, optionally only one category.
func (s *ChatService) ClearHistory(ctx context.Context, userID string, category *models.Category) (int64, error) {
	if category != nil && !category.Valid() {
		return 0, ErrInvalidCategory
	}
	return s.messages.DeleteAll(ctx, userID, category)
}

// UploadAttachment validates a file and stores it on the media host.
func (s *ChatService) UploadAttachment(ctx context.Context, filename string, data []byte) (models.Attachment, error) {
	kind, err := media.ValidateFile(filename, data)
	if err != nil {
		return models.Attachment{}, err
	}
	return s.uploader.Upload(ctx, data, filename, kind)
}

func (s *ChatService) Message(ctx context.Context, messageID string) (models.Message, error) {
	return s.messages.Get(ctx, messageID)
}

// RemoveAttachment deletes an attachment from the media host and drops its
// reference from the message.
func (s *ChatService) RemoveAttachment(ctx context.Context, messageID, publicID string) (models.Message, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	var target *models.Attachment
	for i := range msg.Attachments {
		if msg.Attachments[i].PublicID == publicID {
			target = &msg.Attachments[i]
			break
		}
	}
	if target == nil {
		return models.Message{}, ErrAttachmentNotFound
	}

	deleted, err := s.uploader.Delete(ctx, publicID, target.Kind)
	if err != nil {
		return models.Message{}, err
	}
	if !deleted {
		log.Printf("media host had no file public_id=%s message_id=%s", publicID, messageID)
	}
	if err := s.messages.RemoveAttachment(ctx, messageID, publicID); err != nil {
		return models.Message{}, err
	}

	kept := models.Attachments{}
	for _, att := range msg.Attachments {
		if att.PublicID != publicID {
			kept = append(kept, att)
		}
	}
	msg.Attachments = kept
	return msg, nil
}

// Profile returns the user's profile, or nil when it cannot be loaded.
func (s *ChatService) Profile(ctx context.Context, userID string) *models.UserProfile {
	if s.users == nil {
		return nil
	}
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, repositories.ErrUserNotFound) {
			log.Printf("profile lookup failed user_id=%s: %v", userID, err)
		}
		return nil
	}
	return &profile
}

// Online returns the users holding a live connection.
func (s *ChatService) Online(ctx context.Context) (map[string]models.Role, error) {
	if s.presence == nil {
		return map[string]models.Role{}, nil
	}
	return s.presence.List(ctx)
}

func (s *ChatService) online(ctx context.Context) map[string]bool {
	out := map[string]bool{}
	users, err := s.Online(ctx)
	if err != nil {
		log.Printf("presence list failed: %v", err)
		return out
	}
	for userID := range users {
		out[userID] = true
	}
	return out
}

func (s *ChatService) conversation(ctx context.Context, userID string, category models.Category, ticket *models.Ticket) (models.Conversation, []models.Message, error) {
	var ticketID *string
	if ticket != nil {
		id := ticket.ID
		ticketID = &id
	}
	msgs, err := s.messages.Query(ctx, userID, category, ticketID)
	if err != nil {
		return models.Conversation{}, nil, err
	}
	unread, err := s.messages.CountUnread(ctx, userID, category, ticketID, models.RoleCustomer)
	if err != nil {
		return models.Conversation{}, nil, err
	}
	conv := models.Conversation{
		UserID:        userID,
		Category:      category,
		Ticket:        ticket,
		User:          s.Profile(ctx, userID),
		UnreadCount:   unread,
		TotalMessages: len(msgs),
	}
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		conv.LastMessage = &last
	}
	return conv, msgs, nil
}

func (s *ChatService) findTicket(ctx context.Context, userID, ticketID string) (*models.Ticket, error) {
	tickets, err := s.tickets.List(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		if tickets[i].ID == ticketID {
			return &tickets[i], nil
		}
	}
	return nil, nil
}

// latestPerUser keeps the most recently opened ticket of each user.
func latestPerUser(open []models.Ticket) []models.Ticket {
	latest := map[string]models.Ticket{}
	var order []string
	for _, t := range open {
		prev, ok := latest[t.UserID]
		if !ok {
			order = append(order, t.UserID)
		}
		if !ok || t.OpenedAt.After(prev.OpenedAt) {
			latest[t.UserID] = t
		}
	}
	out := make([]models.Ticket, 0, len(order))
	for _, userID := range order {
		out = append(out, latest[userID])
	}
	return out
}
