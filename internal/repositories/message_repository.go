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

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	Append(ctx context.Context, msg models.Message) (models.Message, error)
	Query(ctx context.Context, userID string, category models.Category, ticketID *string) ([]models.Message, error)
	Get(ctx context.Context, messageID string) (models.Message, error)
	MarkRead(ctx context.Context, userID string, category models.Category, ticketID *string, senderRole models.Role) (int64, error)
	DeleteAll(ctx context.Context, userID string, category *models.Category) (int64, error)
	CountUnread(ctx context.Context, userID string, category models.Category, ticketID *string, senderRole models.Role) (int, error)
	DistinctUsers(ctx context.Context, category models.Category) ([]string, error)
	RemoveAttachment(ctx context.Context, messageID string, publicID string) error
}

const messageColumns = `id, user_id, category, ticket_id, body, sender_role, attachments, read, created_at`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append stores a message and returns it as persisted.
func (r *MessageRepo) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.Category == models.CategorySales && msg.TicketID != nil {
		return models.Message{}, errors.New("sales messages cannot reference a ticket")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Attachments == nil {
		msg.Attachments = models.Attachments{}
	}

	var out models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chat_messages (id, user_id, category, ticket_id, body, sender_role, attachments)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+messageColumns,
		msg.ID, msg.UserID, msg.Category, msg.TicketID, msg.Body, msg.SenderRole, msg.Attachments).StructScan(&out)
	if err != nil {
		return models.Message{}, fmt.Errorf("append message: %w", err)
	}
	return out, nil
}

// Query returns a user's messages in a category ordered by creation time.
// A nil ticketID does not filter by ticket.
func (r *MessageRepo) Query(ctx context.Context, userID string, category models.Category, ticketID *string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM chat_messages
        WHERE user_id=$1 AND category=$2
        AND ($3::uuid IS NULL OR ticket_id=$3::uuid)
        ORDER BY created_at ASC`
	msgs := []models.Message{}
	if err := r.db.SelectContext(ctx, &msgs, query, userID, category, ticketID); err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	return msgs, nil
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM chat_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkRead flips the read flag on unread messages of the stream. An empty
// senderRole marks messages from both sides.
func (r *MessageRepo) MarkRead(ctx context.Context, userID string, category models.Category, ticketID *string, senderRole models.Role) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_messages SET read = TRUE
        WHERE user_id=$1 AND category=$2
        AND ($3::uuid IS NULL OR ticket_id=$3::uuid)
        AND ($4 = '' OR sender_role=$4)
        AND read = FALSE`, userID, category, ticketID, senderRole)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.RowsAffected()
}

// DeleteAll removes a user's history, limited to one category when given.
func (r *MessageRepo) DeleteAll(ctx context.Context, userID string, category *models.Category) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE user_id=$1 AND ($2::text IS NULL OR category=$2)`, userID, category)
	if err != nil {
		return 0, fmt.Errorf("delete history: %w", err)
	}
	return res.RowsAffected()
}

// CountUnread counts unread messages of the stream sent by senderRole.
func (r *MessageRepo) CountUnread(ctx context.Context, userID string, category models.Category, ticketID *string, senderRole models.Role) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_messages
        WHERE user_id=$1 AND category=$2
        AND ($3::uuid IS NULL OR ticket_id=$3::uuid)
        AND ($4 = '' OR sender_role=$4)
        AND read = FALSE`, userID, category, ticketID, senderRole)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// DistinctUsers lists users that have at least one message in the category.
func (r *MessageRepo) DistinctUsers(ctx context.Context, category models.Category) ([]string, error) {
	users := []string{}
	if err := r.db.SelectContext(ctx, &users, `SELECT DISTINCT user_id FROM chat_messages WHERE category=$1 ORDER BY user_id`, category); err != nil {
		return nil, fmt.Errorf("distinct users: %w", err)
	}
	return users, nil
}

// RemoveAttachment drops one attachment reference from a message.
func (r *MessageRepo) RemoveAttachment(ctx context.Context, messageID string, publicID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_messages SET attachments = COALESCE(
            (SELECT jsonb_agg(a) FROM jsonb_array_elements(attachments) a WHERE a->>'publicId' <> $2),
            '[]'::jsonb)
        WHERE id=$1`, messageID, publicID)
	if err != nil {
		return fmt.Errorf("remove attachment: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
