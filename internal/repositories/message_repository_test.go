package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backcoffee-chat/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

var messageCols = []string{"id", "user_id", "category", "ticket_id", "body", "sender_role", "attachments", "read", "created_at"}

func TestMessageAppendSupport(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	ticketID := "0b7c2a9e-8d7f-4a57-9d7c-5b1f7c3e2a10"
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO chat_messages")).
		WithArgs(sqlmock.AnyArg(), "u1", models.CategorySupport, &ticketID, "ayuda", models.RoleCustomer, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow("m1", "u1", "support", ticketID, "ayuda", "customer", []byte(`[]`), false, now))

	msg, err := repo.Append(context.Background(), models.Message{
		UserID:     "u1",
		Category:   models.CategorySupport,
		TicketID:   &ticketID,
		Body:       "ayuda",
		SenderRole: models.RoleCustomer,
	})

	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	require.NotNil(t, msg.TicketID)
	assert.Equal(t, ticketID, *msg.TicketID)
	assert.Empty(t, msg.Attachments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageAppendRejectsTicketOnSales(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	ticketID := "t1"

	_, err := repo.Append(context.Background(), models.Message{UserID: "u1", Category: models.CategorySales, TicketID: &ticketID, Body: "x", SenderRole: models.RoleCustomer})

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageQueryOrdersAndScansAttachments(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM chat_messages")).
		WithArgs("u1", models.CategorySales, nil).
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow("m1", "u1", "sales", nil, "hola", "customer", []byte(`[{"url":"u","publicId":"p","kind":"image","size":3}]`), false, now).
			AddRow("m2", "u1", "sales", nil, "buenas", "admin", []byte(`[]`), true, now.Add(time.Second)))

	msgs, err := repo.Query(context.Background(), "u1", models.CategorySales, nil)

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].TicketID)
	require.Len(t, msgs[0].Attachments, 1)
	assert.Equal(t, "p", msgs[0].Attachments[0].PublicID)
	assert.Equal(t, models.RoleAdmin, msgs[1].SenderRole)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM chat_messages WHERE id=$1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(messageCols))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMessageMarkReadReturnsCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE chat_messages SET read = TRUE")).
		WithArgs("u1", models.CategorySales, nil, models.RoleAdmin).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.MarkRead(context.Background(), "u1", models.CategorySales, nil, models.RoleAdmin)

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageDeleteAllByCategory(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	category := models.CategorySupport

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chat_messages")).
		WithArgs("u1", &category).
		WillReturnResult(sqlmock.NewResult(0, 4))

	count, err := repo.DeleteAll(context.Background(), "u1", &category)

	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestMessageCountUnread(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM chat_messages")).
		WithArgs("u1", models.CategorySales, nil, models.RoleCustomer).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountUnread(context.Background(), "u1", models.CategorySales, nil, models.RoleCustomer)

	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMessageDistinctUsers(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT user_id")).
		WithArgs(models.CategorySales).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1").AddRow("u2"))

	users, err := repo.DistinctUsers(context.Background(), models.CategorySales)

	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, users)
}

func TestMessageRemoveAttachmentMissingMessage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE chat_messages SET attachments")).
		WithArgs("m1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.RemoveAttachment(context.Background(), "m1", "p1"), ErrMessageNotFound)
}
