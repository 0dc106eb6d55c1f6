package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"backcoffee-chat/internal/models"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) Query(ctx context.Context, userID string, category models.Category, ticketID *string) ([]models.Message, error) {
	args := m.Called(ctx, userID, category, ticketID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, userID string, category models.Category, ticketID *string, senderRole models.Role) (int64, error) {
	args := m.Called(ctx, userID, category, ticketID, senderRole)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) DeleteAll(ctx context.Context, userID string, category *models.Category) (int64, error) {
	args := m.Called(ctx, userID, category)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) CountUnread(ctx context.Context, userID string, category models.Category, ticketID *string, senderRole models.Role) (int, error) {
	args := m.Called(ctx, userID, category, ticketID, senderRole)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) DistinctUsers(ctx context.Context, category models.Category) ([]string, error) {
	args := m.Called(ctx, category)
	var list []string
	if val := args.Get(0); val != nil {
		list = val.([]string)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) RemoveAttachment(ctx context.Context, messageID string, publicID string) error {
	args := m.Called(ctx, messageID, publicID)
	return args.Error(0)
}

type TicketRepositoryMock struct {
	mock.Mock
}

func (m *TicketRepositoryMock) Create(ctx context.Context, userID, title, description string, priority models.TicketPriority) (models.Ticket, error) {
	args := m.Called(ctx, userID, title, description, priority)
	var out models.Ticket
	if val := args.Get(0); val != nil {
		out = val.(models.Ticket)
	}
	return out, args.Error(1)
}

func (m *TicketRepositoryMock) FindActiveOpen(ctx context.Context, userID string) (*models.Ticket, error) {
	args := m.Called(ctx, userID)
	var out *models.Ticket
	if val := args.Get(0); val != nil {
		out = val.(*models.Ticket)
	}
	return out, args.Error(1)
}

func (m *TicketRepositoryMock) Resolve(ctx context.Context, ticketID, userID string) (*models.Ticket, error) {
	args := m.Called(ctx, ticketID, userID)
	var out *models.Ticket
	if val := args.Get(0); val != nil {
		out = val.(*models.Ticket)
	}
	return out, args.Error(1)
}

func (m *TicketRepositoryMock) List(ctx context.Context, userID string, status *models.TicketStatus) ([]models.Ticket, error) {
	args := m.Called(ctx, userID, status)
	var list []models.Ticket
	if val := args.Get(0); val != nil {
		list = val.([]models.Ticket)
	}
	return list, args.Error(1)
}

func (m *TicketRepositoryMock) ListAllOpen(ctx context.Context) ([]models.Ticket, error) {
	args := m.Called(ctx)
	var list []models.Ticket
	if val := args.Get(0); val != nil {
		list = val.([]models.Ticket)
	}
	return list, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	args := m.Called(ctx, userID)
	var out models.UserProfile
	if val := args.Get(0); val != nil {
		out = val.(models.UserProfile)
	}
	return out, args.Error(1)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, data []byte, filename string, kind models.AttachmentKind) (models.Attachment, error) {
	args := m.Called(ctx, data, filename, kind)
	var out models.Attachment
	if val := args.Get(0); val != nil {
		out = val.(models.Attachment)
	}
	return out, args.Error(1)
}

func (m *UploaderMock) Delete(ctx context.Context, publicID string, kind models.AttachmentKind) (bool, error) {
	args := m.Called(ctx, publicID, kind)
	return args.Bool(0), args.Error(1)
}

type PresenceMock struct {
	mock.Mock
}

func (m *PresenceMock) List(ctx context.Context) (map[string]models.Role, error) {
	args := m.Called(ctx)
	var out map[string]models.Role
	if val := args.Get(0); val != nil {
		out = val.(map[string]models.Role)
	}
	return out, args.Error(1)
}
