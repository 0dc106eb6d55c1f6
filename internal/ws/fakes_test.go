package ws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"backcoffee-chat/internal/models"
	"backcoffee-chat/internal/repositories"
	"backcoffee-chat/internal/services"
)

type fakeConn struct {
	id string

	mu      sync.Mutex
	sent    []any
	closed  bool
	pings   int
	pingErr error
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(envelope any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.sent = append(c.sent, envelope)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

func (c *fakeConn) all() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

func sentOf[T any](c *fakeConn) []T {
	var out []T
	for _, env := range c.all() {
		if v, ok := env.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type memMessages struct {
	mu   sync.Mutex
	seq  int
	rows []models.Message
	err  error
}

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func (m *memMessages) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.Message{}, m.err
	}
	if msg.Category == models.CategorySales && msg.TicketID != nil {
		return models.Message{}, errors.New("sales messages cannot reference a ticket")
	}
	m.seq++
	msg.ID = fmt.Sprintf("m%d", m.seq)
	msg.CreatedAt = baseTime.Add(time.Duration(m.seq) * time.Second)
	if msg.Attachments == nil {
		msg.Attachments = models.Attachments{}
	}
	m.rows = append(m.rows, msg)
	return msg, nil
}

func matchTicket(msg models.Message, ticketID *string) bool {
	if ticketID == nil {
		return true
	}
	return msg.TicketID != nil && *msg.TicketID == *ticketID
}

func (m *memMessages) Query(ctx context.Context, userID string, category models.Category, ticketID *string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []models.Message{}
	for _, msg := range m.rows {
		if msg.UserID == userID && msg.Category == category && matchTicket(msg, ticketID) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memMessages) Get(ctx context.Context, messageID string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.rows {
		if msg.ID == messageID {
			return msg, nil
		}
	}
	return models.Message{}, repositories.ErrMessageNotFound
}

func (m *memMessages) MarkRead(ctx context.Context, userID string, category models.Category, ticketID *string, senderRole models.Role) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i, msg := range m.rows {
		if msg.UserID == userID && msg.Category == category && matchTicket(msg, ticketID) &&
			(senderRole == "" || msg.SenderRole == senderRole) && !msg.Read {
			m.rows[i].Read = true
			n++
		}
	}
	return n, nil
}

func (m *memMessages) DeleteAll(ctx context.Context, userID string, category *models.Category) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []models.Message
	var n int64
	for _, msg := range m.rows {
		if msg.UserID == userID && (category == nil || msg.Category == *category) {
			n++
			continue
		}
		kept = append(kept, msg)
	}
	m.rows = kept
	return n, nil
}

func (m *memMessages) CountUnread(ctx context.Context, userID string, category models.Category, ticketID *string, senderRole models.Role) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.rows {
		if msg.UserID == userID && msg.Category == category && matchTicket(msg, ticketID) &&
			(senderRole == "" || msg.SenderRole == senderRole) && !msg.Read {
			n++
		}
	}
	return n, nil
}

func (m *memMessages) DistinctUsers(ctx context.Context, category models.Category) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, msg := range m.rows {
		if msg.Category == category && !seen[msg.UserID] {
			seen[msg.UserID] = true
			out = append(out, msg.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memMessages) RemoveAttachment(ctx context.Context, messageID string, publicID string) error {
	return nil
}

type memTickets struct {
	mu   sync.Mutex
	seq  int
	rows []models.Ticket
}

func (m *memTickets) Create(ctx context.Context, userID, title, description string, priority models.TicketPriority) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := models.Ticket{
		ID:          fmt.Sprintf("00000000-0000-4000-8000-%012d", m.seq),
		UserID:      userID,
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      models.TicketOpen,
		OpenedAt:    baseTime.Add(time.Duration(m.seq) * time.Minute),
	}
	m.rows = append(m.rows, t)
	return t, nil
}

func (m *memTickets) FindActiveOpen(ctx context.Context, userID string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active *models.Ticket
	for i := range m.rows {
		t := m.rows[i]
		if t.UserID == userID && t.Status == models.TicketOpen && (active == nil || t.OpenedAt.After(active.OpenedAt)) {
			active = &t
		}
	}
	return active, nil
}

func (m *memTickets) Resolve(ctx context.Context, ticketID, userID string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		t := &m.rows[i]
		if t.ID == ticketID && t.UserID == userID && t.Status == models.TicketOpen {
			now := baseTime.Add(time.Hour)
			t.Status = models.TicketResolved
			t.ResolvedAt = &now
			out := *t
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memTickets) List(ctx context.Context, userID string, status *models.TicketStatus) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Ticket{}
	for _, t := range m.rows {
		if t.UserID == userID && (status == nil || t.Status == *status) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTickets) ListAllOpen(ctx context.Context) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Ticket{}
	for _, t := range m.rows {
		if t.Status == models.TicketOpen {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTickets) status(ticketID string) models.TicketStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.rows {
		if t.ID == ticketID {
			return t.Status
		}
	}
	return ""
}

type memUsers map[string]models.UserProfile

func (m memUsers) GetProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	if p, ok := m[userID]; ok {
		return p, nil
	}
	return models.UserProfile{}, repositories.ErrUserNotFound
}

type relayFixture struct {
	registry *Registry
	messages *memMessages
	tickets  *memTickets
	relay    *Relay
}

func newRelayFixture() *relayFixture {
	registry := NewRegistry(nil)
	messages := &memMessages{}
	tickets := &memTickets{}
	users := memUsers{
		"u1": {ID: "u1", FirstName: "Lucia", Email: "lucia@example.com"},
		"a1": {ID: "a1", FirstName: "Admin", IsAdmin: true},
	}
	chat := services.NewChatService(messages, tickets, users, nil, registry)
	relay := NewRelay(registry, chat, nil)
	relay.now = func() time.Time { return baseTime }
	return &relayFixture{registry: registry, messages: messages, tickets: tickets, relay: relay}
}

// open tracks a fresh connection the way the websocket handler does.
func (f *relayFixture) open(id string) *fakeConn {
	conn := newFakeConn(id)
	f.registry.Track(conn, ConnInfo{ConnectedAt: baseTime})
	return conn
}

func (f *relayFixture) dispatch(conn *fakeConn, frame string) {
	f.relay.Dispatch(context.Background(), conn, []byte(frame))
}

func (f *relayFixture) connect(id, userID string, role models.Role) *fakeConn {
	conn := f.open(id)
	f.dispatch(conn, fmt.Sprintf(`{"type":"connect","userId":%q,"role":%q}`, userID, role))
	conn.reset()
	return conn
}
