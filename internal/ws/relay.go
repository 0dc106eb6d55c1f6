package ws

import (
	"context"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"backcoffee-chat/internal/models"
	"backcoffee-chat/internal/observability"
	"backcoffee-chat/internal/services"
	"backcoffee-chat/internal/telemetry"
)

// Relay dispatches inbound envelopes, persists through the chat service and
// routes the resulting envelopes to live connections.
type Relay struct {
	registry *Registry
	chat     *services.ChatService
	audit    *telemetry.AuditEmitter
	now      func() time.Time
}

func NewRelay(registry *Registry, chat *services.ChatService, audit *telemetry.AuditEmitter) *Relay {
	return &Relay{registry: registry, chat: chat, audit: audit, now: time.Now}
}

// Dispatch handles one frame received on conn. It never returns an error:
// failures are reported to the sender as error envelopes.
func (r *Relay) Dispatch(ctx context.Context, conn Conn, data []byte) {
	env, err := DecodeInbound(data)
	if err != nil {
		observability.IncRelayEnvelope("invalid", "rejected")
		r.sendError(conn, err.Error())
		return
	}
	kind := env.EnvelopeType()

	ctx, span := otel.Tracer("backcoffee-chat/ws").Start(ctx, "relay."+kind)
	defer span.End()
	span.SetAttributes(attribute.String("ws.conn_id", conn.ID()))

	if kind != TypeConnect && r.registry.State(conn.ID()) != StateRegistered {
		observability.IncRelayEnvelope(kind, "rejected")
		r.sendError(conn, "connect before sending "+kind)
		return
	}

	switch e := env.(type) {
	case *ConnectEnvelope:
		err = r.connect(conn, e)
	case *SendMessageEnvelope:
		err = r.sendMessage(ctx, conn, e)
	case *RequestHistoryEnvelope:
		err = r.history(ctx, conn, e)
	case *CreateTicketEnvelope:
		err = r.createTicket(ctx, conn, e)
	case *ResolveTicketEnvelope:
		err = r.resolveTicket(ctx, conn, e)
	case *MarkReadEnvelope:
		err = r.markRead(ctx, conn, e)
	case *ActiveConversationsEnvelope:
		err = r.activeConversations(ctx, conn, e)
	case *CompleteOrderEnvelope:
		err = r.completeOrder(ctx, conn, e)
	default:
		err = protocolErrorf("unknown envelope type: %s", kind)
	}

	if err == nil {
		observability.IncRelayEnvelope(kind, "ok")
		return
	}
	span.RecordError(err)
	var perr *ProtocolError
	if errors.As(err, &perr) {
		observability.IncRelayEnvelope(kind, "rejected")
		r.sendError(conn, perr.Message)
		return
	}
	span.SetStatus(codes.Error, err.Error())
	observability.IncRelayEnvelope(kind, "failed")
	log.Printf("relay %s failed conn_id=%s: %v", kind, conn.ID(), err)
	r.sendError(conn, "could not process "+kind)
}

func (r *Relay) connect(conn Conn, e *ConnectEnvelope) error {
	if info, ok := r.registry.Info(conn.ID()); ok && info.Identity != nil {
		if e.UserID != info.verifiedUserID() {
			return protocolErrorf("userId does not match the authenticated user")
		}
		if e.Role == models.RoleAdmin && !info.Identity.IsAdmin {
			return protocolErrorf("admin role not granted")
		}
	}

	r.registry.Register(e.UserID, e.Role, conn)
	log.Printf("relay connect conn_id=%s user_id=%s role=%s", conn.ID(), e.UserID, e.Role)
	return r.send(conn, ConnectionAck{
		Header:  header(TypeConnectionAck, r.now()),
		Success: true,
		UserID:  e.UserID,
		Role:    e.Role,
		Message: "connected",
	})
}

func (r *Relay) sendMessage(ctx context.Context, conn Conn, e *SendMessageEnvelope) error {
	role, err := r.senderRole(conn.ID(), e.Role)
	if err != nil {
		return err
	}
	if err := r.checkOwner(conn.ID(), role, e.UserID); err != nil {
		return err
	}

	msg, err := r.chat.AppendMessage(ctx, e.UserID, e.Category, e.Body, role, e.TicketID, e.Attachments)
	if err != nil {
		return domainError(err)
	}
	if err := r.send(conn, MessageAck{
		Header:    header(TypeMessageAck, msg.CreatedAt),
		Success:   true,
		MessageID: msg.ID,
	}); err != nil {
		log.Printf("relay ack failed conn_id=%s: %v", conn.ID(), err)
	}

	out := NewMessage{Header: header(TypeNewMessage, r.now()), Message: msg}
	if role == models.RoleCustomer {
		out.SenderProfile = r.chat.Profile(ctx, e.UserID)
		r.broadcastAdmins(conn.ID(), out)
		return nil
	}
	if party, ok := r.registry.ResolveByUser(e.UserID); ok && party.Conn.ID() != conn.ID() {
		r.deliver(party.Conn, out)
	}
	return nil
}

func (r *Relay) history(ctx context.Context, conn Conn, e *RequestHistoryEnvelope) error {
	if err := r.checkOwner(conn.ID(), r.callerRole(conn.ID()), e.UserID); err != nil {
		return err
	}
	msgs, ticketID, err := r.chat.History(ctx, e.UserID, e.Category, e.TicketID)
	if err != nil {
		return domainError(err)
	}
	return r.send(conn, History{
		Header:   header(TypeHistory, r.now()),
		UserID:   e.UserID,
		Category: e.Category,
		TicketID: ticketID,
		Messages: msgs,
		Count:    len(msgs),
	})
}

func (r *Relay) createTicket(ctx context.Context, conn Conn, e *CreateTicketEnvelope) error {
	role := r.callerRole(conn.ID())
	if role != models.RoleCustomer {
		return protocolErrorf("customer role required")
	}
	if err := r.checkOwner(conn.ID(), role, e.UserID); err != nil {
		return err
	}
	ticket, profile, err := r.chat.CreateTicket(ctx, e.UserID, e.Title, e.Description, e.Priority)
	if err != nil {
		return domainError(err)
	}
	if err := r.send(conn, TicketAck{
		Header:  header(TypeTicketAck, r.now()),
		Success: true,
		Ticket:  ticket,
	}); err != nil {
		log.Printf("relay ack failed conn_id=%s: %v", conn.ID(), err)
	}
	r.broadcastAdmins(conn.ID(), NewTicket{
		Header:      header(TypeNewTicket, r.now()),
		Ticket:      ticket,
		UserProfile: profile,
	})
	return nil
}

func (r *Relay) resolveTicket(ctx context.Context, conn Conn, e *ResolveTicketEnvelope) error {
	adminID, err := r.requireAdmin(conn.ID())
	if err != nil {
		return err
	}
	ticket, err := r.chat.ResolveTicket(ctx, e.TicketID, e.UserID)
	if err != nil {
		return err
	}
	if ticket == nil {
		return r.send(conn, ResolutionAck{
			Header:   header(TypeResolutionAck, r.now()),
			Success:  false,
			TicketID: e.TicketID,
		})
	}

	r.auditAction(ctx, conn.ID(), telemetry.ActionTicketResolved, "support ticket resolved", adminID,
		map[string]string{"ticket_id": ticket.ID, "customer_id": ticket.UserID})
	if err := r.send(conn, ResolutionAck{
		Header:   header(TypeResolutionAck, r.now()),
		Success:  true,
		TicketID: ticket.ID,
	}); err != nil {
		log.Printf("relay ack failed conn_id=%s: %v", conn.ID(), err)
	}
	if party, ok := r.registry.ResolveByUser(ticket.UserID); ok {
		r.deliver(party.Conn, TicketResolved{Header: header(TypeTicketResolved, r.now()), TicketID: ticket.ID})
	}
	return nil
}

func (r *Relay) markRead(ctx context.Context, conn Conn, e *MarkReadEnvelope) error {
	reader := r.callerRole(conn.ID())
	if err := r.checkOwner(conn.ID(), reader, e.UserID); err != nil {
		return err
	}
	count, err := r.chat.MarkRead(ctx, e.UserID, e.Category, e.TicketID, reader)
	if err != nil {
		return domainError(err)
	}
	return r.send(conn, MarkReadAck{
		Header:  header(TypeMarkReadAck, r.now()),
		Success: true,
		Count:   count,
	})
}

func (r *Relay) activeConversations(ctx context.Context, conn Conn, e *ActiveConversationsEnvelope) error {
	if _, err := r.requireAdmin(conn.ID()); err != nil {
		return err
	}
	scope := e.Category
	if scope == "" {
		scope = services.ScopeAll
	}
	convs, err := r.chat.ActiveConversations(ctx, scope)
	if err != nil {
		return domainError(err)
	}
	return r.send(conn, ActiveConversations{
		Header:        header(TypeActiveConvList, r.now()),
		Category:      scope,
		Count:         len(convs),
		Conversations: convs,
	})
}

func (r *Relay) completeOrder(ctx context.Context, conn Conn, e *CompleteOrderEnvelope) error {
	adminID, err := r.requireAdmin(conn.ID())
	if err != nil {
		return err
	}
	r.auditAction(ctx, conn.ID(), telemetry.ActionOrderCompleted, "order completion notified", adminID,
		map[string]string{"order_id": e.OrderID, "customer_id": e.UserID})
	if party, ok := r.registry.ResolveByUser(e.UserID); ok {
		r.deliver(party.Conn, OrderCompleted{Header: header(TypeOrderCompleted, r.now()), OrderID: e.OrderID})
	}
	return r.send(conn, OrderCompletionAck{
		Header:  header(TypeOrderCompletionAck, r.now()),
		Success: true,
		OrderID: e.OrderID,
	})
}

// boundRole returns the role of the party connID currently represents.
func (r *Relay) boundRole(connID string) (string, models.Role, bool) {
	userID, ok := r.registry.ResolveUserByConnection(connID)
	if !ok {
		return "", "", false
	}
	party, ok := r.registry.ResolveByUser(userID)
	if !ok || party.Conn.ID() != connID {
		return "", "", false
	}
	return userID, party.Role, true
}

// callerRole is the bound role, or the role of the last connect on a
// superseded connection.
func (r *Relay) callerRole(connID string) models.Role {
	if _, role, ok := r.boundRole(connID); ok {
		return role
	}
	_, role, _ := r.registry.claimed(connID)
	return role
}

// senderRole resolves the role a message is sent as. A connection that lost
// its binding may name its role, but never above the one it connected with.
func (r *Relay) senderRole(connID string, claimed models.Role) (models.Role, error) {
	if _, role, ok := r.boundRole(connID); ok {
		return role, nil
	}
	if !claimed.Valid() {
		return "", protocolErrorf("sender role could not be determined")
	}
	if _, connected, ok := r.registry.claimed(connID); ok && connected == models.RoleCustomer && claimed == models.RoleAdmin {
		return "", protocolErrorf("admin role not granted")
	}
	return claimed, nil
}

// checkOwner stops customers from acting on other users' chats.
func (r *Relay) checkOwner(connID string, role models.Role, userID string) error {
	if role == models.RoleAdmin {
		return nil
	}
	caller, ok := r.registry.ResolveUserByConnection(connID)
	if !ok {
		caller, _, _ = r.registry.claimed(connID)
	}
	if caller != userID {
		return protocolErrorf("customers may only access their own chat")
	}
	return nil
}

func (r *Relay) requireAdmin(connID string) (string, error) {
	userID, role, ok := r.boundRole(connID)
	if !ok || role != models.RoleAdmin {
		return "", protocolErrorf("admin role required")
	}
	return userID, nil
}

func (r *Relay) broadcastAdmins(senderConnID string, envelope any) {
	for _, adminID := range r.registry.ListByRole(models.RoleAdmin) {
		party, ok := r.registry.ResolveByUser(adminID)
		if !ok || party.Conn.ID() == senderConnID {
			continue
		}
		r.deliver(party.Conn, envelope)
	}
}

func (r *Relay) deliver(conn Conn, envelope any) {
	if err := conn.Send(envelope); err != nil {
		log.Printf("relay delivery failed conn_id=%s: %v", conn.ID(), err)
	}
}

func (r *Relay) send(conn Conn, envelope any) error {
	return conn.Send(envelope)
}

func (r *Relay) sendError(conn Conn, message string) {
	r.deliver(conn, ErrorEnvelope{Header: header(TypeError, r.now()), Message: message})
}

func (r *Relay) auditAction(ctx context.Context, connID, action, text, actorID string, fields map[string]string) {
	info, _ := r.registry.Info(connID)
	r.audit.Emit(ctx, action, text, info.RequestID, actorID, fields)
}

// domainError turns chat rule violations into protocol errors; anything else
// is a store failure.
func domainError(err error) error {
	switch {
	case errors.Is(err, services.ErrNoActiveTicket),
		errors.Is(err, services.ErrTicketMismatch),
		errors.Is(err, services.ErrSalesTicket),
		errors.Is(err, services.ErrInvalidCategory),
		errors.Is(err, services.ErrInvalidAttachment),
		errors.Is(err, services.ErrInvalidConversations):
		return &ProtocolError{Message: err.Error()}
	}
	return err
}
