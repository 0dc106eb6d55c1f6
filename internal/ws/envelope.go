package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"backcoffee-chat/internal/models"
)

// Inbound envelope types.
const (
	TypeConnect             = "connect"
	TypeSendMessage         = "send_message"
	TypeRequestHistory      = "request_history"
	TypeCreateTicket        = "create_ticket"
	TypeResolveTicket       = "resolve_ticket"
	TypeMarkRead            = "mark_read"
	TypeActiveConversations = "request_active_conversations"
	TypeCompleteOrder       = "complete_order"
)

// Outbound envelope types.
const (
	TypeConnectionAck      = "connection_ack"
	TypeMessageAck         = "message_ack"
	TypeNewMessage         = "new_message"
	TypeHistory            = "history"
	TypeTicketAck          = "ticket_ack"
	TypeNewTicket          = "new_ticket"
	TypeResolutionAck      = "resolution_ack"
	TypeTicketResolved     = "ticket_resolved"
	TypeMarkReadAck        = "mark_read_ack"
	TypeActiveConvList     = "active_conversations"
	TypeOrderCompletionAck = "order_completion_ack"
	TypeOrderCompleted     = "order_completed"
	TypeError              = "error"
)

// ProtocolError is an envelope the relay refuses; Message is sent back to the client.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string { return e.Message }

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Message: fmt.Sprintf(format, args...)}
}

// Inbound is implemented by every envelope a client may send.
type Inbound interface {
	EnvelopeType() string
}

type ConnectEnvelope struct {
	UserID string      `json:"userId" validate:"required"`
	Role   models.Role `json:"role" validate:"required,oneof=customer admin"`
}

type SendMessageEnvelope struct {
	UserID      string              `json:"userId" validate:"required"`
	Category    models.Category     `json:"chatCategory" validate:"required,oneof=sales support"`
	Body        string              `json:"body" validate:"required"`
	TicketID    *string             `json:"ticketId" validate:"omitempty,uuid"`
	Role        models.Role         `json:"role" validate:"omitempty,oneof=customer admin"`
	Attachments []models.Attachment `json:"attachments"`
}

type RequestHistoryEnvelope struct {
	UserID   string          `json:"userId" validate:"required"`
	Category models.Category `json:"chatCategory" validate:"required,oneof=sales support"`
	TicketID *string         `json:"ticketId" validate:"omitempty,uuid"`
}

type CreateTicketEnvelope struct {
	UserID      string                `json:"userId" validate:"required"`
	Title       string                `json:"title" validate:"required"`
	Description string                `json:"description" validate:"required"`
	Priority    models.TicketPriority `json:"priority" validate:"omitempty,oneof=low medium high"`
}

type ResolveTicketEnvelope struct {
	UserID   string `json:"userId" validate:"required"`
	TicketID string `json:"ticketId" validate:"required"`
}

type MarkReadEnvelope struct {
	UserID   string          `json:"userId" validate:"required"`
	Category models.Category `json:"chatCategory" validate:"required,oneof=sales support"`
	TicketID *string         `json:"ticketId" validate:"omitempty,uuid"`
}

type ActiveConversationsEnvelope struct {
	Category string `json:"chatCategory" validate:"omitempty,oneof=sales support all"`
}

type CompleteOrderEnvelope struct {
	UserID  string `json:"userId" validate:"required"`
	OrderID string `json:"orderId" validate:"required"`
}

func (*ConnectEnvelope) EnvelopeType() string             { return TypeConnect }
func (*SendMessageEnvelope) EnvelopeType() string         { return TypeSendMessage }
func (*RequestHistoryEnvelope) EnvelopeType() string      { return TypeRequestHistory }
func (*CreateTicketEnvelope) EnvelopeType() string        { return TypeCreateTicket }
func (*ResolveTicketEnvelope) EnvelopeType() string       { return TypeResolveTicket }
func (*MarkReadEnvelope) EnvelopeType() string            { return TypeMarkRead }
func (*ActiveConversationsEnvelope) EnvelopeType() string { return TypeActiveConversations }
func (*CompleteOrderEnvelope) EnvelopeType() string       { return TypeCompleteOrder }

var inboundFactories = map[string]func() Inbound{
	TypeConnect:             func() Inbound { return &ConnectEnvelope{} },
	TypeSendMessage:         func() Inbound { return &SendMessageEnvelope{} },
	TypeRequestHistory:      func() Inbound { return &RequestHistoryEnvelope{} },
	TypeCreateTicket:        func() Inbound { return &CreateTicketEnvelope{} },
	TypeResolveTicket:       func() Inbound { return &ResolveTicketEnvelope{} },
	TypeMarkRead:            func() Inbound { return &MarkReadEnvelope{} },
	TypeActiveConversations: func() Inbound { return &ActiveConversationsEnvelope{} },
	TypeCompleteOrder:       func() Inbound { return &CompleteOrderEnvelope{} },
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeInbound parses one frame into its envelope type and checks required fields.
func DecodeInbound(data []byte) (Inbound, error) {
	var head struct {
		Type string `json:"type"`
		Tipo string `json:"tipo"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, protocolErrorf("malformed envelope")
	}
	kind := head.Type
	if kind == "" {
		kind = head.Tipo
	}
	if kind == "" {
		return nil, protocolErrorf("envelope type is required")
	}

	factory, ok := inboundFactories[kind]
	if !ok {
		return nil, protocolErrorf("unknown envelope type: %s", kind)
	}
	env := factory()
	if err := json.Unmarshal(data, env); err != nil {
		return nil, protocolErrorf("malformed %s envelope: %v", kind, err)
	}
	if err := validate.Struct(env); err != nil {
		return nil, validationError(kind, err)
	}
	return env, nil
}

func validationError(kind string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return protocolErrorf("invalid %s envelope", kind)
	}
	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}
	sort.Strings(missing)
	sort.Strings(invalid)
	if len(missing) > 0 {
		return protocolErrorf("%s requires %s", kind, strings.Join(missing, ", "))
	}
	return protocolErrorf("%s has invalid %s", kind, strings.Join(invalid, ", "))
}

// Header is carried by every outbound envelope.
type Header struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func header(kind string, at time.Time) Header {
	return Header{Type: kind, Timestamp: at.UTC()}
}

type ConnectionAck struct {
	Header
	Success bool        `json:"success"`
	UserID  string      `json:"userId"`
	Role    models.Role `json:"role"`
	Message string      `json:"message"`
}

type MessageAck struct {
	Header
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

type NewMessage struct {
	Header
	Message       models.Message      `json:"message"`
	SenderProfile *models.UserProfile `json:"senderProfile,omitempty"`
}

type History struct {
	Header
	UserID   string           `json:"userId"`
	Category models.Category  `json:"chatCategory"`
	TicketID *string          `json:"ticketId"`
	Messages []models.Message `json:"messages"`
	Count    int              `json:"count"`
}

type TicketAck struct {
	Header
	Success bool          `json:"success"`
	Ticket  models.Ticket `json:"ticket"`
}

type NewTicket struct {
	Header
	Ticket      models.Ticket       `json:"ticket"`
	UserProfile *models.UserProfile `json:"userProfile"`
}

type ResolutionAck struct {
	Header
	Success  bool   `json:"success"`
	TicketID string `json:"ticketId"`
}

type TicketResolved struct {
	Header
	TicketID string `json:"ticketId"`
}

type MarkReadAck struct {
	Header
	Success bool  `json:"success"`
	Count   int64 `json:"count"`
}

type ActiveConversations struct {
	Header
	Category      string                `json:"chatCategory"`
	Count         int                   `json:"count"`
	Conversations []models.Conversation `json:"conversations"`
}

type OrderCompletionAck struct {
	Header
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
}

type OrderCompleted struct {
	Header
	OrderID string `json:"orderId"`
}

type ErrorEnvelope struct {
	Header
	Message string `json:"message"`
}
