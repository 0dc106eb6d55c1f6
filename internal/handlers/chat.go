package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"backcoffee-chat/internal/media"
	"backcoffee-chat/internal/models"
	"backcoffee-chat/internal/repositories"
	"backcoffee-chat/internal/services"
	"backcoffee-chat/internal/telemetry"
)

// ChatHandler serves chat history, tickets and admin views over HTTP.
type ChatHandler struct {
	chat  *services.ChatService
	audit *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chat *services.ChatService, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{chat: chat, audit: audit}
}

// GetHistory returns a user's messages, optionally one category or ticket.
func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID := c.Param("user_id")
	if !h.canAccess(c, userID) {
		return
	}
	category, ok := categoryQuery(c)
	if !ok {
		return
	}

	ticketID, ok := ticketQuery(c)
	if !ok {
		return
	}

	msgs, err := h.chat.FullHistory(c.Request.Context(), userID, category, ticketID)
	if err != nil {
		writeError(c, err, "failed to load history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "messages": msgs, "count": len(msgs)})
}

// ClearHistory deletes a user's messages. Admin only.
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	userID := c.Param("user_id")
	category, ok := categoryQuery(c)
	if !ok {
		return
	}

	deleted, err := h.chat.ClearHistory(c.Request.Context(), userID, category)
	if err != nil {
		writeError(c, err, "failed to clear history")
		return
	}
	fields := map[string]string{"customer_id": userID}
	if category != nil {
		fields["category"] = string(*category)
	}
	h.audit.Emit(c.Request.Context(), telemetry.ActionHistoryCleared, "chat history cleared", requestIDFromContext(c), userIDFromContext(c), fields)
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// ListTickets returns a user's tickets, newest first.
func (h *ChatHandler) ListTickets(c *gin.Context) {
	userID := c.Param("user_id")
	if !h.canAccess(c, userID) {
		return
	}
	var status *models.TicketStatus
	if raw := c.Query("status"); raw != "" {
		s := models.TicketStatus(raw)
		if !s.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		status = &s
	}

	tickets, err := h.chat.Tickets(c.Request.Context(), userID, status)
	if err != nil {
		writeError(c, err, "failed to load tickets")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

// ActiveTicket returns the user's open ticket, or null.
func (h *ChatHandler) ActiveTicket(c *gin.Context) {
	userID := c.Param("user_id")
	if !h.canAccess(c, userID) {
		return
	}
	ticket, err := h.chat.ActiveTicket(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to load ticket")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket, "hasActiveTicket": ticket != nil})
}

func (h *ChatHandler) GetStats(c *gin.Context) {
	userID := c.Param("user_id")
	if !h.canAccess(c, userID) {
		return
	}
	stats, err := h.chat.Stats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to load stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// UploadAttachment stores the multipart "file" on the media host and returns
// the attachment record to send with a message.
func (h *ChatHandler) UploadAttachment(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > media.MaxVideoSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": media.ErrFileTooLarge.Error()})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}

	att, err := h.chat.UploadAttachment(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		writeError(c, err, "failed to upload attachment")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"attachment": att})
}

// RemoveAttachment deletes one attachment of a message. The public id may
// contain slashes.
func (h *ChatHandler) RemoveAttachment(c *gin.Context) {
	messageID := c.Param("message_id")
	publicID := strings.TrimPrefix(c.Param("public_id"), "/")
	if publicID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "public id is required"})
		return
	}

	msg, err := h.chat.Message(c.Request.Context(), messageID)
	if err != nil {
		writeError(c, err, "failed to load message")
		return
	}
	if !h.canAccess(c, msg.UserID) {
		return
	}

	updated, err := h.chat.RemoveAttachment(c.Request.Context(), messageID, publicID)
	if err != nil {
		writeError(c, err, "failed to remove attachment")
		return
	}
	h.audit.Emit(c.Request.Context(), telemetry.ActionAttachmentRemoved, "attachment removed", requestIDFromContext(c), userIDFromContext(c),
		map[string]string{"message_id": messageID, "public_id": publicID})
	c.JSON(http.StatusOK, gin.H{"message": updated})
}

// ActiveConversations lists conversations for the admin inbox.
func (h *ChatHandler) ActiveConversations(c *gin.Context) {
	scope := c.DefaultQuery("chatCategory", services.ScopeAll)
	convs, err := h.chat.ActiveConversations(c.Request.Context(), scope)
	if err != nil {
		writeError(c, err, "failed to load conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatCategory": scope, "conversations": convs, "count": len(convs)})
}

func (h *ChatHandler) ConversationDetail(c *gin.Context) {
	category := models.Category(c.DefaultQuery("chatCategory", string(models.CategorySales)))
	ticketID, ok := ticketQuery(c)
	if !ok {
		return
	}
	detail, err := h.chat.ConversationDetail(c.Request.Context(), c.Param("user_id"), category, ticketID)
	if err != nil {
		writeError(c, err, "failed to load conversation")
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *ChatHandler) PendingTickets(c *gin.Context) {
	tickets, err := h.chat.PendingTickets(c.Request.Context())
	if err != nil {
		writeError(c, err, "failed to load tickets")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

// MarkRead marks the customer's messages of a stream as read by an admin.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	var req struct {
		UserID   string          `json:"userId" binding:"required"`
		Category models.Category `json:"chatCategory" binding:"required"`
		TicketID *string         `json:"ticketId" binding:"omitempty,uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count, err := h.chat.MarkRead(c.Request.Context(), req.UserID, req.Category, req.TicketID, models.RoleAdmin)
	if err != nil {
		writeError(c, err, "failed to mark messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

// Online lists the users with a live chat connection.
func (h *ChatHandler) Online(c *gin.Context) {
	users, err := h.chat.Online(c.Request.Context())
	if err != nil {
		writeError(c, err, "failed to load online users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// canAccess lets admins through and customers only to their own data.
func (h *ChatHandler) canAccess(c *gin.Context, userID string) bool {
	if isAdmin(c) || userIDFromContext(c) == userID {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "not allowed for this user"})
	return false
}

func categoryQuery(c *gin.Context) (*models.Category, bool) {
	raw := c.Query("chatCategory")
	if raw == "" {
		return nil, true
	}
	category := models.Category(raw)
	if !category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chatCategory"})
		return nil, false
	}
	return &category, true
}

// ticketQuery reads the optional ticketId query parameter. A value that is
// not a UUID is answered with 400.
func ticketQuery(c *gin.Context) (*string, bool) {
	v := c.Query("ticketId")
	if v == "" {
		return nil, true
	}
	if _, err := uuid.Parse(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticketId"})
		return nil, false
	}
	return &v, true
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrInvalidCategory),
		errors.Is(err, services.ErrInvalidConversations),
		errors.Is(err, media.ErrUnsupportedFile),
		errors.Is(err, media.ErrFileTooLarge),
		errors.Is(err, media.ErrEmptyFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrTicketNotFound),
		errors.Is(err, services.ErrAttachmentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, media.ErrDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, media.ErrHost):
		log.Printf("%s: %v", fallback, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": fallback})
	default:
		log.Printf("%s: %v", fallback, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
