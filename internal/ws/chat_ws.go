package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"backcoffee-chat/internal/auth"
	"backcoffee-chat/internal/observability"
)

// Authenticator verifies the token presented before the upgrade.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
}

// HandlerOptions tunes the websocket endpoint.
type HandlerOptions struct {
	RequireAuth bool
	RateLimit   float64
	RateBurst   int
}

// Handler accepts chat websocket connections and feeds their frames to the relay.
type Handler struct {
	registry *Registry
	relay    *Relay
	authn    Authenticator
	opts     HandlerOptions
}

// NewHandler constructs a Handler. authn may be nil when tokens are not in use.
func NewHandler(registry *Registry, relay *Relay, authn Authenticator, opts HandlerOptions) *Handler {
	return &Handler{registry: registry, relay: relay, authn: authn, opts: opts}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and starts its read and write loops.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("backcoffee-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, err := auth.BearerToken(c.GetHeader("Authorization"))
	if err != nil {
		token = c.Query("token")
	}

	var identity *auth.Identity
	switch {
	case token != "" && h.authn != nil:
		id, err := h.authn.Authenticate(ctx, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		identity = &id
	case h.opts.RequireAuth:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxMessageSize)

	traceID := span.SpanContext().TraceID().String()
	info := ConnInfo{
		ConnID:      newConnID(),
		Identity:    identity,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.EnsureRequestID(c.Request),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := newClient(info.ConnID, conn)
	h.registry.Track(client, info)
	conn.SetPongHandler(func(string) error {
		h.registry.MarkAlive(client.ID())
		return nil
	})

	// The request context ends with this handler; the loops keep only the trace.
	loopCtx := trace.ContextWithSpanContext(context.Background(), span.SpanContext())

	observability.IncWSActive("chat")
	observability.IncWSEvent("chat", "ws_connect")
	publishWSEvent(loopCtx, "ws_connect", info, info.verifiedUserID(), "")

	go client.writePump()
	go h.readLoop(loopCtx, client, info)
}

func (h *Handler) readLoop(ctx context.Context, client *Client, info ConnInfo) {
	limiter := rate.NewLimiter(h.limit(), h.burst())
	var closeReason string
	defer func() {
		userID, _ := h.registry.ResolveUserByConnection(client.ID())
		if userID == "" {
			userID = info.verifiedUserID()
		}
		h.registry.Untrack(client.ID())
		_ = client.Close()
		observability.DecWSActive("chat")
		observability.IncWSEvent("chat", "ws_disconnect")
		publishWSEvent(ctx, "ws_disconnect", info, userID, closeReason)
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("chat", "ws_error")
				publishWSEvent(ctx, "ws_error", info, info.verifiedUserID(), closeReason)
			}
			return
		}
		if !limiter.Allow() {
			observability.IncRelayEnvelope("rate_limited", "rejected")
			h.relay.sendError(client, "rate limit exceeded")
			continue
		}
		h.relay.Dispatch(ctx, client, data)
	}
}

func (h *Handler) limit() rate.Limit {
	if h.opts.RateLimit <= 0 {
		return rate.Inf
	}
	return rate.Limit(h.opts.RateLimit)
}

func (h *Handler) burst() int {
	if h.opts.RateBurst <= 0 {
		return 1
	}
	return h.opts.RateBurst
}
