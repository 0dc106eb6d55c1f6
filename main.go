package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"backcoffee-chat/internal/auth"
	"backcoffee-chat/internal/config"
	"backcoffee-chat/internal/db"
	"backcoffee-chat/internal/handlers"
	"backcoffee-chat/internal/kafka"
	"backcoffee-chat/internal/media"
	"backcoffee-chat/internal/middleware"
	"backcoffee-chat/internal/observability"
	"backcoffee-chat/internal/presence"
	"backcoffee-chat/internal/rabbitmq"
	"backcoffee-chat/internal/repositories"
	"backcoffee-chat/internal/services"
	"backcoffee-chat/internal/telemetry"
	"backcoffee-chat/internal/ws"
)

const auditRoutingKey = "audit.chat"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	database, err := db.Connect(cfg.DSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := newPublisher(cfg)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment)

	messageRepo := repositories.NewMessageRepo(database)
	ticketRepo := repositories.NewTicketRepo(database)
	userRepo := repositories.NewUserRepo(database)

	uploader := media.Disabled()
	if cfg.CloudinaryCloudName != "" {
		cld, err := media.NewCloudinaryUploader(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Printf("media uploads disabled: %v", err)
		} else {
			uploader = cld
		}
	}

	chat := services.NewChatService(messageRepo, ticketRepo, userRepo, uploader, nil)
	var registry *ws.Registry
	if cfg.RedisAddr != "" {
		client, err := presence.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer client.Close()
		online := presence.NewRedisPresence(client)
		if err := online.Reset(ctx); err != nil {
			log.Printf("presence reset failed: %v", err)
		}
		registry = ws.NewRegistry(online)
		chat.SetPresence(online)
	} else {
		registry = ws.NewRegistry(nil)
		chat.SetPresence(registry)
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	authn := auth.NewAuthenticator(verifier, userRepo)
	var wsAuthn ws.Authenticator
	if verifier.Enabled() {
		wsAuthn = authn
	} else {
		log.Printf("JWT_SECRET not set, HTTP API rejects every token and websocket roles are trusted")
	}

	relay := ws.NewRelay(registry, chat, audit)
	monitor := ws.NewMonitor(registry, cfg.HeartbeatInterval)
	go monitor.Run(ctx)

	chatWS := ws.NewHandler(registry, relay, wsAuthn, ws.HandlerOptions{
		RequireAuth: cfg.WSRequireAuth,
		RateLimit:   cfg.WSRateLimit,
		RateBurst:   cfg.WSRateBurst,
	})
	chatHandler := handlers.NewChatHandler(chat, audit)

	router := gin.Default()

	// middlewares
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})
	router.GET("/metrics", observability.MetricsHandler())
	router.GET("/ws", chatWS.Handle)

	authMiddleware := middleware.AuthMiddleware(authn)
	api := router.Group("/api/chat", authMiddleware)
	api.GET("/history/:user_id", chatHandler.GetHistory)
	api.GET("/tickets/:user_id", chatHandler.ListTickets)
	api.GET("/tickets/:user_id/active", chatHandler.ActiveTicket)
	api.GET("/stats/:user_id", chatHandler.GetStats)
	api.POST("/attachments", chatHandler.UploadAttachment)
	api.DELETE("/attachments/:message_id/*public_id", chatHandler.RemoveAttachment)

	admin := api.Group("", middleware.AdminOnly())
	admin.DELETE("/history/:user_id", chatHandler.ClearHistory)
	admin.GET("/admin/conversations", chatHandler.ActiveConversations)
	admin.GET("/admin/conversations/:user_id", chatHandler.ConversationDetail)
	admin.GET("/admin/tickets/pending", chatHandler.PendingTickets)
	admin.POST("/admin/mark-read", chatHandler.MarkRead)
	admin.GET("/admin/online", chatHandler.Online)

	handlers.RegisterDebugRoutes(router, audit, registry, monitor, cfg.DebugRoutes)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()
	log.Printf("chat relay listening port=%s events=%s", cfg.Port, cfg.EventsBackend)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	for _, conn := range registry.Connections() {
		_ = conn.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}

func newPublisher(cfg config.Config) rabbitmq.Publisher {
	switch cfg.EventsBackend {
	case "kafka":
		p, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
		if err == nil {
			return p
		}
		log.Printf("kafka disabled, using noop: %v", err)
		return rabbitmq.NewPublisher("", cfg.AMQPExchange)
	case "none":
		return rabbitmq.NewPublisher("", cfg.AMQPExchange)
	default:
		p := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		log.Printf("event publisher mode=%s reason=%s", rabbitmq.PublisherMode(p), rabbitmq.PublisherNoopReason(p))
		return p
	}
}
