package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campus-social/realtime-gateway/internal/auth"
	"github.com/campus-social/realtime-gateway/internal/middleware"
	"github.com/campus-social/realtime-gateway/pkg/logger"
)

// Scopes required by collaborator endpoints.
const (
	ScopeNotificationsWrite = "notifications:write"
	ScopeGatewayPublish     = "gateway:publish"
)

// RouterConfig wires handlers into the HTTP surface.
type RouterConfig struct {
	Logger         *logger.Logger
	Verifier       *auth.Verifier
	Users          middleware.UserUpserter
	AllowedOrigins []string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	Health        *HealthHandler
	Messages      *MessageHandler
	Conversations *ConversationHandler
	Notifications *NotificationHandler
	Presence      *PresenceHandler
	Relay         *RelayHandler
	Stream        *StreamHandler
	WebSocket     http.Handler
}

// NewRouter builds the chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// The socket authenticates itself during the handshake, so upgrades are
	// limited per address.
	if cfg.WebSocket != nil {
		r.With(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)).Handle("/ws", cfg.WebSocket)
	}

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Verifier))
		r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		if cfg.Users != nil {
			r.Use(middleware.SyncUser(cfg.Users, cfg.Logger))
		}

		r.Post("/direct-messages", cfg.Messages.Send)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", cfg.Conversations.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/messages", cfg.Conversations.Messages)
				r.Post("/read", cfg.Conversations.MarkRead)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", cfg.Notifications.List)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScope(ScopeNotificationsWrite))
				r.Post("/", cfg.Notifications.Create)
				r.Post("/bulk", cfg.Notifications.CreateBulk)
			})
		})

		r.Get("/presence", cfg.Presence.Online)
		r.Get("/presence/{userId}", cfg.Presence.Get)

		r.With(middleware.RequireScope(ScopeGatewayPublish)).
			Post("/communities/{id}/relay", cfg.Relay.CommunityMessage)

		r.Get("/events/stream", cfg.Stream.Stream)
	})

	return r
}
