// Package main is the entry point for the gateway server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"github.com/campus-social/realtime-gateway/internal/auth"
	"github.com/campus-social/realtime-gateway/internal/config"
	"github.com/campus-social/realtime-gateway/internal/gateway"
	"github.com/campus-social/realtime-gateway/internal/handler"
	"github.com/campus-social/realtime-gateway/internal/hub"
	natsclient "github.com/campus-social/realtime-gateway/internal/nats"
	"github.com/campus-social/realtime-gateway/internal/service"
	"github.com/campus-social/realtime-gateway/internal/store"
	"github.com/campus-social/realtime-gateway/internal/typing"
	applog "github.com/campus-social/realtime-gateway/pkg/logger"
	"github.com/campus-social/realtime-gateway/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := applog.NewForEnv(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting gateway server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "campus-realtime-gateway", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the database
	db, err := store.Open(store.Options{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		LogLevel:     logger.Warn,
	})
	if err != nil {
		return err
	}
	defer store.Close(db)

	if err := store.Migrate(db); err != nil {
		return err
	}

	// Connect to NATS when the journal is enabled
	var (
		journal    *natsclient.Journal
		natsHealth handler.ConnectionChecker
	)
	if cfg.NATSEnabled {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()

		journal = natsclient.NewJournal(natsClient, log)
		if err := journal.EnsureStream(ctx); err != nil {
			return err
		}
		natsHealth = natsClient
	}

	// Repositories
	users := store.NewUserRepository(db)
	messages := store.NewMessageRepository(db)
	conversations := store.NewConversationRepository(db)
	notifications := store.NewNotificationRepository(db)

	// Live state
	h := hub.New(log)
	tracker := typing.NewTracker(h, cfg.TypingTTL, cfg.TypingSweep, log)
	tracker.Start(ctx)
	defer tracker.Stop()

	// Services
	convDeps := service.ConversationDeps{
		Users:         users,
		Messages:      messages,
		Conversations: conversations,
		MaxAttempts:   cfg.MaxUpsertAttempts,
	}
	var notifJournal service.NotificationJournal
	if journal != nil {
		convDeps.Journal = journal
		notifJournal = journal
	}

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	gw := gateway.New(h, tracker, verifier, conversations, gateway.Options{
		SendBuffer:      cfg.SendBuffer,
		EventsPerSecond: cfg.EventsPerSecond,
		EventBurst:      cfg.EventBurst,
	}, log)
	convDeps.Publisher = gw
	conversationSvc := service.NewConversationService(convDeps, log)
	notificationSvc := service.NewNotificationService(notifications, gw, notifJournal, log)

	// Initialize handlers
	router := handler.NewRouter(handler.RouterConfig{
		Logger:            log,
		Verifier:          verifier,
		Users:             users,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Health: handler.NewHealthHandler(handler.PingFunc(func(ctx context.Context) error {
			return store.Ping(ctx, db)
		}), natsHealth),
		Messages:      handler.NewMessageHandler(conversationSvc, log),
		Conversations: handler.NewConversationHandler(conversationSvc, log),
		Notifications: handler.NewNotificationHandler(notificationSvc, log),
		Presence:      handler.NewPresenceHandler(gw),
		Relay:         handler.NewRelayHandler(gw, log),
		Stream:        handler.NewStreamHandler(gw, log),
		WebSocket:     gateway.NewWebSocketHandler(gw, cfg.AllowedOrigins, cfg.HandshakeTimeout, log),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked sockets and open streams are not tracked by Shutdown.
	h.CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
