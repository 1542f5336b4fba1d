// Package main is the entry point for the event reminder server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/event-reminder/backend/internal/api"
	"github.com/event-reminder/backend/internal/bot"
	"github.com/event-reminder/backend/internal/clock"
	"github.com/event-reminder/backend/internal/config"
	"github.com/event-reminder/backend/internal/dispatch"
	"github.com/event-reminder/backend/internal/events"
	"github.com/event-reminder/backend/internal/notify"
	"github.com/event-reminder/backend/internal/occurrence"
	"github.com/event-reminder/backend/internal/roles"
	"github.com/event-reminder/backend/internal/session"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/telegram"
	"github.com/event-reminder/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	envFile := flag.String("env", ".env", "Optional .env file with secrets")
	addr := flag.String("addr", "", "HTTP server address (overrides config)")
	dataDir := flag.String("data", "", "Data directory for SQLite database (overrides config)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		target := *addr
		if target == "" {
			target = config.DefaultConfig().Listen
		}
		if err := runHealthCheck(target); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "loading environment: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}
	logger.Info("starting event reminder", "version", version, "timezone", cfg.Timezone)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %q: %w", cfg.DataDir, err)
	}
	db, err := storage.NewDB(filepath.Join(cfg.DataDir, "reminders.db"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	applied, err := storage.RunMigrations(ctx, db)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database migrations complete", "applied", applied)

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run(ctx)
	broadcaster := websocket.NewEventBroadcaster(hub)

	store := storage.NewStore(db)
	clk := clock.NewWall(cfg.Location())

	resolver := notify.NewResolver(store, clk)
	auth := roles.NewGroupAuthorizer(store, cfg.IsSuperadmin)
	roleManager := roles.NewManager(store, resolver, auth, broadcaster)
	eventService := events.NewService(store, resolver, roleManager, broadcaster)
	materializer := occurrence.NewMaterializer(store, resolver, clk, broadcaster)

	gateway := telegram.NewClient(telegram.Config{
		APIURL: cfg.Telegram.APIURL,
		Token:  cfg.Telegram.Token,
	}, telegram.NewStoreDirectory(store))
	if cfg.Telegram.Token == "" {
		logger.Warn("BOT_TOKEN not set; reminders will fail to send")
	} else if me, err := gateway.GetMe(ctx); err != nil {
		logger.Warn("telegram bot check failed", "error", err)
	} else {
		logger.Info("telegram bot ready", "username", me.Username)
	}

	dispatcher := dispatch.NewDispatcher(store, gateway, clk, broadcaster, logger)
	sessions := session.NewStore(clk, session.DefaultTTL)
	conversation := bot.NewConversation(bot.Deps{
		Store:    store,
		Roles:    roleManager,
		Events:   eventService,
		Resolver: resolver,
		Notifier: dispatcher,
		Sessions: sessions,
		Auth:     auth,
	})

	// Catch up on templates before the first tick
	if n, err := materializer.MaterializeAll(ctx); err != nil {
		logger.Warn("initial materialization failed", "error", err)
	} else {
		logger.Info("initial materialization complete", "events", n)
	}

	scheduler := dispatch.NewScheduler(dispatcher, materializer, cfg.TickSchedule, cfg.MaterializeSchedule, logger)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer scheduler.Stop()

	go pruneSessions(ctx, sessions, logger)

	router := api.NewRouter(api.Services{
		DB:           db,
		Store:        store,
		Hub:          hub,
		Clock:        clk,
		Materializer: materializer,
		Resolver:     resolver,
		Roles:        roleManager,
		Events:       eventService,
		Dispatcher:   dispatcher,
		Conversation: conversation,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// pruneSessions drops expired input sessions once a minute.
func pruneSessions(ctx context.Context, sessions *session.Store, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Prune(); n > 0 {
				logger.Debug("pruned input sessions", "count", n)
			}
		}
	}
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
