package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/set-night/llmgate"
	"github.com/set-night/llmgate/internal/callback"
	"github.com/set-night/llmgate/internal/config"
	"github.com/set-night/llmgate/internal/envelope"
	"github.com/set-night/llmgate/internal/handler"
	"github.com/set-night/llmgate/internal/middleware"
	"github.com/set-night/llmgate/internal/provider"
	"github.com/set-night/llmgate/internal/repository"
	"github.com/set-night/llmgate/internal/service"
	"github.com/set-night/llmgate/internal/telegram"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("gateway stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Callback crypto
	keyring, err := newKeyring(cfg)
	if err != nil {
		return err
	}

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(llmgate.MigrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		return err
	}

	store := repository.NewStore(pool)
	if err := store.Initialize(ctx, cfg.AdminAccount); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	// Alerts
	alerts := service.MultiAlertSink{service.LogAlertSink{}}
	var tgAlerts *telegram.AlertSink
	if cfg.TelegramAlertsEnabled() {
		b, err := bot.New(cfg.LogTelegramBotToken, bot.WithSkipGetMe())
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		tgAlerts = telegram.NewAlertSink(b, cfg)
		alerts = append(alerts, tgAlerts)
	}

	// Initialize services
	catalog := service.NewCatalog(store, config.CatalogCacheTTL)
	conversations := service.NewConversationManager(store, cfg.ConversationIdleTimeout)
	billing := service.NewBillingLedger(store)
	messages := service.NewMessageLog(store)
	guests := service.NewGuestService(store, alerts)
	admin := service.NewAdminConsole(store, catalog, billing, conversations, messages, alerts)

	gateway := service.NewGateway(service.GatewayDeps{
		Verifier:      keyring,
		Store:         store,
		Catalog:       catalog,
		Guests:        guests,
		Conversations: conversations,
		Billing:       billing,
		Messages:      messages,
		Admin:         admin,
		Provider:      provider.NewOpenAIClient(cfg.ProviderAPIKey, cfg.ProviderAPIType, cfg.ProviderEndpoint),
		Alerts:        alerts,
	}, service.GatewayConfig{
		ProviderTimeout: cfg.ProviderTimeout,
		ContextWindow:   cfg.ContextWindowMessages,
	})

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.Logging(), middleware.Recover())
	handler.New(handler.Deps{
		Verifier: keyring,
		Gateway:  gateway,
		Store:    store,
	}).Register(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting http server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Forget nonces old enough that their timestamps fail the skew check
	g.Go(func() error {
		every(gctx, config.NonceCleanupInterval, func(ctx context.Context) {
			n, err := store.PurgeNonces(ctx, time.Now().Add(-cfg.NonceTTL()))
			if err != nil {
				slog.Error("purge callback nonces", "error", err)
				return
			}
			if n > 0 {
				slog.Debug("callback nonces purged", "count", n)
			}
		})
		return nil
	})

	g.Go(func() error {
		every(gctx, config.IdleSweepInterval, func(ctx context.Context) {
			if _, err := conversations.CloseIdle(ctx); err != nil {
				slog.Error("close idle conversations", "error", err)
			}
		})
		return nil
	})

	if tgAlerts != nil {
		g.Go(func() error {
			return tgAlerts.Run(gctx)
		})
	}

	return g.Wait()
}

// every runs fn on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func newKeyring(cfg *config.Config) (*callback.Keyring, error) {
	fallback, err := newVerifier(cfg, cfg.CallbackToken, cfg.EncodingAESKey)
	if err != nil {
		return nil, fmt.Errorf("default app: %w", err)
	}
	keyring := callback.NewKeyring(fallback)

	for agentID, app := range cfg.Apps() {
		v, err := newVerifier(cfg, app.Token, app.EncodingAESKey)
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", agentID, err)
		}
		keyring.Add(agentID, v)
		slog.Info("registered app credentials", "agent_id", agentID)
	}
	return keyring, nil
}

func newVerifier(cfg *config.Config, token, aesKey string) (*callback.Verifier, error) {
	key, err := envelope.ParseKey(aesKey)
	if err != nil {
		return nil, fmt.Errorf("parse AES key: %w", err)
	}
	cipher, err := envelope.New(key, cfg.CorpID)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return callback.NewVerifier(token, cipher, cfg.TimestampSkew), nil
}
