// charcord - multi-persona conversation orchestration service
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/charcord/internal/api"
	"github.com/ashureev/charcord/internal/config"
	"github.com/ashureev/charcord/internal/conversation"
	"github.com/ashureev/charcord/internal/domain"
	"github.com/ashureev/charcord/internal/gateway"
	"github.com/ashureev/charcord/internal/provider"
	"github.com/ashureev/charcord/internal/search"
	"github.com/ashureev/charcord/internal/store"
	"github.com/ashureev/charcord/internal/watchdog"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting charcord", "ops_port", cfg.OpsPort)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Backend adapters.
	providers := provider.NewSet()
	providers.Register(domain.BackendOpenAI, provider.NewOpenAIClient())
	providers.Register(domain.BackendKobold, provider.NewKoboldClient())
	providers.Register(domain.BackendHorde, provider.NewHordeClient())
	if cfg.Remote.Endpoint != "" {
		providers.Register(domain.BackendRemote, provider.NewRemoteClient(cfg.Remote.Endpoint, cfg.Remote.AuthToken))
	}

	// Stateless backends search against the character catalog when one is
	// configured.
	var catalog *provider.Catalog
	if cfg.Catalog.URL != "" {
		catalog = provider.NewCatalog(cfg.Catalog.URL)
		providers.RegisterSearcher(domain.BackendOpenAI, catalog)
		providers.RegisterSearcher(domain.BackendKobold, catalog)
		providers.RegisterSearcher(domain.BackendHorde, catalog)
	}

	messenger := gateway.NewClient(cfg.Gateway.APIURL, cfg.Gateway.Token)

	guard := watchdog.New(repo, cfg.RateLimit, cfg.BanDuration)

	var fetcher search.CardFetcher
	if catalog != nil {
		fetcher = catalog
	}
	searchMgr := search.NewManager(providers, repo, messenger, cfg, fetcher)

	controller := conversation.NewController(repo, providers, messenger, guard, searchMgr, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ban and search-session sweeps share one worker.
	guard.StartSweepWorker(ctx, cfg.SweepInterval, searchMgr.Expire)

	// Platform event feed.
	feed := gateway.NewFeed(cfg.Gateway.SocketURL, cfg.Gateway.Token, controller)
	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Event feed stopped", "error", err)
		}
	}()

	// Internal ops surface.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	opsHandler := api.NewHandler(repo, messenger)
	opsHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.OpsPort,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Ops server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Ops server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Service stopped successfully")
}
