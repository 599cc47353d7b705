package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/david/grantmate/internal/ai"
	"github.com/david/grantmate/internal/api"
	"github.com/david/grantmate/internal/auth"
	"github.com/david/grantmate/internal/config"
	"github.com/david/grantmate/internal/db"
	"github.com/david/grantmate/internal/drafting"
	"github.com/david/grantmate/internal/grants"
	"github.com/david/grantmate/internal/linkcheck"
	"github.com/david/grantmate/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	gateway, embedder, err := ai.NewGateway(cfg.LLM)
	if err != nil {
		logger.Fatal("failed to build completion gateway", zap.Error(err))
	}

	jwtSecret, err := auth.ResolveSecret(cfg.JWTSecret, "JWT_SECRET", logger)
	if err != nil {
		logger.Fatal("failed to resolve JWT secret", zap.Error(err))
	}
	adminSecret, err := auth.ResolveSecret(cfg.AdminSecret, "ADMIN_SECRET", logger)
	if err != nil {
		logger.Fatal("failed to resolve admin secret", zap.Error(err))
	}

	drafter, err := drafting.NewDrafter(gateway, ai.DefaultPrompts(), logger.Named("drafting"))
	if err != nil {
		logger.Fatal("failed to build drafter", zap.Error(err))
	}

	srv := api.NewServer(api.Deps{
		Store:       db.NewStore(pool),
		Auth:        auth.NewService(pool, jwtSecret),
		Finder:      grants.NewFinder(gateway, grants.WithLogger(logger.Named("grants"))),
		Drafter:     drafter,
		Links:       linkcheck.New(linkcheck.WithLogger(logger.Named("linkcheck"))),
		Embedder:    embedder,
		AdminSecret: adminSecret,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})

	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.String("llm_model", cfg.LLM.Model),
		)
		if err := srv.Start(cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
