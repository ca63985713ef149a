package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/auth"
	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/database"
	"github.com/ekaya-inc/downtime-engine/pkg/extractor"
	"github.com/ekaya-inc/downtime-engine/pkg/handlers"
	"github.com/ekaya-inc/downtime-engine/pkg/llm"
	"github.com/ekaya-inc/downtime-engine/pkg/logging"
	"github.com/ekaya-inc/downtime-engine/pkg/mcp"
	"github.com/ekaya-inc/downtime-engine/pkg/middleware"
	"github.com/ekaya-inc/downtime-engine/pkg/querybuilder"
	"github.com/ekaya-inc/downtime-engine/pkg/retry"
	"github.com/ekaya-inc/downtime-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(Version)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("db", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("answer_provider", cfg.Answer.Provider),
		zap.Bool("auth_enabled", cfg.Auth.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database, logger); err != nil {
			return err
		}
	}

	store, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (database.Store, error) {
		return database.Open(ctx, cfg.Database, logger)
	})
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}
	defer store.Close()

	builder := querybuilder.NewBuilder(store, querybuilder.ConfigFrom(cfg.Query), logger)
	builder.DetectLookups(ctx)

	exOpts := []extractor.Option{extractor.WithEpsilon(cfg.Extractor.Epsilon)}
	if cfg.Extractor.VocabularyPath != "" {
		vocab, err := extractor.LoadVocabulary(cfg.Extractor.VocabularyPath)
		if err != nil {
			return err
		}
		exOpts = append(exOpts, extractor.WithVocabulary(vocab))
		logger.Info("Vocabulary loaded", zap.String("path", cfg.Extractor.VocabularyPath))
	}
	ex := extractor.New(exOpts...)

	answers, err := llm.NewAnswerClient(cfg.Answer, logger)
	if err != nil {
		return err
	}

	askService := services.NewAskService(ex, builder, store, answers, logger)
	lookupService := services.NewLookupService(builder, store, logger)
	statsService := services.NewStatsService(builder, store, logger)

	var authMiddleware *auth.Middleware
	if cfg.Auth.Enabled {
		jwks, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
			EnableVerification: cfg.Auth.EnableVerification,
			JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize auth: %w", err)
		}
		authMiddleware = auth.NewMiddleware(jwks, logger)
		if !cfg.Auth.EnableVerification {
			logger.Warn("Bearer tokens are accepted without signature verification")
		}
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, store, logger).RegisterRoutes(mux)
	handlers.NewAskHandler(askService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewLookupHandler(lookupService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewStatsHandler(statsService, logger).RegisterRoutes(mux, authMiddleware)

	mcpServer := mcp.NewServer(cfg.Version, mcp.Deps{Store: store, Ask: askService, Stats: statsService}, logger)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, authMiddleware)

	limiter := middleware.NewClientLimiter(cfg.RateLimit)
	if limiter != nil {
		go limiter.Run(ctx)
	}

	var handler http.Handler = mux
	handler = middleware.RateLimiter(limiter, logger)(handler)
	handler = middleware.RequestLogger(logger)(handler)
	handler = cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader, "Mcp-Session-Id"},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	})(handler)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		tlsEnabled := cfg.TLSCertPath != ""
		logger.Info("Starting downtime-engine",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", tlsEnabled),
			zap.String("version", cfg.Version))

		var err error
		if tlsEnabled {
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
