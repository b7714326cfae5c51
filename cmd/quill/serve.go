// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

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

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/quillnotes/quill/internal/auth"
	authpg "github.com/quillnotes/quill/internal/auth/postgres"
	"github.com/quillnotes/quill/internal/config"
	"github.com/quillnotes/quill/internal/httpapi"
	"github.com/quillnotes/quill/internal/logging"
	"github.com/quillnotes/quill/internal/mail"
	"github.com/quillnotes/quill/internal/observability"
	"github.com/quillnotes/quill/internal/store"
	"github.com/quillnotes/quill/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP server for registration, login, email verification,
password resets, and API key management.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, autoMigrate)
		},
	}

	// Flag defaults mirror config.Default: the posflag provider fills
	// unset flags into keys the config file left empty.
	defaults := config.Default()
	cmd.Flags().String("server.addr", defaults.Server.Addr, "HTTP listen address")
	cmd.Flags().String("server.metrics_addr", defaults.Server.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("server.base_url", defaults.Server.BaseURL, "external origin for emailed links")
	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")
	cmd.Flags().String("log.format", defaults.Log.Format, "log format (json or text)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "run pending migrations before serving")

	return cmd
}

// loadConfig builds the configuration from the config file and flags, with
// environment fallbacks for the secrets that should stay out of both.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath(), cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Auth.SigningSecret == "" {
		cfg.Auth.SigningSecret = os.Getenv("QUILL_SIGNING_SECRET")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg config.Config, autoMigrate bool) error {
	logging.SetDefault("quill", version, cfg.Log.Format)

	slog.Info("starting quill", "addr", cfg.Server.Addr, "log_format", cfg.Log.Format)

	if autoMigrate {
		migrator, err := store.NewMigrator(cfg.Database.URL)
		if err != nil {
			return oops.Code("MIGRATION_FAILED").Wrap(err)
		}
		if err := migrator.Up(); err != nil {
			_ = migrator.Close()
			return oops.Code("MIGRATION_FAILED").Wrap(err)
		}
		if err := migrator.Close(); err != nil {
			return oops.Code("MIGRATION_FAILED").Wrap(err)
		}
		slog.Info("migrations applied")
	}

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("connected to database")

	accounts := authpg.NewAccountRepository(pool)
	keys := authpg.NewAPIKeyRepository(pool)

	hasher := auth.NewArgon2idHasher()
	bearer, err := auth.NewBearerIssuer([]byte(cfg.Auth.SigningSecret), auth.WithBearerExpiry(cfg.Auth.BearerExpiry))
	if err != nil {
		return err
	}

	tokens := auth.NewTokenService(accounts, auth.WithTokenExpiry(cfg.Auth.TokenExpiry))
	accountSvc := auth.NewAccountService(accounts, tokens, hasher, bearer)
	keySvc := auth.NewAPIKeyService(keys, hasher,
		auth.WithValidationCache(auth.NewValidationCache(auth.ValidationCacheSize, cfg.Auth.CacheTTL)))

	links, err := mail.NewLinkBuilder(cfg.Server.BaseURL)
	if err != nil {
		return err
	}
	mailer := mail.NewLogMailer(slog.Default())

	handlers := httpapi.NewHandlers(accountSvc, keySvc, links, mailer, slog.Default())
	resolver := httpapi.NewResolver(bearer, keySvc)
	router := httpapi.NewRouter(handlers, resolver, slog.Default())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer *observability.Server
	if cfg.Server.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.Server.MetricsAddr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		obsErrChan, obsErr := obsServer.Start()
		if obsErr != nil {
			return obsErr
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	slog.Info("quill ready", "addr", cfg.Server.Addr)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case serveErr := <-errChan:
		return oops.Code("SERVER_FAILED").Wrap(serveErr)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("error stopping http server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors watches a server's error channel and cancels the
// context on error so the whole process shuts down together.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			errutil.LogError(slog.Default().With("server", serverName),
				"server error, triggering shutdown", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
