package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/chat"
	"github.com/ragdesk/ragdesk/internal/config"
	"github.com/ragdesk/ragdesk/internal/docsync"
	"github.com/ragdesk/ragdesk/internal/ratelimit"
	"github.com/ragdesk/ragdesk/internal/server"
	"github.com/ragdesk/ragdesk/internal/store"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Long: `Run the chat proxy and admin console.

Pending database migrations are applied on start. The server drains
in-flight requests on SIGINT or SIGTERM; a second signal exits at once.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "listen address (overrides listen_addr)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg

	if err := config.ValidateServe(cfg); err != nil {
		return fmt.Errorf("config is incomplete for serve: %w", err)
	}

	logger := cmdLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	if cfg.Database.Driver == store.DriverSQLite {
		release, err := lockDatabase(cfg.Database.DSN + ".lock")
		if err != nil {
			return err
		}
		defer release()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	auth, err := server.NewEntraAuthenticator(ctx,
		cfg.Microsoft.ClientID, cfg.Microsoft.ClientSecret, cfg.Microsoft.TenantID,
		callbackURL(cfg.BaseURL), a.http)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimitWindow())
	defer limiter.Stop()

	srv := server.New(server.Deps{
		Store:    a.store,
		Tokens:   a.tokens,
		Docs:     docsync.NewCoordinator(a.graph, a.store, a.codec, logger),
		Drive:    server.NewGraphDrive(a.graph),
		Chat:     chat.NewClient(cfg.N8N.WebhookURL, cfg.N8N.BearerToken, a.http, logger),
		Limiter:  limiter,
		Auth:     auth,
		Codec:    a.codec,
		Sessions: server.NewSessionManager(cfg.Session.Secret, cfg.SessionTTL(), cfg.Session.CookieSecure),
		Logger:   logger,
	}, server.Options{
		FolderID:      cfg.OneDrive.FolderID,
		FolderName:    cfg.OneDrive.FolderName,
		RecordHistory: cfg.N8N.RecordHistory,
	})
	defer srv.Close()

	logger.Info("ragdesk starting",
		slog.String("version", version),
		slog.String("base_url", cfg.BaseURL),
		slog.String("driver", cfg.Database.Driver),
		slog.Bool("record_history", cfg.N8N.RecordHistory),
	)

	if err := srv.Run(ctx, cfg.ListenAddr, cfg.ShutdownTimeoutDuration()); err != nil {
		return err
	}

	logger.Info("ragdesk stopped")

	return nil
}

// callbackURL is the OAuth redirect URI registered for the app.
func callbackURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/auth/callback"
}
