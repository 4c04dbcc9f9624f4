package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/assusa/viabot/internal/api"
	"github.com/assusa/viabot/internal/audit"
	"github.com/assusa/viabot/internal/bank/bradesco"
	"github.com/assusa/viabot/internal/bank/sicoob"
	"github.com/assusa/viabot/internal/config"
	"github.com/assusa/viabot/internal/conversation"
	"github.com/assusa/viabot/internal/identifier"
	"github.com/assusa/viabot/internal/ratelimit"
	"github.com/assusa/viabot/internal/secondcopy"
	"github.com/assusa/viabot/internal/sitelink"
	"github.com/assusa/viabot/internal/storage"
	"github.com/assusa/viabot/internal/titles"
	"github.com/assusa/viabot/internal/whatsapp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the viabot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the event log.
	auditStore, err := audit.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer func() {
		if err := auditStore.Close(); err != nil {
			logger.Warn("closing audit store", "error", err)
		}
	}()

	artifacts, err := storage.NewDisk(cfg.Storage.ArtifactDir)
	if err != nil {
		return fmt.Errorf("opening artifact storage: %w", err)
	}

	hasher, err := identifier.NewHasher(cfg.Security.IdentifierPepper)
	if err != nil {
		return fmt.Errorf("initializing identifier hashing: %w", err)
	}

	// One limiter gates inbound messages per identity and outbound calls per
	// bank.
	limiter := ratelimit.New()

	// Bank providers, each admission-gated and capped so one slow bank cannot
	// stall a reply.
	bankTimeout := time.Duration(cfg.Limits.BankTimeoutSeconds) * time.Second
	guard := func(p titles.Provider) titles.Provider {
		return titles.WithTimeout(
			titles.WithRateLimit(p, limiter, cfg.Limits.ProviderCallsPerMin, 60),
			bankTimeout)
	}
	providers := []titles.Provider{
		guard(sicoob.New(sicoob.Options{
			BaseURL:      cfg.Sicoob.BaseURL,
			AuthTokenURL: cfg.Sicoob.AuthTokenURL,
			ClientID:     cfg.Sicoob.ClientID,
			ClientSecret: cfg.Sicoob.ClientSecret,
			ClientNumber: cfg.Sicoob.ClientNumber,
		})),
		guard(bradesco.New(bradesco.Options{
			BaseURL:         cfg.Bradesco.BaseURL,
			APIPrefix:       cfg.Bradesco.APIPrefix,
			ClientID:        cfg.Bradesco.ClientID,
			BeneficiaryCNPJ: cfg.Bradesco.BeneficiaryCNPJ,
		})),
	}

	aggregator := titles.NewAggregator(providers, auditStore)
	pipeline := secondcopy.New(providers, artifacts, auditStore, logger)
	links := sitelink.New(cfg.Site.BaseURL, cfg.Site.TokenSecret,
		time.Duration(cfg.Site.TokenTTLMin)*time.Minute, cfg.Site.TokensEnabled, logger)
	sender := whatsapp.NewClient(whatsapp.Options{
		BaseURL:       cfg.WhatsApp.BaseURL,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AccessToken:   cfg.WhatsApp.AccessToken,
	})

	sessions := conversation.NewMemoryStore(time.Duration(cfg.Limits.SessionTTLSeconds) * time.Second)
	dialogue := conversation.NewRouter(
		sessions,
		limiter,
		conversation.Limits{
			MessagesPerWindow: cfg.Limits.MessagesPerWindow,
			WindowSeconds:     cfg.Limits.WindowSeconds,
			ContactMaxChars:   cfg.Limits.ContactMaxChars,
		},
		hasher,
		aggregator,
		pipeline,
		links,
		sender,
		auditStore,
		artifacts,
		logger,
	)

	// Periodic housekeeping for expired sessions and rate windows.
	maxWindow := cfg.Limits.WindowSeconds
	if maxWindow < 60 {
		maxWindow = 60 // provider windows are per-minute
	}
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions.Sweep()
				limiter.Sweep(maxWindow)
			}
		}
	}()

	handler := api.NewRouter(api.Deps{
		Handler:       dialogue,
		Store:         sessions,
		VerifyToken:   cfg.WhatsApp.VerifyToken,
		AppSecret:     cfg.WhatsApp.AppSecret,
		DevToolsToken: cfg.DevTools.Token,
		Logger:        logger,
	})

	// Operator MCP server over stdio.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:  sessions,
		Finder: aggregator,
		Hasher: hasher,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("MCP stdio server error", "error", err)
		}
	}()
	logger.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("viabot listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
