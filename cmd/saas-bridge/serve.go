package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vipul43/saas-bridge/internal/api"
	"github.com/vipul43/saas-bridge/internal/config"
	"github.com/vipul43/saas-bridge/internal/scheduler"
)

func serveCmd(loadConfig func() *config.Config) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the sync scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := scheduler.New(cfg.Sync, a.syncer, a.tokens)
	if err != nil {
		return err
	}

	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	var licenses api.LicenseLister
	if a.licenses != nil {
		licenses = a.licenses
	}
	if cfg.Teamleader.WebhookSecret == "" {
		log.Warn().Msg("TEAMLEADER_WEBHOOK_SECRET not set, company.deleted webhooks will be refused")
	}
	secureCookies := strings.HasPrefix(cfg.Teamleader.RedirectURI, "https://")
	router := api.NewRouter(a.registry,
		api.NewTeamleaderAPI(a.tokens, a.syncer, cfg.Teamleader.WebhookSecret, secureCookies),
		api.NewWorkspaceAPI(licenses),
	)
	srv := api.NewHTTPServer(cfg.HTTPAddr, router)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	schedDone := make(chan error, 1)
	go func() {
		schedDone <- sched.Start(ctx)
	}()

	httpErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	select {
	case <-sigChan:
		log.Info().Msg("Shutdown signal received")
	case err := <-httpErr:
		cancel()
		return fmt.Errorf("http server failed: %w", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	select {
	case <-shutdownCtx.Done():
		log.Warn().Msg("Shutdown timeout exceeded")
	case err := <-schedDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Scheduler error")
		}
	}

	// Background syncs must finish before storage is closed
	if err := a.syncer.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Sync still running at shutdown, abandoning it")
	}

	log.Info().Msg("Application stopped")
	return nil
}
