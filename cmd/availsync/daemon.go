package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/njoerd114/availsync/internal/api"
	"github.com/njoerd114/availsync/internal/cellcache"
	"github.com/njoerd114/availsync/internal/channelmanager"
	"github.com/njoerd114/availsync/internal/config"
	"github.com/njoerd114/availsync/internal/model"
	"github.com/njoerd114/availsync/internal/push"
	syncp "github.com/njoerd114/availsync/internal/sync"
)

// cacheRetentionDays bounds how far back cached cells are kept.
const cacheRetentionDays = 90

func newDaemonCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync coordinator, push listener and control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDaemon()
		},
	}
}

func (a *app) runDaemon() error {
	logger := a.logger

	// --- Config --------------------------------------------------------------

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	logger.Info("config loaded",
		"api_url", cfg.APIURL,
		"property_id", cfg.PropertyID,
		"push", cfg.Push.Transport,
		"fallback", cfg.FallbackSchedule,
	)

	// --- Telemetry (optional) ------------------------------------------------

	defer a.startTelemetry(cfg)()

	// --- Cell cache ----------------------------------------------------------

	cachePath := cfg.CachePath
	if cachePath == "" {
		if cachePath, err = cellcache.DefaultDBPath(); err != nil {
			return fmt.Errorf("resolving cache path: %w", err)
		}
	}
	store, err := cellcache.Open(cachePath)
	if err != nil {
		return fmt.Errorf("opening cell cache at %q: %w", cachePath, err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("closing cell cache", "error", closeErr)
		}
	}()
	logger.Info("cell cache opened", "path", cachePath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cutoff := model.DateOf(time.Now()).AddDays(-cacheRetentionDays)
	if n, err := store.Prune(ctx, cutoff); err != nil {
		logger.Warn("pruning cell cache", "error", err)
	} else if n > 0 {
		logger.Info("pruned cell cache", "cells", n, "before", cutoff.String())
	}

	// --- Channel manager -----------------------------------------------------

	client, err := newClient(cfg, a)
	if err != nil {
		return err
	}
	logger.Info("pinging channel manager…", "url", cfg.APIURL)
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to channel manager at %q: %w\n\nCheck api_url and api_token in your config file", cfg.APIURL, err)
	}
	logger.Info("channel manager reachable")

	// --- Push channel --------------------------------------------------------

	transport, err := push.NewTransport(cfg.Push.Transport, cfg.PushURL(), cfg.APIToken, logger)
	if err != nil {
		return fmt.Errorf("configuring push channel: %w", err)
	}
	events := push.NewClient(transport, logger)

	// --- Coordinator ---------------------------------------------------------

	opts := coordinatorOptions(cfg)
	if cfg.FallbackEnabled() {
		opts.FallbackSchedule = cfg.FallbackSchedule
	}
	coord, err := syncp.NewCoordinator(client, store, events, opts, logger)
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}

	// --- Control API ---------------------------------------------------------

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(coord, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("control API listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			stop()
		}
	}()

	// --- Run -----------------------------------------------------------------

	logger.Info("daemon starting", "window_days", cfg.Calendar.WindowDays)
	runErr := coord.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("control API shutdown", "error", err)
	}

	select {
	case err := <-srvErr:
		return fmt.Errorf("control API: %w", err)
	default:
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("coordinator: %w", runErr)
	}
	logger.Info("daemon stopped")
	return nil
}

// --- Shared wiring -----------------------------------------------------------

func newClient(cfg *config.Config, a *app) (*channelmanager.Client, error) {
	client, err := channelmanager.NewClient(cfg.APIURL, cfg.APIToken, a.logger,
		channelmanager.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("initialising channel manager client: %w", err)
	}
	return client, nil
}

func coordinatorOptions(cfg *config.Config) syncp.Options {
	return syncp.Options{
		PropertyID: cfg.PropertyID,
		WindowDays: cfg.Calendar.WindowDays,
		WeekStart:  cfg.WeekStartDay(),
		Delays: syncp.Delays{
			EditRefetch:         cfg.Delays.EditRefetch,
			SyncRefetch:         cfg.Delays.SyncRefetch,
			BulkRefetch:         cfg.Delays.BulkRefetch,
			AvailabilityRefetch: cfg.Delays.AvailabilityRefetch,
			SessionDisplay:      cfg.Delays.SessionDisplay,
		},
	}
}
