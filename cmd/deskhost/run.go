package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/bootstrap"
	"github.com/deskhost/deskhost/internal/config"
	"github.com/deskhost/deskhost/internal/diag"
	"github.com/deskhost/deskhost/internal/instance"
	"github.com/deskhost/deskhost/internal/loaders"
	"github.com/deskhost/deskhost/internal/logs"
	"github.com/deskhost/deskhost/internal/loop"
	"github.com/deskhost/deskhost/internal/observability"
	"github.com/deskhost/deskhost/internal/secret"
	"github.com/deskhost/deskhost/internal/updater"
)

const shutdownTimeout = 30 * time.Second

func runHost(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, redactor, err := logs.SetupLogger(cfg.Logging)
	if err != nil {
		return withExitCode(ExitCodeConfigError, fmt.Errorf("failed to setup logger: %w", err))
	}
	logger = logger.With(zap.String("session_id", uuid.NewString()))
	defer func() {
		_ = logger.Sync()
	}()

	settings := config.MergeSettings(config.DefaultSettings(), cfg.SettingsOverride())
	logger.Info("Starting deskhost",
		zap.String("version", version),
		zap.String("app", settings.App.Name),
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("headless", cfg.Headless),
		zap.Bool("dev", settings.IsDev))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lp := loop.New(logger)
	go func() {
		if err := lp.Run(ctx); err != nil {
			logger.Error("Event loop failed", zap.Error(err))
		}
	}()

	store := newLazyStore(cfg.DataDir, logger)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close storage", zap.Error(err))
		}
	}()

	token, source, err := secret.NewResolver(logger).Token(ctx, cfg.Updater.Token)
	if err != nil {
		return withExitCode(ExitCodeConfigError, err)
	}
	if token != "" {
		redactor.RegisterSecret(token)
		logger.Debug("Release feed token configured", zap.String("source", source))
	}

	metrics := observability.NewMetrics(logger)
	h := newHost(logger, settings.App.Name, cfg.Headless)

	feed := updater.NewGitHubFeed(updater.GitHubConfig{
		APIURL: cfg.Updater.APIURL,
		Owner:  cfg.Updater.Owner,
		Repo:   cfg.Updater.Repo,
		Token:  token,
	}, logger)
	installer := &updater.SelfInstaller{
		BinaryName: "deskhost",
		Args:       os.Args[1:],
		Logger:     logger,
	}
	controller := updater.NewController(h, lp, feed, installer, updater.OptionsFromConfig(cfg.Updater), logger,
		updater.WithStore(store),
		updater.WithObserver(metrics),
		updater.WithDownloadDir(filepath.Join(cfg.DataDir, "updates")),
	)

	guard := loaders.NewSingleInstance(h, lp, cfg.DataDir, os.Args, logger,
		loaders.OnSecondInstance(func(instance.Message) { metrics.SecondInstance() }))
	window := loaders.NewWindow(h, lp, loaders.WindowOptionsFromConfig(cfg.WindowLoader), logger)
	lifecycle := loaders.NewAppLifecycle(h, lp, window, logger)

	orchestrator := bootstrap.New(h, lp, cfg.SettingsOverride(), logger,
		bootstrap.WithAppIDPrefix(appIDPrefix),
		bootstrap.WithObserver(metrics),
	).
		Use(guard).
		Use(store.loader()).
		Use(window).
		Use(lifecycle).
		Use(controller)

	server := diag.New(diag.Options{
		Updater: controller,
		History: store,
		Health: observability.NewHealthManager(logger,
			observability.NewDatabaseHealthChecker("storage", store),
			observability.NewLoopHealthChecker(lp),
		),
		Metrics: metrics.Handler(),
		Version: version,
	}, logger)

	// Bootstrap waits for the host, which only becomes ready once Run owns
	// the main thread.
	bootDone := make(chan error, 1)
	go func() {
		_, err := orchestrator.Bootstrap(ctx)
		if err != nil {
			if !isHalt(err) {
				logger.Error("Startup failed", zap.Error(err))
				h.Quit()
			}
			bootDone <- err
			return
		}
		if cfg.DiagListen != "" {
			if err := server.Start(cfg.DiagListen); err != nil {
				logger.Warn("Diagnostics server disabled", zap.Error(err))
			}
		}
		bootDone <- nil
	}()

	if err := h.Run(ctx); err != nil {
		logger.Error("Host stopped with error", zap.Error(err))
	}

	var bootErr error
	select {
	case bootErr = <-bootDone:
	default:
		// the host quit while a loader was still running
		cancel()
		bootErr = <-bootDone
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := guard.Release(); err != nil {
		logger.Warn("Failed to release instance lock", zap.Error(err))
	}
	if bootErr == nil {
		if err := controller.Finalize(shutdownCtx); err != nil {
			logger.Error("Failed to finish pending update", zap.Error(err))
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Diagnostics server shutdown failed", zap.Error(err))
	}

	cancel()
	lp.Wait()
	<-lp.Done()
	logger.Info("Shutdown complete")

	if bootErr != nil && !isHalt(bootErr) {
		return withExitCode(ExitCodeBootstrapError, bootErr)
	}
	return bootErr
}
