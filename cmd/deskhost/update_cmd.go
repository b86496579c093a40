package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/config"
	"github.com/deskhost/deskhost/internal/logs"
	"github.com/deskhost/deskhost/internal/secret"
	"github.com/deskhost/deskhost/internal/storage"
	"github.com/deskhost/deskhost/internal/updater"
)

const updateCheckTimeout = 60 * time.Second

func newUpdateCommand() *cobra.Command {
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Inspect application updates",
	}
	updateCmd.AddCommand(newUpdateCheckCommand())
	updateCmd.AddCommand(newUpdateHistoryCommand())
	return updateCmd
}

func newUpdateCheckCommand() *cobra.Command {
	var prerelease bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Query the release feed without downloading anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, redactor, err := logs.SetupCommandLogger(false, logLevel, false, "")
			if err != nil {
				return fmt.Errorf("failed to setup logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), updateCheckTimeout)
			defer cancel()

			token, _, err := secret.NewResolver(logger).Token(ctx, cfg.Updater.Token)
			if err != nil {
				return withExitCode(ExitCodeConfigError, err)
			}
			if token != "" {
				redactor.RegisterSecret(token)
			}

			if cmd.Flags().Changed("prerelease") {
				cfg.Updater.AllowPrerelease = prerelease
			}
			feed := updater.NewGitHubFeed(updater.GitHubConfig{
				APIURL: cfg.Updater.APIURL,
				Owner:  cfg.Updater.Owner,
				Repo:   cfg.Updater.Repo,
				Token:  token,
			}, logger)

			return runUpdateCheck(ctx, cmd.OutOrStdout(), feed, cfg, logger)
		},
	}
	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "Consider prerelease versions")
	return cmd
}

// runUpdateCheck prints the feed's answer for the configured version.
func runUpdateCheck(ctx context.Context, out io.Writer, feed updater.Feed, cfg *config.Config, logger *zap.Logger) error {
	current := strings.TrimPrefix(config.MergeSettings(config.DefaultSettings(), cfg.SettingsOverride()).App.Version, "v")

	release, err := feed.Check(ctx, updater.CheckRequest{
		CurrentVersion:  current,
		AllowPrerelease: cfg.Updater.AllowPrerelease,
	})
	if err != nil {
		d := updater.Classify(err, feed.ReleasesURL())
		fmt.Fprintf(out, "%s\n", d.Summary)
		for _, step := range d.Remediation {
			fmt.Fprintf(out, "  - %s\n", step)
		}
		logger.Debug("Update check failed", zap.String("class", string(d.Class)), zap.Error(err))
		return fmt.Errorf("update check failed: %w", err)
	}

	if release == nil || !updater.IsNewer(release.Version(), current) {
		fmt.Fprintf(out, "Up to date (v%s)\n", current)
		return nil
	}

	fmt.Fprintf(out, "Update available: v%s -> %s\n", current, release.Version())
	if release.HTMLURL != "" {
		fmt.Fprintf(out, "Release notes: %s\n", release.HTMLURL)
	}
	if asset, err := updater.SelectAsset(release, runtime.GOOS, runtime.GOARCH); err == nil {
		fmt.Fprintf(out, "Asset for %s/%s: %s\n", runtime.GOOS, runtime.GOARCH, asset.Name)
	} else {
		fmt.Fprintf(out, "No asset published for %s/%s\n", runtime.GOOS, runtime.GOARCH)
	}
	return nil
}

func newUpdateHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent update cycles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, _, err := logs.SetupCommandLogger(false, logLevel, false, "")
			if err != nil {
				return fmt.Errorf("failed to setup logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			store, err := storage.OpenReadOnly(cfg.DataDir, time.Second, logger.Sugar())
			if errors.Is(err, storage.ErrLocked) {
				return fmt.Errorf("%w; while deskhost runs, query GET /api/v1/update/history on the diagnostics server", err)
			}
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.UpdateHistory(limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of cycles to show")
	return cmd
}

func printHistory(out io.Writer, records []*storage.UpdateRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No update checks recorded")
		return
	}
	for _, r := range records {
		line := fmt.Sprintf("%s  %-12s current=%s", r.CheckedAt.Local().Format(time.DateTime), r.State, r.CurrentVersion)
		if r.LatestVersion != "" {
			line += " latest=" + r.LatestVersion
		}
		if r.ErrorClass != "" {
			line += " error=" + r.ErrorClass
		}
		fmt.Fprintln(out, line)
	}
}
