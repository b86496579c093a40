package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/deskhost/deskhost/internal/bootstrap"
	"github.com/deskhost/deskhost/internal/config"
)

const appIDPrefix = bootstrap.DefaultAppIDPrefix

var (
	configFile   string
	dataDir      string
	headlessMode bool
	diagListen   string
	logLevel     string
	logToFile    bool
	logDir       string

	version = "v0.1.0" // injected by -ldflags during release builds
)

func main() {
	rootCmd := newRootCommand()
	err := rootCmd.Execute()
	code := exitCodeFor(err)
	if err != nil && code != ExitCodeSuccess {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code != ExitCodeGeneralError {
			fmt.Fprintf(os.Stderr, "Exit code %d: %s\n", code, exitCodeDescription(code))
		}
	}
	os.Exit(code)
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "deskhost",
		Short:         "Desktop application host with single-instance guard and self-update",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runHost,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (default: <data-dir>/deskhost.yaml)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory path (default: ~/.deskhost)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "Enable logging to file in standard OS location")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Custom log directory path (overrides standard OS location)")
	rootCmd.Flags().BoolVar(&headlessMode, "headless", false, "Run without a GUI; prompts are answered on the terminal")
	rootCmd.Flags().StringVar(&diagListen, "diag-listen", "", "Serve the diagnostics API on this address, e.g. 127.0.0.1:9131")

	rootCmd.AddCommand(newUpdateCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newTokenCommand())

	return rootCmd
}

// loadConfig reads configuration and applies command-line overrides. Errors
// carry ExitCodeConfigError.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, dataDir)
	if err != nil {
		return nil, withExitCode(ExitCodeConfigError, fmt.Errorf("failed to load configuration: %w", err))
	}

	if cfg.Logging == nil {
		cfg.Logging = config.DefaultConfig().Logging
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if flagChanged(cmd.Flags(), "log-to-file") {
		cfg.Logging.EnableFile = logToFile
	}
	if logDir != "" {
		cfg.Logging.LogDir = logDir
	}
	if flagChanged(cmd.Flags(), "headless") {
		cfg.Headless = headlessMode
	}
	if diagListen != "" {
		cfg.DiagListen = diagListen
	}
	if cfg.App.Version == "" {
		cfg.App.Version = strings.TrimPrefix(version, "v")
	}
	return cfg, nil
}

// flagChanged reports whether the user set name; subcommands lack host-only flags.
func flagChanged(flags *pflag.FlagSet, name string) bool {
	f := flags.Lookup(name)
	return f != nil && f.Changed
}

// isHalt reports whether err is the hand-over to an already running instance.
func isHalt(err error) bool {
	return errors.Is(err, bootstrap.ErrHalt)
}
