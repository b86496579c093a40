package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/deskhost/deskhost/internal/config"
	"github.com/deskhost/deskhost/internal/secret"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the configuration file",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configFile
			if path == "" {
				p, err := config.DefaultConfigPath(dataDir)
				if err != nil {
					return withExitCode(ExitCodeConfigError, err)
				}
				path = p
			}

			cfg := config.DefaultConfig()
			if err := config.SaveConfig(cfg, path, force); err != nil {
				return withExitCode(ExitCodeConfigError, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (defaults, file and environment merged)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return writeConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

// writeConfig prints cfg as YAML. Token references are printed as written;
// literal tokens are masked.
func writeConfig(out io.Writer, cfg *config.Config) error {
	shown := *cfg
	if shown.Updater.Token != "" && !secret.IsRef(shown.Updater.Token) {
		shown.Updater.Token = secret.Mask(shown.Updater.Token)
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}
