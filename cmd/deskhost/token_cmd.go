package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/deskhost/deskhost/internal/secret"
)

const keyringTimeout = 30 * time.Second

func newTokenCommand() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the release feed token in the OS keyring",
		Long:  "Store the GitHub token used for release checks in the operating system's keyring (Keychain on macOS, Secret Service on Linux, Credential Manager on Windows).",
	}
	tokenCmd.AddCommand(newTokenSetCommand())
	tokenCmd.AddCommand(newTokenClearCommand())
	tokenCmd.AddCommand(newTokenStatusCommand())
	return tokenCmd
}

func newTokenSetCommand() *cobra.Command {
	var fromEnv string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the token; prompts with hidden input unless --from-env is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var value string
			if fromEnv != "" {
				value = os.Getenv(fromEnv)
				if value == "" {
					return fmt.Errorf("environment variable %s is not set or empty", fromEnv)
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), "Enter token: ")
				v, err := readSecret(cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("failed to read token: %w", err)
				}
				value = v
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), keyringTimeout)
			defer cancel()
			if err := secret.NewResolver(zap.NewNop()).StoreToken(ctx, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token stored in keyring (%s)\n", secret.Mask(value))
			return nil
		},
	}
	cmd.Flags().StringVar(&fromEnv, "from-env", "", "Read the token from this environment variable")
	return cmd
}

func newTokenClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the token from the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), keyringTimeout)
			defer cancel()
			err := secret.NewResolver(zap.NewNop()).DeleteToken(ctx)
			if errors.Is(err, secret.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No token stored")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token removed")
			return nil
		},
	}
}

func newTokenStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which token source the updater would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), keyringTimeout)
			defer cancel()

			value, source, err := secret.NewResolver(zap.NewNop()).Token(ctx, cfg.Updater.Token)
			if err != nil {
				return withExitCode(ExitCodeConfigError, err)
			}
			if value == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No token configured; release checks are anonymous")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token %s from %s\n", secret.Mask(value), source)
			return nil
		},
	}
}

// readSecret reads one line, hiding input when in is a terminal.
func readSecret(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
