package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap/zaptest"

	"github.com/deskhost/deskhost/internal/bootstrap"
	"github.com/deskhost/deskhost/internal/config"
	"github.com/deskhost/deskhost/internal/storage"
	"github.com/deskhost/deskhost/internal/updater"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitCodeSuccess},
		{name: "halt", err: fmt.Errorf("guard: %w", bootstrap.ErrHalt), want: ExitCodeSuccess},
		{name: "halt inside loader error", err: &bootstrap.LoaderError{Loader: "single-instance", Err: bootstrap.ErrHalt}, want: ExitCodeSuccess},
		{name: "loader failure", err: &bootstrap.LoaderError{Loader: "window", Err: errors.New("boom")}, want: ExitCodeBootstrapError},
		{name: "explicit code", err: withExitCode(ExitCodeConfigError, errors.New("bad")), want: ExitCodeConfigError},
		{name: "wrapped explicit code", err: fmt.Errorf("run: %w", withExitCode(ExitCodePanic, errors.New("x"))), want: ExitCodePanic},
		{name: "anything else", err: errors.New("boom"), want: ExitCodeGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
	assert.Nil(t, withExitCode(ExitCodeConfigError, nil))
	assert.Equal(t, "Configuration error", exitCodeDescription(ExitCodeConfigError))
	assert.Equal(t, "Unknown error", exitCodeDescription(42))
}

func TestConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "", "config", "init", "--data-dir", dir)
	require.NoError(t, err)
	path := filepath.Join(dir, config.ConfigFileName)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = execute(t, "", "config", "init", "--data-dir", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCodeConfigError, exitCodeFor(err))

	_, err = execute(t, "", "config", "init", "--data-dir", dir, "--force")
	require.NoError(t, err)

	out, err = execute(t, "", "config", "show", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "check_interval: 1h0m0s")
	assert.Contains(t, out, "theme: dark")
}

func TestConfigShowMasksLiteralToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("updater:\n  token: ghp_literalsecretvalue1234\n"), 0600))

	out, err := execute(t, "", "config", "show", "--data-dir", dir, "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "ghp_literalsecretvalue1234")
	assert.Contains(t, out, "1234")
}

func TestConfigShowInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("updater:\n  check_interval: -1s\n"), 0600))

	_, err := execute(t, "", "config", "show", "--data-dir", dir, "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCodeConfigError, exitCodeFor(err))
}

func TestTokenCommands(t *testing.T) {
	keyring.MockInit()
	for _, name := range []string{"DESKHOST_GITHUB_TOKEN", "GITHUB_TOKEN", "GH_TOKEN"} {
		t.Setenv(name, "")
	}
	dir := t.TempDir()

	out, err := execute(t, "", "token", "status", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "anonymous")

	out, err = execute(t, "ghp_fromstdin0000\n", "token", "set")
	require.NoError(t, err)
	assert.Contains(t, out, "Token stored")
	assert.NotContains(t, out, "ghp_fromstdin0000")

	out, err = execute(t, "", "token", "status", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "keyring:github-token")

	out, err = execute(t, "", "token", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Token removed")

	out, err = execute(t, "", "token", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "No token stored")
}

func TestTokenSetFromEnv(t *testing.T) {
	keyring.MockInit()
	t.Setenv("MY_TOKEN", "")

	_, err := execute(t, "", "token", "set", "--from-env", "MY_TOKEN")
	assert.ErrorContains(t, err, "MY_TOKEN")

	t.Setenv("MY_TOKEN", "secret-value")
	_, err = execute(t, "", "token", "set", "--from-env", "MY_TOKEN")
	require.NoError(t, err)

	got, err := keyring.Get("deskhost", "github-token")
	require.NoError(t, err)
	assert.Equal(t, "secret-value", got)
}

func TestTokenSetRejectsEmpty(t *testing.T) {
	keyring.MockInit()
	_, err := execute(t, "\n", "token", "set")
	assert.Error(t, err)
}

func releaseServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunUpdateCheck(t *testing.T) {
	const newer = `{"tag_name":"v9.0.0","html_url":"https://example.com/r/v9.0.0","assets":[]}`
	const older = `{"tag_name":"v0.0.1","assets":[]}`

	tests := []struct {
		name    string
		status  int
		body    string
		want    []string
		wantErr bool
	}{
		{name: "newer", status: http.StatusOK, body: newer, want: []string{"Update available: v1.0.0 -> v9.0.0", "https://example.com/r/v9.0.0", "No asset published"}},
		{name: "current", status: http.StatusOK, body: older, want: []string{"Up to date (v1.0.0)"}},
		{name: "missing", status: http.StatusNotFound, body: `{"message":"Not Found"}`, want: []string{"not found"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := zaptest.NewLogger(t)
			srv := releaseServer(t, tt.status, tt.body)
			cfg := config.DefaultConfig()
			cfg.App.Version = "1.0.0"
			feed := updater.NewGitHubFeed(updater.GitHubConfig{APIURL: srv.URL, Owner: "o", Repo: "r"}, logger)

			var out bytes.Buffer
			err := runUpdateCheck(context.Background(), &out, feed, cfg, logger)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			for _, w := range tt.want {
				assert.Contains(t, strings.ToLower(out.String()), strings.ToLower(w))
			}
		})
	}
}

func TestPrintHistory(t *testing.T) {
	var out bytes.Buffer
	printHistory(&out, nil)
	assert.Equal(t, "No update checks recorded\n", out.String())

	out.Reset()
	printHistory(&out, []*storage.UpdateRecord{
		{State: "error", CurrentVersion: "v1.0.0", ErrorClass: "rate_limit"},
		{State: "deferred", CurrentVersion: "v1.0.0", LatestVersion: "v1.1.0"},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "error=rate_limit")
	assert.Contains(t, lines[1], "latest=v1.1.0")
}

func TestLazyStore(t *testing.T) {
	logger := zaptest.NewLogger(t)
	s := newLazyStore(t.TempDir(), logger)

	assert.ErrorIs(t, s.Ping(), errStoreNotOpen)
	assert.ErrorIs(t, s.SaveUpdateRecord(&storage.UpdateRecord{}), errStoreNotOpen)
	_, err := s.UpdateHistory(1)
	assert.ErrorIs(t, err, errStoreNotOpen)
	assert.NoError(t, s.Close(), "closing an unopened store is a no-op")

	l := s.loader()
	assert.Equal(t, "storage", l.Name())
	require.NoError(t, l.Load(context.Background(), nil))
	require.NoError(t, s.Ping())
	require.NoError(t, s.SaveUpdateRecord(&storage.UpdateRecord{State: "idle"}))

	history, err := s.UpdateHistory(5)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(), errStoreNotOpen)
}
