package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDataDir = ".deskhost"
	ConfigFileName = "deskhost.yaml"
	EnvPrefix      = "DESKHOST"
)

// Load reads configuration from defaults, the optional config file and
// DESKHOST_* environment variables, in increasing precedence. An empty
// configPath looks for ConfigFileName inside the data directory and silently
// uses defaults when it does not exist.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}

	v := newViper(cfg)

	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(cfg.DataDir, ConfigFileName)
	}
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case explicit:
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			// defaults plus environment
		default:
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// newViper registers every key with its default so AutomaticEnv can
// override keys that are absent from the file.
func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("headless", cfg.Headless)
	v.SetDefault("diag_listen", cfg.DiagListen)

	v.SetDefault("app.name", cfg.App.Name)
	v.SetDefault("app.version", cfg.App.Version)
	v.SetDefault("app.protocol", cfg.App.Protocol)
	v.SetDefault("window.width", cfg.Window.Width)
	v.SetDefault("window.height", cfg.Window.Height)
	v.SetDefault("window.min_width", cfg.Window.MinWidth)
	v.SetDefault("window.min_height", cfg.Window.MinHeight)
	_ = v.BindEnv("is_dev")
	_ = v.BindEnv("show_bootstrap_time")

	v.SetDefault("window_loader.title", cfg.WindowLoader.Title)
	v.SetDefault("window_loader.theme", cfg.WindowLoader.Theme)
	v.SetDefault("window_loader.content_path", cfg.WindowLoader.ContentPath)
	_ = v.BindEnv("window_loader.dev_tools")

	v.SetDefault("updater.silent", cfg.Updater.Silent)
	v.SetDefault("updater.check_interval", cfg.Updater.CheckInterval)
	v.SetDefault("updater.allow_prerelease", cfg.Updater.AllowPrerelease)
	v.SetDefault("updater.auto_download", cfg.Updater.AutoDownload)
	v.SetDefault("updater.owner", cfg.Updater.Owner)
	v.SetDefault("updater.repo", cfg.Updater.Repo)
	v.SetDefault("updater.api_url", cfg.Updater.APIURL)
	v.SetDefault("updater.token", cfg.Updater.Token)

	if cfg.Logging != nil {
		v.SetDefault("logging.level", cfg.Logging.Level)
		v.SetDefault("logging.enable_file", cfg.Logging.EnableFile)
		v.SetDefault("logging.enable_console", cfg.Logging.EnableConsole)
		v.SetDefault("logging.filename", cfg.Logging.Filename)
		v.SetDefault("logging.log_dir", cfg.Logging.LogDir)
		v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
		v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
		v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
		v.SetDefault("logging.compress", cfg.Logging.Compress)
		v.SetDefault("logging.json_format", cfg.Logging.JSONFormat)
	}

	return v
}

func defaultDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, DefaultDataDir), nil
}

// DefaultConfigPath returns the config file location inside dataDir.
func DefaultConfigPath(dataDir string) (string, error) {
	if dataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return "", err
		}
		dataDir = dir
	}
	return filepath.Join(dataDir, ConfigFileName), nil
}

// SaveConfig writes cfg as YAML. Existing files are kept unless overwrite is set.
func SaveConfig(cfg *Config, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// MarshalYAML renders the check interval as a duration string ("1h0m0s")
// instead of nanoseconds.
func (u UpdaterConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Silent          bool   `yaml:"silent"`
		CheckInterval   string `yaml:"check_interval"`
		AllowPrerelease bool   `yaml:"allow_prerelease"`
		AutoDownload    bool   `yaml:"auto_download"`
		Owner           string `yaml:"owner"`
		Repo            string `yaml:"repo"`
		APIURL          string `yaml:"api_url,omitempty"`
		Token           string `yaml:"token,omitempty"`
	}{
		Silent:          u.Silent,
		CheckInterval:   u.CheckInterval.String(),
		AllowPrerelease: u.AllowPrerelease,
		AutoDownload:    u.AutoDownload,
		Owner:           u.Owner,
		Repo:            u.Repo,
		APIURL:          u.APIURL,
		Token:           u.Token,
	}, nil
}
