package config

import (
	"time"
)

// Window themes understood by the window loader.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Config represents the main configuration structure
type Config struct {
	DataDir    string `json:"data_dir" mapstructure:"data_dir" yaml:"data_dir,omitempty"`
	Headless   bool   `json:"headless" mapstructure:"headless" yaml:"headless"`
	DiagListen string `json:"diag_listen,omitempty" mapstructure:"diag_listen" yaml:"diag_listen,omitempty"` // empty disables the diagnostics server

	// Settings overrides merged over DefaultSettings at bootstrap
	App               AppSettings    `json:"app" mapstructure:"app" yaml:"app"`
	Window            WindowSettings `json:"window" mapstructure:"window" yaml:"window"`
	IsDev             *bool          `json:"is_dev,omitempty" mapstructure:"is_dev" yaml:"is_dev,omitempty"`
	ShowBootstrapTime *bool          `json:"show_bootstrap_time,omitempty" mapstructure:"show_bootstrap_time" yaml:"show_bootstrap_time,omitempty"`

	WindowLoader WindowLoaderConfig `json:"window_loader" mapstructure:"window_loader" yaml:"window_loader"`
	Updater      UpdaterConfig      `json:"updater" mapstructure:"updater" yaml:"updater"`

	// Logging configuration
	Logging *LogConfig `json:"logging,omitempty" mapstructure:"logging" yaml:"logging,omitempty"`
}

// WindowLoaderConfig configures the primary window.
type WindowLoaderConfig struct {
	Title       string `json:"title,omitempty" mapstructure:"title" yaml:"title,omitempty"`
	Theme       string `json:"theme" mapstructure:"theme" yaml:"theme"`
	DevTools    *bool  `json:"dev_tools,omitempty" mapstructure:"dev_tools" yaml:"dev_tools,omitempty"` // nil follows dev mode
	ContentPath string `json:"content_path,omitempty" mapstructure:"content_path" yaml:"content_path,omitempty"`
}

// UpdaterConfig configures the update controller and its release feed.
type UpdaterConfig struct {
	Silent          bool          `json:"silent" mapstructure:"silent" yaml:"silent"`
	CheckInterval   time.Duration `json:"check_interval" mapstructure:"check_interval" yaml:"check_interval"`
	AllowPrerelease bool          `json:"allow_prerelease" mapstructure:"allow_prerelease" yaml:"allow_prerelease"`
	AutoDownload    bool          `json:"auto_download" mapstructure:"auto_download" yaml:"auto_download"`

	Owner  string `json:"owner" mapstructure:"owner" yaml:"owner"`
	Repo   string `json:"repo" mapstructure:"repo" yaml:"repo"`
	APIURL string `json:"api_url,omitempty" mapstructure:"api_url" yaml:"api_url,omitempty"`
	Token  string `json:"token,omitempty" mapstructure:"token" yaml:"token,omitempty"` // secret reference, e.g. ${keyring:github-token}
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level" yaml:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable_file" yaml:"enable_file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable_console" yaml:"enable_console"`
	Filename      string `json:"filename" mapstructure:"filename" yaml:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log_dir" yaml:"log_dir,omitempty"` // Custom log directory
	MaxSize       int    `json:"max_size" mapstructure:"max_size" yaml:"max_size"`                  // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max_backups" yaml:"max_backups"`         // number of backup files
	MaxAge        int    `json:"max_age" mapstructure:"max_age" yaml:"max_age"`                     // days
	Compress      bool   `json:"compress" mapstructure:"compress" yaml:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json_format" yaml:"json_format"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		WindowLoader: WindowLoaderConfig{
			Theme: ThemeDark,
		},
		Updater: UpdaterConfig{
			Silent:          false,
			CheckInterval:   time.Hour,
			AllowPrerelease: false,
			AutoDownload:    true,
			Owner:           "deskhost",
			Repo:            "deskhost",
		},
		Logging: &LogConfig{
			Level:         "info",
			EnableFile:    false,
			EnableConsole: true,
			Filename:      "main.log",
			MaxSize:       10,
			MaxBackups:    5,
			MaxAge:        30,
			Compress:      true,
		},
	}
}

// SettingsOverride extracts the bootstrap settings overrides carried by the config.
func (c *Config) SettingsOverride() SettingsOverride {
	return SettingsOverride{
		Window:            c.Window,
		App:               c.App,
		IsDev:             c.IsDev,
		ShowBootstrapTime: c.ShowBootstrapTime,
	}
}
