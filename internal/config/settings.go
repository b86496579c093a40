package config

import (
	"os"
	"strings"
)

// Built-in defaults for the resolved Settings.
const (
	DefaultWindowWidth     = 1200
	DefaultWindowHeight    = 800
	DefaultWindowMinWidth  = 800
	DefaultWindowMinHeight = 600

	DefaultAppName     = "deskhost"
	DefaultAppVersion  = "1.0.0"
	DefaultAppProtocol = "deskhost"

	// EnvironmentVar selects the runtime environment; "development" turns on dev mode.
	EnvironmentVar = "DESKHOST_ENV"
	envDevelopment = "development"
)

// WindowSettings holds the primary window geometry in logical pixels.
type WindowSettings struct {
	Width     int `json:"width" mapstructure:"width" yaml:"width"`
	Height    int `json:"height" mapstructure:"height" yaml:"height"`
	MinWidth  int `json:"min_width" mapstructure:"min_width" yaml:"min_width"`
	MinHeight int `json:"min_height" mapstructure:"min_height" yaml:"min_height"`
}

// AppSettings identifies the running application.
type AppSettings struct {
	Name     string `json:"name" mapstructure:"name" yaml:"name"`
	Version  string `json:"version" mapstructure:"version" yaml:"version"`
	Protocol string `json:"protocol" mapstructure:"protocol" yaml:"protocol"`
}

// Settings is the fully resolved, immutable startup configuration shared with
// every loader.
type Settings struct {
	Window            WindowSettings `json:"window"`
	App               AppSettings    `json:"app"`
	IsDev             bool           `json:"is_dev"`
	ShowBootstrapTime bool           `json:"show_bootstrap_time"`
}

// SettingsOverride is caller-supplied partial settings. Zero numbers, empty
// strings and nil pointers mean "not set".
type SettingsOverride struct {
	Window            WindowSettings
	App               AppSettings
	IsDev             *bool
	ShowBootstrapTime *bool
}

// IsDevEnvironment reports whether the process environment selects dev mode.
func IsDevEnvironment() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(EnvironmentVar)), envDevelopment)
}

// DefaultSettings returns the built-in settings. Dev mode and bootstrap timing
// follow the process environment.
func DefaultSettings() Settings {
	isDev := IsDevEnvironment()
	return Settings{
		Window: WindowSettings{
			Width:     DefaultWindowWidth,
			Height:    DefaultWindowHeight,
			MinWidth:  DefaultWindowMinWidth,
			MinHeight: DefaultWindowMinHeight,
		},
		App: AppSettings{
			Name:     DefaultAppName,
			Version:  DefaultAppVersion,
			Protocol: DefaultAppProtocol,
		},
		IsDev:             isDev,
		ShowBootstrapTime: isDev,
	}
}

// MergeSettings applies every set field of override on top of base.
func MergeSettings(base Settings, override SettingsOverride) Settings {
	merged := base

	if override.Window.Width > 0 {
		merged.Window.Width = override.Window.Width
	}
	if override.Window.Height > 0 {
		merged.Window.Height = override.Window.Height
	}
	if override.Window.MinWidth > 0 {
		merged.Window.MinWidth = override.Window.MinWidth
	}
	if override.Window.MinHeight > 0 {
		merged.Window.MinHeight = override.Window.MinHeight
	}

	if override.App.Name != "" {
		merged.App.Name = override.App.Name
	}
	if override.App.Version != "" {
		merged.App.Version = override.App.Version
	}
	if override.App.Protocol != "" {
		merged.App.Protocol = override.App.Protocol
	}

	if override.IsDev != nil {
		merged.IsDev = *override.IsDev
	}
	if override.ShowBootstrapTime != nil {
		merged.ShowBootstrapTime = *override.ShowBootstrapTime
	}

	return merged
}

// BoolPtr returns a pointer to b, for building overrides.
func BoolPtr(b bool) *bool {
	return &b
}
