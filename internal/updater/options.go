package updater

import (
	"time"

	"github.com/deskhost/deskhost/internal/config"
)

const (
	// DefaultCheckInterval is the delay before the first check and between checks.
	DefaultCheckInterval = time.Hour
)

// Options controls the update policy.
type Options struct {
	// Silent downloads without asking and installs when the application quits.
	Silent          bool
	CheckInterval   time.Duration
	AllowPrerelease bool
	// AutoDownload permits downloads that the user did not explicitly accept.
	AutoDownload bool
}

// DefaultOptions returns the built-in policy.
func DefaultOptions() Options {
	return Options{
		Silent:          false,
		CheckInterval:   DefaultCheckInterval,
		AllowPrerelease: false,
		AutoDownload:    true,
	}
}

// OptionsFromConfig overlays the updater config section on DefaultOptions.
func OptionsFromConfig(cfg config.UpdaterConfig) Options {
	opts := DefaultOptions()
	opts.Silent = cfg.Silent
	opts.AllowPrerelease = cfg.AllowPrerelease
	opts.AutoDownload = cfg.AutoDownload
	if cfg.CheckInterval > 0 {
		opts.CheckInterval = cfg.CheckInterval
	}
	return opts
}
