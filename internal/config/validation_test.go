package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDetailed(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		errorFields []string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:        "negative width",
			mutate:      func(c *Config) { c.Window.Width = -5 },
			errorFields: []string{"window.width"},
		},
		{
			name: "min width larger than width",
			mutate: func(c *Config) {
				c.Window.Width = 640
				c.Window.MinWidth = 800
			},
			errorFields: []string{"window.min_width"},
		},
		{
			name:        "protocol with separator",
			mutate:      func(c *Config) { c.App.Protocol = "deskhost://" },
			errorFields: []string{"app.protocol"},
		},
		{
			name:        "unknown theme",
			mutate:      func(c *Config) { c.WindowLoader.Theme = "solarized" },
			errorFields: []string{"window_loader.theme"},
		},
		{
			name:        "zero check interval",
			mutate:      func(c *Config) { c.Updater.CheckInterval = 0 },
			errorFields: []string{"updater.check_interval"},
		},
		{
			name: "several problems are reported together",
			mutate: func(c *Config) {
				c.Updater.CheckInterval = -time.Second
				c.Updater.Repo = ""
				c.Logging.Level = "verbose"
			},
			errorFields: []string{"updater.check_interval", "updater", "logging.level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			errs := cfg.ValidateDetailed()
			require.Len(t, errs, len(tt.errorFields))

			fields := make([]string, 0, len(errs))
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.ElementsMatch(t, tt.errorFields, fields)

			if len(tt.errorFields) == 0 {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}
