package config

import (
	"fmt"
	"strings"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found by ValidateDetailed.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate returns nil for a usable configuration, otherwise ValidationErrors.
func (c *Config) Validate() error {
	if errs := c.ValidateDetailed(); len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateDetailed checks every field and reports all problems at once.
func (c *Config) ValidateDetailed() ValidationErrors {
	var errs ValidationErrors

	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	w := c.Window
	for field, v := range map[string]int{
		"window.width":      w.Width,
		"window.height":     w.Height,
		"window.min_width":  w.MinWidth,
		"window.min_height": w.MinHeight,
	} {
		if v < 0 {
			add(field, "must not be negative, got %d", v)
		}
	}
	if w.Width > 0 && w.MinWidth > w.Width {
		add("window.min_width", "must not exceed width (%d > %d)", w.MinWidth, w.Width)
	}
	if w.Height > 0 && w.MinHeight > w.Height {
		add("window.min_height", "must not exceed height (%d > %d)", w.MinHeight, w.Height)
	}

	if strings.ContainsAny(c.App.Protocol, ":/ ") {
		add("app.protocol", "must be a bare scheme name, got %q", c.App.Protocol)
	}

	switch c.WindowLoader.Theme {
	case "", ThemeLight, ThemeDark:
	default:
		add("window_loader.theme", "must be %q or %q, got %q", ThemeLight, ThemeDark, c.WindowLoader.Theme)
	}

	if c.Updater.CheckInterval <= 0 {
		add("updater.check_interval", "must be positive, got %s", c.Updater.CheckInterval)
	}
	if c.Updater.Owner == "" || c.Updater.Repo == "" {
		add("updater", "owner and repo are required")
	}

	if c.Logging != nil {
		switch strings.ToLower(c.Logging.Level) {
		case "", "trace", "debug", "info", "warn", "error":
		default:
			add("logging.level", "unknown level %q", c.Logging.Level)
		}
	}

	return errs
}
