// Package appctx holds the shared application Context: the primary window
// handle and the resolved settings. A Context is created once at bootstrap and
// passed explicitly to every loader. It is confined to the event loop, so it
// carries no locks; code on other goroutines reaches it through loop.Call.
package appctx

import (
	"github.com/deskhost/deskhost/internal/config"
	"github.com/deskhost/deskhost/internal/host"
)

// Context is the shared registry populated during bootstrap.
type Context struct {
	settings   config.Settings
	mainWindow host.Window
}

// New creates a Context with no main window.
func New(settings config.Settings) *Context {
	return &Context{settings: settings}
}

// Settings returns the resolved settings.
func (c *Context) Settings() config.Settings {
	return c.settings
}

// MainWindow returns the primary window, or nil when there is none or it has
// been destroyed.
func (c *Context) MainWindow() host.Window {
	if c.mainWindow == nil || c.mainWindow.IsDestroyed() {
		return nil
	}
	return c.mainWindow
}

// SetMainWindow publishes w as the primary window.
func (c *Context) SetMainWindow(w host.Window) {
	c.mainWindow = w
}

// ClearMainWindow drops the primary window reference if it still refers to w.
// It reports whether the reference was cleared.
func (c *Context) ClearMainWindow(w host.Window) bool {
	if c.mainWindow == nil || c.mainWindow != w {
		return false
	}
	c.mainWindow = nil
	return true
}
