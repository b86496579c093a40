package headless

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/host"
)

// Window is an in-memory host.Window. Accessors expose what the application
// did to it.
type Window struct {
	host *Host
	id   string
	opts host.WindowOptions

	mu          sync.Mutex
	visible     bool
	focused     bool
	minimized   bool
	destroyed   bool
	devTools    bool
	progress    []float64
	content     []byte
	openHandler func(url string) host.WindowOpenAction
	readyFns    []func()
	readyFired  bool
	closedFns   []func()
}

var _ host.Window = (*Window)(nil)

func (w *Window) ID() string { return w.id }

// Options returns the options the window was created with.
func (w *Window) Options() host.WindowOptions { return w.opts }

func (w *Window) Show() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = true
}

func (w *Window) Focus() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focused = true
}

func (w *Window) Restore() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.minimized = false
	w.visible = true
}

// Minimize simulates the user minimizing the window.
func (w *Window) Minimize() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.minimized = true
	w.focused = false
}

// Blur simulates the window losing focus.
func (w *Window) Blur() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focused = false
}

func (w *Window) IsMinimized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.minimized
}

func (w *Window) IsDestroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

// Close destroys the window and fires its closed handlers.
func (w *Window) Close() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	w.visible = false
	handlers := append([]func(){}, w.closedFns...)
	w.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
	w.host.removeWindow(w)
}

func (w *Window) SetProgressBar(progress float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return
	}
	w.progress = append(w.progress, progress)
}

// Progress returns every value passed to SetProgressBar, in order.
func (w *Window) Progress() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]float64(nil), w.progress...)
}

func (w *Window) OpenDevTools() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.devTools = true
	w.host.logger.Debug("Diagnostics panel opened", zap.String("window", w.id))
}

// DevToolsOpen reports whether OpenDevTools was called.
func (w *Window) DevToolsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.devTools
}

// Visible reports whether the window is shown.
func (w *Window) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// Focused reports whether the window has focus.
func (w *Window) Focused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focused
}

// LoadContent reads the file at path (when set) and fires ready-to-show.
func (w *Window) LoadContent(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var content []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to load content %s: %w", path, err)
		}
		content = data
	}

	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return fmt.Errorf("window %s destroyed before content loaded", w.id)
	}
	w.content = content
	var handlers []func()
	if !w.readyFired {
		w.readyFired = true
		handlers = append(handlers, w.readyFns...)
	}
	w.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
	return nil
}

// Content returns the loaded content.
func (w *Window) Content() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.content
}

func (w *Window) SetWindowOpenHandler(fn func(url string) host.WindowOpenAction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.openHandler = fn
}

// RequestOpen simulates content asking for a new top-level window.
func (w *Window) RequestOpen(url string) host.WindowOpenAction {
	w.mu.Lock()
	handler := w.openHandler
	w.mu.Unlock()
	if handler == nil {
		return host.WindowOpenAllow
	}
	return handler(url)
}

func (w *Window) OnReadyToShow(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readyFns = append(w.readyFns, fn)
}

func (w *Window) OnClosed(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closedFns = append(w.closedFns, fn)
}
