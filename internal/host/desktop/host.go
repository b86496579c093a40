//go:build !nogui

// Package desktop implements host.Host on top of the fyne toolkit.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	fynedesktop "fyne.io/fyne/v2/driver/desktop"
	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/host"
	"github.com/deskhost/deskhost/internal/host/platform"
)

// Host drives a fyne application.
type Host struct {
	logger  *zap.Logger
	app     fyne.App
	appName string

	readyOnce sync.Once
	ready     chan struct{}
	quitOnce  sync.Once

	mu          sync.Mutex
	nextID      int
	windows     map[string]*Window
	onActivate  []func()
	onAllClosed []func()
	onQuit      []func()
}

var _ host.Host = (*Host)(nil)

// New creates the fyne application. appID is the reverse-DNS identifier used
// for preferences and notifications.
func New(logger *zap.Logger, appID, appName string) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Host{
		logger:  logger.Named("desktop"),
		app:     app.NewWithID(appID),
		appName: appName,
		ready:   make(chan struct{}),
		windows: make(map[string]*Window),
	}

	lc := h.app.Lifecycle()
	lc.SetOnStarted(func() {
		h.readyOnce.Do(func() { close(h.ready) })
	})
	lc.SetOnEnteredForeground(h.fireActivate)
	lc.SetOnStopped(h.runBeforeQuit)

	// A tray menu keeps the process alive with zero windows and doubles as
	// the re-activation signal.
	if desk, ok := h.app.(fynedesktop.App); ok {
		desk.SetSystemTrayMenu(fyne.NewMenu(appName,
			fyne.NewMenuItem("Open "+appName, h.fireActivate),
		))
	}

	return h
}

// Run blocks in the fyne main loop. Must be called from main.
func (h *Host) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			h.Quit()
		case <-h.quitDone():
		}
	}()
	h.app.Run()
	return nil
}

func (h *Host) quitDone() <-chan struct{} {
	ch := make(chan struct{})
	h.OnBeforeQuit(func() { close(ch) })
	return ch
}

func (h *Host) WhenReady(ctx context.Context) error {
	select {
	case <-h.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) Platform() string {
	return runtime.GOOS
}

func (h *Host) Quit() {
	h.runBeforeQuit()
	h.app.Quit()
}

func (h *Host) runBeforeQuit() {
	h.quitOnce.Do(func() {
		h.mu.Lock()
		handlers := append([]func(){}, h.onQuit...)
		h.mu.Unlock()
		for _, fn := range handlers {
			fn()
		}
	})
}

func (h *Host) SetAppUserModelID(id string) error {
	return platform.SetAppUserModelID(id)
}

func (h *Host) SetAsDefaultProtocolClient(scheme string) error {
	exe, err := platform.Executable()
	if err != nil {
		return err
	}
	return platform.RegisterProtocolClient(scheme, h.appName, exe)
}

func (h *Host) CreateWindow(opts host.WindowOptions) (host.Window, error) {
	return h.createWindow(opts, true), nil
}

// createWindow builds a window on the fyne thread. Untracked windows (dialog
// hosts, diagnostics) do not count towards WindowCount.
func (h *Host) createWindow(opts host.WindowOptions, tracked bool) *Window {
	h.mu.Lock()
	h.nextID++
	id := fmt.Sprintf("window-%d", h.nextID)
	h.mu.Unlock()

	w := &Window{host: h, id: id, opts: opts, tracked: tracked, closed: make(chan struct{})}
	fyne.DoAndWait(func() {
		if opts.Theme != "" && tracked {
			h.app.Settings().SetTheme(newVariantTheme(opts.Theme))
		}
		w.build()
		if !opts.Hidden {
			w.win.Show()
		}
	})

	if tracked {
		h.mu.Lock()
		h.windows[id] = w
		h.mu.Unlock()
	}
	return w
}

func (h *Host) WindowCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.windows)
}

func (h *Host) removeWindow(w *Window) {
	h.mu.Lock()
	delete(h.windows, w.id)
	remaining := len(h.windows)
	handlers := append([]func(){}, h.onAllClosed...)
	h.mu.Unlock()

	if remaining == 0 {
		for _, fn := range handlers {
			fn()
		}
	}
}

// anyWindow returns some open window to parent a dialog, or nil.
func (h *Host) anyWindow() *Window {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, w := range h.windows {
		return w
	}
	return nil
}

func (h *Host) OnActivate(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onActivate = append(h.onActivate, fn)
}

func (h *Host) OnWindowAllClosed(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAllClosed = append(h.onAllClosed, fn)
}

func (h *Host) OnBeforeQuit(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onQuit = append(h.onQuit, fn)
}

func (h *Host) fireActivate() {
	h.mu.Lock()
	handlers := append([]func(){}, h.onActivate...)
	h.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (h *Host) ShowMessageBox(ctx context.Context, parent host.Window, opts host.MessageBoxOptions) (int, error) {
	var owner *Window
	if parent != nil {
		w, ok := parent.(*Window)
		if !ok {
			return opts.CancelID, errors.New("parent window belongs to a different host")
		}
		owner = w
	} else {
		owner = h.anyWindow()
	}
	if owner == nil {
		return h.showStandaloneMessageBox(ctx, opts)
	}
	if owner.IsDestroyed() {
		return opts.CancelID, errors.New("parent window destroyed")
	}
	return owner.showMessageBox(ctx, opts)
}

// showStandaloneMessageBox hosts the dialog in a temporary window.
func (h *Host) showStandaloneMessageBox(ctx context.Context, opts host.MessageBoxOptions) (int, error) {
	tmp := h.createWindow(host.WindowOptions{Title: opts.Title, Width: 420, Height: 220}, false)
	defer tmp.Close()
	return tmp.showMessageBox(ctx, opts)
}

func (h *Host) OpenExternal(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	return h.app.OpenURL(u)
}

func (h *Host) Notify(title, body string) error {
	h.app.SendNotification(fyne.NewNotification(title, body))
	return nil
}
