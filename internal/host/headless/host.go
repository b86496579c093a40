// Package headless implements host.Host without a GUI toolkit. Windows are
// in-memory records and message boxes are answered on the terminal. It backs
// --headless runs, nogui builds and tests.
package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/beeep"
	"github.com/skratchdot/open-golang/open"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/deskhost/deskhost/internal/host"
	"github.com/deskhost/deskhost/internal/host/platform"
)

// ErrParentDestroyed is returned by ShowMessageBox when its parent window is gone.
var ErrParentDestroyed = errors.New("parent window destroyed")

// Options configures a headless Host.
type Options struct {
	// Platform overrides runtime.GOOS.
	Platform string
	AppName  string
	// System enables real OS side effects: protocol registration,
	// AppUserModelID, notifications and opening the browser.
	System bool
	// Answer decides message boxes. When nil, prompts are read from In, or
	// from the terminal when stdin is one; otherwise CancelID is returned.
	Answer func(opts host.MessageBoxOptions) int
	In     io.Reader
	Out    io.Writer
}

// Host is an in-memory host.Host.
type Host struct {
	logger *zap.Logger
	opts   Options

	readyOnce sync.Once
	ready     chan struct{}
	quitOnce  sync.Once
	quit      chan struct{}
	quitCalls atomic.Int32

	promptMu sync.Mutex

	mu          sync.Mutex
	nextID      int
	windows     map[string]*Window
	onActivate  []func()
	onAllClosed []func()
	onQuit      []func()

	appUserModelID string
	protocols      []string
	messageBoxes   []host.MessageBoxOptions
	notifications  []string
	opened         []string
}

var _ host.Host = (*Host)(nil)

// New creates a headless host.
func New(logger *zap.Logger, opts Options) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Platform == "" {
		opts.Platform = runtime.GOOS
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Host{
		logger:  logger.Named("headless"),
		opts:    opts,
		ready:   make(chan struct{}),
		quit:    make(chan struct{}),
		windows: make(map[string]*Window),
	}
}

// Run marks the host ready and blocks until Quit or ctx cancellation.
func (h *Host) Run(ctx context.Context) error {
	h.MarkReady()
	select {
	case <-h.quit:
		return nil
	case <-ctx.Done():
		h.Quit()
		return nil
	}
}

// MarkReady releases WhenReady waiters without running the host.
func (h *Host) MarkReady() {
	h.readyOnce.Do(func() { close(h.ready) })
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
	return h.opts.Platform
}

// Quit runs before-quit handlers once and stops Run.
func (h *Host) Quit() {
	h.quitCalls.Add(1)
	h.quitOnce.Do(func() {
		h.mu.Lock()
		handlers := append([]func(){}, h.onQuit...)
		h.mu.Unlock()
		for _, fn := range handlers {
			fn()
		}
		close(h.quit)
	})
}

// QuitCalls counts Quit invocations, including repeated ones.
func (h *Host) QuitCalls() int {
	return int(h.quitCalls.Load())
}

// Done is closed once Quit has run.
func (h *Host) Done() <-chan struct{} {
	return h.quit
}

func (h *Host) SetAppUserModelID(id string) error {
	h.mu.Lock()
	h.appUserModelID = id
	h.mu.Unlock()
	if h.opts.System {
		return platform.SetAppUserModelID(id)
	}
	return nil
}

// AppUserModelID returns the last identifier set.
func (h *Host) AppUserModelID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.appUserModelID
}

func (h *Host) SetAsDefaultProtocolClient(scheme string) error {
	h.mu.Lock()
	h.protocols = append(h.protocols, scheme)
	h.mu.Unlock()
	if !h.opts.System {
		return nil
	}
	exe, err := platform.Executable()
	if err != nil {
		return err
	}
	return platform.RegisterProtocolClient(scheme, h.opts.AppName, exe)
}

// Protocols lists the schemes registered so far.
func (h *Host) Protocols() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.protocols...)
}

func (h *Host) CreateWindow(opts host.WindowOptions) (host.Window, error) {
	select {
	case <-h.quit:
		return nil, errors.New("host is quitting")
	default:
	}

	h.mu.Lock()
	h.nextID++
	w := &Window{
		host:    h,
		id:      fmt.Sprintf("window-%d", h.nextID),
		opts:    opts,
		visible: !opts.Hidden,
	}
	h.windows[w.id] = w
	h.mu.Unlock()

	h.logger.Debug("Window created", zap.String("id", w.id), zap.Int("width", opts.Width), zap.Int("height", opts.Height))
	return w, nil
}

func (h *Host) WindowCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.windows)
}

// Windows returns the open windows.
func (h *Host) Windows() []*Window {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Window, 0, len(h.windows))
	for _, w := range h.windows {
		out = append(out, w)
	}
	return out
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

// Activate simulates the user re-activating the application.
func (h *Host) Activate() {
	h.mu.Lock()
	handlers := append([]func(){}, h.onActivate...)
	h.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (h *Host) ShowMessageBox(ctx context.Context, parent host.Window, opts host.MessageBoxOptions) (int, error) {
	if parent != nil && parent.IsDestroyed() {
		return opts.CancelID, ErrParentDestroyed
	}
	if err := ctx.Err(); err != nil {
		return opts.CancelID, err
	}

	h.mu.Lock()
	h.messageBoxes = append(h.messageBoxes, opts)
	h.mu.Unlock()

	if h.opts.Answer != nil {
		return h.opts.Answer(opts), nil
	}

	in := h.opts.In
	if in == nil {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			h.logger.Info("No terminal attached, dismissing dialog",
				zap.String("title", opts.Title), zap.String("answer", buttonLabel(opts, opts.CancelID)))
			return opts.CancelID, nil
		}
		in = os.Stdin
	}

	h.promptMu.Lock()
	defer h.promptMu.Unlock()
	return promptTerminal(in, h.opts.Out, opts)
}

// MessageBoxes returns every dialog shown so far.
func (h *Host) MessageBoxes() []host.MessageBoxOptions {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]host.MessageBoxOptions(nil), h.messageBoxes...)
}

func (h *Host) OpenExternal(url string) error {
	h.mu.Lock()
	h.opened = append(h.opened, url)
	h.mu.Unlock()
	if !h.opts.System {
		return nil
	}
	return open.Run(url)
}

// Opened returns every URL passed to OpenExternal.
func (h *Host) Opened() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.opened...)
}

func (h *Host) Notify(title, body string) error {
	h.mu.Lock()
	h.notifications = append(h.notifications, title)
	h.mu.Unlock()
	if !h.opts.System {
		return nil
	}
	if h.opts.AppName != "" {
		beeep.AppName = h.opts.AppName
	}
	return beeep.Notify(title, body, "")
}

// Notifications returns the titles of notifications sent so far.
func (h *Host) Notifications() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.notifications...)
}
