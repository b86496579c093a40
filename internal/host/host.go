// Package host defines the boundary between the application core and the
// windowing toolkit. Implementations live in the desktop and headless
// subpackages.
//
// Callbacks registered on a Host or Window may fire on any goroutine;
// consumers hop onto the event loop before touching shared state.
package host

import (
	"context"
)

// Platform names as reported by Host.Platform, matching runtime.GOOS.
const (
	PlatformDarwin  = "darwin"
	PlatformWindows = "windows"
	PlatformLinux   = "linux"
)

// WindowOpenAction is the verdict of a window-open handler.
type WindowOpenAction int

const (
	WindowOpenDeny WindowOpenAction = iota
	WindowOpenAllow
)

// RemoveProgress clears a window's progress indicator when passed to SetProgressBar.
const RemoveProgress = -1

// WindowOptions describes a top-level window to create.
type WindowOptions struct {
	Title     string
	Width     int
	Height    int
	MinWidth  int
	MinHeight int
	Theme     string
	// Hidden windows stay invisible until Show, normally called from the
	// ready-to-show handler.
	Hidden bool
}

// Window is a top-level window owned by the host.
type Window interface {
	ID() string
	Show()
	Focus()
	Restore()
	IsMinimized() bool
	IsDestroyed() bool
	Close()

	// SetProgressBar sets the taskbar/window progress in [0,1]; a negative
	// value removes the indicator.
	SetProgressBar(progress float64)
	// OpenDevTools opens the diagnostics panel attached to this window.
	OpenDevTools()
	// LoadContent loads local content into the window and returns once it is
	// rendered or failed.
	LoadContent(ctx context.Context, path string) error

	SetWindowOpenHandler(fn func(url string) WindowOpenAction)
	// OnReadyToShow registers fn for the first time the window is ready to be shown.
	OnReadyToShow(fn func())
	OnClosed(fn func())
}

// Message box types.
const (
	MessageInfo     = "info"
	MessageQuestion = "question"
	MessageWarning  = "warning"
	MessageError    = "error"
)

// MessageBoxOptions describes a modal dialog. The result of ShowMessageBox is
// the index of the chosen button; dismissing the dialog yields CancelID.
type MessageBoxOptions struct {
	Type      string
	Title     string
	Message   string
	Detail    string
	Buttons   []string
	DefaultID int
	CancelID  int
}

// Host is the windowing toolkit and OS integration surface.
type Host interface {
	// Run drives the toolkit until Quit is called or ctx is cancelled. It must
	// be called from the main goroutine.
	Run(ctx context.Context) error
	// WhenReady blocks until the toolkit can create windows.
	WhenReady(ctx context.Context) error
	Platform() string
	Quit()

	SetAppUserModelID(id string) error
	SetAsDefaultProtocolClient(scheme string) error

	CreateWindow(opts WindowOptions) (Window, error)
	WindowCount() int

	OnActivate(fn func())
	OnWindowAllClosed(fn func())
	OnBeforeQuit(fn func())

	// ShowMessageBox blocks until the user answers. parent may be nil.
	ShowMessageBox(ctx context.Context, parent Window, opts MessageBoxOptions) (int, error)
	OpenExternal(url string) error
	Notify(title, body string) error
}
