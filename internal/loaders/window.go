package loaders

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/appctx"
	"github.com/deskhost/deskhost/internal/bootstrap"
	"github.com/deskhost/deskhost/internal/config"
	"github.com/deskhost/deskhost/internal/host"
	"github.com/deskhost/deskhost/internal/loop"
)

// WindowOptions configures the main window loader.
type WindowOptions struct {
	// Title defaults to the application name.
	Title string
	Theme string
	// DevTools opens the diagnostics panel once the window is shown. Nil
	// follows development mode.
	DevTools    *bool
	ContentPath string
}

// WindowOptionsFromConfig maps the window_loader config section.
func WindowOptionsFromConfig(cfg config.WindowLoaderConfig) WindowOptions {
	return WindowOptions{
		Title:       cfg.Title,
		Theme:       cfg.Theme,
		DevTools:    cfg.DevTools,
		ContentPath: cfg.ContentPath,
	}
}

// Window creates the primary window and keeps the Context pointing at it.
type Window struct {
	host   host.Host
	loop   *loop.Loop
	opts   WindowOptions
	logger *zap.Logger
}

var _ bootstrap.Loader = (*Window)(nil)

func NewWindow(h host.Host, lp *loop.Loop, opts WindowOptions, logger *zap.Logger) *Window {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Theme == "" {
		opts.Theme = config.ThemeDark
	}
	return &Window{host: h, loop: lp, opts: opts, logger: logger.Named("window")}
}

func (w *Window) Name() string { return "window" }

func (w *Window) Load(ctx context.Context, app *appctx.Context) error {
	_, err := w.CreateMainWindow(ctx, app)
	return err
}

// CreateMainWindow creates a window, publishes it as the Context main window
// and loads its content. It must run on the event loop.
func (w *Window) CreateMainWindow(ctx context.Context, app *appctx.Context) (host.Window, error) {
	settings := app.Settings()
	title := w.opts.Title
	if title == "" {
		title = settings.App.Name
	}

	win, err := w.host.CreateWindow(host.WindowOptions{
		Title:     title,
		Width:     orDefault(settings.Window.Width, config.DefaultWindowWidth),
		Height:    orDefault(settings.Window.Height, config.DefaultWindowHeight),
		MinWidth:  orDefault(settings.Window.MinWidth, config.DefaultWindowMinWidth),
		MinHeight: orDefault(settings.Window.MinHeight, config.DefaultWindowMinHeight),
		Theme:     w.opts.Theme,
		Hidden:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create main window: %w", err)
	}

	win.SetWindowOpenHandler(func(url string) host.WindowOpenAction {
		w.logger.Warn("Blocked request to open a new window", zap.String("url", url))
		return host.WindowOpenDeny
	})

	app.SetMainWindow(win)

	devTools := settings.IsDev
	if w.opts.DevTools != nil {
		devTools = *w.opts.DevTools
	}
	win.OnReadyToShow(func() {
		w.loop.Post(func() {
			win.Show()
			win.Focus()
			if devTools {
				win.OpenDevTools()
			}
		})
	})
	win.OnClosed(func() {
		w.loop.Post(func() {
			if app.ClearMainWindow(win) {
				w.logger.Debug("Main window closed", zap.String("id", win.ID()))
			}
		})
	})

	if err := win.LoadContent(ctx, w.opts.ContentPath); err != nil {
		return nil, fmt.Errorf("failed to load main window content: %w", err)
	}

	w.logger.Debug("Main window created", zap.String("id", win.ID()), zap.String("theme", w.opts.Theme))
	return win, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
