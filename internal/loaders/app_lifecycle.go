package loaders

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/appctx"
	"github.com/deskhost/deskhost/internal/bootstrap"
	"github.com/deskhost/deskhost/internal/host"
	"github.com/deskhost/deskhost/internal/loop"
)

// ExitCodePanic is the process exit code after an uncaught panic in production.
const ExitCodePanic = 70

// MainWindowFactory re-creates the primary window on activation.
type MainWindowFactory interface {
	CreateMainWindow(ctx context.Context, app *appctx.Context) (host.Window, error)
}

// LifecycleOption configures an AppLifecycle loader.
type LifecycleOption func(*AppLifecycle)

// WithExit replaces os.Exit for fatal panics.
func WithExit(exit func(code int)) LifecycleOption {
	return func(a *AppLifecycle) { a.exit = exit }
}

// WithSignals replaces the OS signal subscription with ch.
func WithSignals(ch <-chan os.Signal) LifecycleOption {
	return func(a *AppLifecycle) { a.signals = ch }
}

// AppLifecycle wires host lifecycle events, termination signals and the loop's
// panic and error handlers.
type AppLifecycle struct {
	host    host.Host
	loop    *loop.Loop
	windows MainWindowFactory
	logger  *zap.Logger

	exit    func(code int)
	signals <-chan os.Signal
}

var _ bootstrap.Loader = (*AppLifecycle)(nil)

func NewAppLifecycle(h host.Host, lp *loop.Loop, windows MainWindowFactory, logger *zap.Logger, opts ...LifecycleOption) *AppLifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &AppLifecycle{
		host:    h,
		loop:    lp,
		windows: windows,
		logger:  logger.Named("lifecycle"),
		exit:    os.Exit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *AppLifecycle) Name() string { return "app-lifecycle" }

func (a *AppLifecycle) Load(ctx context.Context, app *appctx.Context) error {
	a.host.OnActivate(func() {
		a.loop.Post(func() { a.activate(ctx, app) })
	})

	a.host.OnWindowAllClosed(func() {
		if a.host.Platform() == host.PlatformDarwin {
			a.logger.Debug("All windows closed, staying active")
			return
		}
		a.logger.Info("All windows closed, quitting")
		a.host.Quit()
	})

	a.host.OnBeforeQuit(func() {
		a.logger.Info("Application quitting")
	})

	a.watchSignals(ctx)
	a.installHandlers(app.Settings().IsDev)
	return nil
}

// activate runs on the event loop.
func (a *AppLifecycle) activate(ctx context.Context, app *appctx.Context) {
	if a.host.WindowCount() == 0 {
		a.logger.Info("Activated without windows, re-creating main window")
		if _, err := a.windows.CreateMainWindow(ctx, app); err != nil {
			a.logger.Error("Failed to re-create main window", zap.Error(err))
		}
		return
	}
	if w := app.MainWindow(); w != nil {
		if w.IsMinimized() {
			w.Restore()
		}
		w.Focus()
	}
}

func (a *AppLifecycle) watchSignals(ctx context.Context) {
	ch := a.signals
	var stop func()
	if ch == nil {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		ch = sigCh
		stop = func() { signal.Stop(sigCh) }
	}

	a.loop.Go(ctx, "signal-watcher", func(ctx context.Context) error {
		if stop != nil {
			defer stop()
		}
		select {
		case sig := <-ch:
			a.logger.Info("Received signal, quitting", zap.String("signal", sig.String()))
			a.host.Quit()
		case <-ctx.Done():
		}
		return nil
	})
}

func (a *AppLifecycle) installHandlers(isDev bool) {
	a.loop.SetPanicHandler(func(p *loop.PanicError) {
		a.logger.Error("Uncaught exception",
			zap.Any("panic", p.Value),
			zap.ByteString("stack", p.Stack))
		if isDev {
			return
		}
		a.host.Quit()
		_ = a.logger.Sync()
		a.exit(ExitCodePanic)
	})

	a.loop.SetErrorHandler(func(err error) {
		a.logger.Error("Unhandled background error", zap.Error(err))
	})
}
