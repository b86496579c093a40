// Package bootstrap brings the host from cold start to an interactive window
// by running registered loaders, in order, against one shared Context.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/appctx"
	"github.com/deskhost/deskhost/internal/config"
	"github.com/deskhost/deskhost/internal/host"
	"github.com/deskhost/deskhost/internal/loop"
)

// DefaultAppIDPrefix prefixes the Windows AppUserModelID.
const DefaultAppIDPrefix = "com.deskhost"

// Observer receives the outcome of every loader run.
type Observer interface {
	LoaderFinished(name string, elapsed time.Duration, err error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAppIDPrefix replaces DefaultAppIDPrefix.
func WithAppIDPrefix(prefix string) Option {
	return func(o *Orchestrator) { o.appIDPrefix = prefix }
}

// WithObserver reports loader timings to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// Orchestrator runs loaders sequentially on the event loop.
type Orchestrator struct {
	host     host.Host
	loop     *loop.Loop
	override config.SettingsOverride
	logger   *zap.Logger

	appIDPrefix string
	observer    Observer

	mu      sync.Mutex
	loaders []Loader
	started bool
}

// New creates an orchestrator. override is merged over config.DefaultSettings
// when Bootstrap runs.
func New(h host.Host, lp *loop.Loop, override config.SettingsOverride, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		host:        h,
		loop:        lp,
		override:    override,
		logger:      logger.Named("bootstrap"),
		appIDPrefix: DefaultAppIDPrefix,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Use appends a loader. Loaders run in the order they were added. Calls made
// after Bootstrap has started are ignored.
func (o *Orchestrator) Use(l Loader) *Orchestrator {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		o.logger.Warn("Ignoring loader registered after bootstrap started", zap.String("loader", l.Name()))
		return o
	}
	o.loaders = append(o.loaders, l)
	return o
}

// Bootstrap merges settings, waits for the host, creates the Context and runs
// every loader. The first failing loader aborts the rest; a loader returning
// ErrHalt stops the sequence without being reported as a failure.
func (o *Orchestrator) Bootstrap(ctx context.Context) (*Framework, error) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	o.started = true
	loaders := append([]Loader(nil), o.loaders...)
	o.mu.Unlock()

	start := time.Now()
	settings := config.MergeSettings(config.DefaultSettings(), o.override)
	logger := o.logger.With(zap.String("app", settings.App.Name))

	if settings.ShowBootstrapTime {
		logger.Info("Bootstrap started", zap.Int("loaders", len(loaders)))
	}

	if err := o.host.WhenReady(ctx); err != nil {
		return nil, fmt.Errorf("host did not become ready: %w", err)
	}

	if o.host.Platform() == host.PlatformWindows {
		id := o.appIDPrefix + "." + settings.App.Name
		if err := o.host.SetAppUserModelID(id); err != nil {
			logger.Warn("Failed to set AppUserModelID", zap.String("id", id), zap.Error(err))
		}
	}

	var app *appctx.Context
	if err := o.loop.Call(ctx, func() { app = appctx.New(settings) }); err != nil {
		return nil, fmt.Errorf("failed to create application context: %w", err)
	}

	for i, l := range loaders {
		name := l.Name()
		loaderStart := time.Now()
		err := o.runLoader(ctx, l, app)
		elapsed := time.Since(loaderStart)

		if o.observer != nil {
			o.observer.LoaderFinished(name, elapsed, err)
		}

		if err != nil {
			if errors.Is(err, ErrHalt) {
				logger.Info("Bootstrap halted", zap.String("loader", name))
			} else {
				logger.Error("Loader failed, aborting bootstrap",
					zap.String("loader", name),
					zap.Int("position", i+1),
					zap.Error(err))
			}
			return nil, &LoaderError{Loader: name, Index: i, Err: err}
		}

		if settings.ShowBootstrapTime {
			logger.Info("Loader finished", zap.String("loader", name), zap.Duration("elapsed", elapsed))
		}
	}

	if settings.ShowBootstrapTime {
		logger.Info("Bootstrap finished", zap.Duration("elapsed", time.Since(start)))
	}
	logger.Info(fmt.Sprintf("%s(v%s) started", settings.App.Name, settings.App.Version))

	return &Framework{settings: settings, app: app, loop: o.loop}, nil
}

// runLoader executes one loader on the event loop. A panic counts as failure.
func (o *Orchestrator) runLoader(ctx context.Context, l Loader, app *appctx.Context) error {
	var loadErr error
	callErr := o.loop.Call(ctx, func() {
		defer func() {
			if r := recover(); r != nil {
				loadErr = fmt.Errorf("panic: %v", r)
			}
		}()
		loadErr = l.Load(ctx, app)
	})
	if callErr != nil {
		return callErr
	}
	return loadErr
}

// Framework is the handle returned by a successful bootstrap.
type Framework struct {
	settings config.Settings
	app      *appctx.Context
	loop     *loop.Loop
}

// Settings returns the resolved settings.
func (f *Framework) Settings() config.Settings {
	return f.settings
}

// Context returns the live shared Context. It may only be used on the event
// loop (see Loop).
func (f *Framework) Context() *appctx.Context {
	return f.app
}

// Loop returns the event loop that owns the Context.
func (f *Framework) Loop() *loop.Loop {
	return f.loop
}

// MainWindow returns the current primary window, or nil. Safe from any goroutine.
func (f *Framework) MainWindow() host.Window {
	var w host.Window
	if err := f.loop.Call(context.Background(), func() { w = f.app.MainWindow() }); err != nil {
		return nil
	}
	return w
}
