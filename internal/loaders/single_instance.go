package loaders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/appctx"
	"github.com/deskhost/deskhost/internal/bootstrap"
	"github.com/deskhost/deskhost/internal/host"
	"github.com/deskhost/deskhost/internal/instance"
	"github.com/deskhost/deskhost/internal/loop"
)

// SingleInstance keeps one process per user. A later launch forwards its
// arguments to the owner, quits and halts bootstrap.
type SingleInstance struct {
	host    host.Host
	loop    *loop.Loop
	dataDir string
	args    []string
	logger  *zap.Logger

	onSecond func(instance.Message)

	quitOnce sync.Once
	mu       sync.Mutex
	lock     *instance.Lock
}

// SingleInstanceOption configures a SingleInstance.
type SingleInstanceOption func(*SingleInstance)

// OnSecondInstance calls fn, off the event loop, for every forwarded launch.
func OnSecondInstance(fn func(instance.Message)) SingleInstanceOption {
	return func(s *SingleInstance) { s.onSecond = fn }
}

var _ bootstrap.Loader = (*SingleInstance)(nil)

// NewSingleInstance creates the guard. The lock lives in dataDir; args are
// forwarded to the running instance on contention.
func NewSingleInstance(h host.Host, lp *loop.Loop, dataDir string, args []string, logger *zap.Logger, opts ...SingleInstanceOption) *SingleInstance {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SingleInstance{
		host:    h,
		loop:    lp,
		dataDir: dataDir,
		args:    args,
		logger:  logger.Named("single-instance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SingleInstance) Name() string { return "single-instance" }

func (s *SingleInstance) Load(ctx context.Context, app *appctx.Context) error {
	settings := app.Settings()
	endpoint := instance.Endpoint(settings.App.Name, s.dataDir)

	lock, err := instance.Acquire(ctx, endpoint, s.logger)
	if errors.Is(err, instance.ErrAlreadyRunning) {
		s.logger.Info("Another instance is running, handing over", zap.String("endpoint", endpoint))
		if err := instance.Notify(ctx, endpoint, instance.NewMessage(s.args)); err != nil {
			s.logger.Warn("Failed to notify running instance", zap.Error(err))
		}
		s.quitOnce.Do(s.host.Quit)
		return fmt.Errorf("%w: instance lock held at %s", bootstrap.ErrHalt, endpoint)
	}
	if err != nil {
		return fmt.Errorf("failed to acquire single-instance lock: %w", err)
	}

	s.mu.Lock()
	s.lock = lock
	s.mu.Unlock()

	lock.Serve(func(msg instance.Message) {
		if s.onSecond != nil {
			s.onSecond(msg)
		}
		s.loop.Post(func() { s.handleSecondInstance(app, msg) })
	})

	if settings.IsDev {
		s.logger.Debug("Skipping protocol registration in development mode")
		return nil
	}
	if err := s.host.SetAsDefaultProtocolClient(settings.App.Protocol); err != nil {
		s.logger.Warn("Failed to register protocol handler",
			zap.String("protocol", settings.App.Protocol),
			zap.Error(err))
	}
	return nil
}

// handleSecondInstance runs on the event loop.
func (s *SingleInstance) handleSecondInstance(app *appctx.Context, msg instance.Message) {
	prefix := app.Settings().App.Protocol + "://"
	for _, arg := range msg.Args {
		if strings.HasPrefix(arg, prefix) {
			s.logger.Info("Deep link received", zap.String("url", arg), zap.Int("pid", msg.PID))
		}
	}

	w := app.MainWindow()
	if w == nil {
		return
	}
	if w.IsMinimized() {
		w.Restore()
	}
	w.Focus()
	w.Show()
}

// Release closes the instance lock. It is safe to call when the lock was never acquired.
func (s *SingleInstance) Release() error {
	s.mu.Lock()
	lock := s.lock
	s.lock = nil
	s.mu.Unlock()
	if lock == nil {
		return nil
	}
	return lock.Close()
}
