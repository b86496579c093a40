package loaders

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deskhost/deskhost/internal/bootstrap"
	"github.com/deskhost/deskhost/internal/config"
	"github.com/deskhost/deskhost/internal/host"
	"github.com/deskhost/deskhost/internal/host/headless"
	"github.com/deskhost/deskhost/internal/loop"
)

type lifecycleFixture struct {
	host    *headless.Host
	loop    *loop.Loop
	fw      *bootstrap.Framework
	signals chan os.Signal
	exits   chan int
	cancel  context.CancelFunc
}

func newLifecycleFixture(t *testing.T, platform string, isDev bool) *lifecycleFixture {
	logger := zaptest.NewLogger(t)
	lp := newRunningLoop(t, logger)
	h := readyHost(logger, platform)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &lifecycleFixture{
		host:    h,
		loop:    lp,
		signals: make(chan os.Signal, 1),
		exits:   make(chan int, 1),
		cancel:  cancel,
	}

	win := NewWindow(h, lp, WindowOptions{DevTools: config.BoolPtr(false)}, logger)
	lifecycle := NewAppLifecycle(h, lp, win, logger,
		WithSignals(f.signals),
		WithExit(func(code int) { f.exits <- code }))

	fw, err := bootstrap.New(h, lp, config.SettingsOverride{IsDev: config.BoolPtr(isDev)}, logger).
		Use(win).
		Use(lifecycle).
		Bootstrap(ctx)
	require.NoError(t, err)
	flush(t, lp)
	f.fw = fw
	return f
}

func TestAllWindowsClosedQuits(t *testing.T) {
	f := newLifecycleFixture(t, host.PlatformLinux, false)

	onlyWindow(t, f.host).Close()
	assert.Equal(t, 1, f.host.QuitCalls())
}

func TestAllWindowsClosedStaysActiveOnDarwin(t *testing.T) {
	f := newLifecycleFixture(t, host.PlatformDarwin, false)

	onlyWindow(t, f.host).Close()
	assert.Equal(t, 0, f.host.QuitCalls())
}

func TestActivateRecreatesMainWindow(t *testing.T) {
	f := newLifecycleFixture(t, host.PlatformDarwin, false)
	original := onlyWindow(t, f.host)

	original.Close()
	flush(t, f.loop)
	require.Nil(t, f.fw.MainWindow())

	f.host.Activate()
	flush(t, f.loop)
	flush(t, f.loop)

	recreated := onlyWindow(t, f.host)
	assert.NotSame(t, original, recreated)
	assert.Same(t, recreated, f.fw.MainWindow())
	assert.True(t, recreated.Visible())
}

func TestActivateFocusesExistingWindow(t *testing.T) {
	f := newLifecycleFixture(t, host.PlatformLinux, false)
	w := onlyWindow(t, f.host)
	w.Minimize()

	f.host.Activate()
	flush(t, f.loop)

	assert.Equal(t, 1, f.host.WindowCount())
	assert.False(t, w.IsMinimized())
	assert.True(t, w.Focused())
}

func TestSignalQuits(t *testing.T) {
	f := newLifecycleFixture(t, host.PlatformLinux, false)

	f.signals <- syscall.SIGTERM
	select {
	case <-f.host.Done():
	case <-time.After(time.Second):
		t.Fatal("host did not quit on SIGTERM")
	}
}

func TestPanicIsFatalInProduction(t *testing.T) {
	f := newLifecycleFixture(t, host.PlatformLinux, false)

	f.loop.Post(func() { panic("boom") })

	select {
	case code := <-f.exits:
		assert.Equal(t, ExitCodePanic, code)
	case <-time.After(time.Second):
		t.Fatal("panic did not terminate")
	}
	assert.Equal(t, 1, f.host.QuitCalls())
}

func TestPanicIsLoggedInDevelopment(t *testing.T) {
	f := newLifecycleFixture(t, host.PlatformLinux, true)

	f.loop.Post(func() { panic("boom") })
	f.loop.Go(context.Background(), "worker", func(context.Context) error { panic("worker boom") })
	f.cancel()
	f.loop.Wait()
	flush(t, f.loop)

	assert.Empty(t, f.exits)
	assert.Equal(t, 0, f.host.QuitCalls())
}

func TestBackgroundErrorIsNotFatal(t *testing.T) {
	f := newLifecycleFixture(t, host.PlatformLinux, false)

	f.loop.Go(context.Background(), "fetch", func(context.Context) error { return errors.New("offline") })
	f.cancel()
	f.loop.Wait()

	assert.Empty(t, f.exits)
	assert.Equal(t, 0, f.host.QuitCalls())
}
