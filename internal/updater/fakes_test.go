package updater

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deskhost/deskhost/internal/appctx"
	"github.com/deskhost/deskhost/internal/bootstrap"
	"github.com/deskhost/deskhost/internal/config"
	"github.com/deskhost/deskhost/internal/host"
	"github.com/deskhost/deskhost/internal/host/headless"
	"github.com/deskhost/deskhost/internal/loop"
	"github.com/deskhost/deskhost/internal/storage"
)

type fakeFeed struct {
	mu          sync.Mutex
	release     *Release
	err         error
	block       chan struct{}
	progress    []float64
	downloadErr error
	checks      int
	downloads   int
	requests    []CheckRequest
}

func (f *fakeFeed) Check(ctx context.Context, req CheckRequest) (*Release, error) {
	f.mu.Lock()
	f.checks++
	f.requests = append(f.requests, req)
	block, release, err := f.block, f.release, f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return release, err
}

func (f *fakeFeed) Download(_ context.Context, _ Asset, dst io.Writer, progress func(Progress)) error {
	f.mu.Lock()
	f.downloads++
	steps, err := f.progress, f.downloadErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if _, err := dst.Write([]byte("new-binary")); err != nil {
		return err
	}
	for _, p := range steps {
		progress(Progress{Transferred: int64(p), Total: 100, Percent: p})
	}
	return nil
}

func (f *fakeFeed) Endpoint() string    { return "https://api.example.test/repos/acme/notes" }
func (f *fakeFeed) ReleasesURL() string { return "https://example.test/acme/notes/releases" }
func (f *fakeFeed) HasCredential() bool { return false }

func (f *fakeFeed) counts() (checks, downloads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks, f.downloads
}

type fakeInstaller struct {
	mu         sync.Mutex
	err        error
	installs   []string
	relaunches int
}

func (i *fakeInstaller) Install(_ context.Context, artifact *Artifact) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.installs = append(i.installs, artifact.Release.TagName)
	return i.err
}

func (i *fakeInstaller) Relaunch() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.relaunches++
	return nil
}

func (i *fakeInstaller) counts() (installs, relaunches int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.installs), i.relaunches
}

type recordingObserver struct {
	mu      sync.Mutex
	states  []State
	classes []ErrorClass
	cycles  []State
}

func (o *recordingObserver) StateChanged(_, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, to)
}

func (o *recordingObserver) CycleFinished(outcome State, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles = append(o.cycles, outcome)
}

func (o *recordingObserver) ErrorClassified(class ErrorClass) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.classes = append(o.classes, class)
}

func (o *recordingObserver) transitions() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.states...)
}

type memoryStore struct {
	mu      sync.Mutex
	records []storage.UpdateRecord
}

func (s *memoryStore) SaveUpdateRecord(r *storage.UpdateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *r)
	return nil
}

type fixtureConfig struct {
	opts    Options
	version string
	window  bool
	isDev   bool
	release *Release
	answer  func(host.MessageBoxOptions) int
	wrap    func(*headless.Host) host.Host
}

type fixture struct {
	host      *headless.Host
	loop      *loop.Loop
	feed      *fakeFeed
	installer *fakeInstaller
	observer  *recordingObserver
	store     *memoryStore
	ctrl      *Controller
	window    *headless.Window
}

func withWindow(cfg fixtureConfig) fixtureConfig {
	cfg.window = true
	return cfg
}

func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	logger := zaptest.NewLogger(t)

	lp := loop.New(logger)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	go func() { _ = lp.Run(loopCtx) }()
	t.Cleanup(func() {
		stopLoop()
		<-lp.Done()
	})

	answer := cfg.answer
	if answer == nil {
		answer = func(opts host.MessageBoxOptions) int { return opts.CancelID }
	}
	hh := headless.New(logger, headless.Options{Platform: host.PlatformLinux, Answer: answer})
	hh.MarkReady()
	var h host.Host = hh
	if cfg.wrap != nil {
		h = cfg.wrap(hh)
	}

	if cfg.opts == (Options{}) {
		cfg.opts = DefaultOptions()
	}
	if cfg.version == "" {
		cfg.version = "1.2.0"
	}

	f := &fixture{
		host:      hh,
		loop:      lp,
		feed:      &fakeFeed{release: cfg.release},
		installer: &fakeInstaller{},
		observer:  &recordingObserver{},
		store:     &memoryStore{},
	}
	f.ctrl = NewController(h, lp, f.feed, f.installer, cfg.opts, logger,
		WithDownloadDir(t.TempDir()),
		WithObserver(f.observer),
		WithStore(f.store),
		WithAssetSelector(func(*Release) (Asset, error) {
			return Asset{Name: "notes-linux-amd64", URL: "https://example.test/notes-linux-amd64", Size: 100}, nil
		}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	override := config.SettingsOverride{
		App:   config.AppSettings{Name: "notes", Version: cfg.version},
		IsDev: config.BoolPtr(cfg.isDev),
	}
	orch := bootstrap.New(h, lp, override, logger)
	if cfg.window {
		orch.Use(bootstrap.LoaderFunc{LoaderName: "window", Fn: func(_ context.Context, app *appctx.Context) error {
			w, err := h.CreateWindow(host.WindowOptions{Title: "notes"})
			if err != nil {
				return err
			}
			app.SetMainWindow(w)
			return nil
		}})
	}
	_, err := orch.Use(f.ctrl).Bootstrap(ctx)
	require.NoError(t, err)

	if cfg.window {
		windows := hh.Windows()
		require.Len(t, windows, 1)
		f.window = windows[0]
	}
	return f
}

// flush waits for every task already posted to the loop.
func (f *fixture) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, f.loop.Call(context.Background(), func() {}))
}

func answerByTitle(available, restart int) func(host.MessageBoxOptions) int {
	return func(opts host.MessageBoxOptions) int {
		if opts.Title == "Update ready" {
			return restart
		}
		return available
	}
}
