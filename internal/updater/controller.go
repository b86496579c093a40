// Package updater checks a release feed on a timer and walks each candidate
// through download, confirmation and installation. Every cycle is driven by a
// whitelisted state machine; feed and transport failures are classified and
// contained.
package updater

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/appctx"
	"github.com/deskhost/deskhost/internal/bootstrap"
	"github.com/deskhost/deskhost/internal/config"
	"github.com/deskhost/deskhost/internal/host"
	"github.com/deskhost/deskhost/internal/loop"
	"github.com/deskhost/deskhost/internal/storage"
)

// RecordStore persists the outcome of each cycle.
type RecordStore interface {
	SaveUpdateRecord(record *storage.UpdateRecord) error
}

// Observer receives controller events, typically for metrics.
type Observer interface {
	StateChanged(from, to State)
	CycleFinished(outcome State, elapsed time.Duration)
	ErrorClassified(class ErrorClass)
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

func WithStore(store RecordStore) ControllerOption {
	return func(c *Controller) { c.store = store }
}

func WithObserver(obs Observer) ControllerOption {
	return func(c *Controller) { c.observer = obs }
}

// WithDownloadDir sets where artifacts are stored until installed.
func WithDownloadDir(dir string) ControllerOption {
	return func(c *Controller) { c.downloadDir = dir }
}

// WithAssetSelector replaces the GOOS/GOARCH asset matching.
func WithAssetSelector(fn func(*Release) (Asset, error)) ControllerOption {
	return func(c *Controller) { c.selectAsset = fn }
}

// Status is a snapshot of the controller for diagnostics.
type Status struct {
	Enabled        bool       `json:"enabled"`
	State          State      `json:"state"`
	Busy           bool       `json:"busy"`
	CurrentVersion string     `json:"current_version"`
	LatestVersion  string     `json:"latest_version,omitempty"`
	LastCheck      *time.Time `json:"last_check,omitempty"`
	LastError      *Diagnosis `json:"last_error,omitempty"`
	Pending        string     `json:"pending_artifact,omitempty"`
}

// Controller is the update loader and the owner of the update state machine.
type Controller struct {
	host      host.Host
	loop      *loop.Loop
	feed      Feed
	installer Installer
	opts      Options
	logger    *zap.Logger

	machine     *Machine
	store       RecordStore
	observer    Observer
	downloadDir string
	selectAsset func(*Release) (Asset, error)

	busy atomic.Bool

	mu        sync.Mutex
	started   bool
	app       *appctx.Context
	settings  config.Settings
	pending   *Artifact
	relaunch  bool
	finalized bool
	lastCheck time.Time
	latest    *Release
	lastError *Diagnosis
}

var _ bootstrap.Loader = (*Controller)(nil)

// NewController creates the update loader.
func NewController(h host.Host, lp *loop.Loop, feed Feed, installer Installer, opts Options, logger *zap.Logger, options ...ControllerOption) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	c := &Controller{
		host:        h,
		loop:        lp,
		feed:        feed,
		installer:   installer,
		opts:        opts,
		logger:      logger.Named("updater"),
		machine:     NewMachine(),
		selectAsset: selectCurrentAsset,
	}
	for _, opt := range options {
		opt(c)
	}

	c.machine.Subscribe(func(from, to State) {
		c.logger.Debug("Update state changed", zap.String("from", string(from)), zap.String("to", string(to)))
		if c.observer != nil {
			c.observer.StateChanged(from, to)
		}
	})
	return c
}

func (c *Controller) Name() string { return "auto-updater" }

// Load starts the periodic scheduler. The first check runs after one
// CheckInterval. Nothing is started in development mode.
func (c *Controller) Load(ctx context.Context, app *appctx.Context) error {
	settings := app.Settings()
	if settings.IsDev {
		c.logger.Info("Development mode, update checks disabled")
		return nil
	}

	c.mu.Lock()
	c.started = true
	c.app = app
	c.settings = settings
	c.mu.Unlock()

	c.logger.Info("Update controller configured",
		zap.String("feed", c.feed.Endpoint()),
		zap.String("current_version", settings.App.Version),
		zap.Bool("allow_prerelease", c.opts.AllowPrerelease),
		zap.Bool("auto_download", c.opts.AutoDownload),
		zap.Bool("silent", c.opts.Silent),
		zap.Duration("check_interval", c.opts.CheckInterval),
		zap.Bool("credential", c.feed.HasCredential()))

	c.loop.Go(ctx, "update-scheduler", c.schedule)
	return nil
}

func (c *Controller) schedule(ctx context.Context) error {
	timer := time.NewTimer(c.opts.CheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if _, err := c.CheckNow(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
			return err
		}
		if c.updatePending() {
			c.logger.Info("Update pending, periodic checks stopped")
			return nil
		}
		timer.Reset(c.opts.CheckInterval)
	}
}

// CheckNow runs one update cycle and returns the resulting status. Feed
// failures are reported in Status.LastError, not as an error.
func (c *Controller) CheckNow(ctx context.Context) (Status, error) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return Status{}, ErrNotStarted
	}
	if !c.busy.CompareAndSwap(false, true) {
		return c.Status(), ErrCycleInProgress
	}

	start := time.Now()
	var outcome State
	func() {
		defer c.busy.Store(false)
		outcome = c.runCycle(ctx)
	}()

	if c.observer != nil {
		c.observer.CycleFinished(outcome, time.Since(start))
	}
	c.record(outcome)
	return c.Status(), nil
}

func (c *Controller) runCycle(ctx context.Context) State {
	if c.updatePending() {
		c.logger.Info("Update already pending installation")
		return c.machine.State()
	}

	current := c.currentVersion()
	c.transition(StateChecking)
	c.logger.Info("Checking for updates", zap.String("current", current), zap.String("feed", c.feed.Endpoint()))

	release, err := c.feed.Check(ctx, CheckRequest{CurrentVersion: current, AllowPrerelease: c.opts.AllowPrerelease})
	c.mu.Lock()
	c.lastCheck = time.Now()
	c.mu.Unlock()
	if err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	c.lastError = nil
	c.mu.Unlock()

	if release == nil {
		c.logger.Info("Already running the latest version", zap.String("version", current))
		c.transition(StateNoUpdate)
		c.transition(StateIdle)
		return StateNoUpdate
	}

	if reason := c.rejectReason(release, current); reason != "" {
		c.logger.Warn("Ignoring update candidate",
			zap.String("candidate", release.TagName),
			zap.String("current", current),
			zap.String("reason", reason))
		c.transition(StateIdle)
		return StateIdle
	}

	c.mu.Lock()
	c.latest = release
	c.mu.Unlock()
	c.transition(StateAvailable)
	c.logAvailable(release, current)

	if !c.confirmDownload(ctx, release) {
		c.transition(StateSkipped)
		c.transition(StateIdle)
		return StateSkipped
	}

	c.transition(StateDownloading)
	artifact, err := c.download(ctx, release)
	c.setWindowProgress(host.RemoveProgress)
	if err != nil {
		return c.fail(err)
	}

	c.mu.Lock()
	c.pending = artifact
	c.mu.Unlock()
	c.transition(StateDownloaded)
	c.logger.Info("Update downloaded", zap.String("version", release.Version()), zap.String("path", artifact.Path))

	if !c.confirmRestart(ctx, release) {
		c.transition(StateDeferred)
		c.logger.Info("Update will be installed when the application quits", zap.String("version", release.Version()))
		return StateDeferred
	}

	c.transition(StateInstalling)
	if err := c.installer.Install(ctx, artifact); err != nil {
		c.logger.Error("Failed to install update, retrying when the application quits", zap.Error(err))
		c.transition(StateDeferred)
		return StateDeferred
	}

	c.mu.Lock()
	c.pending = nil
	c.relaunch = true
	c.mu.Unlock()

	c.logger.Info("Update installed, restarting", zap.String("version", release.Version()))
	c.host.Quit()
	return StateInstalling
}

// rejectReason re-validates a candidate independently of the feed.
func (c *Controller) rejectReason(release *Release, current string) string {
	if !IsNewer(release.TagName, current) {
		return "not newer than the running version"
	}
	if IsPrerelease(release.TagName) && !c.opts.AllowPrerelease {
		return "pre-release updates are disabled"
	}
	return ""
}

func (c *Controller) confirmDownload(ctx context.Context, release *Release) bool {
	if c.opts.Silent {
		if !c.opts.AutoDownload {
			c.notifyAvailable(release)
			return false
		}
		c.logger.Info("Silent mode, downloading update")
		return true
	}

	win := c.mainWindow(ctx)
	if win == nil {
		return c.proceedWithoutWindow(release)
	}

	releaseURL := c.releaseURL(release)
	dialog := availableDialog(c.appName(), c.currentVersion(), release, releaseURL)
	choice, err := c.host.ShowMessageBox(ctx, win, dialog)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.logger.Warn("Update prompt failed", zap.Error(err))
		return c.proceedWithoutWindow(release)
	}

	switch choice {
	case availableUpdateNow:
		c.logger.Info("User accepted the update")
		return true
	case availableViewRelease:
		c.logger.Info("User opened the release page", zap.String("url", releaseURL))
		if err := c.host.OpenExternal(releaseURL); err != nil {
			c.logger.Warn("Failed to open release page", zap.Error(err))
		}
		return false
	default:
		c.logger.Info("User postponed the update")
		return false
	}
}

func (c *Controller) proceedWithoutWindow(release *Release) bool {
	if !c.opts.AutoDownload {
		c.notifyAvailable(release)
		return false
	}
	c.logger.Info("No main window, downloading update without prompting")
	return true
}

func (c *Controller) confirmRestart(ctx context.Context, release *Release) bool {
	if c.opts.Silent {
		return false
	}
	win := c.mainWindow(ctx)
	if win == nil {
		return false
	}
	choice, err := c.host.ShowMessageBox(ctx, win, restartDialog(release))
	if err != nil {
		c.logger.Warn("Restart prompt failed", zap.Error(err))
		return false
	}
	return choice == restartNow
}

func (c *Controller) download(ctx context.Context, release *Release) (*Artifact, error) {
	asset, err := c.selectAsset(release)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Downloading update",
		zap.String("asset", asset.Name),
		zap.String("size", formatBytes(asset.Size)))
	return download(ctx, c.feed, c.downloadDir, release, asset, c.onProgress)
}

func (c *Controller) onProgress(p Progress) {
	percent := math.Round(p.Percent)
	c.logger.Info("Download progress",
		zap.Float64("percent", percent),
		zap.Int64("transferred", p.Transferred),
		zap.Int64("total", p.Total))
	c.setWindowProgress(percent / 100)
}

// setWindowProgress updates the main window, if any, on the event loop.
func (c *Controller) setWindowProgress(progress float64) {
	app := c.appContext()
	if app == nil {
		return
	}
	c.loop.Post(func() {
		if w := app.MainWindow(); w != nil {
			w.SetProgressBar(progress)
		}
	})
}

func (c *Controller) fail(err error) State {
	releasesURL := c.feed.ReleasesURL()
	d := Classify(err, releasesURL)

	c.transition(StateError)
	c.logger.Error(d.Summary, zap.String("class", string(d.Class)), zap.Error(err))
	for i, step := range d.Remediation {
		c.logger.Info("Suggested fix", zap.Int("step", i+1), zap.String("action", step))
	}
	for i, step := range FallbackSteps(releasesURL) {
		c.logger.Info("Alternative", zap.Int("step", i+1), zap.String("action", step))
	}

	c.mu.Lock()
	c.lastError = &d
	c.mu.Unlock()
	if c.observer != nil {
		c.observer.ErrorClassified(d.Class)
	}

	c.transition(StateIdle)
	return StateError
}

func (c *Controller) logAvailable(release *Release, current string) {
	published := ""
	if !release.PublishedAt.IsZero() {
		published = release.PublishedAt.Format(time.RFC3339)
	}
	c.logger.Info("Update available",
		zap.String("current", current),
		zap.String("latest", release.Version()),
		zap.String("release_page", c.releaseURL(release)),
		zap.Bool("prerelease", IsPrerelease(release.TagName)),
		zap.String("published", published))
	for _, asset := range release.Assets {
		c.logger.Info("Release file", zap.String("name", asset.Name), zap.String("size", formatBytes(asset.Size)))
	}
}

func (c *Controller) notifyAvailable(release *Release) {
	c.logger.Info("Update available but automatic download is disabled", zap.String("version", release.Version()))
	body := fmt.Sprintf("%s %s is available: %s", c.appName(), release.Version(), c.releaseURL(release))
	if err := c.host.Notify("Update available", body); err != nil {
		c.logger.Warn("Failed to show notification", zap.Error(err))
	}
}

func (c *Controller) releaseURL(release *Release) string {
	if release.HTMLURL != "" {
		return release.HTMLURL
	}
	return c.feed.ReleasesURL() + "/tag/" + release.TagName
}

func (c *Controller) transition(to State) {
	if err := c.machine.Transition(to); err != nil {
		c.logger.Error("Rejected update state change", zap.Error(err))
	}
}

func (c *Controller) mainWindow(ctx context.Context) host.Window {
	app := c.appContext()
	if app == nil {
		return nil
	}
	var w host.Window
	if err := c.loop.Call(ctx, func() { w = app.MainWindow() }); err != nil {
		return nil
	}
	return w
}

func (c *Controller) appContext() *appctx.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.app
}

func (c *Controller) currentVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.App.Version
}

func (c *Controller) appName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.App.Name
}

func (c *Controller) updatePending() bool {
	s := c.machine.State()
	return s == StateDeferred || s == StateInstalling
}

func (c *Controller) record(outcome State) {
	if c.store == nil {
		return
	}
	st := c.Status()
	rec := &storage.UpdateRecord{
		CurrentVersion:  st.CurrentVersion,
		LatestVersion:   st.LatestVersion,
		State:           string(outcome),
		PendingArtifact: st.Pending,
	}
	if st.LastCheck != nil {
		rec.CheckedAt = *st.LastCheck
	}
	if outcome == StateError && st.LastError != nil {
		rec.ErrorClass = string(st.LastError.Class)
		rec.Error = st.LastError.Err
	}
	if err := c.store.SaveUpdateRecord(rec); err != nil {
		c.logger.Warn("Failed to persist update record", zap.Error(err))
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.machine.State()
}

// Status returns a snapshot for diagnostics.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Enabled:        c.started,
		State:          c.machine.State(),
		Busy:           c.busy.Load(),
		CurrentVersion: c.settings.App.Version,
		LastError:      c.lastError,
	}
	if c.latest != nil {
		st.LatestVersion = c.latest.Version()
	}
	if !c.lastCheck.IsZero() {
		t := c.lastCheck
		st.LastCheck = &t
	}
	if c.pending != nil {
		st.Pending = c.pending.Path
	}
	return st
}

// Finalize runs once at shutdown: it installs a deferred update and relaunches
// the application when an accepted install asked for it.
func (c *Controller) Finalize(ctx context.Context) error {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return nil
	}
	c.finalized = true
	pending, relaunch := c.pending, c.relaunch
	c.mu.Unlock()

	if pending != nil && c.machine.State() == StateDeferred {
		c.logger.Info("Installing pending update on quit", zap.String("version", pending.Release.Version()))
		if err := c.installer.Install(ctx, pending); err != nil {
			return fmt.Errorf("failed to install pending update: %w", err)
		}
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
	}

	if relaunch {
		return c.installer.Relaunch()
	}
	return nil
}
