//go:build !nogui

package desktop

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"net/url"
	"os"
	"runtime"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/host"
)

// Window wraps a fyne.Window with a markdown content area and a progress bar.
type Window struct {
	host    *Host
	id      string
	opts    host.WindowOptions
	tracked bool

	// fyne objects, touched only on the fyne thread
	win      fyne.Window
	content  *widget.RichText
	progress *widget.ProgressBar

	mu          sync.Mutex
	destroyed   bool
	closed      chan struct{}
	readyFns    []func()
	readyFired  bool
	closedFns   []func()
	openHandler func(url string) host.WindowOpenAction
}

var _ host.Window = (*Window)(nil)

func (w *Window) build() {
	w.win = w.host.app.NewWindow(w.opts.Title)

	w.content = widget.NewRichText()
	w.content.Wrapping = fyne.TextWrapWord
	w.progress = widget.NewProgressBar()
	w.progress.Hide()

	minSize := canvas.NewRectangle(color.Transparent)
	minSize.SetMinSize(fyne.NewSize(float32(w.opts.MinWidth), float32(w.opts.MinHeight)))

	body := container.NewStack(minSize, container.NewVScroll(w.content))
	w.win.SetContent(container.NewBorder(nil, w.progress, nil, nil, body))
	if w.opts.Width > 0 && w.opts.Height > 0 {
		w.win.Resize(fyne.NewSize(float32(w.opts.Width), float32(w.opts.Height)))
	}
	w.win.CenterOnScreen()
	w.win.SetOnClosed(w.handleClosed)
}

func (w *Window) handleClosed() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	close(w.closed)
	handlers := append([]func(){}, w.closedFns...)
	w.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
	if w.tracked {
		w.host.removeWindow(w)
	}
}

func (w *Window) ID() string { return w.id }

func (w *Window) Show() {
	fyne.Do(w.win.Show)
}

func (w *Window) Focus() {
	fyne.Do(w.win.RequestFocus)
}

// Restore re-shows the window; fyne exposes no minimized state.
func (w *Window) Restore() {
	fyne.Do(w.win.Show)
}

func (w *Window) IsMinimized() bool { return false }

func (w *Window) IsDestroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

func (w *Window) Close() {
	if w.IsDestroyed() {
		return
	}
	fyne.Do(w.win.Close)
}

func (w *Window) SetProgressBar(progress float64) {
	if w.IsDestroyed() {
		return
	}
	fyne.Do(func() {
		if progress < 0 {
			w.progress.Hide()
			return
		}
		if progress > 1 {
			progress = 1
		}
		w.progress.SetValue(progress)
		w.progress.Show()
	})
}

// OpenDevTools opens a diagnostics window with runtime statistics for this process.
func (w *Window) OpenDevTools() {
	diag := w.host.createWindow(host.WindowOptions{
		Title:  fmt.Sprintf("Diagnostics (%s)", w.opts.Title),
		Width:  480,
		Height: 360,
	}, false)

	fyne.Do(func() {
		stats := widget.NewLabel(runtimeStats(w.id))
		refresh := widget.NewButton("Refresh", func() { stats.SetText(runtimeStats(w.id)) })
		diag.win.SetContent(container.NewBorder(nil, refresh, nil, nil, container.NewVScroll(stats)))
	})
}

func runtimeStats(windowID string) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return fmt.Sprintf("window: %s\ngo: %s %s/%s\ngoroutines: %d\nheap in use: %d KiB\ngc cycles: %d\nsampled: %s",
		windowID, runtime.Version(), runtime.GOOS, runtime.GOARCH,
		runtime.NumGoroutine(), m.HeapInuse/1024, m.NumGC, time.Now().Format(time.TimeOnly))
}

// LoadContent renders the markdown file at path. An empty path shows the window title.
func (w *Window) LoadContent(ctx context.Context, path string) error {
	markdown := "# " + w.opts.Title
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to load content %s: %w", path, err)
		}
		markdown = string(data)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.IsDestroyed() {
		return fmt.Errorf("window %s destroyed before content loaded", w.id)
	}

	fyne.DoAndWait(func() {
		w.content.ParseMarkdown(markdown)
		w.routeLinks()
		w.content.Refresh()
	})

	w.mu.Lock()
	var handlers []func()
	if !w.readyFired {
		w.readyFired = true
		handlers = append(handlers, w.readyFns...)
	}
	w.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
	return nil
}

// routeLinks sends every hyperlink tap through the window-open handler.
func (w *Window) routeLinks() {
	for _, seg := range w.content.Segments {
		link, ok := seg.(*widget.HyperlinkSegment)
		if !ok || link.URL == nil {
			continue
		}
		target := link.URL
		link.OnTapped = func() { w.requestOpen(target) }
	}
}

func (w *Window) requestOpen(target *url.URL) {
	w.mu.Lock()
	handler := w.openHandler
	w.mu.Unlock()

	if handler != nil && handler(target.String()) == host.WindowOpenDeny {
		return
	}
	if err := w.host.app.OpenURL(target); err != nil {
		w.host.logger.Warn("Failed to open link", zap.String("url", target.String()), zap.Error(err))
	}
}

func (w *Window) SetWindowOpenHandler(fn func(url string) host.WindowOpenAction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.openHandler = fn
}

func (w *Window) OnReadyToShow(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readyFns = append(w.readyFns, fn)
}

func (w *Window) OnClosed(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closedFns = append(w.closedFns, fn)
}

// showMessageBox shows a modal dialog over this window and waits for a choice.
func (w *Window) showMessageBox(ctx context.Context, opts host.MessageBoxOptions) (int, error) {
	if len(opts.Buttons) == 0 {
		opts.Buttons = []string{"OK"}
	}

	result := make(chan int, 1)
	choose := func(i int) {
		select {
		case result <- i:
		default:
		}
	}

	var d *dialog.CustomDialog
	fyne.DoAndWait(func() {
		message := widget.NewLabelWithStyle(opts.Message, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
		message.Wrapping = fyne.TextWrapWord
		body := container.NewVBox(message)
		if opts.Detail != "" {
			detail := widget.NewLabel(opts.Detail)
			detail.Wrapping = fyne.TextWrapWord
			body.Add(detail)
		}

		d = dialog.NewCustomWithoutButtons(opts.Title, body, w.win)
		buttons := make([]fyne.CanvasObject, 0, len(opts.Buttons))
		for i, label := range opts.Buttons {
			i := i
			b := widget.NewButton(label, func() {
				choose(i)
				d.Hide()
			})
			if i == opts.DefaultID {
				b.Importance = widget.HighImportance
			}
			buttons = append(buttons, b)
		}
		d.SetButtons(buttons)
		d.SetOnClosed(func() { choose(opts.CancelID) })
		d.Show()
	})

	select {
	case i := <-result:
		return i, nil
	case <-w.closed:
		return opts.CancelID, errors.New("parent window destroyed")
	case <-ctx.Done():
		fyne.Do(d.Hide)
		return opts.CancelID, ctx.Err()
	}
}
