// Package loop provides the single logical thread on which all shared host
// state is read and written. Host callbacks, timers and background results are
// posted to the loop instead of touching state directly.
package loop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"go.uber.org/zap"
)

// ErrStopped is returned when work is submitted to a loop that is no longer running.
var ErrStopped = errors.New("event loop stopped")

// PanicError carries a recovered panic value and the stack at the point of recovery.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Loop runs posted tasks one at a time, in submission order, on one goroutine.
type Loop struct {
	logger *zap.Logger

	tasks   chan func()
	stopped chan struct{}
	once    sync.Once
	owner   atomic.Int64
	running atomic.Bool

	handlersMu sync.RWMutex
	onPanic    func(*PanicError)
	onError    func(error)

	wg sync.WaitGroup
}

// New creates a loop. Call Run to start processing.
func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		logger:  logger.Named("loop"),
		tasks:   make(chan func(), 256),
		stopped: make(chan struct{}),
	}
	l.onPanic = func(p *PanicError) {
		l.logger.Error("Recovered panic", zap.Any("panic", p.Value), zap.ByteString("stack", p.Stack))
	}
	l.onError = func(err error) {
		l.logger.Error("Unhandled background error", zap.Error(err))
	}
	return l
}

// Run processes tasks until ctx is cancelled. Tasks still queued at that point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("event loop already running")
	}
	l.owner.Store(goid.Get())
	defer l.stop()

	l.logger.Debug("Event loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("Event loop stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		case fn := <-l.tasks:
			l.exec(fn)
		}
	}
}

func (l *Loop) stop() {
	l.once.Do(func() {
		l.owner.Store(0)
		close(l.stopped)
	})
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panicHandler()(&PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	fn()
}

// OnLoop reports whether the caller is running on the loop goroutine.
func (l *Loop) OnLoop() bool {
	owner := l.owner.Load()
	return owner != 0 && owner == goid.Get()
}

// Post queues fn. It returns false if the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.stopped:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish. Called from the loop
// itself, fn runs inline.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	if l.OnLoop() {
		fn()
		return nil
	}

	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		// the task may have run just before shutdown
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Go runs fn on a new goroutine. A returned error goes to the error handler,
// a panic to the panic handler.
func (l *Loop) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.panicHandler()(&PanicError{Value: r, Stack: debug.Stack()})
			}
		}()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.errorHandler()(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// Wait blocks until every goroutine started with Go has returned.
func (l *Loop) Wait() {
	l.wg.Wait()
}

// SetPanicHandler replaces the handler for panics recovered on the loop or in Go goroutines.
func (l *Loop) SetPanicHandler(fn func(*PanicError)) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.onPanic = fn
}

// SetErrorHandler replaces the handler for errors returned from Go goroutines.
func (l *Loop) SetErrorHandler(fn func(error)) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.onError = fn
}

func (l *Loop) panicHandler() func(*PanicError) {
	l.handlersMu.RLock()
	defer l.handlersMu.RUnlock()
	return l.onPanic
}

func (l *Loop) errorHandler() func(error) {
	l.handlersMu.RLock()
	defer l.handlersMu.RUnlock()
	return l.onError
}
