package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/deskhost/deskhost/internal/appctx"
)

// ErrHalt is returned by a loader to stop bootstrap without an error, for
// example when another instance already owns the application.
var ErrHalt = errors.New("bootstrap halted")

// ErrAlreadyStarted is returned by a second call to Bootstrap.
var ErrAlreadyStarted = errors.New("bootstrap already started")

// Loader is one unit of startup work. Load runs on the event loop, so it may
// use app directly, and must not block on work that itself needs the loop.
type Loader interface {
	Name() string
	Load(ctx context.Context, app *appctx.Context) error
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc struct {
	LoaderName string
	Fn         func(ctx context.Context, app *appctx.Context) error
}

func (f LoaderFunc) Name() string { return f.LoaderName }

func (f LoaderFunc) Load(ctx context.Context, app *appctx.Context) error {
	return f.Fn(ctx, app)
}

// LoaderError reports which loader aborted the bootstrap.
type LoaderError struct {
	Loader string
	Index  int
	Err    error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("loader %q (#%d) failed: %v", e.Loader, e.Index+1, e.Err)
}

func (e *LoaderError) Unwrap() error {
	return e.Err
}
