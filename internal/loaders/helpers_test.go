package loaders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/host/headless"
	"github.com/deskhost/deskhost/internal/loop"
)

func newRunningLoop(t testing.TB, logger *zap.Logger) *loop.Loop {
	lp := loop.New(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = lp.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-lp.Done()
	})
	return lp
}

func readyHost(logger *zap.Logger, platform string) *headless.Host {
	h := headless.New(logger, headless.Options{Platform: platform})
	h.MarkReady()
	return h
}

// flush waits until every task posted before it has run.
func flush(t testing.TB, lp *loop.Loop) {
	t.Helper()
	require.NoError(t, lp.Call(context.Background(), func() {}))
}

func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func onlyWindow(t testing.TB, h *headless.Host) *headless.Window {
	t.Helper()
	windows := h.Windows()
	require.Len(t, windows, 1)
	return windows[0]
}
