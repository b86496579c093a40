package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestPostRunsInOrder(t *testing.T) {
	l, _ := startLoop(t)

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Call(context.Background(), func() {}))

	want := make([]int, 50)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestCallWaitsForResult(t *testing.T) {
	l, _ := startLoop(t)

	var value string
	err := l.Call(context.Background(), func() {
		time.Sleep(10 * time.Millisecond)
		value = "done"
	})
	require.NoError(t, err)
	assert.Equal(t, "done", value)
}

func TestCallFromLoopRunsInline(t *testing.T) {
	l, _ := startLoop(t)

	var order []string
	err := l.Call(context.Background(), func() {
		assert.True(t, l.OnLoop())
		inner := l.Call(context.Background(), func() { order = append(order, "inner") })
		assert.NoError(t, inner)
		order = append(order, "outer")
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"inner", "outer"}, order)
	assert.False(t, l.OnLoop())
}

func TestPanicIsRecoveredAndReported(t *testing.T) {
	l, _ := startLoop(t)

	reported := make(chan *PanicError, 1)
	l.SetPanicHandler(func(p *PanicError) { reported <- p })

	l.Post(func() { panic("boom") })

	select {
	case p := <-reported:
		assert.Equal(t, "boom", p.Value)
		assert.NotEmpty(t, p.Stack)
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}

	// loop keeps running after a panic
	ran := false
	require.NoError(t, l.Call(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestGoReportsErrorsAndPanics(t *testing.T) {
	l, _ := startLoop(t)

	var mu sync.Mutex
	var errs []error
	var panics []*PanicError
	l.SetErrorHandler(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	})
	l.SetPanicHandler(func(p *PanicError) {
		mu.Lock()
		defer mu.Unlock()
		panics = append(panics, p)
	})

	ctx := context.Background()
	l.Go(ctx, "failing", func(context.Context) error { return errors.New("rejected") })
	l.Go(ctx, "cancelled", func(context.Context) error { return context.Canceled })
	l.Go(ctx, "ok", func(context.Context) error { return nil })
	l.Go(ctx, "panicking", func(context.Context) error { panic("bad state") })
	l.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "failing: rejected")
	require.Len(t, panics, 1)
	assert.Equal(t, "bad state", panics[0].Value)
}

func TestPostAfterStop(t *testing.T) {
	l := New(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	cancel()
	<-l.Done()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Call(context.Background(), func() {}), ErrStopped)
}

func TestCallRespectsContext(t *testing.T) {
	l, _ := startLoop(t)

	block := make(chan struct{})
	l.Post(func() { <-block })
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Call(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
