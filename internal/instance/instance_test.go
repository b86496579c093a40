//go:build !windows

package instance

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// shortDir keeps socket paths under the unix path length limit.
func shortDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "dh")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "my-app.lock"), Endpoint("My App", "/data"))
	assert.Equal(t, filepath.Join("/data", "app.lock"), Endpoint("", "/data"))
}

func TestAcquireAndContention(t *testing.T) {
	logger := zaptest.NewLogger(t)
	endpoint := Endpoint("deskhost", shortDir(t))

	first, err := Acquire(context.Background(), endpoint, logger)
	require.NoError(t, err)
	first.Serve(func(Message) {})
	defer first.Close()

	info, err := os.Stat(endpoint)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = Acquire(context.Background(), endpoint, logger)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestNotifyDeliversMessage(t *testing.T) {
	logger := zaptest.NewLogger(t)
	endpoint := Endpoint("deskhost", shortDir(t))

	lock, err := Acquire(context.Background(), endpoint, logger)
	require.NoError(t, err)
	defer lock.Close()

	received := make(chan Message, 1)
	lock.Serve(func(m Message) { received <- m })

	msg := NewMessage([]string{"deskhost", "deskhost://open/notes"})
	require.NoError(t, Notify(context.Background(), endpoint, msg))

	select {
	case got := <-received:
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, os.Getpid(), got.PID)
		assert.Equal(t, []string{"deskhost", "deskhost://open/notes"}, got.Args)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestNotifyWithoutOwner(t *testing.T) {
	endpoint := Endpoint("deskhost", shortDir(t))
	err := Notify(context.Background(), endpoint, NewMessage(nil))
	assert.Error(t, err)
}

func TestCloseReleasesLock(t *testing.T) {
	logger := zaptest.NewLogger(t)
	endpoint := Endpoint("deskhost", shortDir(t))

	lock, err := Acquire(context.Background(), endpoint, logger)
	require.NoError(t, err)
	lock.Serve(func(Message) {})
	require.NoError(t, lock.Close())
	require.NoError(t, lock.Close(), "close is idempotent")

	_, err = os.Stat(endpoint)
	assert.True(t, os.IsNotExist(err), "socket file removed on close")

	again, err := Acquire(context.Background(), endpoint, logger)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestAcquireReclaimsStaleSocket(t *testing.T) {
	logger := zaptest.NewLogger(t)
	endpoint := Endpoint("deskhost", shortDir(t))

	// Leave a socket file behind with nobody listening on it.
	ln, err := net.Listen("unix", endpoint)
	require.NoError(t, err)
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())
	_, err = os.Stat(endpoint)
	require.NoError(t, err)

	lock, err := Acquire(context.Background(), endpoint, logger)
	require.NoError(t, err)
	require.NoError(t, lock.Close())
}

func TestConcurrentReclaimHasSingleOwner(t *testing.T) {
	logger := zaptest.NewLogger(t)
	endpoint := Endpoint("deskhost", shortDir(t))

	ln, err := net.Listen("unix", endpoint)
	require.NoError(t, err)
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())

	const launches = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		owners []*Lock
		errs   []error
	)
	start := make(chan struct{})
	for i := 0; i < launches; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			lock, err := Acquire(context.Background(), endpoint, logger)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			owners = append(owners, lock)
		}()
	}
	close(start)
	wg.Wait()

	for _, lock := range owners {
		defer lock.Close()
	}
	require.Len(t, owners, 1, "exactly one launch owns the lock")
	require.Len(t, errs, launches-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrAlreadyRunning)
	}

	// The owner's socket survived the losing launches.
	conn, err := dial(context.Background(), endpoint)
	require.NoError(t, err)
	conn.Close()
}
