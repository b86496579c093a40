//go:build !windows

package instance

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Endpoint returns the lock socket path for appName inside dataDir.
func Endpoint(appName, dataDir string) string {
	return filepath.Join(dataDir, sanitizeName(appName)+".lock")
}

func listen(ctx context.Context, socketPath string, logger *zap.Logger) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return nil, fmt.Errorf("cannot create lock directory: %w", err)
	}

	// Probing, reclaiming and binding happen under one flock so that two
	// launches racing over a stale socket cannot both end up listening.
	unlock, err := lockGuard(socketPath + ".guard")
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := reclaimStaleSocket(ctx, socketPath, logger); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		if isAddrInUse(err) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("cannot create lock socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("cannot set lock socket permissions: %w", err)
	}

	if err := verifySocketOwnership(socketPath); err != nil {
		ln.Close()
		return nil, err
	}

	return ln, nil
}

// lockGuard takes an exclusive flock on path, blocking until it is free.
func lockGuard(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("cannot open lock guard: %w", err)
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot lock guard %s: %w", path, err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// reclaimStaleSocket removes a socket file left by a crashed process. A socket
// that still accepts connections belongs to a live instance.
func reclaimStaleSocket(ctx context.Context, socketPath string, logger *zap.Logger) error {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	conn, err := dial(probeCtx, socketPath)
	if err == nil {
		conn.Close()
		return ErrAlreadyRunning
	}

	logger.Info("Removing stale lock socket", zap.String("path", socketPath))
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot remove stale lock socket: %w", err)
	}
	return nil
}

func verifySocketOwnership(socketPath string) error {
	info, err := os.Stat(socketPath)
	if err != nil {
		return fmt.Errorf("cannot stat lock socket: %w", err)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("cannot get lock socket ownership info")
	}
	if uid := uint32(os.Getuid()); stat.Uid != uid {
		return fmt.Errorf("lock socket not owned by current user (uid=%d, expected=%d)", stat.Uid, uid)
	}
	return nil
}

func isAddrInUse(err error) bool {
	var errno syscall.Errno
	if opErr, ok := err.(*net.OpError); ok {
		if sysErr, ok := opErr.Err.(*os.SyscallError); ok {
			errno, _ = sysErr.Err.(syscall.Errno)
		}
	}
	return errno == syscall.EADDRINUSE
}

func dial(ctx context.Context, socketPath string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", socketPath)
}
