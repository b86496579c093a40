//go:build windows

package instance

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	winio "github.com/Microsoft/go-winio"
	"go.uber.org/zap"
)

// Endpoint returns a per-user named pipe for appName scoped to dataDir.
func Endpoint(appName, dataDir string) string {
	user := sanitizeName(os.Getenv("USERNAME"))
	return `\\.\pipe\` + sanitizeName(appName) + "-" + user + "-" + scopeHash(dataDir)
}

func listen(ctx context.Context, pipeName string, logger *zap.Logger) (net.Listener, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if conn, err := dial(probeCtx, pipeName); err == nil {
		conn.Close()
		return nil, ErrAlreadyRunning
	}

	// An empty security descriptor restricts the pipe to the current user.
	ln, err := winio.ListenPipe(pipeName, &winio.PipeConfig{
		InputBufferSize:  4096,
		OutputBufferSize: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create lock pipe: %w", err)
	}
	logger.Debug("Lock pipe created", zap.String("pipe", pipeName))
	return ln, nil
}

func dial(ctx context.Context, pipeName string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, pipeName)
}
