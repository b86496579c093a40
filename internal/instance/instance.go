// Package instance enforces one running process per user and application. The
// lock is a unix socket (or a named pipe on Windows) that the owning process
// listens on; later launches detect it, hand over their arguments and exit.
package instance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Acquire when another process holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

const ioTimeout = 5 * time.Second

// Message is sent by a second launch to the owning process.
type Message struct {
	ID         string    `json:"id"`
	PID        int       `json:"pid"`
	Args       []string  `json:"args"`
	WorkingDir string    `json:"working_dir"`
	SentAt     time.Time `json:"sent_at"`
}

type ack struct {
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
}

// NewMessage describes the current process launched with args.
func NewMessage(args []string) Message {
	wd, _ := os.Getwd()
	return Message{
		ID:         uuid.NewString(),
		PID:        os.Getpid(),
		Args:       args,
		WorkingDir: wd,
		SentAt:     time.Now().UTC(),
	}
}

// Lock is the held single-instance lock.
type Lock struct {
	endpoint string
	ln       net.Listener
	logger   *zap.Logger

	once sync.Once
	wg   sync.WaitGroup
}

// Acquire takes the lock at endpoint. It returns ErrAlreadyRunning when a live
// process already holds it; stale locks left by crashed processes are reclaimed.
func Acquire(ctx context.Context, endpoint string, logger *zap.Logger) (*Lock, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("instance")

	ln, err := listen(ctx, endpoint, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Single-instance lock acquired", zap.String("endpoint", endpoint))
	return &Lock{endpoint: endpoint, ln: ln, logger: logger}, nil
}

// Endpoint returns the address the lock listens on.
func (l *Lock) Endpoint() string {
	return l.endpoint
}

// Serve handles second-launch messages in the background until Close.
// handler runs on the accepting goroutine.
func (l *Lock) Serve(handler func(Message)) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			conn, err := l.ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				l.logger.Warn("Failed to accept second-instance connection", zap.Error(err))
				continue
			}
			l.handle(conn, handler)
		}
	}()
}

func (l *Lock) handle(conn net.Conn, handler func(Message)) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	var msg Message
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		l.logger.Warn("Malformed second-instance message", zap.Error(err))
		return
	}

	l.logger.Info("Second instance launched",
		zap.String("id", msg.ID),
		zap.Int("pid", msg.PID),
		zap.Strings("args", msg.Args))

	handler(msg)

	if err := json.NewEncoder(conn).Encode(ack{ID: msg.ID, Accepted: true}); err != nil {
		l.logger.Debug("Failed to acknowledge second instance", zap.Error(err))
	}
}

// Close releases the lock and waits for the accept loop to exit.
func (l *Lock) Close() error {
	var err error
	l.once.Do(func() {
		err = l.ln.Close()
		l.wg.Wait()
		l.logger.Info("Single-instance lock released", zap.String("endpoint", l.endpoint))
	})
	return err
}

// Notify delivers msg to the process holding the lock at endpoint and waits
// for its acknowledgement.
func Notify(ctx context.Context, endpoint string, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()

	conn, err := dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to reach running instance: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return fmt.Errorf("failed to send launch arguments: %w", err)
	}

	var reply ack
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return fmt.Errorf("no acknowledgement from running instance: %w", err)
	}
	if !reply.Accepted || reply.ID != msg.ID {
		return fmt.Errorf("running instance rejected launch %s", msg.ID)
	}
	return nil
}
