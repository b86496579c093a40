package observability

import (
	"context"
	"fmt"

	"github.com/deskhost/deskhost/internal/loop"
)

// CheckFunc adapts a function to HealthChecker.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string { return c.CheckName }

func (c CheckFunc) HealthCheck(ctx context.Context) error { return c.Fn(ctx) }

// Pinger is implemented by storage.BoltDB.
type Pinger interface {
	Ping() error
}

// DatabaseHealthChecker checks that the database accepts read transactions.
type DatabaseHealthChecker struct {
	name string
	db   Pinger
}

func NewDatabaseHealthChecker(name string, db Pinger) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{name: name, db: db}
}

func (c *DatabaseHealthChecker) Name() string { return c.name }

func (c *DatabaseHealthChecker) HealthCheck(_ context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database is nil")
	}
	return c.db.Ping()
}

// LoopHealthChecker verifies the event loop is running and responsive: a
// no-op must complete within the check timeout.
type LoopHealthChecker struct {
	loop *loop.Loop
}

func NewLoopHealthChecker(lp *loop.Loop) *LoopHealthChecker {
	return &LoopHealthChecker{loop: lp}
}

func (c *LoopHealthChecker) Name() string { return "event-loop" }

func (c *LoopHealthChecker) HealthCheck(ctx context.Context) error {
	if err := c.loop.Call(ctx, func() {}); err != nil {
		return fmt.Errorf("event loop unresponsive: %w", err)
	}
	return nil
}
