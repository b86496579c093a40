package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deskhost/deskhost/internal/loop"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping() error { return p.err }

func TestHealthzHandler(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []HealthChecker
		wantCode   int
		wantStatus string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "database healthy",
			checkers:   []HealthChecker{NewDatabaseHealthChecker("storage", fakePinger{})},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "one failing checker",
			checkers: []HealthChecker{
				NewDatabaseHealthChecker("storage", fakePinger{}),
				CheckFunc{CheckName: "feed", Fn: func(context.Context) error { return errors.New("down") }},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
		{
			name:       "nil database",
			checkers:   []HealthChecker{NewDatabaseHealthChecker("storage", nil)},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm := NewHealthManager(zaptest.NewLogger(t), tt.checkers...)
			rec := httptest.NewRecorder()
			hm.HealthzHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Len(t, body.Components, len(tt.checkers))
		})
	}
}

func TestLoopHealthChecker(t *testing.T) {
	logger := zaptest.NewLogger(t)
	lp := loop.New(logger)
	checker := NewLoopHealthChecker(lp)

	t.Run("not running", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.Error(t, checker.HealthCheck(ctx))
	})

	t.Run("running", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = lp.Run(ctx) }()
		defer func() {
			cancel()
			<-lp.Done()
		}()
		assert.NoError(t, checker.HealthCheck(context.Background()))
	})
}
