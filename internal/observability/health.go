package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthChecker is a component that can report its health.
type HealthChecker interface {
	// HealthCheck returns nil if healthy.
	HealthCheck(ctx context.Context) error
	Name() string
}

// HealthStatus is the result of one checker.
type HealthStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "healthy" or "unhealthy"
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthResponse is the body served by /healthz.
type HealthResponse struct {
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Components []HealthStatus `json:"components"`
}

// HealthManager runs registered checkers with a shared timeout.
type HealthManager struct {
	logger   *zap.Logger
	checkers []HealthChecker
	timeout  time.Duration
}

func NewHealthManager(logger *zap.Logger, checkers ...HealthChecker) *HealthManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthManager{
		logger:   logger.Named("health"),
		checkers: checkers,
		timeout:  5 * time.Second,
	}
}

func (hm *HealthManager) SetTimeout(timeout time.Duration) {
	hm.timeout = timeout
}

// Check runs every checker. The overall status is unhealthy if any fails.
func (hm *HealthManager) Check(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	response := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Components: make([]HealthStatus, 0, len(hm.checkers)),
	}

	for _, checker := range hm.checkers {
		start := time.Now()
		status := HealthStatus{Name: checker.Name(), Status: "healthy"}

		if err := checker.HealthCheck(ctx); err != nil {
			status.Status = "unhealthy"
			status.Error = err.Error()
			response.Status = "unhealthy"
			hm.logger.Warn("Health check failed",
				zap.String("component", checker.Name()),
				zap.Error(err))
		}

		status.Latency = time.Since(start).String()
		response.Components = append(response.Components, status)
	}

	return response
}

// HealthzHandler serves Check as JSON, with 503 when unhealthy.
func (hm *HealthManager) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hm.Check(r.Context())

		statusCode := http.StatusOK
		if response.Status != "healthy" {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			hm.logger.Error("Failed to encode health response", zap.Error(err))
		}
	}
}
