// Package adminhttp provides the admin HTTP endpoint for EntMesh.
package adminhttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/yndnr/entmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/entmesh-go/internal/telemetry/logger"
	"github.com/yndnr/entmesh-go/internal/telemetry/metric"
)

// ProcessStatus describes one simulated process for the status endpoint.
type ProcessStatus struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Booted bool   `json:"booted"`
}

// StatusSource supplies live platform state for the status endpoint.
type StatusSource interface {
	ProcessStatuses() []ProcessStatus
}

// RouterConfig holds configuration for the admin router.
type RouterConfig struct {
	// Metrics is the metrics registry serving /metrics.
	Metrics *metric.Registry

	// Status supplies process state for /status. Optional.
	Status StatusSource

	// Logger for request logging.
	Logger logger.Logger
}

// NewRouter creates and configures the admin router with all routes
// and middleware.
//
// @design DS-0301
func NewRouter(cfg *RouterConfig) http.Handler {
	mux := http.NewServeMux()

	base := func(h http.Handler) http.Handler {
		return Chain(h, Recover(cfg.Logger), RequestID(), AccessLog(cfg.Logger))
	}

	mux.Handle("GET /healthz", base(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})))

	mux.Handle("GET /status", base(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"build": buildinfo.Get(),
			"time":  time.Now().UTC().Format(time.RFC3339),
		}
		if cfg.Status != nil {
			status["processes"] = cfg.Status.ProcessStatuses()
		}
		writeJSON(w, http.StatusOK, status)
	})))

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", base(cfg.Metrics.Handler()))
	}

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
