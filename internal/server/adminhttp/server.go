// Package adminhttp provides the admin HTTP endpoint for EntMesh.
//
// It uses the Go standard library net/http for implementation,
// exposing health, status, and metrics endpoints for a running
// simulation platform.
package adminhttp

import (
	"context"
	"net/http"
	"time"
)

// Server represents the admin HTTP server.
//
// @req RQ-0301
// @design DS-0301
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// New creates a new admin HTTP server.
//
// @design DS-0301
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		handler: handler,
	}
}

// ListenAndServe starts the admin server.
//
// @design DS-0301
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
//
// @design DS-0301
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
