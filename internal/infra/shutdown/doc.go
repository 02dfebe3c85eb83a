// Package shutdown provides graceful shutdown for EntMesh.
//
// This package handles process termination:
//
//   - Signal handling (SIGINT, SIGTERM)
//   - Programmatic triggering for bounded runs
//   - Timeout-based forced shutdown
//   - Cleanup callback registration, executed in reverse order
//
// Usage:
//
//	h := shutdown.NewHandler(30 * time.Second)
//	h.OnShutdown(func(ctx context.Context) error { return server.Shutdown(ctx) })
//	err := h.Wait() // blocks until signal or Trigger
//
// @design DS-0501
package shutdown
