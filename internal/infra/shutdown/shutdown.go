// Package shutdown provides graceful shutdown handling.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Handler handles graceful shutdown.
type Handler struct {
	timeout time.Duration
	hooks   []func(context.Context) error
	mu      sync.Mutex
	done    chan struct{}

	trigger     chan struct{}
	triggerOnce sync.Once
}

// NewHandler creates a new shutdown handler.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{
		timeout: timeout,
		hooks:   make([]func(context.Context) error, 0),
		done:    make(chan struct{}),
		trigger: make(chan struct{}),
	}
}

// OnShutdown registers a shutdown hook.
// Hooks are called in reverse order of registration.
func (h *Handler) OnShutdown(hook func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Trigger initiates shutdown programmatically, as if a signal had
// arrived. Used when a bounded run finishes on its own.
func (h *Handler) Trigger() {
	h.triggerOnce.Do(func() { close(h.trigger) })
}

// Wait waits for a shutdown signal or Trigger and executes hooks.
func (h *Handler) Wait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case <-h.trigger:
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	// Execute hooks in reverse order
	h.mu.Lock()
	hooks := make([]func(context.Context) error, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var lastErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			lastErr = err
		}
	}

	close(h.done)
	return lastErr
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
