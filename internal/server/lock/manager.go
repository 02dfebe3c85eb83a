// Package lock implements the per-entity read/write lock manager.
//
// Fetch holds a shared read lock for the lifetime of a client's entity
// reference; the maintenance write lock is exclusive. Acquisitions are
// asynchronous: the caller registers a callback that fires once the lock
// is granted, which may be immediately or after earlier holders release.
//
// @req RQ-0301
package lock

import (
	"fmt"
	"sync"
	"time"

	"github.com/yndnr/entmesh-go/internal/core/domain"
	"github.com/yndnr/entmesh-go/internal/telemetry/metric"
)

type requestKind uint8

const (
	kindRead requestKind = iota
	kindWrite
)

// request is one queued acquisition waiting for the lock.
type request struct {
	kind       requestKind
	holder     uint64 // client instance ID; unused for write requests
	onAcquire  func()
	enqueuedAt time.Time
}

// lockState tracks the holders and waiters of a single entity's lock.
type lockState struct {
	readers    map[uint64]int // client instance ID -> hold count
	writerHeld bool
	queue      []*request
}

func (s *lockState) idle() bool {
	return len(s.readers) == 0 && !s.writerHeld && len(s.queue) == 0
}

// Manager owns the lock state for every entity on a process.
type Manager struct {
	mu      sync.Mutex
	locks   map[domain.EntityKey]*lockState
	metrics *metric.Registry
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records lock wait durations and held-lock counts.
func WithMetrics(m *metric.Registry) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// NewManager creates an empty lock manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{locks: make(map[domain.EntityKey]*lockState)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AcquireReadLock requests the shared lock for key on behalf of a client.
// onAcquire fires exactly once, possibly before AcquireReadLock returns.
func (m *Manager) AcquireReadLock(key domain.EntityKey, clientInstanceID uint64, onAcquire func()) {
	m.enqueue(key, &request{
		kind:       kindRead,
		holder:     clientInstanceID,
		onAcquire:  onAcquire,
		enqueuedAt: time.Now(),
	})
}

// ReleaseReadLock drops one shared hold for the given client.
func (m *Manager) ReleaseReadLock(key domain.EntityKey, clientInstanceID uint64) error {
	m.mu.Lock()
	state, ok := m.locks[key]
	if !ok || state.readers[clientInstanceID] == 0 {
		m.mu.Unlock()
		return domain.ErrInternal.ForEntity(key.ClassName, key.Name).
			WithDetails("read lock released but not held")
	}
	state.readers[clientInstanceID]--
	if state.readers[clientInstanceID] == 0 {
		delete(state.readers, clientInstanceID)
	}
	if m.metrics != nil {
		m.metrics.LocksHeld.Dec()
	}
	granted := m.pump(key, state)
	m.mu.Unlock()

	m.fire(granted)
	return nil
}

// AcquireWriteLock requests the exclusive lock for key. onAcquire fires
// exactly once, after every current reader and writer has released.
func (m *Manager) AcquireWriteLock(key domain.EntityKey, onAcquire func()) {
	m.enqueue(key, &request{
		kind:       kindWrite,
		onAcquire:  onAcquire,
		enqueuedAt: time.Now(),
	})
}

// ReleaseWriteLock drops the exclusive hold.
func (m *Manager) ReleaseWriteLock(key domain.EntityKey) error {
	m.mu.Lock()
	state, ok := m.locks[key]
	if !ok || !state.writerHeld {
		m.mu.Unlock()
		return domain.ErrInternal.ForEntity(key.ClassName, key.Name).
			WithDetails("write lock released but not held")
	}
	state.writerHeld = false
	if m.metrics != nil {
		m.metrics.LocksHeld.Dec()
	}
	granted := m.pump(key, state)
	m.mu.Unlock()

	m.fire(granted)
	return nil
}

// RestoreWriteLock re-establishes an exclusive hold during reconnect. The
// lock must be immediately available: a restore that would have to wait
// means the restart left stale holders behind, which is a consistency bug,
// not a condition to retry.
func (m *Manager) RestoreWriteLock(key domain.EntityKey, onAcquire func()) error {
	m.mu.Lock()
	state := m.stateFor(key)
	if state.writerHeld || len(state.readers) > 0 || len(state.queue) > 0 {
		m.mu.Unlock()
		return domain.ErrInternal.ForEntity(key.ClassName, key.Name).
			WithDetails(fmt.Sprintf("write lock restore blocked: readers=%d writer=%v queued=%d",
				len(state.readers), state.writerHeld, len(state.queue)))
	}
	state.writerHeld = true
	if m.metrics != nil {
		m.metrics.LocksHeld.Inc()
	}
	m.mu.Unlock()

	onAcquire()
	return nil
}

// Held reports whether any hold or waiter exists for key. Used by the
// server process to reject destroying an entity that is still fetched.
func (m *Manager) Held(key domain.EntityKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.locks[key]
	return ok && !state.idle()
}

func (m *Manager) enqueue(key domain.EntityKey, req *request) {
	m.mu.Lock()
	state := m.stateFor(key)
	state.queue = append(state.queue, req)
	granted := m.pump(key, state)
	m.mu.Unlock()

	m.fire(granted)
}

func (m *Manager) stateFor(key domain.EntityKey) *lockState {
	state, ok := m.locks[key]
	if !ok {
		state = &lockState{readers: make(map[uint64]int)}
		m.locks[key] = state
	}
	return state
}

// pump grants every queue-front request that is compatible with the
// current holders. Called with m.mu held; returns the callbacks to fire
// after the mutex is released, in grant order.
func (m *Manager) pump(key domain.EntityKey, state *lockState) []*request {
	var granted []*request
	for len(state.queue) > 0 {
		front := state.queue[0]
		switch front.kind {
		case kindWrite:
			if state.writerHeld || len(state.readers) > 0 {
				goto done
			}
			state.writerHeld = true
		case kindRead:
			if state.writerHeld {
				goto done
			}
			state.readers[front.holder]++
		}
		state.queue = state.queue[1:]
		granted = append(granted, front)
		if m.metrics != nil {
			m.metrics.LocksHeld.Inc()
			m.metrics.LockWaitSeconds.Observe(time.Since(front.enqueuedAt).Seconds())
		}
	}
done:
	if state.idle() {
		delete(m.locks, key)
	}
	return granted
}

func (m *Manager) fire(granted []*request) {
	for _, req := range granted {
		req.onAcquire()
	}
}
