// Package cmap provides a concurrent map implementation for EntMesh.
//
// This package implements a sharded concurrent map used for the
// in-memory entity-record registry and other per-process tables:
//
//   - Sharding: Configurable shard count for parallelism
//   - Fine-grained Locking: Per-shard RWMutex for minimal contention
//   - Iteration: Safe iteration while holding read locks
//
// Usage:
//
//	m := cmap.New[string, domain.EntityRecord]()
//	m.Set("org.example.Counter/c1", rec)
//	val, ok := m.Get("org.example.Counter/c1")
//
// Thread Safety:
//
// All operations are thread-safe. Read operations (Get, Has) use RLock,
// write operations (Set, Delete) use Lock.
package cmap
