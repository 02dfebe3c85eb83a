// Package entity defines the contracts between the platform and
// user-supplied entity implementations.
//
// An entity class is registered through a Service, which constructs the
// active (authoritative) and passive (replica) instances of that class.
// The platform never touches entity state directly: every mutation is
// routed through the lifecycle operations, and concurrent invocations
// against one active instance are serialized by a Gate so entity logic
// always observes single-threaded semantics.
//
// @req RQ-0301
// @design DS-0301
package entity
