// Package domain defines the core domain models for EntMesh.
//
// Domain models are pure value objects without any IO dependencies
// or framework coupling. This package contains:
//
//   - EntityKey: identity of a server-side entity instance
//   - EntityRecord: durable description of a created entity
//   - Errors: entity-level error definitions
//
// The error model distinguishes entity-level failures (expected,
// raised by entity business logic for domain reasons) from wrapped
// unexpected failures (any other runtime fault, always carrying the
// entity class and name for diagnostics).
//
// @req RQ-0101
// @design DS-0101
package domain
