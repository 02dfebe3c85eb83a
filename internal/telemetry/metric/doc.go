// Package metric provides Prometheus metrics for EntMesh.
//
// It exposes metrics in Prometheus format for monitoring operation
// dispatch rates, replication waits, lock waits, and entity counts.
//
// @design DS-0403
package metric
