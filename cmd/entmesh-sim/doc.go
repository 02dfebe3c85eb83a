// Package main provides the entry point for entmesh-sim.
//
// entmesh-sim boots a simulated clustered entity platform in a single
// process and drives scripted client load against it:
//
//   - An active server process, optionally replicated to a passive
//   - Configurable concurrent clients invoking a shared counter entity
//   - An admin HTTP endpoint exposing health, status, and metrics
//
// Usage:
//
//	entmesh-sim run [--config /path/to/config.yaml]
//	entmesh-sim check-config --config /path/to/config.yaml
//	entmesh-sim version
//
// @design DS-0501
package main
