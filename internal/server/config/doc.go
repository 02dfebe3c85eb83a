// Package config provides process configuration for EntMesh.
//
// This package defines the configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (backend selection, path existence)
//   - sanitize.go: Log sanitization (hide sensitive values)
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files, environment variables, and flags.
//
// @req RQ-0502
// @design DS-0502
package config
