// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for entmesh-sim.
type ServerConfig struct {
	Admin    AdminSection    `koanf:"admin"`
	Storage  StorageSection  `koanf:"storage"`
	Security SecuritySection `koanf:"security"`
	Sim      SimSection      `koanf:"sim"`
	Log      LogSection      `koanf:"log"`
}

// AdminSection configures the admin HTTP endpoint.
type AdminSection struct {
	// Enabled controls whether the admin endpoint is started.
	Enabled bool `koanf:"enabled"`

	// Addr is the listen address (e.g., "127.0.0.1:7080").
	Addr string `koanf:"addr"`
}

// StorageSection configures the entity registry backend.
type StorageSection struct {
	// Backend selects the registry implementation: "memory" or "badger".
	Backend string `koanf:"backend"`

	// DataDir is the directory for the badger backend. Ignored for
	// the memory backend and for in-memory badger.
	DataDir string `koanf:"data_dir"`

	// InMemory runs badger without disk persistence.
	InMemory bool `koanf:"in_memory"`
}

// SecuritySection configures security settings.
type SecuritySection struct {
	// SealSecret, when set, enables at-rest sealing of entity records
	// in the badger backend. Keys are derived per store.
	SealSecret string `koanf:"seal_secret"`

	// SealAlgorithm overrides the AEAD chosen for the platform:
	// "aes-gcm" or "chacha20-poly1305". Empty selects by architecture.
	SealAlgorithm string `koanf:"seal_algorithm"`
}

// SimSection configures the built-in scenario runner.
//
// @req RQ-0601
type SimSection struct {
	// Clients is the number of concurrent simulated clients.
	Clients int `koanf:"clients"`

	// Entities is the number of distinct entities the clients target.
	Entities int `koanf:"entities"`

	// RunFor bounds the scenario duration.
	RunFor time.Duration `koanf:"run_for"`

	// RatePerClient limits invocations per second per client.
	// Zero means unlimited.
	RatePerClient float64 `koanf:"rate_per_client"`

	// Passive attaches a passive process and replicates to it.
	Passive bool `koanf:"passive"`

	// ReconnectEvery injects a client reconnect at this interval.
	// Zero disables reconnect injection.
	ReconnectEvery time.Duration `koanf:"reconnect_every"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
