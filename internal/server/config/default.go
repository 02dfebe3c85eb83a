// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultAdminAddr = "127.0.0.1:7080"

	DefaultStorageBackend = "memory"
	DefaultDataDir        = "/var/lib/entmesh-sim/data"

	DefaultSimClients  = 4
	DefaultSimEntities = 2
	DefaultSimRunFor   = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Admin: AdminSection{
			Enabled: false,
			Addr:    DefaultAdminAddr,
		},
		Storage: StorageSection{
			Backend: DefaultStorageBackend,
			DataDir: DefaultDataDir,
		},
		Sim: SimSection{
			Clients:  DefaultSimClients,
			Entities: DefaultSimEntities,
			RunFor:   DefaultSimRunFor,
			Passive:  true,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
