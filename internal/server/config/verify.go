// Package config defines the server configuration structure.
package config

import (
	"errors"
	"os"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	if err := verifySim(&cfg.Sim); err != nil {
		return err
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case "memory":
		return nil
	case "badger":
		if cfg.InMemory {
			return nil
		}
		if cfg.DataDir == "" {
			return errors.New("storage.data_dir is required for the badger backend")
		}
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return errors.New("cannot create data directory: " + err.Error())
		}
		return nil
	default:
		return errors.New("storage.backend must be \"memory\" or \"badger\"")
	}
}

func verifySecurity(cfg *SecuritySection) error {
	switch cfg.SealAlgorithm {
	case "", "aes-gcm", "chacha20-poly1305":
	default:
		return errors.New("security.seal_algorithm must be \"aes-gcm\" or \"chacha20-poly1305\"")
	}
	if cfg.SealAlgorithm != "" && cfg.SealSecret == "" {
		return errors.New("security.seal_algorithm requires security.seal_secret")
	}
	return nil
}

func verifySim(cfg *SimSection) error {
	if cfg.Clients < 1 {
		return errors.New("sim.clients must be at least 1")
	}
	if cfg.Entities < 1 {
		return errors.New("sim.entities must be at least 1")
	}
	if cfg.RunFor <= 0 {
		return errors.New("sim.run_for must be positive")
	}
	if cfg.RatePerClient < 0 {
		return errors.New("sim.rate_per_client cannot be negative")
	}
	return nil
}
