// Package domain defines the core domain models for EntMesh.
package domain

import (
	"fmt"

	"github.com/spaolacci/murmur3"
)

// UniversalConcurrencyKey is the concurrency partition that covers an
// entity's whole state. Entities that do not partition their state use
// this single key during synchronization.
const UniversalConcurrencyKey uint32 = 1

// EntityKey identifies a server-side entity instance.
//
// Entities are keyed by (class, name): the class selects the registered
// service implementation, the name selects one instance of it.
type EntityKey struct {
	ClassName string
	Name      string
}

// String returns the canonical "class/name" form used in logs and errors.
func (k EntityKey) String() string {
	return k.ClassName + "/" + k.Name
}

// Validate checks that both components are present.
func (k EntityKey) Validate() error {
	if k.ClassName == "" {
		return ErrBadMessage.WithDetails("empty entity class name")
	}
	if k.Name == "" {
		return ErrBadMessage.WithDetails("empty entity name")
	}
	return nil
}

// ConcurrencyKeyFor derives the synchronization partition for a state key
// within an entity. The derivation is stable across processes so the active
// and the passive agree on partition membership.
//
// Key 0 is reserved (unspecified), so the result is always >= 1.
func ConcurrencyKeyFor(stateKey string, partitions uint32) uint32 {
	if partitions <= 1 {
		return UniversalConcurrencyKey
	}
	h := murmur3.Sum32([]byte(stateKey))
	return (h % partitions) + 1
}

// EntityRecord is the durable description of a created entity, persisted
// through the storage registry so a restarted process can re-materialize
// its entities.
type EntityRecord struct {
	ClassName     string `json:"class_name"`
	Name          string `json:"name"`
	Version       uint64 `json:"version"`
	Configuration []byte `json:"configuration"`
}

// Key returns the registry key for the record.
func (r *EntityRecord) Key() EntityKey {
	return EntityKey{ClassName: r.ClassName, Name: r.Name}
}

// Validate checks record invariants before persistence.
func (r *EntityRecord) Validate() error {
	if err := r.Key().Validate(); err != nil {
		return err
	}
	if r.Version == 0 {
		return ErrBadMessage.WithDetails(fmt.Sprintf("invalid version for %s", r.Key()))
	}
	return nil
}
