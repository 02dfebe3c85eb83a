// Package memory provides the in-memory entity-record registry, used by
// pure in-process runs where nothing needs to survive a restart.
package memory

import (
	"github.com/yndnr/entmesh-go/internal/core/domain"
	"github.com/yndnr/entmesh-go/pkg/cmap"
)

// Registry stores entity records in a sharded concurrent map keyed by
// the entity key string.
type Registry struct {
	records *cmap.Map[string, domain.EntityRecord]
}

// New creates an empty in-memory registry.
func New() *Registry {
	return &Registry{records: cmap.New[string, domain.EntityRecord]()}
}

// Put stores or overwrites the record.
func (r *Registry) Put(rec domain.EntityRecord) error {
	r.records.Set(rec.Key().String(), rec)
	return nil
}

// Get returns the record for key.
func (r *Registry) Get(key domain.EntityKey) (domain.EntityRecord, bool, error) {
	rec, ok := r.records.Get(key.String())
	return rec, ok, nil
}

// Delete removes the record for key.
func (r *Registry) Delete(key domain.EntityKey) error {
	r.records.Delete(key.String())
	return nil
}

// List returns all records.
func (r *Registry) List() ([]domain.EntityRecord, error) {
	return r.records.Values(), nil
}

// Close is a no-op for the in-memory backend.
func (r *Registry) Close() error { return nil }
