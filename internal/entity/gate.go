package entity

import (
	"fmt"
	"sync"

	"github.com/yndnr/entmesh-go/internal/core/domain"
)

// Gate serializes invocations against one active entity instance.
//
// No matter how many simulated client threads call concurrently, the
// entity only ever observes one invocation at a time, and each caller
// receives its result synchronously. The exclusive hold covers the whole
// critical section (deserialization, business logic, response
// serialization) and is released unconditionally. It is never held
// across an asynchronous boundary; replication and lock waits happen
// before the gate is entered.
//
// @req RQ-0303
type Gate struct {
	mu          sync.Mutex
	entity      ActiveEntity
	entityClass string
	entityName  string
}

// NewGate wraps an active entity in an invocation gate.
func NewGate(entityClass, entityName string, e ActiveEntity) *Gate {
	return &Gate{
		entity:      e,
		entityClass: entityClass,
		entityName:  entityName,
	}
}

// Invoke runs one payload through the entity under the exclusive hold.
//
// The gate itself never panics: any failure escaping the entity's
// critical section is captured and returned as a typed entity error.
func (g *Gate) Invoke(client ClientDescriptor, payload []byte) (response []byte, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			response = nil
			err = domain.WrapUserFailure(g.entityClass, g.entityName, fmt.Errorf("panic: %v", r))
		}
	}()

	response, err = g.entity.Invoke(client, payload)
	if err != nil && !domain.IsEntityError(err, "") {
		err = domain.WrapUserFailure(g.entityClass, g.entityName, err)
	}
	return response, err
}

// Entity returns the guarded instance. Callers must not invoke it
// directly; lifecycle operations that do not execute entity logic
// (connect, disconnect, sync streaming) use it from the owning server's
// processing context.
func (g *Gate) Entity() ActiveEntity {
	return g.entity
}
