package dispatch

import (
	"sync"

	"github.com/yndnr/entmesh-go/internal/wire"
)

// Sender represents who sent an operation and where responses go.
//
// The duplication-tolerance flag is part of the sender's context, not of
// any operation: a sender that re-delivers lifecycle operations after a
// partial failure announces that duplicates of Create and Destroy must
// be absorbed.
type Sender interface {
	// SendAck delivers the acknowledgement for a transaction.
	SendAck(ack *wire.Message)

	// SendComplete delivers the completion for a transaction.
	SendComplete(complete *wire.Message)

	// ShouldTolerateCreateDestroyDuplication reports whether entity-level
	// failures during Create and Destroy are absorbed silently.
	ShouldTolerateCreateDestroyDuplication() bool
}

// Passive is the downstream replica contract. The raw operation frame is
// forwarded untouched; the passive applies it through its own dispatch
// pipeline and signals the interlock when done.
type Passive interface {
	SendMessageFromActive(interlock *Interlock, raw []byte)
}

// Handler is the entity-management contract consumed by the dispatcher,
// one method per server-bound operation tag.
//
// Synchronous methods report entity-level failures by returning an
// *domain.EntityError and unexpected failures by returning any other
// error or panicking; the dispatcher classifies and wraps them.
// Asynchronous methods (Fetch and the write-lock acquisitions) finish
// through the supplied Completion instead.
type Handler interface {
	Create(entityClass, entityName string, version uint64, configuration []byte) error
	Destroy(entityClass, entityName string) error
	Fetch(sender Sender, clientInstanceID uint64, entityClass, entityName string, version uint64, onFetch *Completion)
	Release(sender Sender, clientInstanceID uint64, entityClass, entityName string) error
	Invoke(sender Sender, clientInstanceID uint64, entityClass, entityName string, payload []byte) ([]byte, error)
	AcquireWriteLock(sender Sender, entityClass, entityName string, onAcquire *Completion)
	ReleaseWriteLock(sender Sender, entityClass, entityName string) error
	RestoreWriteLock(sender Sender, entityClass, entityName string, onAcquire *Completion)
	Reconnect(sender Sender, clientInstanceID uint64, entityClass, entityName string, extendedData []byte) error
	SyncEntityStart(sender Sender, entityClass, entityName string) error
	SyncEntityEnd(sender Sender, entityClass, entityName string) error
	SyncEntityKeyStart(sender Sender, entityClass, entityName string, concurrencyKey uint32) error
	SyncEntityKeyEnd(sender Sender, entityClass, entityName string, concurrencyKey uint32) error
	SyncPayload(sender Sender, entityClass, entityName string, concurrencyKey uint32, payload []byte) error
}

// Completion is a single-shot handle used to finish a deferred
// operation. Exactly the first Complete call wins; later calls are
// ignored, which keeps the one-completion-per-transaction invariant even
// when a handler both fails inline and fires its callback.
type Completion struct {
	once sync.Once
	fire func(response []byte, err error)
}

// NewCompletion wraps a continuation in a single-shot handle.
func NewCompletion(fire func(response []byte, err error)) *Completion {
	return &Completion{fire: fire}
}

// Complete fires the continuation with the operation result.
func (c *Completion) Complete(response []byte, err error) {
	c.once.Do(func() {
		c.fire(response, err)
	})
}
