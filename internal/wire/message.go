package wire

import (
	"github.com/yndnr/entmesh-go/internal/core/domain"
)

// Type identifies the operation carried by a message.
type Type uint8

const (
	TypeUnspecified Type = iota

	// Server-bound operations.
	TypeCreate
	TypeDestroy
	TypeFetch
	TypeRelease
	TypeInvoke
	TypeAcquireWriteLock
	TypeReleaseWriteLock
	TypeRestoreWriteLock
	TypeReconnect
	TypeSyncEntityStart
	TypeSyncEntityEnd
	TypeSyncEntityKeyStart
	TypeSyncEntityKeyEnd
	TypeSyncPayload

	// Client-bound messages. Never valid as inbound-to-server operations.
	TypeAck
	TypeComplete
	TypeInvokeOnClient
)

var typeNames = map[Type]string{
	TypeUnspecified:        "UNSPECIFIED",
	TypeCreate:             "CREATE",
	TypeDestroy:            "DESTROY",
	TypeFetch:              "FETCH",
	TypeRelease:            "RELEASE",
	TypeInvoke:             "INVOKE",
	TypeAcquireWriteLock:   "ACQUIRE_WRITE_LOCK",
	TypeReleaseWriteLock:   "RELEASE_WRITE_LOCK",
	TypeRestoreWriteLock:   "RESTORE_WRITE_LOCK",
	TypeReconnect:          "RECONNECT",
	TypeSyncEntityStart:    "SYNC_ENTITY_START",
	TypeSyncEntityEnd:      "SYNC_ENTITY_END",
	TypeSyncEntityKeyStart: "SYNC_ENTITY_KEY_START",
	TypeSyncEntityKeyEnd:   "SYNC_ENTITY_KEY_END",
	TypeSyncPayload:        "SYNC_PAYLOAD",
	TypeAck:                "ACK",
	TypeComplete:           "COMPLETE",
	TypeInvokeOnClient:     "INVOKE_ON_CLIENT",
}

// String returns the wire name of the type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ServerBound reports whether the type is valid as an inbound-to-server
// operation. Ack, Complete and InvokeOnClient only ever travel toward
// the client.
func (t Type) ServerBound() bool {
	return t >= TypeCreate && t <= TypeSyncPayload
}

// Message is one decoded operation or response.
//
// Fields beyond Type, Replicate and TransactionID are populated per type;
// unused fields stay at their zero values.
type Message struct {
	Type          Type
	Replicate     bool
	TransactionID uint64

	EntityClass string
	EntityName  string

	Version          uint64
	ClientInstanceID uint64
	ConcurrencyKey   uint32

	// Payload holds the type-specific variable bytes: the serialized
	// configuration for Create, the invocation payload for Invoke, the
	// extended reconnect data for Reconnect, one state chunk for
	// SyncPayload, or the response bytes for Complete.
	Payload []byte

	// HasPayload distinguishes an empty payload from an absent one on
	// Complete messages.
	HasPayload bool

	// Err carries the operation failure on Complete messages.
	Err *domain.EntityError
}

// Key returns the entity key the message targets.
func (m *Message) Key() domain.EntityKey {
	return domain.EntityKey{ClassName: m.EntityClass, Name: m.EntityName}
}

// NewCreate builds a Create operation. Creates are replicated so the
// passive holds every entity the active does.
func NewCreate(entityClass, entityName string, version uint64, configuration []byte) *Message {
	return &Message{
		Type:        TypeCreate,
		Replicate:   true,
		EntityClass: entityClass,
		EntityName:  entityName,
		Version:     version,
		Payload:     configuration,
	}
}

// NewDestroy builds a Destroy operation.
func NewDestroy(entityClass, entityName string) *Message {
	return &Message{
		Type:        TypeDestroy,
		Replicate:   true,
		EntityClass: entityClass,
		EntityName:  entityName,
	}
}

// NewFetch builds a Fetch operation. Fetches only change per-client
// state on the active, so they are not replicated.
func NewFetch(entityClass, entityName string, clientInstanceID, version uint64) *Message {
	return &Message{
		Type:             TypeFetch,
		EntityClass:      entityClass,
		EntityName:       entityName,
		ClientInstanceID: clientInstanceID,
		Version:          version,
	}
}

// NewRelease builds a Release operation.
func NewRelease(entityClass, entityName string, clientInstanceID uint64) *Message {
	return &Message{
		Type:             TypeRelease,
		EntityClass:      entityClass,
		EntityName:       entityName,
		ClientInstanceID: clientInstanceID,
	}
}

// NewInvoke builds an Invoke operation.
func NewInvoke(entityClass, entityName string, clientInstanceID uint64, payload []byte) *Message {
	return &Message{
		Type:             TypeInvoke,
		Replicate:        true,
		EntityClass:      entityClass,
		EntityName:       entityName,
		ClientInstanceID: clientInstanceID,
		Payload:          payload,
	}
}

// NewAcquireWriteLock builds the maintenance write-lock acquire operation.
// The lock is held per connection on the entity name, so there is no
// client instance ID.
func NewAcquireWriteLock(entityClass, entityName string) *Message {
	return &Message{
		Type:        TypeAcquireWriteLock,
		EntityClass: entityClass,
		EntityName:  entityName,
	}
}

// NewReleaseWriteLock builds the maintenance write-lock release operation.
func NewReleaseWriteLock(entityClass, entityName string) *Message {
	return &Message{
		Type:        TypeReleaseWriteLock,
		EntityClass: entityClass,
		EntityName:  entityName,
	}
}

// NewRestoreWriteLock builds the operation that re-establishes a write
// lock held before a reconnect.
func NewRestoreWriteLock(entityClass, entityName string) *Message {
	return &Message{
		Type:        TypeRestoreWriteLock,
		EntityClass: entityClass,
		EntityName:  entityName,
	}
}

// NewReconnect builds a Reconnect operation carrying the endpoint identity
// and an opaque extension blob supplied by the endpoint delegate.
func NewReconnect(entityClass, entityName string, clientInstanceID uint64, extendedData []byte) *Message {
	return &Message{
		Type:             TypeReconnect,
		EntityClass:      entityClass,
		EntityName:       entityName,
		ClientInstanceID: clientInstanceID,
		Payload:          extendedData,
	}
}

// NewSyncEntityStart builds the sync-start operation. It re-runs Create on
// the passive, so it carries the full creation arguments.
func NewSyncEntityStart(entityClass, entityName string, version uint64, configuration []byte) *Message {
	return &Message{
		Type:        TypeSyncEntityStart,
		EntityClass: entityClass,
		EntityName:  entityName,
		Version:     version,
		Payload:     configuration,
	}
}

// NewSyncEntityEnd builds the sync-complete operation for an entity.
func NewSyncEntityEnd(entityClass, entityName string) *Message {
	return &Message{
		Type:        TypeSyncEntityEnd,
		EntityClass: entityClass,
		EntityName:  entityName,
	}
}

// NewSyncEntityKeyStart builds the sync-start operation for one
// concurrency partition.
func NewSyncEntityKeyStart(entityClass, entityName string, concurrencyKey uint32) *Message {
	return &Message{
		Type:           TypeSyncEntityKeyStart,
		EntityClass:    entityClass,
		EntityName:     entityName,
		ConcurrencyKey: concurrencyKey,
	}
}

// NewSyncEntityKeyEnd builds the sync-end operation for one concurrency
// partition.
func NewSyncEntityKeyEnd(entityClass, entityName string, concurrencyKey uint32) *Message {
	return &Message{
		Type:           TypeSyncEntityKeyEnd,
		EntityClass:    entityClass,
		EntityName:     entityName,
		ConcurrencyKey: concurrencyKey,
	}
}

// NewSyncPayload builds one chunk of partitioned state for a concurrency key.
func NewSyncPayload(entityClass, entityName string, concurrencyKey uint32, payload []byte) *Message {
	return &Message{
		Type:           TypeSyncPayload,
		EntityClass:    entityClass,
		EntityName:     entityName,
		ConcurrencyKey: concurrencyKey,
		Payload:        payload,
	}
}

// NewAck builds the acknowledgement for a transaction.
func NewAck(transactionID uint64) *Message {
	return &Message{
		Type:          TypeAck,
		TransactionID: transactionID,
	}
}

// NewComplete builds the completion response for a transaction. A nil
// response is encoded distinctly from an empty one.
func NewComplete(transactionID uint64, response []byte, err *domain.EntityError) *Message {
	return &Message{
		Type:          TypeComplete,
		TransactionID: transactionID,
		Payload:       response,
		HasPayload:    response != nil,
		Err:           err,
	}
}

// NewInvokeOnClient builds an unsolicited server-to-client message for
// one client instance.
func NewInvokeOnClient(clientInstanceID uint64, payload []byte) *Message {
	return &Message{
		Type:             TypeInvokeOnClient,
		ClientInstanceID: clientInstanceID,
		Payload:          payload,
	}
}
