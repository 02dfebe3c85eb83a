package entity

// ClientDescriptor identifies one connected client instance from the
// server's point of view. Implementations are supplied by the platform;
// entities treat descriptors as opaque identities.
type ClientDescriptor interface {
	// ClientInstanceID returns the client-side instance identifier the
	// descriptor stands for.
	ClientInstanceID() uint64
}

// ActiveEntity is the authoritative instance of one entity. All methods
// are called from the owning server's processing context, one call at a
// time; implementations do not need their own locking.
type ActiveEntity interface {
	// Connected is called when a client fetches a reference to the entity.
	Connected(client ClientDescriptor)

	// Disconnected is called when a client releases its reference.
	Disconnected(client ClientDescriptor)

	// Invoke executes one payload on behalf of a client instance and
	// returns the serialized result. Domain failures are returned as
	// errors; anything else raised here is wrapped by the platform.
	Invoke(client ClientDescriptor, payload []byte) ([]byte, error)
}

// Reconnectable is implemented by active entities that carry per-client
// state across a transport-level reconnect.
type Reconnectable interface {
	// HandleReconnect re-establishes a client's state from the opaque
	// extension blob the client supplied at reconnect time.
	HandleReconnect(client ClientDescriptor, extendedData []byte) error
}

// Syncable is implemented by active entities that can stream their state
// to a freshly attached passive. State is partitioned by concurrency key
// so independent partitions can be applied out of order on the passive.
type Syncable interface {
	// SyncKeys returns the concurrency partitions to stream, each >= 1.
	SyncKeys() []uint32

	// SnapshotKey returns the payload chunks for one partition.
	SnapshotKey(concurrencyKey uint32) ([][]byte, error)
}

// PassiveEntity is the replica instance of one entity. It mirrors the
// active's state by replaying the same operations.
type PassiveEntity interface {
	// Invoke applies one replicated payload. There is no response.
	Invoke(payload []byte) error

	// StartSyncEntity marks the beginning of a full-state synchronization.
	StartSyncEntity()

	// EndSyncEntity marks the entity as caught up.
	EndSyncEntity()

	// StartSyncKey marks the beginning of one partition's stream.
	StartSyncKey(concurrencyKey uint32)

	// EndSyncKey marks one partition as caught up.
	EndSyncKey(concurrencyKey uint32)

	// ApplySyncPayload applies one chunk of partitioned state.
	ApplySyncPayload(concurrencyKey uint32, payload []byte) error
}

// Service constructs entity instances for one entity class.
type Service interface {
	// Handles reports whether the service implements the given class.
	Handles(entityClassName string) bool

	// Version returns the version of the entity implementation. Creates
	// and fetches carrying a different version are rejected.
	Version() uint64

	// CreateActive builds the authoritative instance from a serialized
	// configuration.
	CreateActive(configuration []byte) (ActiveEntity, error)

	// CreatePassive builds the replica instance from a serialized
	// configuration.
	CreatePassive(configuration []byte) (PassiveEntity, error)
}

// ClientCommunicator lets an entity push unsolicited messages to a
// connected client instance.
type ClientCommunicator interface {
	// SendNoResponse delivers a payload to the client without waiting.
	SendNoResponse(client ClientDescriptor, payload []byte)
}
