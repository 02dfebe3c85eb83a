package process

import (
	"fmt"

	"github.com/yndnr/entmesh-go/internal/core/domain"
	"github.com/yndnr/entmesh-go/internal/entity"
	"github.com/yndnr/entmesh-go/internal/server/dispatch"
)

// The Handler contract. Every method runs on the message goroutine, so
// the entity table needs no locking; lock-manager callbacks also fire on
// this goroutine because every lock mutation originates here.

// Create materializes a new entity and persists its record.
func (p *Process) Create(entityClass, entityName string, version uint64, configuration []byte) error {
	rec := domain.EntityRecord{
		ClassName:     entityClass,
		Name:          entityName,
		Version:       version,
		Configuration: configuration,
	}
	return p.materialize(rec, true)
}

// materialize builds the live instance for a record. persist is false
// when re-materializing from the registry on restart.
func (p *Process) materialize(rec domain.EntityRecord, persist bool) error {
	key := rec.Key()
	if err := key.Validate(); err != nil {
		return err
	}
	if _, ok := p.entities[key]; ok {
		return domain.ErrEntityAlreadyExists.ForEntity(key.ClassName, key.Name)
	}

	svc := p.serviceFor(key.ClassName)
	if svc == nil {
		return domain.ErrNoService.ForEntity(key.ClassName, key.Name)
	}
	if svc.Version() != rec.Version {
		return domain.ErrVersionMismatch.ForEntity(key.ClassName, key.Name).
			WithDetails(fmt.Sprintf("requested %d, implementation offers %d", rec.Version, svc.Version()))
	}

	live := &liveEntity{record: rec}
	if p.isActive {
		active, err := svc.CreateActive(rec.Configuration)
		if err != nil {
			return err
		}
		live.gate = entity.NewGate(key.ClassName, key.Name, active)
	} else {
		passive, err := svc.CreatePassive(rec.Configuration)
		if err != nil {
			return err
		}
		live.passive = passive
	}

	if persist && p.registry != nil {
		if err := p.registry.Put(rec); err != nil {
			return err
		}
	}

	p.entities[key] = live
	if p.metrics != nil {
		p.metrics.EntitiesLive.Inc()
	}
	p.log.Info("entity created", "entity", key.String(), "version", rec.Version)
	return nil
}

// Destroy removes an entity and its persisted record.
func (p *Process) Destroy(entityClass, entityName string) error {
	key := domain.EntityKey{ClassName: entityClass, Name: entityName}
	if _, ok := p.entities[key]; !ok {
		return domain.ErrEntityNotFound.ForEntity(entityClass, entityName)
	}
	if p.locks.Held(key) {
		return domain.ErrInternal.ForEntity(entityClass, entityName).
			WithDetails("destroy while entity is still fetched or locked")
	}

	if p.registry != nil {
		if err := p.registry.Delete(key); err != nil {
			return err
		}
	}

	delete(p.entities, key)
	if p.metrics != nil {
		p.metrics.EntitiesLive.Dec()
	}
	p.log.Info("entity destroyed", "entity", key.String())
	return nil
}

// Fetch acquires the entity read lock on behalf of the client and
// completes with the entity's configuration once the lock is granted.
func (p *Process) Fetch(sender dispatch.Sender, clientInstanceID uint64, entityClass, entityName string, version uint64, onFetch *dispatch.Completion) {
	key := domain.EntityKey{ClassName: entityClass, Name: entityName}
	live, ok := p.entities[key]
	if !ok {
		onFetch.Complete(nil, domain.ErrEntityNotFound.ForEntity(entityClass, entityName))
		return
	}
	if live.record.Version != version {
		onFetch.Complete(nil, domain.ErrVersionMismatch.ForEntity(entityClass, entityName).
			WithDetails(fmt.Sprintf("requested %d, entity is %d", version, live.record.Version)))
		return
	}

	p.locks.AcquireReadLock(key, clientInstanceID, func() {
		if live.gate != nil {
			live.gate.Entity().Connected(clientDescriptor{id: clientInstanceID})
		}
		onFetch.Complete(live.record.Configuration, nil)
	})
}

// Release drops the client's reference and its read lock.
func (p *Process) Release(sender dispatch.Sender, clientInstanceID uint64, entityClass, entityName string) error {
	key := domain.EntityKey{ClassName: entityClass, Name: entityName}
	live, ok := p.entities[key]
	if !ok {
		return domain.ErrEntityNotFound.ForEntity(entityClass, entityName)
	}
	if err := p.locks.ReleaseReadLock(key, clientInstanceID); err != nil {
		return domain.ErrNotFetched.ForEntity(entityClass, entityName).WithCause(err)
	}
	if live.gate != nil {
		live.gate.Entity().Disconnected(clientDescriptor{id: clientInstanceID})
	}
	return nil
}

// Invoke runs one payload against the entity. On the active the call
// goes through the invocation gate and produces a response; on the
// passive it is applied for effect only.
func (p *Process) Invoke(sender dispatch.Sender, clientInstanceID uint64, entityClass, entityName string, payload []byte) ([]byte, error) {
	key := domain.EntityKey{ClassName: entityClass, Name: entityName}
	live, ok := p.entities[key]
	if !ok {
		return nil, domain.ErrEntityNotFound.ForEntity(entityClass, entityName)
	}

	if p.isActive {
		return live.gate.Invoke(clientDescriptor{id: clientInstanceID}, payload)
	}
	return nil, live.passive.Invoke(payload)
}

// AcquireWriteLock queues the maintenance lock acquisition.
func (p *Process) AcquireWriteLock(sender dispatch.Sender, entityClass, entityName string, onAcquire *dispatch.Completion) {
	key := domain.EntityKey{ClassName: entityClass, Name: entityName}
	p.locks.AcquireWriteLock(key, func() {
		onAcquire.Complete(nil, nil)
	})
}

// ReleaseWriteLock drops the maintenance lock.
func (p *Process) ReleaseWriteLock(sender dispatch.Sender, entityClass, entityName string) error {
	return p.locks.ReleaseWriteLock(domain.EntityKey{ClassName: entityClass, Name: entityName})
}

// RestoreWriteLock re-establishes a maintenance lock during reconnect.
func (p *Process) RestoreWriteLock(sender dispatch.Sender, entityClass, entityName string, onAcquire *dispatch.Completion) {
	key := domain.EntityKey{ClassName: entityClass, Name: entityName}
	err := p.locks.RestoreWriteLock(key, func() {
		onAcquire.Complete(nil, nil)
	})
	if err != nil {
		onAcquire.Complete(nil, err)
	}
}

// Reconnect re-establishes a client's per-entity state after a
// transport-level reconnect.
func (p *Process) Reconnect(sender dispatch.Sender, clientInstanceID uint64, entityClass, entityName string, extendedData []byte) error {
	key := domain.EntityKey{ClassName: entityClass, Name: entityName}
	live, ok := p.entities[key]
	if !ok {
		return domain.ErrEntityNotFound.ForEntity(entityClass, entityName)
	}
	if live.gate == nil {
		return domain.ErrInternal.ForEntity(entityClass, entityName).
			WithDetails("reconnect on a passive process")
	}

	reconnectable, ok := live.gate.Entity().(entity.Reconnectable)
	if !ok {
		return domain.ErrInternal.ForEntity(entityClass, entityName).
			WithDetails("entity does not support reconnect")
	}
	return reconnectable.HandleReconnect(clientDescriptor{id: clientInstanceID}, extendedData)
}

// SyncEntityStart marks the passive entity as synchronizing. The
// dispatcher has already re-run Create for this entity.
func (p *Process) SyncEntityStart(sender dispatch.Sender, entityClass, entityName string) error {
	live, err := p.passiveEntity(entityClass, entityName)
	if err != nil {
		return err
	}
	live.passive.StartSyncEntity()
	return nil
}

// SyncEntityEnd marks the passive entity as caught up.
func (p *Process) SyncEntityEnd(sender dispatch.Sender, entityClass, entityName string) error {
	live, err := p.passiveEntity(entityClass, entityName)
	if err != nil {
		return err
	}
	live.passive.EndSyncEntity()
	return nil
}

// SyncEntityKeyStart marks the beginning of one partition's stream.
func (p *Process) SyncEntityKeyStart(sender dispatch.Sender, entityClass, entityName string, concurrencyKey uint32) error {
	live, err := p.passiveEntity(entityClass, entityName)
	if err != nil {
		return err
	}
	live.passive.StartSyncKey(concurrencyKey)
	return nil
}

// SyncEntityKeyEnd marks one partition as caught up.
func (p *Process) SyncEntityKeyEnd(sender dispatch.Sender, entityClass, entityName string, concurrencyKey uint32) error {
	live, err := p.passiveEntity(entityClass, entityName)
	if err != nil {
		return err
	}
	live.passive.EndSyncKey(concurrencyKey)
	return nil
}

// SyncPayload applies one chunk of partitioned state.
func (p *Process) SyncPayload(sender dispatch.Sender, entityClass, entityName string, concurrencyKey uint32, payload []byte) error {
	live, err := p.passiveEntity(entityClass, entityName)
	if err != nil {
		return err
	}
	if err := live.passive.ApplySyncPayload(concurrencyKey, payload); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.SyncPayloadChunks.Inc()
	}
	return nil
}

func (p *Process) passiveEntity(entityClass, entityName string) (*liveEntity, error) {
	key := domain.EntityKey{ClassName: entityClass, Name: entityName}
	live, ok := p.entities[key]
	if !ok {
		return nil, domain.ErrEntityNotFound.ForEntity(entityClass, entityName)
	}
	if live.passive == nil {
		return nil, domain.ErrInternal.ForEntity(entityClass, entityName).
			WithDetails("synchronization operation on an active process")
	}
	return live, nil
}

func (p *Process) serviceFor(entityClass string) entity.Service {
	for _, svc := range p.services {
		if svc.Handles(entityClass) {
			return svc
		}
	}
	return nil
}
