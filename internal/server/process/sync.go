package process

import (
	"fmt"
	"sort"

	"github.com/yndnr/entmesh-go/internal/core/domain"
	"github.com/yndnr/entmesh-go/internal/entity"
	"github.com/yndnr/entmesh-go/internal/server/dispatch"
	"github.com/yndnr/entmesh-go/internal/wire"
)

// syncOrigin is the sender identity for server-originated sync frames.
// Nothing listens for their acks or completions; the interlock is the
// only consumer.
type syncOrigin struct{}

func (syncOrigin) SendAck(*wire.Message)                        {}
func (syncOrigin) SendComplete(*wire.Message)                   {}
func (syncOrigin) ShouldTolerateCreateDestroyDuplication() bool { return false }

// syncToPassive streams the full entity state to a freshly attached
// passive: for each entity, a sync-start that re-runs Create, then the
// per-partition state chunks, then the end markers. Runs on the message
// goroutine, so no client operation interleaves with the stream.
func (p *Process) syncToPassive(passive dispatch.Passive) error {
	keys := make([]domain.EntityKey, 0, len(p.entities))
	for key := range p.entities {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, key := range keys {
		live := p.entities[key]
		rec := live.record

		if err := p.sendSync(passive, wire.NewSyncEntityStart(rec.ClassName, rec.Name, rec.Version, rec.Configuration)); err != nil {
			return err
		}

		if syncable, ok := live.gate.Entity().(entity.Syncable); ok {
			if err := p.syncPartitions(passive, key, syncable); err != nil {
				return err
			}
		}

		if err := p.sendSync(passive, wire.NewSyncEntityEnd(rec.ClassName, rec.Name)); err != nil {
			return err
		}
		p.log.Info("entity synchronized to passive", "entity", key.String())
	}
	return nil
}

func (p *Process) syncPartitions(passive dispatch.Passive, key domain.EntityKey, syncable entity.Syncable) error {
	for _, ck := range syncable.SyncKeys() {
		if err := p.sendSync(passive, wire.NewSyncEntityKeyStart(key.ClassName, key.Name, ck)); err != nil {
			return err
		}

		chunks, err := syncable.SnapshotKey(ck)
		if err != nil {
			return fmt.Errorf("process: snapshot %s key %d: %w", key, ck, err)
		}
		for _, chunk := range chunks {
			if err := p.sendSync(passive, wire.NewSyncPayload(key.ClassName, key.Name, ck, chunk)); err != nil {
				return err
			}
		}

		if err := p.sendSync(passive, wire.NewSyncEntityKeyEnd(key.ClassName, key.Name, ck)); err != nil {
			return err
		}
	}
	return nil
}

// sendSync forwards one server-originated frame to the passive and
// blocks until it has been applied.
func (p *Process) sendSync(passive dispatch.Passive, msg *wire.Message) error {
	msg.TransactionID = p.serverTxn.Add(1)
	raw, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("process: encode %s sync frame: %w", msg.Type, err)
	}

	interlock := dispatch.NewInterlock(syncOrigin{})
	passive.SendMessageFromActive(interlock, raw)
	interlock.WaitForComplete()
	return nil
}
