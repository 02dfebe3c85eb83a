// Package sim drives scripted client load against a simulated platform:
// an active process, an optional passive replica, and a configurable
// number of concurrent clients invoking a shared counter entity.
//
// @req RQ-0601
package sim

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/yndnr/entmesh-go/internal/entity"
)

// CounterClass is the entity class the scenario drives.
const CounterClass = "org.entmesh.sim.Counter"

// CounterVersion is the implementation version of the counter service.
const CounterVersion = 1

// Counter payload opcodes.
const (
	opAdd byte = 0x01
	opGet byte = 0x02
)

// counterSyncKey is the single concurrency partition the counter
// streams during passive synchronization.
const counterSyncKey uint32 = 1

// EncodeAdd builds an invocation payload that adds delta to the counter
// and returns the new total.
func EncodeAdd(delta uint64) []byte {
	payload := make([]byte, 9)
	payload[0] = opAdd
	binary.BigEndian.PutUint64(payload[1:], delta)
	return payload
}

// EncodeGet builds an invocation payload that reads the current total.
func EncodeGet() []byte {
	return []byte{opGet}
}

// DecodeTotal parses a counter response.
func DecodeTotal(response []byte) (uint64, error) {
	if len(response) != 8 {
		return 0, fmt.Errorf("sim: counter response is %d bytes, want 8", len(response))
	}
	return binary.BigEndian.Uint64(response), nil
}

func encodeTotal(total uint64) []byte {
	response := make([]byte, 8)
	binary.BigEndian.PutUint64(response, total)
	return response
}

// counterActive is the authoritative counter. The platform serializes
// invocations, so no locking is needed on the value itself.
type counterActive struct {
	value uint64

	mu        sync.Mutex
	reconnect map[uint64][]byte
}

func (c *counterActive) Connected(client entity.ClientDescriptor)    {}
func (c *counterActive) Disconnected(client entity.ClientDescriptor) {}

func (c *counterActive) Invoke(client entity.ClientDescriptor, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("sim: empty counter payload")
	}
	switch payload[0] {
	case opAdd:
		if len(payload) != 9 {
			return nil, fmt.Errorf("sim: add payload is %d bytes, want 9", len(payload))
		}
		c.value += binary.BigEndian.Uint64(payload[1:])
		return encodeTotal(c.value), nil
	case opGet:
		return encodeTotal(c.value), nil
	default:
		return nil, fmt.Errorf("sim: unknown counter opcode 0x%02x", payload[0])
	}
}

func (c *counterActive) HandleReconnect(client entity.ClientDescriptor, extendedData []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnect == nil {
		c.reconnect = make(map[uint64][]byte)
	}
	c.reconnect[client.ClientInstanceID()] = extendedData
	return nil
}

func (c *counterActive) SyncKeys() []uint32 {
	return []uint32{counterSyncKey}
}

func (c *counterActive) SnapshotKey(concurrencyKey uint32) ([][]byte, error) {
	if concurrencyKey != counterSyncKey {
		return nil, fmt.Errorf("sim: unknown sync key %d", concurrencyKey)
	}
	return [][]byte{encodeTotal(c.value)}, nil
}

// counterPassive mirrors the active's value by replaying add operations.
type counterPassive struct {
	mu    sync.Mutex
	value uint64
}

func (c *counterPassive) Invoke(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("sim: empty counter payload")
	}
	switch payload[0] {
	case opAdd:
		if len(payload) != 9 {
			return fmt.Errorf("sim: add payload is %d bytes, want 9", len(payload))
		}
		c.mu.Lock()
		c.value += binary.BigEndian.Uint64(payload[1:])
		c.mu.Unlock()
		return nil
	case opGet:
		// Reads carry no state; nothing to replay.
		return nil
	default:
		return fmt.Errorf("sim: unknown counter opcode 0x%02x", payload[0])
	}
}

func (c *counterPassive) StartSyncEntity() {}

func (c *counterPassive) EndSyncEntity() {}

func (c *counterPassive) StartSyncKey(concurrencyKey uint32) {}

func (c *counterPassive) EndSyncKey(concurrencyKey uint32) {}

func (c *counterPassive) ApplySyncPayload(concurrencyKey uint32, payload []byte) error {
	total, err := DecodeTotal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.value = total
	c.mu.Unlock()
	return nil
}

// Value returns the replica's current total, used to check convergence.
func (c *counterPassive) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// counterService constructs counter instances.
type counterService struct {
	mu       sync.Mutex
	passives []*counterPassive
}

// NewCounterService returns the entity service backing the scenario.
func NewCounterService() entity.Service {
	return &counterService{}
}

func (s *counterService) Handles(entityClassName string) bool {
	return entityClassName == CounterClass
}

func (s *counterService) Version() uint64 { return CounterVersion }

func (s *counterService) CreateActive(configuration []byte) (entity.ActiveEntity, error) {
	return &counterActive{}, nil
}

func (s *counterService) CreatePassive(configuration []byte) (entity.PassiveEntity, error) {
	p := &counterPassive{}
	s.mu.Lock()
	s.passives = append(s.passives, p)
	s.mu.Unlock()
	return p, nil
}
