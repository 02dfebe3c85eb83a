// Package harness provides a direct-attach endpoint for validating
// entity implementations without the full server pipeline: no wire
// codec, no replication, no locks. The entity still runs behind the
// invocation gate, so its serialization guarantees hold even under
// concurrent test callers.
package harness

import (
	"errors"
	"sync"

	"github.com/yndnr/entmesh-go/internal/entity"
)

// ErrClosed is returned by operations on a closed harness endpoint.
var ErrClosed = errors.New("harness: endpoint is closed")

// MessageSink receives payloads the entity pushes to its client.
type MessageSink func(payload []byte)

// Endpoint drives one active entity directly.
type Endpoint struct {
	gate   *entity.Gate
	client clientDescriptor

	mu     sync.Mutex
	closed bool
	sink   MessageSink
}

type clientDescriptor struct {
	id uint64
}

func (d clientDescriptor) ClientInstanceID() uint64 { return d.id }

// New creates an active entity through the service and attaches a
// single simulated client to it.
func New(entityClass, entityName string, svc entity.Service, configuration []byte) (*Endpoint, error) {
	active, err := svc.CreateActive(configuration)
	if err != nil {
		return nil, err
	}

	e := &Endpoint{
		gate:   entity.NewGate(entityClass, entityName, active),
		client: clientDescriptor{id: 1},
	}
	active.Connected(e.client)
	return e, nil
}

// Invoke runs one payload through the entity's invocation gate.
func (e *Endpoint) Invoke(payload []byte) ([]byte, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	e.mu.Unlock()

	return e.gate.Invoke(e.client, payload)
}

// OnMessage installs the sink for entity-pushed payloads.
func (e *Endpoint) OnMessage(sink MessageSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

// Communicator returns the channel handed to entities that push
// unsolicited messages. Payloads for the harness client reach the
// installed sink; everything else is dropped.
func (e *Endpoint) Communicator() entity.ClientCommunicator {
	return harnessCommunicator{endpoint: e}
}

type harnessCommunicator struct {
	endpoint *Endpoint
}

func (c harnessCommunicator) SendNoResponse(client entity.ClientDescriptor, payload []byte) {
	e := c.endpoint
	e.mu.Lock()
	sink := e.sink
	closed := e.closed
	e.mu.Unlock()

	if closed || sink == nil || client.ClientInstanceID() != e.client.id {
		return
	}
	sink(payload)
}

// Close disconnects the simulated client. The second close is an error,
// matching the real endpoint's state machine.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	e.mu.Unlock()

	e.gate.Entity().Disconnected(e.client)
	return nil
}
