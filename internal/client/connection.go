// Package client implements the client side of the simulated platform:
// the connection that correlates operations with their acks and
// completions, and the entity endpoint handed to user code.
//
// @req RQ-0201
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/entmesh-go/internal/server/dispatch"
	"github.com/yndnr/entmesh-go/internal/telemetry/logger"
	"github.com/yndnr/entmesh-go/internal/wire"
)

// Transport carries raw operation frames to a server process. The
// process calls back on the dispatch.Sender with acks and completions.
type Transport interface {
	SendMessageToServer(raw []byte, sender dispatch.Sender)
}

// Connection is one client's connection to the active process. It
// assigns transaction IDs, tracks in-flight operations and routes acks,
// completions and unsolicited messages back to their owners.
type Connection struct {
	id        string
	transport Transport

	mu        sync.Mutex
	nextTxn   uint64
	nextCID   uint64
	inFlight  map[uint64]*InvokeFuture
	endpoints map[uint64]*Endpoint
	resending bool
	closed    bool

	log logger.Logger
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithLogger sets the structured logger.
func WithLogger(log logger.Logger) ConnectionOption {
	return func(c *Connection) { c.log = log }
}

// Connect creates a connection over the given transport.
func Connect(transport Transport, opts ...ConnectionOption) *Connection {
	c := &Connection{
		id:        ulid.Make().String(),
		transport: transport,
		inFlight:  make(map[uint64]*InvokeFuture),
		endpoints: make(map[uint64]*Endpoint),
		log:       logger.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("connection", c.id)
	return c
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// send assigns a transaction ID, registers the future and hands the
// frame to the transport.
func (c *Connection) send(msg *wire.Message) (*InvokeFuture, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("client: connection %s is closed", c.id)
	}
	c.nextTxn++
	msg.TransactionID = c.nextTxn
	future := newInvokeFuture()
	c.inFlight[msg.TransactionID] = future
	c.mu.Unlock()

	raw, err := wire.Encode(msg)
	if err != nil {
		c.mu.Lock()
		delete(c.inFlight, msg.TransactionID)
		c.mu.Unlock()
		return nil, fmt.Errorf("client: encode %s: %w", msg.Type, err)
	}

	c.transport.SendMessageToServer(raw, c)
	return future, nil
}

// SendAck routes an acknowledgement to its in-flight future. Called by
// the server process.
func (c *Connection) SendAck(ack *wire.Message) {
	c.mu.Lock()
	future := c.inFlight[ack.TransactionID]
	c.mu.Unlock()

	if future != nil {
		future.ack()
	}
}

// SendComplete routes a completion to its in-flight future and retires
// the transaction. Called by the server process.
func (c *Connection) SendComplete(complete *wire.Message) {
	c.mu.Lock()
	future := c.inFlight[complete.TransactionID]
	delete(c.inFlight, complete.TransactionID)
	c.mu.Unlock()

	if future == nil {
		c.log.Warn("completion for unknown transaction",
			"transaction_id", complete.TransactionID)
		return
	}

	var response []byte
	if complete.HasPayload {
		response = complete.Payload
		if response == nil {
			response = []byte{}
		}
	}
	var err error
	if complete.Err != nil {
		err = complete.Err
	}
	future.complete(response, err)
}

// ShouldTolerateCreateDestroyDuplication reports whether the connection
// is replaying operations after a reconnect, in which case the server
// absorbs duplicate lifecycle failures.
func (c *Connection) ShouldTolerateCreateDestroyDuplication() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resending
}

// FetchEntity fetches a reference to an entity and returns the endpoint
// bound to it. Blocks until the server grants the read lock.
func (c *Connection) FetchEntity(ctx context.Context, entityClass, entityName string, version uint64) (*Endpoint, error) {
	c.mu.Lock()
	c.nextCID++
	clientInstanceID := c.nextCID
	c.mu.Unlock()

	future, err := c.send(wire.NewFetch(entityClass, entityName, clientInstanceID, version))
	if err != nil {
		return nil, err
	}
	config, err := future.Get(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := newEndpoint(c, entityClass, entityName, clientInstanceID, config)
	c.mu.Lock()
	c.endpoints[clientInstanceID] = endpoint
	c.mu.Unlock()
	return endpoint, nil
}

// CreateEntity creates a new entity instance.
func (c *Connection) CreateEntity(ctx context.Context, entityClass, entityName string, version uint64, configuration []byte) error {
	return c.roundTrip(ctx, wire.NewCreate(entityClass, entityName, version, configuration))
}

// DestroyEntity destroys an entity instance.
func (c *Connection) DestroyEntity(ctx context.Context, entityClass, entityName string) error {
	return c.roundTrip(ctx, wire.NewDestroy(entityClass, entityName))
}

// AcquireWriteLock acquires the maintenance lock on an entity name.
func (c *Connection) AcquireWriteLock(ctx context.Context, entityClass, entityName string) error {
	return c.roundTrip(ctx, wire.NewAcquireWriteLock(entityClass, entityName))
}

// ReleaseWriteLock releases the maintenance lock.
func (c *Connection) ReleaseWriteLock(ctx context.Context, entityClass, entityName string) error {
	return c.roundTrip(ctx, wire.NewReleaseWriteLock(entityClass, entityName))
}

func (c *Connection) roundTrip(ctx context.Context, msg *wire.Message) error {
	future, err := c.send(msg)
	if err != nil {
		return err
	}
	_, err = future.Get(ctx)
	return err
}

// DeliverMessage routes an unsolicited server-pushed payload to the
// endpoint it targets.
func (c *Connection) DeliverMessage(clientInstanceID uint64, payload []byte) {
	c.mu.Lock()
	endpoint := c.endpoints[clientInstanceID]
	c.mu.Unlock()

	if endpoint == nil {
		c.log.Debug("dropping server message for unknown endpoint",
			"client_instance_id", clientInstanceID)
		return
	}
	endpoint.HandleMessageFromServer(payload)
}

// Reconnect replays the connection state after a simulated transport
// drop: every open endpoint notifies its delegate, then re-announces
// itself to the server with its extended reconnect data. Lifecycle
// duplicates are tolerated for the duration of the replay.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	endpoints := make([]*Endpoint, 0, len(c.endpoints))
	for _, endpoint := range c.endpoints {
		endpoints = append(endpoints, endpoint)
	}
	c.resending = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.resending = false
		c.mu.Unlock()
	}()

	for _, endpoint := range endpoints {
		endpoint.NotifyDisconnectedUnexpectedly()

		msg := wire.NewReconnect(endpoint.entityClass, endpoint.entityName,
			endpoint.clientInstanceID, endpoint.createExtendedReconnectData())
		if err := c.roundTrip(ctx, msg); err != nil {
			return fmt.Errorf("client: reconnect %s/%s: %w",
				endpoint.entityClass, endpoint.entityName, err)
		}
	}
	return nil
}

// Close closes every open endpoint and refuses further operations.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	endpoints := make([]*Endpoint, 0, len(c.endpoints))
	for _, endpoint := range c.endpoints {
		endpoints = append(endpoints, endpoint)
	}
	c.mu.Unlock()

	var firstErr error
	for _, endpoint := range endpoints {
		if err := endpoint.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return firstErr
}

// forgetEndpoint drops the endpoint from the routing table once closed.
func (c *Connection) forgetEndpoint(clientInstanceID uint64) {
	c.mu.Lock()
	delete(c.endpoints, clientInstanceID)
	c.mu.Unlock()
}
