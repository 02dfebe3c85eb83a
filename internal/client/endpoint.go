package client

import (
	"context"
	"errors"
	"sync"

	"github.com/yndnr/entmesh-go/internal/wire"
)

// Endpoint state machine errors.
var (
	// ErrEndpointClosed is returned by operations on a closed endpoint.
	ErrEndpointClosed = errors.New("client: endpoint is closed")

	// ErrDelegateAlreadySet is returned when SetDelegate is called twice.
	ErrDelegateAlreadySet = errors.New("client: endpoint delegate already set")
)

// Delegate receives endpoint events on behalf of user code.
type Delegate interface {
	// HandleMessage delivers one unsolicited server-pushed payload.
	HandleMessage(payload []byte)

	// CreateExtendedReconnectData supplies the opaque blob re-announced
	// to the server when the connection reconnects.
	CreateExtendedReconnectData() []byte

	// DidDisconnectUnexpectedly signals a simulated transport drop.
	DidDisconnectUnexpectedly()
}

// Endpoint is a client's live reference to one fetched entity. An
// endpoint starts open and transitions to closed exactly once; a closed
// endpoint rejects every further operation.
type Endpoint struct {
	conn             *Connection
	entityClass      string
	entityName       string
	clientInstanceID uint64
	config           []byte

	mu       sync.Mutex
	closed   bool
	delegate Delegate
}

func newEndpoint(conn *Connection, entityClass, entityName string, clientInstanceID uint64, config []byte) *Endpoint {
	return &Endpoint{
		conn:             conn,
		entityClass:      entityClass,
		entityName:       entityName,
		clientInstanceID: clientInstanceID,
		config:           config,
	}
}

// Configuration returns the entity configuration captured at fetch time.
func (e *Endpoint) Configuration() []byte {
	return e.config
}

// SetDelegate installs the event delegate. The delegate can be set once;
// a second call, or a call on a closed endpoint, is a state error.
func (e *Endpoint) SetDelegate(delegate Delegate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEndpointClosed
	}
	if e.delegate != nil {
		return ErrDelegateAlreadySet
	}
	e.delegate = delegate
	return nil
}

// BeginInvoke starts building an invocation. Fails fast once the
// endpoint is closed so no invocation can race the release.
func (e *Endpoint) BeginInvoke() (*InvocationBuilder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEndpointClosed
	}
	return &InvocationBuilder{endpoint: e}, nil
}

// Close releases the entity reference: it sends the Release operation,
// blocks until its completion, and unroutes the endpoint. The second
// close is a state error.
func (e *Endpoint) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEndpointClosed
	}
	e.closed = true
	e.mu.Unlock()

	err := e.conn.roundTrip(ctx, wire.NewRelease(e.entityClass, e.entityName, e.clientInstanceID))
	e.conn.forgetEndpoint(e.clientInstanceID)
	return err
}

// HandleMessageFromServer delivers an unsolicited payload to the
// delegate. Without a delegate, or once closed, the message is dropped.
func (e *Endpoint) HandleMessageFromServer(payload []byte) {
	e.mu.Lock()
	delegate := e.delegate
	closed := e.closed
	e.mu.Unlock()

	if closed || delegate == nil {
		e.conn.log.Debug("dropping server message without delegate",
			"entity", e.entityClass+"/"+e.entityName)
		return
	}
	delegate.HandleMessage(payload)
}

// NotifyDisconnectedUnexpectedly signals the delegate that the
// underlying connection dropped.
func (e *Endpoint) NotifyDisconnectedUnexpectedly() {
	e.mu.Lock()
	delegate := e.delegate
	e.mu.Unlock()

	if delegate != nil {
		delegate.DidDisconnectUnexpectedly()
	}
}

// createExtendedReconnectData collects the delegate's reconnect blob.
// With no delegate the extension is empty, never nil: the server side
// distinguishes a present-but-empty blob from an absent one.
func (e *Endpoint) createExtendedReconnectData() []byte {
	e.mu.Lock()
	delegate := e.delegate
	e.mu.Unlock()

	if delegate == nil {
		return []byte{}
	}
	data := delegate.CreateExtendedReconnectData()
	if data == nil {
		return []byte{}
	}
	return data
}

// InvocationBuilder accumulates the arguments of one invocation.
type InvocationBuilder struct {
	endpoint *Endpoint
	payload  []byte
}

// Payload sets the serialized invocation payload.
func (b *InvocationBuilder) Payload(payload []byte) *InvocationBuilder {
	b.payload = payload
	return b
}

// Invoke submits the invocation and returns its future. The endpoint
// may have closed since BeginInvoke; submission re-checks the state.
func (b *InvocationBuilder) Invoke() (*InvokeFuture, error) {
	e := b.endpoint
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEndpointClosed
	}
	e.mu.Unlock()

	return e.conn.send(wire.NewInvoke(e.entityClass, e.entityName, e.clientInstanceID, b.payload))
}
