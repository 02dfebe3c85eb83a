package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/entmesh-go/internal/core/domain"
	"github.com/yndnr/entmesh-go/internal/server/dispatch"
	"github.com/yndnr/entmesh-go/internal/wire"
)

// scriptedServer answers operations immediately, recording what it saw.
type scriptedServer struct {
	mu       sync.Mutex
	received []*wire.Message

	// respond overrides the default success response per message type.
	respond map[wire.Type]func(msg *wire.Message) *wire.Message

	// tolerated records the sender policy observed per operation.
	tolerated []bool
}

func newScriptedServer() *scriptedServer {
	return &scriptedServer{respond: make(map[wire.Type]func(msg *wire.Message) *wire.Message)}
}

func (s *scriptedServer) SendMessageToServer(raw []byte, sender dispatch.Sender) {
	msg, err := wire.Decode(raw)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	s.received = append(s.received, msg)
	s.tolerated = append(s.tolerated, sender.ShouldTolerateCreateDestroyDuplication())
	respond := s.respond[msg.Type]
	s.mu.Unlock()

	sender.SendAck(wire.NewAck(msg.TransactionID))

	if respond != nil {
		sender.SendComplete(respond(msg))
		return
	}
	switch msg.Type {
	case wire.TypeFetch:
		sender.SendComplete(wire.NewComplete(msg.TransactionID, []byte("cfg"), nil))
	case wire.TypeInvoke:
		sender.SendComplete(wire.NewComplete(msg.TransactionID, []byte("echo"), nil))
	default:
		sender.SendComplete(wire.NewComplete(msg.TransactionID, []byte{}, nil))
	}
}

func (s *scriptedServer) ofType(t wire.Type) []*wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*wire.Message
	for _, msg := range s.received {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func fetchEndpoint(t *testing.T, server *scriptedServer) (*Connection, *Endpoint) {
	t.Helper()
	conn := Connect(server)
	endpoint, err := conn.FetchEntity(testContext(t), "org.example.Counter", "c1", 1)
	if err != nil {
		t.Fatalf("FetchEntity() error = %v", err)
	}
	return conn, endpoint
}

func TestFetchCapturesConfiguration(t *testing.T) {
	_, endpoint := fetchEndpoint(t, newScriptedServer())
	if string(endpoint.Configuration()) != "cfg" {
		t.Errorf("Configuration() = %q, want cfg", endpoint.Configuration())
	}
}

func TestInvokeRoundTrip(t *testing.T) {
	server := newScriptedServer()
	_, endpoint := fetchEndpoint(t, server)

	builder, err := endpoint.BeginInvoke()
	if err != nil {
		t.Fatalf("BeginInvoke() error = %v", err)
	}
	future, err := builder.Payload([]byte("op")).Invoke()
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if err := future.WaitForAck(testContext(t)); err != nil {
		t.Fatalf("WaitForAck() error = %v", err)
	}
	response, err := future.Get(testContext(t))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(response) != "echo" {
		t.Errorf("response = %q, want echo", response)
	}

	invokes := server.ofType(wire.TypeInvoke)
	if len(invokes) != 1 || string(invokes[0].Payload) != "op" {
		t.Fatalf("server saw invokes %v, want one with payload op", invokes)
	}
}

func TestInvokeFailureSurfacesEntityError(t *testing.T) {
	server := newScriptedServer()
	server.respond[wire.TypeInvoke] = func(msg *wire.Message) *wire.Message {
		return wire.NewComplete(msg.TransactionID, nil,
			domain.ErrEntityNotFound.ForEntity(msg.EntityClass, msg.EntityName))
	}
	_, endpoint := fetchEndpoint(t, server)

	builder, _ := endpoint.BeginInvoke()
	future, err := builder.Invoke()
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	_, err = future.Get(testContext(t))
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Errorf("Get() error = %v, want entity not found", err)
	}
}

func TestCloseSendsReleaseOnce(t *testing.T) {
	server := newScriptedServer()
	_, endpoint := fetchEndpoint(t, server)

	if err := endpoint.Close(testContext(t)); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := len(server.ofType(wire.TypeRelease)); got != 1 {
		t.Errorf("server saw %d releases, want 1", got)
	}

	if err := endpoint.Close(testContext(t)); !errors.Is(err, ErrEndpointClosed) {
		t.Errorf("second Close() error = %v, want ErrEndpointClosed", err)
	}
	if got := len(server.ofType(wire.TypeRelease)); got != 1 {
		t.Errorf("second close sent another release (%d total)", got)
	}
}

func TestBeginInvokeAfterClose(t *testing.T) {
	_, endpoint := fetchEndpoint(t, newScriptedServer())

	if err := endpoint.Close(testContext(t)); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := endpoint.BeginInvoke(); !errors.Is(err, ErrEndpointClosed) {
		t.Errorf("BeginInvoke() after close error = %v, want ErrEndpointClosed", err)
	}
}

func TestInvokeAfterCloseViaStaleBuilder(t *testing.T) {
	_, endpoint := fetchEndpoint(t, newScriptedServer())

	builder, err := endpoint.BeginInvoke()
	if err != nil {
		t.Fatalf("BeginInvoke() error = %v", err)
	}
	if err := endpoint.Close(testContext(t)); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := builder.Invoke(); !errors.Is(err, ErrEndpointClosed) {
		t.Errorf("stale builder Invoke() error = %v, want ErrEndpointClosed", err)
	}
}

func TestSetDelegateTwice(t *testing.T) {
	_, endpoint := fetchEndpoint(t, newScriptedServer())
	d := &recordingDelegate{}

	if err := endpoint.SetDelegate(d); err != nil {
		t.Fatalf("SetDelegate() error = %v", err)
	}
	if err := endpoint.SetDelegate(d); !errors.Is(err, ErrDelegateAlreadySet) {
		t.Errorf("second SetDelegate() error = %v, want ErrDelegateAlreadySet", err)
	}
}

func TestSetDelegateAfterClose(t *testing.T) {
	_, endpoint := fetchEndpoint(t, newScriptedServer())
	if err := endpoint.Close(testContext(t)); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := endpoint.SetDelegate(&recordingDelegate{}); !errors.Is(err, ErrEndpointClosed) {
		t.Errorf("SetDelegate() after close error = %v, want ErrEndpointClosed", err)
	}
}

type recordingDelegate struct {
	mu            sync.Mutex
	messages      [][]byte
	disconnects   int
	reconnectData []byte
}

func (d *recordingDelegate) HandleMessage(payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, payload)
}

func (d *recordingDelegate) CreateExtendedReconnectData() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reconnectData
}

func (d *recordingDelegate) DidDisconnectUnexpectedly() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects++
}

func TestServerMessagesReachDelegate(t *testing.T) {
	conn, endpoint := fetchEndpoint(t, newScriptedServer())
	d := &recordingDelegate{}
	if err := endpoint.SetDelegate(d); err != nil {
		t.Fatalf("SetDelegate() error = %v", err)
	}

	conn.DeliverMessage(endpoint.clientInstanceID, []byte("push"))

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.messages) != 1 || string(d.messages[0]) != "push" {
		t.Errorf("delegate messages = %v, want [push]", d.messages)
	}
}

func TestMessagesWithoutDelegateDropped(t *testing.T) {
	conn, endpoint := fetchEndpoint(t, newScriptedServer())
	// No delegate installed; delivery must be a silent no-op.
	conn.DeliverMessage(endpoint.clientInstanceID, []byte("push"))
	conn.DeliverMessage(12345, []byte("unknown endpoint"))
}

func TestReconnectExtensionEmptyNotNil(t *testing.T) {
	server := newScriptedServer()
	conn, endpoint := fetchEndpoint(t, server)

	endpoint.NotifyDisconnectedUnexpectedly() // no delegate: no-op

	if err := conn.Reconnect(testContext(t)); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}

	reconnects := server.ofType(wire.TypeReconnect)
	if len(reconnects) != 1 {
		t.Fatalf("server saw %d reconnects, want 1", len(reconnects))
	}
	if reconnects[0].Payload == nil || len(reconnects[0].Payload) != 0 {
		t.Errorf("extension = %v, want empty and present", reconnects[0].Payload)
	}
}

func TestReconnectUsesDelegateDataAndToleratesDuplicates(t *testing.T) {
	server := newScriptedServer()
	conn, endpoint := fetchEndpoint(t, server)

	d := &recordingDelegate{reconnectData: []byte("resume-state")}
	if err := endpoint.SetDelegate(d); err != nil {
		t.Fatalf("SetDelegate() error = %v", err)
	}

	if err := conn.Reconnect(testContext(t)); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}

	d.mu.Lock()
	disconnects := d.disconnects
	d.mu.Unlock()
	if disconnects != 1 {
		t.Errorf("delegate saw %d disconnect notices, want 1", disconnects)
	}

	reconnects := server.ofType(wire.TypeReconnect)
	if len(reconnects) != 1 || string(reconnects[0].Payload) != "resume-state" {
		t.Fatalf("reconnect payloads = %v, want [resume-state]", reconnects)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	sawTolerant := false
	for i, msg := range server.received {
		if msg.Type == wire.TypeReconnect && server.tolerated[i] {
			sawTolerant = true
		}
	}
	if !sawTolerant {
		t.Error("reconnect replay must announce duplication tolerance")
	}
}

func TestConnectionCloseClosesEndpoints(t *testing.T) {
	server := newScriptedServer()
	conn, endpoint := fetchEndpoint(t, server)

	if err := conn.Close(testContext(t)); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := endpoint.BeginInvoke(); !errors.Is(err, ErrEndpointClosed) {
		t.Errorf("BeginInvoke() after connection close error = %v, want ErrEndpointClosed", err)
	}
	if _, err := conn.FetchEntity(testContext(t), "org.example.Counter", "c2", 1); err == nil {
		t.Error("FetchEntity() on closed connection must fail")
	}
}

func TestCompletionPayloadPresence(t *testing.T) {
	server := newScriptedServer()
	server.respond[wire.TypeInvoke] = func(msg *wire.Message) *wire.Message {
		return wire.NewComplete(msg.TransactionID, nil, nil) // success, no data
	}
	_, endpoint := fetchEndpoint(t, server)

	builder, _ := endpoint.BeginInvoke()
	future, err := builder.Invoke()
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	response, err := future.Get(testContext(t))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if response != nil {
		t.Errorf("response = %v, want nil for a data-less success", response)
	}
}
