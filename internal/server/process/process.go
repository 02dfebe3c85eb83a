package process

import (
	"sync"
	"sync/atomic"

	"github.com/yndnr/entmesh-go/internal/core/domain"
	"github.com/yndnr/entmesh-go/internal/entity"
	"github.com/yndnr/entmesh-go/internal/server/dispatch"
	"github.com/yndnr/entmesh-go/internal/server/lock"
	"github.com/yndnr/entmesh-go/internal/storage"
	"github.com/yndnr/entmesh-go/internal/telemetry/logger"
	"github.com/yndnr/entmesh-go/internal/telemetry/metric"
)

// defaultQueueDepth bounds the in-process operation queue.
const defaultQueueDepth = 1024

// liveEntity is one materialized entity instance. On an active process
// the instance lives behind an invocation gate; on a passive process it
// is the replica implementation.
type liveEntity struct {
	record  domain.EntityRecord
	gate    *entity.Gate
	passive entity.PassiveEntity
}

// Process is one simulated server process, active or passive. All entity
// state is owned by a single message-processing goroutine; transports
// enqueue raw operation frames and the loop drives them through the
// dispatch pipeline.
type Process struct {
	name     string
	isActive bool

	services []entity.Service
	entities map[domain.EntityKey]*liveEntity

	locks      *lock.Manager
	registry   storage.Registry
	dispatcher *dispatch.Dispatcher

	// downstream is only touched on the message goroutine.
	downstream dispatch.Passive

	jobs chan func()
	done chan struct{}
	wg   sync.WaitGroup

	// serverTxn numbers server-originated transactions (sync streaming).
	serverTxn atomic.Uint64

	clientsMu sync.Mutex
	clients   map[uint64]func(payload []byte)

	log     logger.Logger
	metrics *metric.Registry
}

// Option configures a Process.
type Option func(*Process)

// WithServices registers the entity services available on the process.
func WithServices(services ...entity.Service) Option {
	return func(p *Process) { p.services = append(p.services, services...) }
}

// WithRegistry persists entity records through the given registry.
func WithRegistry(registry storage.Registry) Option {
	return func(p *Process) { p.registry = registry }
}

// WithLogger sets the structured logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Process) { p.log = log }
}

// WithMetrics sets the metric registry.
func WithMetrics(m *metric.Registry) Option {
	return func(p *Process) { p.metrics = m }
}

// WithQueueDepth overrides the operation queue capacity.
func WithQueueDepth(depth int) Option {
	return func(p *Process) { p.jobs = make(chan func(), depth) }
}

// NewActive creates an active (authoritative) server process.
func NewActive(name string, opts ...Option) *Process {
	return newProcess(name, true, opts...)
}

// NewPassive creates a passive (replica) server process.
func NewPassive(name string, opts ...Option) *Process {
	return newProcess(name, false, opts...)
}

func newProcess(name string, isActive bool, opts ...Option) *Process {
	p := &Process{
		name:     name,
		isActive: isActive,
		entities: make(map[domain.EntityKey]*liveEntity),
		done:     make(chan struct{}),
		clients:  make(map[uint64]func(payload []byte)),
		log:      logger.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.jobs == nil {
		p.jobs = make(chan func(), defaultQueueDepth)
	}
	p.log = p.log.With("process", name)

	var lockOpts []lock.Option
	var dispatchOpts []dispatch.Option
	dispatchOpts = append(dispatchOpts, dispatch.WithLogger(p.log))
	if p.metrics != nil {
		lockOpts = append(lockOpts, lock.WithMetrics(p.metrics))
		dispatchOpts = append(dispatchOpts, dispatch.WithMetrics(p.metrics))
	}
	p.locks = lock.NewManager(lockOpts...)
	p.dispatcher = dispatch.New(p, dispatchOpts...)
	return p
}

// Start launches the message-processing goroutine.
func (p *Process) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop shuts the message loop down after the current job finishes.
// Queued jobs that have not started are dropped.
func (p *Process) Stop() {
	close(p.done)
	p.wg.Wait()
}

// Name returns the process name used in logs.
func (p *Process) Name() string { return p.name }

// IsActive reports whether this process is the authoritative one.
func (p *Process) IsActive() bool { return p.isActive }

func (p *Process) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case job := <-p.jobs:
			job()
		}
	}
}

// enqueue schedules work onto the message goroutine. Work submitted
// after Stop is dropped.
func (p *Process) enqueue(job func()) {
	select {
	case p.jobs <- job:
	case <-p.done:
	}
}

// SendMessageToServer submits one raw operation frame on behalf of a
// sender. Frames from one sender execute in submission order.
func (p *Process) SendMessageToServer(raw []byte, sender dispatch.Sender) {
	p.enqueue(func() {
		if err := p.dispatcher.Dispatch(raw, sender, p.downstream); err != nil {
			p.log.Error("dropping undecodable operation", "error", err)
		}
	})
}

// SendMessageFromActive implements the passive side of replication: the
// active forwards the raw frame, the passive applies it through its own
// pipeline and releases the interlock. A passive never has its own
// downstream.
func (p *Process) SendMessageFromActive(interlock *dispatch.Interlock, raw []byte) {
	p.enqueue(func() {
		if err := p.dispatcher.Dispatch(raw, interlock, nil); err != nil {
			p.log.Error("dropping undecodable replicated operation", "error", err)
			// Release the active; a frame that cannot be decoded will
			// never produce a completion of its own.
			interlock.SendComplete(nil)
		}
	})
}

// AttachPassive wires a passive process downstream of this active and
// streams the current entity state to it. Attachment happens on the
// message goroutine, so in-flight operations are never split across the
// sync boundary.
func (p *Process) AttachPassive(passive dispatch.Passive) {
	if !p.isActive {
		panic("process: AttachPassive on a passive process")
	}
	p.enqueue(func() {
		p.downstream = passive
		if err := p.syncToPassive(passive); err != nil {
			p.log.Error("passive state synchronization failed", "error", err)
		}
	})
}

// DetachPassive disconnects the downstream passive.
func (p *Process) DetachPassive() {
	p.enqueue(func() {
		p.downstream = nil
	})
}

// RegisterClient routes unsolicited server-pushed payloads for one
// client instance to the given delivery function.
func (p *Process) RegisterClient(clientInstanceID uint64, deliver func(payload []byte)) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	p.clients[clientInstanceID] = deliver
	if p.metrics != nil {
		p.metrics.ClientsAttached.Inc()
	}
}

// UnregisterClient removes the delivery route for a client instance.
func (p *Process) UnregisterClient(clientInstanceID uint64) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if _, ok := p.clients[clientInstanceID]; ok {
		delete(p.clients, clientInstanceID)
		if p.metrics != nil {
			p.metrics.ClientsAttached.Dec()
		}
	}
}

// Communicator returns the channel entities use to push unsolicited
// messages to connected clients.
func (p *Process) Communicator() entity.ClientCommunicator {
	return communicator{p: p}
}

type communicator struct {
	p *Process
}

func (c communicator) SendNoResponse(client entity.ClientDescriptor, payload []byte) {
	c.p.clientsMu.Lock()
	deliver := c.p.clients[client.ClientInstanceID()]
	c.p.clientsMu.Unlock()

	if deliver == nil {
		c.p.log.Debug("dropping message for unregistered client",
			"client_instance_id", client.ClientInstanceID())
		return
	}
	deliver(payload)
}

// Restore re-materializes entities from the storage registry, used when
// a process restarts over a durable registry. Must be called before
// Start so the entity table is complete when traffic arrives.
func (p *Process) Restore() error {
	if p.registry == nil {
		return nil
	}
	records, err := p.registry.List()
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := p.materialize(rec, false); err != nil {
			return err
		}
		p.log.Info("entity restored",
			"entity", rec.Key().String(),
			"version", rec.Version)
	}
	return nil
}

// clientDescriptor adapts a client instance ID to the entity-facing
// descriptor contract.
type clientDescriptor struct {
	id uint64
}

func (d clientDescriptor) ClientInstanceID() uint64 { return d.id }
