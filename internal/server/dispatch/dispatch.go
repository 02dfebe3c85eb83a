package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/yndnr/entmesh-go/internal/core/domain"
	"github.com/yndnr/entmesh-go/internal/telemetry/logger"
	"github.com/yndnr/entmesh-go/internal/telemetry/metric"
	"github.com/yndnr/entmesh-go/internal/wire"
)

// emptyResponse is the payload for operations that succeed without data.
var emptyResponse = []byte{}

// Dispatcher decodes one operation at a time and drives it through the
// ack / replicate / execute / complete pipeline against a Handler.
//
// A Dispatcher is owned by one server process and used entirely on that
// process's message goroutine.
type Dispatcher struct {
	handler Handler
	log     logger.Logger
	metrics *metric.Registry
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(log logger.Logger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// WithMetrics sets the metric registry.
func WithMetrics(m *metric.Registry) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New creates a Dispatcher routing operations to the given handler.
func New(handler Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handler: handler,
		log:     logger.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one raw operation frame: decode, ack, replicate,
// execute, complete. Exactly one ack and exactly one completion are sent
// per call, ack strictly first. A decode failure is returned to the
// transport without any ack or completion, since no transaction could be
// identified.
//
// Client-bound frames (Ack, Complete, InvokeOnClient) arriving here are
// a programming error and panic.
func (d *Dispatcher) Dispatch(raw []byte, sender Sender, downstreamPassive Passive) error {
	msg, err := wire.Decode(raw)
	if err != nil {
		return fmt.Errorf("dispatch: decode operation: %w", err)
	}

	if !msg.Type.ServerBound() {
		panic(fmt.Sprintf("dispatch: client-bound message type %v on server", msg.Type))
	}

	// First step, send the ack. This unblocks the sender's pipeline for
	// ordering purposes even though the operation has not executed yet.
	sender.SendAck(wire.NewAck(msg.TransactionID))

	// Before the operation can run locally, its replicated copy must
	// finish on the passive.
	if msg.Replicate && downstreamPassive != nil {
		interlock := NewInterlock(sender)
		downstreamPassive.SendMessageFromActive(interlock, raw)

		start := time.Now()
		interlock.WaitForComplete()
		if d.metrics != nil {
			d.metrics.ReplicationWaitSeconds.Observe(time.Since(start).Seconds())
		}
	}

	d.execute(msg, sender)
	return nil
}

func (d *Dispatcher) execute(msg *wire.Message, sender Sender) {
	entityClass := msg.EntityClass
	entityName := msg.EntityName

	switch msg.Type {
	case wire.TypeCreate:
		// There is no response on successful create.
		err := d.guard(entityClass, entityName, func() error {
			return d.handler.Create(entityClass, entityName, msg.Version, msg.Payload)
		})
		err = d.absorbIfTolerated(sender, msg, err)
		d.complete(sender, msg, nil, err)

	case wire.TypeDestroy:
		err := d.guard(entityClass, entityName, func() error {
			return d.handler.Destroy(entityClass, entityName)
		})
		err = d.absorbIfTolerated(sender, msg, err)
		d.complete(sender, msg, nil, err)

	case wire.TypeFetch:
		// The fetch is asynchronous since it may block acquiring the
		// read lock. Completion is deferred to the handle.
		onFetch := NewCompletion(func(config []byte, err error) {
			d.complete(sender, msg, config, err)
		})
		err := d.guard(entityClass, entityName, func() error {
			d.handler.Fetch(sender, msg.ClientInstanceID, entityClass, entityName, msg.Version, onFetch)
			return nil
		})
		if err != nil {
			// An unexpected failure is the only case completed at this
			// level; the single-shot handle squashes any late callback.
			onFetch.Complete(nil, err)
		}

	case wire.TypeRelease:
		err := d.guard(entityClass, entityName, func() error {
			return d.handler.Release(sender, msg.ClientInstanceID, entityClass, entityName)
		})
		d.complete(sender, msg, nil, err)

	case wire.TypeInvoke:
		var response []byte
		err := d.guard(entityClass, entityName, func() error {
			r, err := d.handler.Invoke(sender, msg.ClientInstanceID, entityClass, entityName, msg.Payload)
			response = r
			return err
		})
		d.complete(sender, msg, response, err)

	case wire.TypeAcquireWriteLock:
		onAcquire := NewCompletion(func(_ []byte, err error) {
			d.complete(sender, msg, emptyResponse, err)
		})
		err := d.guard(entityClass, entityName, func() error {
			d.handler.AcquireWriteLock(sender, entityClass, entityName, onAcquire)
			return nil
		})
		if err != nil {
			onAcquire.Complete(nil, err)
		}

	case wire.TypeReleaseWriteLock:
		err := d.guard(entityClass, entityName, func() error {
			return d.handler.ReleaseWriteLock(sender, entityClass, entityName)
		})
		d.complete(sender, msg, successPayload(err), err)

	case wire.TypeRestoreWriteLock:
		// Restore keeps the deferred-handle shape for consistency, but
		// acquisition must succeed immediately: the client held the lock
		// before reconnecting, so a refusal here is a consistency bug in
		// the platform, not a retryable condition.
		onAcquire := NewCompletion(func(_ []byte, err error) {
			d.complete(sender, msg, emptyResponse, err)
		})
		err := d.guard(entityClass, entityName, func() error {
			d.handler.RestoreWriteLock(sender, entityClass, entityName, onAcquire)
			return nil
		})
		if err != nil {
			onAcquire.Complete(nil, err)
		}

	case wire.TypeReconnect:
		// Similar to fetch but fully synchronous: waiting for a lock is
		// not an option during reconnect.
		err := d.guard(entityClass, entityName, func() error {
			return d.handler.Reconnect(sender, msg.ClientInstanceID, entityClass, entityName, msg.Payload)
		})
		d.complete(sender, msg, successPayload(err), err)

	case wire.TypeSyncEntityStart:
		// Sync-start re-runs Create before marking the entity as syncing.
		// Sync operations never respond with data.
		err := d.guard(entityClass, entityName, func() error {
			if err := d.handler.Create(entityClass, entityName, msg.Version, msg.Payload); err != nil {
				return err
			}
			return d.handler.SyncEntityStart(sender, entityClass, entityName)
		})
		d.complete(sender, msg, nil, err)

	case wire.TypeSyncEntityEnd:
		err := d.guard(entityClass, entityName, func() error {
			return d.handler.SyncEntityEnd(sender, entityClass, entityName)
		})
		d.complete(sender, msg, nil, err)

	case wire.TypeSyncEntityKeyStart:
		err := d.guard(entityClass, entityName, func() error {
			return d.handler.SyncEntityKeyStart(sender, entityClass, entityName, msg.ConcurrencyKey)
		})
		d.complete(sender, msg, nil, err)

	case wire.TypeSyncEntityKeyEnd:
		err := d.guard(entityClass, entityName, func() error {
			return d.handler.SyncEntityKeyEnd(sender, entityClass, entityName, msg.ConcurrencyKey)
		})
		d.complete(sender, msg, nil, err)

	case wire.TypeSyncPayload:
		err := d.guard(entityClass, entityName, func() error {
			return d.handler.SyncPayload(sender, entityClass, entityName, msg.ConcurrencyKey, msg.Payload)
		})
		d.complete(sender, msg, nil, err)

	default:
		panic(fmt.Sprintf("dispatch: unhandled message type %v", msg.Type))
	}
}

// guard runs one handler call, classifying its failure: entity-level
// errors pass through, anything else (including panics) is wrapped into
// a user-facing error carrying the entity class and name.
func (d *Dispatcher) guard(entityClass, entityName string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapUserFailure(entityClass, entityName, fmt.Errorf("panic: %v", r))
		}
	}()

	err = fn()
	if err != nil && !domain.IsEntityError(err, "") {
		err = domain.WrapUserFailure(entityClass, entityName, err)
	}
	return err
}

// absorbIfTolerated applies the sender's duplication-tolerance policy to
// Create and Destroy failures. Only entity-level failures are absorbed;
// wrapped unexpected failures always propagate. The policy is
// deliberately broad: any entity-level error is absorbed when the flag
// is set, without inspecting the error kind.
func (d *Dispatcher) absorbIfTolerated(sender Sender, msg *wire.Message, err error) error {
	if err == nil {
		return nil
	}
	if domain.ErrorCode(err) == domain.CodeUserFailure {
		return err
	}
	if !sender.ShouldTolerateCreateDestroyDuplication() {
		return err
	}
	d.log.Debug("absorbed lifecycle failure on redelivery",
		"type", msg.Type.String(),
		"entity", msg.Key().String(),
		"error", err)
	return nil
}

// complete sends exactly one completion for the transaction.
func (d *Dispatcher) complete(sender Sender, msg *wire.Message, response []byte, err error) {
	var entityErr *domain.EntityError
	if err != nil && !errors.As(err, &entityErr) {
		// Handlers only ever surface entity errors through guard, but a
		// completion must never carry an unwrapped failure.
		entityErr = domain.WrapUserFailure(msg.EntityClass, msg.EntityName, err)
	}

	sender.SendComplete(wire.NewComplete(msg.TransactionID, response, entityErr))

	if d.metrics != nil {
		outcome := "ok"
		if entityErr != nil {
			outcome = "error"
		}
		d.metrics.OpsDispatched.WithLabelValues(msg.Type.String(), outcome).Inc()
	}
	if entityErr != nil && entityErr.Code == domain.CodeUserFailure {
		d.log.Error("operation failed unexpectedly",
			"type", msg.Type.String(),
			"entity", msg.Key().String(),
			"error", entityErr)
	}
}

// successPayload returns the empty success payload for operations that
// answer with no data, or nil when the operation failed.
func successPayload(err error) []byte {
	if err != nil {
		return nil
	}
	return emptyResponse
}
