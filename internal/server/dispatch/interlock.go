package dispatch

import (
	"sync"

	"github.com/yndnr/entmesh-go/internal/wire"
)

// Interlock blocks the active's execution of a replicated operation
// until the passive reports that it has applied the same operation.
//
// It is handed to the passive as the sender for the forwarded frame: the
// passive's own dispatch pipeline acks and completes against it, and the
// completion releases the waiter. Acks from the passive are not
// interesting to the active, only the completion is.
type Interlock struct {
	wrapped Sender
	done    chan struct{}
	once    sync.Once
}

// NewInterlock creates an interlock forwarding sender policy to the
// original sender.
func NewInterlock(wrapped Sender) *Interlock {
	return &Interlock{
		wrapped: wrapped,
		done:    make(chan struct{}),
	}
}

// SendAck discards the passive's acknowledgement.
func (i *Interlock) SendAck(_ *wire.Message) {}

// SendComplete releases the waiter. The passive's response payload and
// error are deliberately dropped: replication failures on the passive
// must not fail the active's operation.
func (i *Interlock) SendComplete(_ *wire.Message) {
	i.once.Do(func() {
		close(i.done)
	})
}

// ShouldTolerateCreateDestroyDuplication forwards the original sender's
// policy, so redelivered lifecycle operations are absorbed identically
// on both sides.
func (i *Interlock) ShouldTolerateCreateDestroyDuplication() bool {
	return i.wrapped.ShouldTolerateCreateDestroyDuplication()
}

// WaitForComplete blocks until the passive signals completion.
func (i *Interlock) WaitForComplete() {
	<-i.done
}
