package client

import (
	"context"
	"sync"
)

// InvokeFuture is the client-side handle for one in-flight operation.
// The server acknowledges receipt first and completes exactly once;
// both events are observable separately.
type InvokeFuture struct {
	acked    chan struct{}
	done     chan struct{}
	ackOnce  sync.Once
	doneOnce sync.Once

	response []byte
	err      error
}

func newInvokeFuture() *InvokeFuture {
	return &InvokeFuture{
		acked: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (f *InvokeFuture) ack() {
	f.ackOnce.Do(func() { close(f.acked) })
}

func (f *InvokeFuture) complete(response []byte, err error) {
	f.doneOnce.Do(func() {
		f.response = response
		f.err = err
		// A completion implies the ack even if it was never delivered.
		f.ack()
		close(f.done)
	})
}

// WaitForAck blocks until the server has acknowledged the operation.
func (f *InvokeFuture) WaitForAck(ctx context.Context) error {
	select {
	case <-f.acked:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get blocks until the operation completes and returns its result. A nil
// response with a nil error means the operation succeeded without data.
func (f *InvokeFuture) Get(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return f.response, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports whether the completion has arrived, without blocking.
func (f *InvokeFuture) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
