package entity

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/yndnr/entmesh-go/internal/core/domain"
)

type testClient uint64

func (c testClient) ClientInstanceID() uint64 { return uint64(c) }

// racyCounter increments without synchronization so overlapping critical
// sections would lose updates.
type racyCounter struct {
	count    int
	inFlight int
	overlaps int
}

func (c *racyCounter) Connected(ClientDescriptor)    {}
func (c *racyCounter) Disconnected(ClientDescriptor) {}

func (c *racyCounter) Invoke(_ ClientDescriptor, _ []byte) ([]byte, error) {
	c.inFlight++
	if c.inFlight > 1 {
		c.overlaps++
	}
	c.count++
	c.inFlight--
	return []byte(fmt.Sprintf("%d", c.count)), nil
}

func TestGateSerializesConcurrentInvokes(t *testing.T) {
	const callers = 64
	counter := &racyCounter{}
	gate := NewGate("org.example.Counter", "c1", counter)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			if _, err := gate.Invoke(testClient(id), []byte("inc")); err != nil {
				t.Errorf("Invoke() error = %v", err)
			}
		}(uint64(i))
	}
	wg.Wait()

	if counter.count != callers {
		t.Errorf("count = %d, want %d (lost updates imply overlapping critical sections)", counter.count, callers)
	}
	if counter.overlaps != 0 {
		t.Errorf("observed %d overlapping invocations", counter.overlaps)
	}
}

type panickyEntity struct{}

func (panickyEntity) Connected(ClientDescriptor)    {}
func (panickyEntity) Disconnected(ClientDescriptor) {}
func (panickyEntity) Invoke(_ ClientDescriptor, _ []byte) ([]byte, error) {
	panic("entity bug")
}

func TestGateCapturesPanics(t *testing.T) {
	gate := NewGate("org.example.Broken", "b1", panickyEntity{})

	response, err := gate.Invoke(testClient(1), []byte("x"))
	if response != nil {
		t.Errorf("response = %v, want nil", response)
	}
	if !domain.IsEntityError(err, domain.CodeUserFailure) {
		t.Fatalf("error = %v, want wrapped user failure", err)
	}

	// The hold must have been released despite the panic.
	done := make(chan struct{})
	go func() {
		gate.Invoke(testClient(2), []byte("x"))
		close(done)
	}()
	<-done
}

type failingEntity struct{ err error }

func (e failingEntity) Connected(ClientDescriptor)    {}
func (e failingEntity) Disconnected(ClientDescriptor) {}
func (e failingEntity) Invoke(_ ClientDescriptor, _ []byte) ([]byte, error) {
	return nil, e.err
}

func TestGateErrorWrapping(t *testing.T) {
	t.Run("entity-level failures pass through", func(t *testing.T) {
		want := domain.ErrEntityNotFound.ForEntity("org.example.Counter", "c1")
		gate := NewGate("org.example.Counter", "c1", failingEntity{err: want})

		_, err := gate.Invoke(testClient(1), nil)
		if !errors.Is(err, domain.ErrEntityNotFound) {
			t.Errorf("error = %v, want pass-through entity error", err)
		}
	})

	t.Run("plain errors are wrapped", func(t *testing.T) {
		cause := errors.New("nil map write")
		gate := NewGate("org.example.Counter", "c1", failingEntity{err: cause})

		_, err := gate.Invoke(testClient(1), nil)
		if !domain.IsEntityError(err, domain.CodeUserFailure) {
			t.Fatalf("error = %v, want wrapped user failure", err)
		}
		if !errors.Is(err, cause) {
			t.Error("cause should remain reachable through the chain")
		}
	})
}
