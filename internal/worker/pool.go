// Package worker fans library change events out to listeners on a single
// goroutine.
package worker // import "github.com/Xunop/e-oasis-meta/internal/worker"

import (
	"sync"

	"github.com/Xunop/e-oasis-meta/internal/model"
)

// Dispatcher queues events and calls the listeners in subscription order.
// The queue grows as needed, so Push never waits for a listener and a
// listener may itself cause events.
type Dispatcher struct {
	// wake has room for one pending signal.
	wake chan struct{}
	done chan struct{}

	queueMu sync.Mutex
	queue   []model.Event
	closed  bool

	mu        sync.Mutex
	listeners []Listener
}

// NewDispatcher starts the dispatcher goroutine. size is the initial queue
// capacity.
func NewDispatcher(size int) *Dispatcher {
	if size < 0 {
		size = 0
	}
	d := &Dispatcher{
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		queue: make([]model.Event, 0, size),
	}
	go d.Run()
	return d
}

func (d *Dispatcher) Subscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *Dispatcher) snapshot() []Listener {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Listener(nil), d.listeners...)
}

// Push queues ev without blocking. It reports false once the dispatcher is
// closed.
func (d *Dispatcher) Push(ev model.Event) bool {
	d.queueMu.Lock()
	if d.closed {
		d.queueMu.Unlock()
		return false
	}
	d.queue = append(d.queue, ev)
	d.queueMu.Unlock()
	d.signal()
	return true
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// next hands out the queued events, waiting while the queue is empty. ok is
// false once the dispatcher is closed and drained.
func (d *Dispatcher) next() (batch []model.Event, ok bool) {
	for {
		d.queueMu.Lock()
		if len(d.queue) > 0 {
			batch, d.queue = d.queue, nil
			d.queueMu.Unlock()
			return batch, true
		}
		closed := d.closed
		d.queueMu.Unlock()
		if closed {
			return nil, false
		}
		<-d.wake
	}
}

// Close stops accepting events and returns after every queued event was
// delivered. It must not be called from a listener.
func (d *Dispatcher) Close() {
	d.queueMu.Lock()
	d.closed = true
	d.queueMu.Unlock()
	d.signal()
	<-d.done
}
