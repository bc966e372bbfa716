package worker

import (
	"github.com/Xunop/e-oasis-meta/internal/log"
	"github.com/Xunop/e-oasis-meta/internal/model"
	"go.uber.org/zap"
)

// Listener observes library changes. Notify runs on the dispatcher goroutine,
// never while the library lock is held.
type Listener interface {
	Notify(ev model.Event)
}

type ListenerFunc func(ev model.Event)

func (f ListenerFunc) Notify(ev model.Event) { f(ev) }

// Run delivers queued events to the listeners until the dispatcher is closed
// and its queue is empty.
func (d *Dispatcher) Run() {
	defer close(d.done)
	log.Debug("Event dispatcher is running")

	for {
		batch, ok := d.next()
		if !ok {
			return
		}
		for _, ev := range batch {
			log.Debug("Event received by dispatcher",
				zap.Stringer("type", ev.Type),
				zap.String("field", ev.Field),
				zap.Ints("books", ev.BookIDs))

			for _, l := range d.snapshot() {
				notify(l, ev)
			}
		}
	}
}

func notify(l Listener, ev model.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Listener panicked", zap.Stringer("type", ev.Type), zap.Any("panic", r))
		}
	}()
	l.Notify(ev)
}
