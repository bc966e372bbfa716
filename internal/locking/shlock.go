package locking

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrLocking is returned for every misuse of the locks: upgrade or downgrade
// attempts, releasing an unheld lock and cross-lock rule violations.
var ErrLocking = errors.New("locking error")

type waiter chan struct{}

type queued struct {
	owner Owner
	w     waiter
}

// SHLock is a shareable lock: many owners may hold it shared, or exactly one
// owner may hold it exclusive. Both modes are recursive for the same Owner.
// Upgrading (shared to exclusive) and downgrading are refused.
//
// Waiters are parked on their own channel in one of two FIFO queues. When the
// exclusive holder releases, every queued shared waiter is admitted at once;
// if there are none the head of the exclusive queue is admitted. When the
// shared count drops to zero the head of the exclusive queue is admitted. A new
// shared acquirer queues behind a waiting exclusive one.
type SHLock struct {
	mu sync.Mutex

	isShared       int
	isExclusive    int
	sharedOwners   map[Owner]int
	exclusiveOwner Owner

	sharedQueue    []queued
	exclusiveQueue []queued
	freeWaiters    []waiter
}

func NewSHLock() *SHLock {
	return &SHLock{sharedOwners: make(map[Owner]int)}
}

// Acquire takes the lock for owner in the requested mode. With blocking false
// it returns (false, nil) instead of waiting and leaves no trace.
func (l *SHLock) Acquire(owner Owner, shared, blocking bool) (bool, error) {
	if owner == 0 {
		return false, errors.Wrap(ErrLocking, "invalid owner")
	}
	l.mu.Lock()
	if shared {
		return l.acquireShared(owner, blocking)
	}
	return l.acquireExclusive(owner, blocking)
}

// acquireShared and acquireExclusive are entered with l.mu held and release it.
func (l *SHLock) acquireShared(me Owner, blocking bool) (bool, error) {
	if l.isShared > 0 && l.sharedOwners[me] > 0 {
		l.isShared++
		l.sharedOwners[me]++
		l.mu.Unlock()
		return true, nil
	}

	if l.isExclusive > 0 || len(l.exclusiveQueue) > 0 {
		if l.exclusiveOwner == me {
			l.mu.Unlock()
			return false, errors.Wrap(ErrLocking, "can't downgrade SHLock object")
		}
		if !blocking {
			l.mu.Unlock()
			return false, nil
		}
		w := l.takeWaiter()
		l.sharedQueue = append(l.sharedQueue, queued{owner: me, w: w})
		l.mu.Unlock()

		// The releaser has already counted us in.
		<-w

		l.mu.Lock()
		l.returnWaiter(w)
		l.mu.Unlock()
		return true, nil
	}

	l.isShared++
	l.sharedOwners[me] = 1
	l.mu.Unlock()
	return true, nil
}

func (l *SHLock) acquireExclusive(me Owner, blocking bool) (bool, error) {
	if l.isExclusive > 0 && l.exclusiveOwner == me {
		l.isExclusive++
		l.mu.Unlock()
		return true, nil
	}

	if l.sharedOwners[me] > 0 {
		l.mu.Unlock()
		return false, errors.Wrap(ErrLocking, "can't upgrade SHLock object")
	}

	if l.isShared > 0 || l.isExclusive > 0 {
		if !blocking {
			l.mu.Unlock()
			return false, nil
		}
		w := l.takeWaiter()
		l.exclusiveQueue = append(l.exclusiveQueue, queued{owner: me, w: w})
		l.mu.Unlock()

		<-w

		l.mu.Lock()
		l.returnWaiter(w)
		l.mu.Unlock()
		return true, nil
	}

	l.exclusiveOwner = me
	l.isExclusive++
	l.mu.Unlock()
	return true, nil
}

// Release gives up one level of the lock held by owner.
func (l *SHLock) Release(owner Owner) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.isExclusive > 0:
		if l.exclusiveOwner != owner {
			return errors.Wrap(ErrLocking, "release() called on unheld lock")
		}
		l.isExclusive--
		if l.isExclusive > 0 {
			return nil
		}
		l.exclusiveOwner = 0
		if len(l.sharedQueue) > 0 {
			for _, q := range l.sharedQueue {
				l.isShared++
				l.sharedOwners[q.owner]++
				q.w <- struct{}{}
			}
			l.sharedQueue = l.sharedQueue[:0]
		} else if len(l.exclusiveQueue) > 0 {
			l.admitExclusive()
		}
	case l.isShared > 0:
		n, ok := l.sharedOwners[owner]
		if !ok {
			return errors.Wrap(ErrLocking, "release() called on unheld lock")
		}
		if n <= 1 {
			delete(l.sharedOwners, owner)
		} else {
			l.sharedOwners[owner] = n - 1
		}
		l.isShared--
		if l.isShared == 0 && len(l.exclusiveQueue) > 0 {
			l.admitExclusive()
		}
	default:
		return errors.Wrap(ErrLocking, "release() called on unheld lock")
	}
	return nil
}

func (l *SHLock) admitExclusive() {
	q := l.exclusiveQueue[0]
	l.exclusiveQueue = l.exclusiveQueue[1:]
	l.exclusiveOwner = q.owner
	l.isExclusive++
	q.w <- struct{}{}
}

func (l *SHLock) takeWaiter() waiter {
	if n := len(l.freeWaiters); n > 0 {
		w := l.freeWaiters[n-1]
		l.freeWaiters = l.freeWaiters[:n-1]
		return w
	}
	return make(waiter, 1)
}

func (l *SHLock) returnWaiter(w waiter) {
	l.freeWaiters = append(l.freeWaiters, w)
}

// Owns reports whether owner holds the lock in either mode.
func (l *SHLock) Owns(owner Owner) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return (l.isExclusive > 0 && l.exclusiveOwner == owner) || l.sharedOwners[owner] > 0
}

func (l *SHLock) IsExclusiveOwner(owner Owner) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isExclusive > 0 && l.exclusiveOwner == owner
}

func (l *SHLock) IsSharedOwner(owner Owner) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sharedOwners[owner] > 0
}

// Stats returns the shared and exclusive hold counts.
func (l *SHLock) Stats() (shared, exclusive int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isShared, l.isExclusive
}

// Guard is one blocking acquisition of an SHLock.
type Guard struct {
	lock  *SHLock
	owner Owner
	done  bool
}

// Hold blocks until owner holds the lock in the given mode.
func (l *SHLock) Hold(owner Owner, shared bool) (*Guard, error) {
	if _, err := l.Acquire(owner, shared, true); err != nil {
		return nil, err
	}
	return &Guard{lock: l, owner: owner}, nil
}

// Release is idempotent.
func (g *Guard) Release() error {
	if g == nil || g.done {
		return nil
	}
	g.done = true
	return g.lock.Release(g.owner)
}
