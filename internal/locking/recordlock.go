package locking

import (
	"sync"

	"github.com/pkg/errors"
)

// rlock is a mutex that the same Owner may take repeatedly.
type rlock struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner Owner
	count int
}

func newRLock() *rlock {
	l := &rlock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *rlock) acquire(me Owner) {
	l.mu.Lock()
	for l.count > 0 && l.owner != me {
		l.cond.Wait()
	}
	l.owner = me
	l.count++
	l.mu.Unlock()
}

func (l *rlock) release(me Owner) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 || l.owner != me {
		return false
	}
	l.count--
	if l.count == 0 {
		l.owner = 0
		l.cond.Signal()
	}
	return true
}

// RecordLock locks records identified by key. Each key has its own recursive
// exclusive lock; unrelated keys never contend. Lock objects of keys nobody
// holds or waits for go back to a free list.
//
// Taking a record lock while owning the SHLock it was built with fails with
// ErrLocking. Record locks are meant to bracket file I/O on a single book and
// nothing else.
type RecordLock[K comparable] struct {
	mu        sync.Mutex
	freeLocks []*rlock
	records   map[K]*rlock
	counter   map[K]int
	sh        *SHLock
}

func NewRecordLock[K comparable](sh *SHLock) *RecordLock[K] {
	return &RecordLock[K]{
		freeLocks: []*rlock{newRLock()},
		records:   make(map[K]*rlock),
		counter:   make(map[K]int),
		sh:        sh,
	}
}

// Lock blocks until owner holds the lock for key.
func (r *RecordLock[K]) Lock(owner Owner, key K) error {
	if owner == 0 {
		return errors.Wrap(ErrLocking, "invalid owner")
	}
	if r.sh != nil && r.sh.Owns(owner) {
		return errors.Wrap(ErrLocking, "current owner already holds a shared lock, "+
			"asking for a record lock could deadlock")
	}

	r.mu.Lock()
	l, ok := r.records[key]
	if !ok {
		l = r.takeLock()
		r.records[key] = l
		r.counter[key] = 0
	}
	r.counter[key]++
	r.mu.Unlock()

	l.acquire(owner)
	return nil
}

// Release gives up one level of the lock on key held by owner.
func (r *RecordLock[K]) Release(owner Owner, key K) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.records[key]
	if !ok {
		return errors.Wrapf(ErrLocking, "no lock acquired for record %v", key)
	}
	if !l.release(owner) {
		return errors.Wrapf(ErrLocking, "record %v is not held by this owner", key)
	}
	r.counter[key]--
	if r.counter[key] <= 0 {
		delete(r.records, key)
		delete(r.counter, key)
		r.freeLocks = append(r.freeLocks, l)
	}
	return nil
}

// With runs fn while owner holds the lock on key.
func (r *RecordLock[K]) With(owner Owner, key K, fn func() error) error {
	if err := r.Lock(owner, key); err != nil {
		return err
	}
	defer r.Release(owner, key)
	return fn()
}

// Held returns the number of keys with a live lock object.
func (r *RecordLock[K]) Held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *RecordLock[K]) takeLock() *rlock {
	if n := len(r.freeLocks); n > 0 {
		l := r.freeLocks[n-1]
		r.freeLocks = r.freeLocks[:n-1]
		return l
	}
	return newRLock()
}
