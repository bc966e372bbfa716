package locking

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestRecordLockRecursion(t *testing.T) {
	const n = 4
	rl := NewRecordLock[int](NewSHLock())
	a, b := NewOwner(), NewOwner()

	for i := 0; i < n; i++ {
		if err := rl.Lock(a, 1); err != nil {
			t.Fatal(err)
		}
	}

	acquired := make(chan struct{})
	go func() {
		rl.Lock(b, 1)
		close(acquired)
	}()

	for i := 0; i < n; i++ {
		time.Sleep(5 * time.Millisecond)
		select {
		case <-acquired:
			t.Fatalf("other owner acquired after only %d of %d releases", i, n)
		default:
		}
		if err := rl.Release(a, 1); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("other owner never acquired the record")
	}
	rl.Release(b, 1)
	if rl.Held() != 0 {
		t.Fatalf("expected no live record locks, got %d", rl.Held())
	}
}

func TestRecordLockKeysAreIndependent(t *testing.T) {
	rl := NewRecordLock[int](nil)
	a, b := NewOwner(), NewOwner()
	rl.Lock(a, 1)

	done := make(chan struct{})
	go func() {
		rl.Lock(b, 2)
		rl.Release(b, 2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on key 2 blocked behind key 1")
	}
	rl.Release(a, 1)
}

func TestRecordLockRefusedWhileHoldingSHLock(t *testing.T) {
	sh := NewSHLock()
	rl := NewRecordLock[int](sh)
	o := NewOwner()

	sh.Acquire(o, true, true)
	if err := rl.Lock(o, 7); !errors.Is(err, ErrLocking) {
		t.Fatalf("expected ErrLocking, got %v", err)
	}
	sh.Release(o)

	if err := rl.Lock(o, 7); err != nil {
		t.Fatalf("record lock should succeed once the shared lock is released: %v", err)
	}
	// The converse order is allowed.
	if ok, err := sh.Acquire(o, true, true); !ok || err != nil {
		t.Fatalf("shared acquire while holding a record lock: ok=%v err=%v", ok, err)
	}
	sh.Release(o)
	rl.Release(o, 7)
}

func TestRecordLockReleaseErrors(t *testing.T) {
	rl := NewRecordLock[string](nil)
	a, b := NewOwner(), NewOwner()
	err := rl.Release(a, "x")
	if !errors.Is(err, ErrLocking) {
		t.Fatalf("expected ErrLocking for unheld key, got %v", err)
	}
	if !strings.Contains(err.Error(), "no lock acquired for record x") {
		t.Errorf("error should name the record: %v", err)
	}
	rl.Lock(a, "x")
	err = rl.Release(b, "x")
	if !errors.Is(err, ErrLocking) {
		t.Fatalf("expected ErrLocking for foreign release, got %v", err)
	}
	if !strings.Contains(err.Error(), "record x is not held by this owner") {
		t.Errorf("error should name the record: %v", err)
	}
	if err := rl.Release(a, "x"); err != nil {
		t.Fatalf("owner release failed after foreign attempt: %v", err)
	}
}

func TestRecordLockReusesFreeLocks(t *testing.T) {
	rl := NewRecordLock[int](nil)
	o := NewOwner()
	rl.Lock(o, 1)
	first := rl.records[1]
	rl.Release(o, 1)
	rl.Lock(o, 2)
	if rl.records[2] != first {
		t.Fatal("expected the released lock object to be reused")
	}
	rl.Release(o, 2)
}

func TestWithOwner(t *testing.T) {
	ctx, o := WithOwner(context.Background())
	again, o2 := WithOwner(ctx)
	if o != o2 || again != ctx {
		t.Fatal("WithOwner should keep an existing owner")
	}
	if got, ok := OwnerFrom(ctx); !ok || got != o {
		t.Fatalf("OwnerFrom returned %v %v", got, ok)
	}
	if _, ok := OwnerFrom(context.Background()); ok {
		t.Fatal("background context has no owner")
	}
}
