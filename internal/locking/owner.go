package locking // import "github.com/Xunop/e-oasis-meta/internal/locking"

import (
	"context"
	"sync/atomic"
)

// Owner identifies a caller of the locks. Locks are recursive per Owner, so
// every goroutine (or chain of calls acting as one logical caller) must use
// the same Owner for its acquisitions and releases. The zero Owner is never
// handed out.
type Owner uint64

var ownerSeq atomic.Uint64

// NewOwner returns a fresh Owner.
func NewOwner() Owner {
	return Owner(ownerSeq.Add(1))
}

type ownerKey struct{}

// WithOwner returns a context carrying an Owner. If ctx already carries one it
// is returned unchanged.
func WithOwner(ctx context.Context) (context.Context, Owner) {
	if o, ok := OwnerFrom(ctx); ok {
		return ctx, o
	}
	o := NewOwner()
	return context.WithValue(ctx, ownerKey{}, o), o
}

// OwnerFrom extracts the Owner stored by WithOwner.
func OwnerFrom(ctx context.Context) (Owner, bool) {
	o, ok := ctx.Value(ownerKey{}).(Owner)
	return o, ok && o != 0
}
