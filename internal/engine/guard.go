package engine

import (
	"sync/atomic"

	"github.com/updownhq/updown/internal/domain"
)

// busyGuard serializes mutating market operations. Acquisition never
// blocks: a second caller gets domain.ErrBusy immediately. Because every
// mutating operation acquires the guard before touching state or moving
// value, this also rejects reentrant calls made from inside an outbound
// transfer.
type busyGuard struct {
	held atomic.Bool
}

// acquire takes the guard or fails fast with domain.ErrBusy.
func (g *busyGuard) acquire() error {
	if !g.held.CompareAndSwap(false, true) {
		return domain.ErrBusy
	}
	return nil
}

// release frees the guard. Safe to call only by the holder; every exit
// path of a guarded operation must release exactly once.
func (g *busyGuard) release() {
	g.held.Store(false)
}
