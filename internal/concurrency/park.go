// File: internal/concurrency/park.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"runtime"
	"time"
)

const maxSpinSleep = 100 * time.Microsecond

// idleBackoff is the spin phase before a worker parks: it yields the
// processor first, then sleeps for exponentially growing microsecond
// intervals until the round budget is spent.
type idleBackoff struct {
	limit  int
	rounds int
	ns     int64
}

func newIdleBackoff(limit int) idleBackoff {
	return idleBackoff{limit: limit, ns: 1}
}

// wait performs one backoff round. It returns false once the budget is
// exhausted and the caller should block instead.
func (b *idleBackoff) wait() bool {
	if b.rounds >= b.limit {
		return false
	}
	b.rounds++
	if b.ns < 1000 {
		runtime.Gosched()
	} else {
		time.Sleep(min(time.Duration(b.ns), maxSpinSleep))
	}
	if b.ns < int64(maxSpinSleep) {
		b.ns *= 2
	}
	return true
}

func (b *idleBackoff) reset() {
	b.rounds = 0
	b.ns = 1
}
