// Package suspend holds the shared "disabled until" timestamp that gates replies.
package suspend

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Clock is a cooldown gate shared by all concurrent message handlers.
// The zero value is ready to use and not suspended.
type Clock struct {
	until atomic.Int64
}

// IsSuspended reports whether now (unix seconds) falls inside the suspension
// window. The end of the window is inclusive.
func (c *Clock) IsSuspended(now int64) bool {
	return now <= c.until.Load()
}

// Suspend sets the window end to now+cooldown. It overwrites any previous value,
// so a later call with a shorter cooldown shortens an active suspension.
func (c *Clock) Suspend(now, cooldown int64) {
	c.until.Store(now + cooldown)
}

// Until returns the unix second the current suspension ends at, 0 if never suspended.
func (c *Clock) Until() int64 {
	return c.until.Load()
}

// Now returns the wall clock in unix seconds. A clock before the epoch means
// the host is broken and panics.
func Now() int64 {
	now := time.Now().Unix()
	if now < 0 {
		panic(fmt.Sprintf("suspend: system clock is before the unix epoch (%d)", now))
	}
	return now
}
