package refproc

import "sync/atomic"

// softRefClock is the soft-reference timestamp clock: a monotonically
// non-decreasing millisecond counter advanced once per processing cycle.
// Reads may race with concurrent discovery, so the value is atomic.
type softRefClock struct {
	millis atomic.Int64
}

func (c *softRefClock) init(now int64) {
	c.millis.Store(now)
}

func (c *softRefClock) read() int64 {
	return c.millis.Load()
}

// advance moves the clock forward to now. If the time source stepped
// backwards the clock stalls at its old value until real time passes it
// again; advance reports such a regression so the caller can log it.
func (c *softRefClock) advance(now int64) (regressed bool) {
	cur := c.millis.Load()
	if now < cur {
		return true
	}
	if now > cur {
		c.millis.Store(now)
	}
	return false
}
