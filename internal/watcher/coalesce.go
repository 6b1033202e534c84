package watcher

import "sync"

// Coalescer tracks in-flight splits per source name. A name has at most one
// split running and at most one more owed: requests that arrive while a
// split runs fold into a single rerun, which reads the file as it is then.
type Coalescer struct {
	mu    sync.Mutex
	owed  map[string]bool // present = running; true = rerun requested
	folds int64
}

// NewCoalescer creates an empty Coalescer.
func NewCoalescer() *Coalescer {
	return &Coalescer{owed: make(map[string]bool)}
}

// Begin claims name. It returns true if the caller now owns the name and
// must run it; false if a run is already in flight, in which case a rerun
// is recorded for the owner.
func (c *Coalescer) Begin(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, running := c.owed[name]; running {
		c.owed[name] = true
		c.folds++
		return false
	}
	c.owed[name] = false
	return true
}

// Done is called by the owner after each run. It returns true if a rerun
// was requested meanwhile; the owner keeps the name and runs again.
// Otherwise the name is released.
func (c *Coalescer) Done(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owed[name] {
		c.owed[name] = false
		return true
	}
	delete(c.owed, name)
	return false
}

// Release drops name without running it, e.g. when the job could not be
// scheduled.
func (c *Coalescer) Release(name string) {
	c.mu.Lock()
	delete(c.owed, name)
	c.mu.Unlock()
}

// Len returns the number of names with a split in flight.
func (c *Coalescer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.owed)
}

// Folds returns how many requests were absorbed into a running split.
func (c *Coalescer) Folds() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.folds
}
