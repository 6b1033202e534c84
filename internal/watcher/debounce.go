package watcher

import (
	"sync"
	"time"
)

// Event is a modification of one source file, named relative to the input
// directory.
type Event struct {
	Name      string
	Timestamp time.Time
}

// Debouncer holds back events per source name until the name has been
// quiet for the window, then emits the latest one. Exporters often write a
// log in several chunks; only the state after the last chunk is worth
// splitting. It is safe for concurrent use.
type Debouncer struct {
	window time.Duration
	emit   func(Event)

	mu      sync.Mutex
	quiet   map[string]*quietPeriod
	stopped bool
}

// quietPeriod is the open window for one name.
type quietPeriod struct {
	timer  *time.Timer
	latest Event
}

// NewDebouncer creates a Debouncer with the given quiet window.
func NewDebouncer(window time.Duration, emit func(Event)) *Debouncer {
	return &Debouncer{
		window: window,
		emit:   emit,
		quiet:  make(map[string]*quietPeriod),
	}
}

// Feed records e and restarts the quiet window for its name.
func (d *Debouncer) Feed(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if q, ok := d.quiet[e.Name]; ok {
		q.latest = e
		q.timer.Reset(d.window)
		return
	}
	q := &quietPeriod{latest: e}
	q.timer = time.AfterFunc(d.window, func() { d.expire(e.Name, q) })
	d.quiet[e.Name] = q
}

// expire emits q's latest event if q is still the open window for name. A
// timer re-armed by Feed after it already fired finds a newer window, or
// none, and does nothing.
func (d *Debouncer) expire(name string, q *quietPeriod) {
	d.mu.Lock()
	if d.quiet[name] != q {
		d.mu.Unlock()
		return
	}
	delete(d.quiet, name)
	ev := q.latest
	d.mu.Unlock()

	d.emit(ev)
}

// Pending returns the number of names waiting for their window to close.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.quiet)
}

// Stop closes every open window at once, emitting its latest event.
// Later Feed calls are no-ops. Stop is idempotent.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true

	owed := make([]Event, 0, len(d.quiet))
	for _, q := range d.quiet {
		q.timer.Stop()
		owed = append(owed, q.latest)
	}
	d.quiet = nil
	d.mu.Unlock()

	// Outside the lock: emit may block on a full worker pool.
	for _, ev := range owed {
		d.emit(ev)
	}
}
