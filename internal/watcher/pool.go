package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs jobs on a bounded set of goroutines: core workers live for the
// pool's lifetime and read a bounded queue; when the queue is full, up to
// max-core extra workers are started, each running the rejected job and then
// draining the queue until it is empty.
//
// When the queue is full and no extra worker may start, Submit blocks the
// caller until a slot frees. Jobs are never dropped: losing a modification
// event would leave a day file stale until the next write to that source.
type Pool struct {
	queue chan func()
	extra *semaphore.Weighted

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	active    atomic.Int64
	completed atomic.Int64
	blocked   atomic.Int64
}

// NewPool starts core workers over a queue of queueSize pending jobs, with
// at most max workers running at once. core is clamped to [1, max].
func NewPool(core, max, queueSize int) *Pool {
	if max < 1 {
		max = 1
	}
	if core < 1 {
		core = 1
	}
	if core > max {
		core = max
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		queue: make(chan func(), queueSize),
		extra: semaphore.NewWeighted(int64(max - core)),
	}
	for i := 0; i < core; i++ {
		p.wg.Add(1)
		go p.coreWorker()
	}
	return p
}

// Submit schedules job. It returns once the job is queued or handed to a
// worker; if neither is possible it blocks until the queue has room or ctx
// is done.
func (p *Pool) Submit(ctx context.Context, job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- job:
		return nil
	default:
	}

	if p.extra.TryAcquire(1) {
		p.wg.Add(1)
		go p.extraWorker(job)
		return nil
	}

	p.blocked.Add(1)
	select {
	case p.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued and running jobs to
// finish. Submitters blocked on a full queue are let through first.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Active returns the number of jobs currently running.
func (p *Pool) Active() int64 { return p.active.Load() }

// Pending returns the number of queued jobs.
func (p *Pool) Pending() int { return len(p.queue) }

// Completed returns the number of jobs finished.
func (p *Pool) Completed() int64 { return p.completed.Load() }

// Blocked returns how many submissions had to wait for queue space.
func (p *Pool) Blocked() int64 { return p.blocked.Load() }

func (p *Pool) coreWorker() {
	defer p.wg.Done()
	for job := range p.queue {
		p.run(job)
	}
}

func (p *Pool) extraWorker(job func()) {
	defer p.wg.Done()
	defer p.extra.Release(1)

	p.run(job)
	for {
		select {
		case next, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(next)
		default:
			return
		}
	}
}

func (p *Pool) run(job func()) {
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.completed.Add(1)
	}()
	job()
}
