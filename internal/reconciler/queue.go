package reconciler

import (
	"context"
	"sync"
)

// workQueue hands per-build tasks to pass workers.
//
// A build id is never handed to two workers at once: adding an id that is
// being processed marks it dirty, and it is re-queued only when the worker
// holding it calls Done. Adding an id that is already queued replaces the
// queued task instead of duplicating it.
type workQueue struct {
	mu sync.Mutex

	// queue holds tasks in FIFO order
	queue []task

	// processing tracks ids currently held by a worker
	processing map[string]bool

	// dirty tracks ids added again while being processed
	dirty map[string]task

	// cond is used for blocking Get operations
	cond *sync.Cond

	// shuttingDown indicates no more tasks will be added
	shuttingDown bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{
		queue:      make([]task, 0),
		processing: make(map[string]bool),
		dirty:      make(map[string]task),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add adds or replaces the task for t.ID.
func (q *workQueue) Add(t task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		return
	}

	if q.processing[t.ID] {
		q.dirty[t.ID] = t
		return
	}

	for i, existing := range q.queue {
		if existing.ID == t.ID {
			q.queue[i] = t
			return
		}
	}

	q.queue = append(q.queue, t)
	q.cond.Signal()
}

// Get returns the next task, blocking until one is available. It returns
// false once the queue is shut down and empty, or when ctx is done.
func (q *workQueue) Get(ctx context.Context) (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queue) == 0 && !q.shuttingDown {
		select {
		case <-ctx.Done():
			return task{}, false
		default:
		}

		// Wake the waiter when ctx is cancelled; done releases the
		// goroutine after a normal wakeup.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()

		q.cond.Wait()
		close(done)
	}

	select {
	case <-ctx.Done():
		return task{}, false
	default:
	}

	if len(q.queue) == 0 {
		return task{}, false
	}

	t := q.queue[0]
	q.queue = q.queue[1:]
	q.processing[t.ID] = true
	return t, true
}

// Done releases t.ID and re-queues it when it was added while processing.
func (q *workQueue) Done(t task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, t.ID)

	if dirtyTask, ok := q.dirty[t.ID]; ok {
		delete(q.dirty, t.ID)
		q.queue = append(q.queue, dirtyTask)
		q.cond.Signal()
	}
}

// Len returns the number of queued tasks.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Shutdown stops accepting tasks. Workers drain what is queued, then Get
// returns false.
func (q *workQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuttingDown = true
	q.cond.Broadcast()
}
