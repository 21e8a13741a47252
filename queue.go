package netasync

import "sync"

// OperationQueue serializes asynchronous operations dispatched by a
// single owner: at most one runs at a time, and queued ones run strictly
// in dispatch order. Grounded on the teacher's shaperLoop/sendLoop pair —
// shaperLoop holds a priority heap of pending writes and feeds sendLoop
// one at a time; this generalizes that shape from "write requests on one
// session" to "any asynchronous operation on any owner".
type OperationQueue struct {
	executor *Executor
	mu       sync.Mutex
	executing bool
	pending  []func(finish func())
}

// NewOperationQueue returns an empty queue whose posted continuations run
// on ex.
func NewOperationQueue(ex *Executor) *OperationQueue {
	return &OperationQueue{executor: ex}
}

// Dispatch runs op immediately if nothing else is currently executing on
// this queue, otherwise enqueues it to run after everything ahead of it
// finishes. op must call finish exactly once when it completes; finish is
// safe to call more than once (idempotent via sync.Once) since Go has no
// destructor to enforce the teacher's "move-only notifier" guarantee at
// compile time — the idempotency is what's kept, not the enforcement.
func (q *OperationQueue) Dispatch(op func(finish func())) {
	q.mu.Lock()
	if !q.executing {
		q.executing = true
		q.mu.Unlock()
		q.run(op)
		return
	}
	q.pending = append(q.pending, op)
	q.mu.Unlock()
}

func (q *OperationQueue) run(op func(finish func())) {
	var once sync.Once
	finish := func() {
		once.Do(q.notifyFinished)
	}
	op(finish)
}

func (q *OperationQueue) notifyFinished() {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.executing = false
		q.mu.Unlock()
		return
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	q.mu.Unlock()
	q.executor.Post(func() { q.run(next) })
}

// CancelQueued drops all operations that have not started yet. It does
// not affect a currently running operation — the owner is expected to
// pair this with an explicit Close of the endpoint to abort that one.
func (q *OperationQueue) CancelQueued() {
	q.mu.Lock()
	q.pending = nil
	q.mu.Unlock()
}
