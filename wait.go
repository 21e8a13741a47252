package netasync

import (
	"runtime"
	"sync"
)

// Waiter is the blocking bridge a caller thread uses to wait on one or
// more asynchronous completions (Waitables) without depending on how the
// Executor is driven — used by this package's own tests for deterministic
// sequencing, and available to users for the same reason (§4.9).
type Waiter struct {
	executor *Executor
	mu       sync.Mutex
	cond     *sync.Cond
}

// NewWaiter returns a Waiter whose Await, when called from one of ex's
// own worker goroutines, pumps ex instead of blocking on a condition
// variable (which that same goroutine would otherwise never wake).
func NewWaiter(ex *Executor) *Waiter {
	w := &Waiter{executor: ex}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *Waiter) notify() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Await blocks until expr() returns true. expr is typically a boolean
// combination (&&, ||) of one or more Waitable.Ready calls.
func (w *Waiter) Await(expr func() bool) {
	if w.executor.isWorkerGoroutine() {
		for !expr() {
			if !w.executor.pumpOne() {
				runtime.Gosched()
			}
		}
		return
	}
	w.mu.Lock()
	for !expr() {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

// Waitable pairs a boolean ready flag with the Waiter it notifies. A
// handler wrapped via WrapHandler1/WrapHandler2 marks the Waitable ready
// (and wakes its Waiter) after running the original handler.
type Waitable struct {
	waiter *Waiter
	mu     sync.Mutex
	ready  bool
}

// NewWaitable returns a not-yet-ready Waitable bound to w.
func (w *Waiter) NewWaitable() *Waitable {
	return &Waitable{waiter: w}
}

// Ready reports whether this Waitable's wrapped handler has run.
func (wb *Waitable) Ready() bool {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return wb.ready
}

func (wb *Waitable) mark() {
	wb.mu.Lock()
	wb.ready = true
	wb.mu.Unlock()
	wb.waiter.notify()
}

// WrapHandler1 returns a handler that runs h then marks wb ready. Go's
// static typing means the spec's generic "wrap a handler h over
// arbitrary args" is expressed as one generic helper per handler arity
// rather than a single variadic Wrap, for the one- and two-argument
// handler shapes this package's AsyncX callbacks actually have.
func WrapHandler1[T any](wb *Waitable, h func(T)) func(T) {
	return func(v T) {
		h(v)
		wb.mark()
	}
}

// WrapHandler2 is WrapHandler1 for two-argument handlers, e.g. the
// (payload []byte, err error) shape asyncRead delivers, or the
// (response, err error) shape of AsyncCall.
func WrapHandler2[A, B any](wb *Waitable, h func(A, B)) func(A, B) {
	return func(a A, b B) {
		h(a, b)
		wb.mark()
	}
}

// WrapHandler3 is WrapHandler1 for three-argument handlers, e.g. the
// (message, sender address, err error) shape AsyncReceive delivers.
func WrapHandler3[A, B, C any](wb *Waitable, h func(A, B, C)) func(A, B, C) {
	return func(a A, b B, c C) {
		h(a, b, c)
		wb.mark()
	}
}
