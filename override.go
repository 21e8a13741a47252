package netasync

import "sync"

// OverrideSlot holds at most one pending operation, superseding and
// cancelling whatever is currently running whenever a new one is
// dispatched. Used where only the newest request matters (a receiver
// being re-armed) so that dispatches arriving faster than completions
// cannot grow an unbounded queue. Grounded on the teacher's bucketNotify
// single-slot non-blocking-send idiom (`select { case ch <- v: default:
// }`), generalized from a bare signal to a full pending operation.
type OverrideSlot struct {
	executor  *Executor
	mu        sync.Mutex
	executing bool
	pending   func(finish func())
}

// NewOverrideSlot returns an empty slot whose posted continuations run on ex.
func NewOverrideSlot(ex *Executor) *OverrideSlot {
	return &OverrideSlot{executor: ex}
}

// Dispatch runs op immediately if nothing is executing. Otherwise it
// calls cancelRunning (typically Endpoint.Close on the in-flight
// operation) and stores op as the single pending operation, discarding
// any operation that was previously pending (it never runs).
func (s *OverrideSlot) Dispatch(cancelRunning func(), op func(finish func())) {
	s.mu.Lock()
	if !s.executing {
		s.executing = true
		s.mu.Unlock()
		s.run(op)
		return
	}
	s.pending = op
	s.mu.Unlock()
	if cancelRunning != nil {
		cancelRunning()
	}
}

func (s *OverrideSlot) run(op func(finish func())) {
	var once sync.Once
	finish := func() {
		once.Do(s.notifyFinished)
	}
	op(finish)
}

func (s *OverrideSlot) notifyFinished() {
	s.mu.Lock()
	if s.pending == nil {
		s.executing = false
		s.mu.Unlock()
		return
	}
	next := s.pending
	s.pending = nil
	s.mu.Unlock()
	s.executor.Post(func() { s.run(next) })
}

// CancelPending drops the pending slot without affecting a running
// operation — the owner decides separately whether to cancel that one.
func (s *OverrideSlot) CancelPending() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}
