package netasync

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimerState mirrors the {idle, armed, fired, cancelled} states spec.md
// §3 assigns to a Timer.
type TimerState int32

const (
	TimerIdle TimerState = iota
	TimerArmed
	TimerFired
	TimerCancelled
)

// Timer is a one-shot or periodic deadline bound to a Strand, so its
// handler is always posted rather than run on the Go runtime's own timer
// goroutine directly. Grounded on the teacher's keepalive(), which drives
// two independent time.Ticker values for ping/timeout — generalized here
// into a single reusable primitive that also gets the periodic
// drift-free deadline math spec.md §4.5 requires (a raw time.Ticker
// doesn't give "measured from the previous deadline, not from handler
// completion" once a handler can run long, so deadlines are tracked by
// hand with time.AfterFunc instead).
type Timer struct {
	strand *Strand
	mu     sync.Mutex
	raw    *time.Timer
	gen    uint64
	state  int32
}

// NewTimer returns an idle Timer whose handlers are posted through strand.
func NewTimer(strand *Strand) *Timer {
	return &Timer{strand: strand}
}

// State reports the timer's current lifecycle state.
func (t *Timer) State() TimerState {
	return TimerState(atomic.LoadInt32(&t.state))
}

// StartOneShot arms handler to run once after d. Re-arming or Stop()ing
// before it fires prevents it from running.
func (t *Timer) StartOneShot(d time.Duration, handler func()) {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	if t.raw != nil {
		t.raw.Stop()
	}
	atomic.StoreInt32(&t.state, int32(TimerArmed))
	t.raw = time.AfterFunc(d, func() { t.fireOnce(gen, handler) })
	t.mu.Unlock()
}

func (t *Timer) fireOnce(gen uint64, handler func()) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	atomic.StoreInt32(&t.state, int32(TimerFired))
	t.mu.Unlock()
	t.strand.Post(handler)
}

// StartPeriodic arms handler to run every d, with each deadline measured
// from the previous scheduled deadline rather than from when the
// previous handler returned, so that drift does not accumulate while
// handler runtime is bounded by d.
func (t *Timer) StartPeriodic(d time.Duration, handler func()) {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	if t.raw != nil {
		t.raw.Stop()
	}
	atomic.StoreInt32(&t.state, int32(TimerArmed))
	deadline := time.Now().Add(d)
	t.raw = time.AfterFunc(d, func() { t.firePeriodic(gen, deadline, d, handler) })
	t.mu.Unlock()
}

func (t *Timer) firePeriodic(gen uint64, deadline time.Time, interval time.Duration, handler func()) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	next := deadline.Add(interval)
	delay := time.Until(next)
	if delay < 0 {
		delay = 0
	}
	t.raw = time.AfterFunc(delay, func() { t.firePeriodic(gen, next, interval, handler) })
	t.mu.Unlock()
	t.strand.Post(handler)
}

// Stop cancels any armed wait. Idempotent.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.gen++
	if t.raw != nil {
		t.raw.Stop()
	}
	atomic.StoreInt32(&t.state, int32(TimerCancelled))
	t.mu.Unlock()
}
