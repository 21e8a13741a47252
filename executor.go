package netasync

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
)

// Executor is the shared scheduler every component in this package posts
// deferred work onto: timer fires, I/O completions, and queue/override
// dispatch. It stands in for the asio io_context the spec describes — Go
// does not need a reactor for the I/O itself (goroutines blocking on
// net.Conn already overlap for free), but it does need a single place to
// post completions through so a Strand (see strand.go) can serialize two
// of them racing each other.
//
// Constructing an Executor with workers == 0 is valid: no goroutine drains
// the task queue in the background, so posted work only progresses when
// something calls pumpOne. Waiter.Await pumps only when it is called from
// one of the executor's own worker goroutines (§4.9), so it does not drive
// a zero-worker Executor.
type Executor struct {
	tasks     chan func()
	stopOnce  sync.Once
	stopped   chan struct{}
	wg        sync.WaitGroup
	workerIDs sync.Map
	logger    *log.Logger
}

// NewExecutor starts workers goroutines draining a shared task queue.
func NewExecutor(workers int, opts ...Option) *Executor {
	o := resolveOptions(opts)
	ex := &Executor{
		tasks:   make(chan func(), o.taskQueueSize),
		stopped: make(chan struct{}),
		logger:  o.logger,
	}
	for i := 0; i < workers; i++ {
		ex.wg.Add(1)
		go ex.worker()
	}
	return ex
}

func (e *Executor) worker() {
	defer e.wg.Done()
	id := goroutineID()
	e.workerIDs.Store(id, struct{}{})
	defer e.workerIDs.Delete(id)
	for {
		select {
		case <-e.stopped:
			return
		case task, ok := <-e.tasks:
			if !ok {
				return
			}
			e.runTask(task)
		}
	}
}

func (e *Executor) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Warn("recovered panic from posted task", "panic", r)
			}
		}
	}()
	task()
}

// Post schedules task to run on a worker goroutine. Post never blocks the
// caller past the point of handing the task to the queue (or discovering
// the executor has stopped, in which case the task is dropped).
func (e *Executor) Post(task func()) {
	select {
	case e.tasks <- task:
	case <-e.stopped:
	}
}

// pumpOne runs at most one pending task inline on the calling goroutine,
// returning false if none was ready. Used by Waiter.Await when called
// from one of this executor's own worker goroutines.
func (e *Executor) pumpOne() bool {
	select {
	case task, ok := <-e.tasks:
		if !ok {
			return false
		}
		e.runTask(task)
		return true
	default:
		return false
	}
}

// Stop halts all worker goroutines and waits for them to exit. Idempotent.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopped)
	})
	e.wg.Wait()
}

func (e *Executor) isWorkerGoroutine() bool {
	_, ok := e.workerIDs.Load(goroutineID())
	return ok
}

// goroutineID extracts the calling goroutine's runtime id by parsing the
// header line of runtime.Stack. Go has no supported goroutine-local
// storage; this is the well-known workaround, used here only for the
// Waiter.Await fast path (§4.9) — never on a correctness-critical path.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(string(fields[1]), 10, 64)
	return id
}
