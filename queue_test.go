package netasync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOperationQueueFIFOOrder(t *testing.T) {
	ex := NewExecutor(2)
	defer ex.Stop()
	q := NewOperationQueue(ex)

	var order []int
	done := make(chan struct{})

	dispatchN := func(n int) {
		q.Dispatch(func(finish func()) {
			order = append(order, n)
			if n == 4 {
				close(done)
			}
			finish()
		})
	}
	for i := 0; i < 5; i++ {
		dispatchN(i)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queue never drained")
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestOperationQueueSerializesConcurrentOps(t *testing.T) {
	ex := NewExecutor(4)
	defer ex.Stop()
	q := NewOperationQueue(ex)

	var running int32
	var sawOverlap bool
	const n = 20
	doneCh := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		q.Dispatch(func(finish func()) {
			if running != 0 {
				sawOverlap = true
			}
			running = 1
			go func() {
				time.Sleep(time.Millisecond)
				running = 0
				finish()
				doneCh <- struct{}{}
			}()
		})
	}

	for i := 0; i < n; i++ {
		select {
		case <-doneCh:
		case <-time.After(2 * time.Second):
			t.Fatal("not all operations completed")
		}
	}
	require.False(t, sawOverlap, "operations from one queue must not overlap")
}

func TestOperationQueueCancelQueuedLeavesRunning(t *testing.T) {
	ex := NewExecutor(1)
	defer ex.Stop()
	q := NewOperationQueue(ex)

	runningDone := make(chan struct{})
	q.Dispatch(func(finish func()) {
		go func() {
			time.Sleep(30 * time.Millisecond)
			finish()
			close(runningDone)
		}()
	})

	var queuedRan bool
	q.Dispatch(func(finish func()) {
		queuedRan = true
		finish()
	})
	q.CancelQueued()

	<-runningDone
	time.Sleep(20 * time.Millisecond)
	require.False(t, queuedRan, "cancelled queued operation must not run")
}
