package netasync

import (
	"sync"
	"time"
)

// runWithDeadline runs op under a wall-clock timeout by coupling a Timer
// to endpoint: if timeout elapses before op calls its done callback, the
// Timer closes endpoint, and the eventual classification reports
// Aborted. The timer-expiry close and op's own done call are both posted
// through strand so that exactly one of them is observed deciding the
// classification, never both racing a user-visible handler invocation —
// spec.md §4.2 step 3 / §5.
//
// Grounded on the teacher's writeFrameInternal, which races a
// `req.result` channel against a `<-deadline` channel fed by a
// time.Timer inside one hand-written select; this generalizes that
// one-off race into a reusable wrapper any async op can be run through,
// and adds the strand so the race itself is deterministic rather than
// "whichever select branch the runtime happens to pick".
func runWithDeadline[T any](
	strand *Strand,
	endpoint Endpoint,
	timeout time.Duration,
	op func(done func(result T, err error)),
	handler func(result T, classified *Error),
) {
	timer := NewTimer(strand)
	timer.StartOneShot(timeout, func() {
		endpoint.Close()
	})

	var once sync.Once
	finish := func(result T, err error) {
		once.Do(func() {
			strand.Post(func() {
				timer.Stop()
				var classified *Error
				switch {
				case !endpoint.IsOpen():
					classified = &Error{Kind: Aborted, Cause: err}
				case err != nil:
					classified = &Error{Kind: FailedOperation, Cause: err}
				default:
					classified = &Error{Kind: Success}
				}
				handler(result, classified)
			})
		})
	}
	op(finish)
}
