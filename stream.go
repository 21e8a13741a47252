package netasync

import (
	"io"
	"net"
	"time"
)

// asyncWrite frames payload and writes it to conn under timeout,
// reporting FailedOperation if fewer bytes were transferred than the
// frame's total size. Grounded on spec.md §4.7 and the teacher's
// sendLoop header assembly, generalized via frame.go's writeFrame.
func asyncWrite(strand *Strand, endpoint *connEndpoint, conn net.Conn, payload []byte, timeout time.Duration, handler func(error)) {
	runWithDeadline[struct{}](strand, endpoint, timeout,
		func(done func(result struct{}, err error)) {
			go func() {
				n, err := writeFrame(conn, payload)
				if err == nil && n != len(payload) {
					err = ErrShortWrite
				}
				done(struct{}{}, err)
			}()
		},
		func(_ struct{}, classified *Error) {
			if classified.Kind == Success {
				handler(nil)
				return
			}
			handler(classified)
		},
	)
}

// asyncRead performs the two-phase length-prefixed read spec.md §4.7
// requires: a fixed 4-byte header read, then (unless N == 0) an exact
// N-byte payload read under the timeout remaining after the header read
// completed. Exceeding maxMessageSize closes the connection exactly like
// a timeout would and reports FailedOperation.
//
// Grounded on the teacher's recvLoop, which always reads a fixed header
// via io.ReadFull then a variable-length body via a second io.ReadFull —
// the same two-phase shape, generalized from smux's internal session
// loop into a one-shot per-call operation.
func asyncRead(strand *Strand, endpoint *connEndpoint, conn net.Conn, maxMessageSize uint32, timeout time.Duration, handler func([]byte, error)) {
	t0 := time.Now()
	runWithDeadline[[frameHeaderSize]byte](strand, endpoint, timeout,
		func(done func(result [frameHeaderSize]byte, err error)) {
			go func() {
				hdr, err := readFrameHeader(conn)
				done(hdr, err)
			}()
		},
		func(hdr [frameHeaderSize]byte, classified *Error) {
			if classified.Kind != Success {
				handler(nil, classified)
				return
			}
			n := decodeFrameHeader(hdr)
			if n == 0 {
				handler([]byte{}, nil)
				return
			}
			if n > maxMessageSize {
				endpoint.Close()
				handler(nil, &Error{Kind: FailedOperation, Cause: ErrFrameTooLarge})
				return
			}
			remaining := timeout - time.Since(t0)
			if remaining < 0 {
				remaining = 0
			}
			runWithDeadline[[]byte](strand, endpoint, remaining,
				func(done func(result []byte, err error)) {
					go func() {
						buf := make([]byte, n)
						rn, rerr := io.ReadFull(conn, buf)
						if rerr == nil && uint32(rn) != n {
							rerr = io.ErrUnexpectedEOF
						}
						done(buf, rerr)
					}()
				},
				func(payload []byte, classified2 *Error) {
					if classified2.Kind != Success {
						handler(nil, classified2)
						return
					}
					handler(payload, nil)
				},
			)
		},
	)
}
