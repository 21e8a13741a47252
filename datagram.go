package netasync

import (
	"net"
	"time"
)

type datagramRecvResult struct {
	buf  []byte
	addr net.Addr
}

// asyncSendTo frames payload and sends it as one datagram to dest under
// timeout. A short write (fewer bytes transferred than the frame's total
// size) is FailedOperation, same classification as the stream transport.
func asyncSendTo(strand *Strand, endpoint *datagramEndpoint, conn net.PacketConn, payload []byte, dest net.Addr, timeout time.Duration, handler func(error)) {
	runWithDeadline[struct{}](strand, endpoint, timeout,
		func(done func(result struct{}, err error)) {
			go func() {
				hdr, err := encodeFrameHeader(len(payload))
				if err != nil {
					done(struct{}{}, err)
					return
				}
				buf := make([]byte, frameHeaderSize+len(payload))
				copy(buf, hdr[:])
				copy(buf[frameHeaderSize:], payload)
				n, werr := conn.WriteTo(buf, dest)
				if werr == nil && n != len(buf) {
					werr = ErrShortWrite
				}
				done(struct{}{}, werr)
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

// asyncReceiveFrom receives one datagram into a maxMessageSize+4 buffer
// and extracts its frame. A transport-level error classifies exactly as
// any other operation (Aborted/FailedOperation); a successfully received
// but malformed frame (fewer than 4, or fewer than 4+N bytes) is
// InvalidFrame — spec.md §9 Open Question (b), resolved as the spec text
// states. A datagram larger than the buffer is handled by the OS socket
// layer: where ReadFrom reports an error (e.g. Windows) it surfaces as
// FailedOperation via the usual classification; where the datagram is
// silently truncated to the buffer (e.g. Linux) the truncated bytes reach
// frame extraction and, since the header claims more than was kept, are
// reported as InvalidFrame.
func asyncReceiveFrom(strand *Strand, endpoint *datagramEndpoint, conn net.PacketConn, maxMessageSize uint32, timeout time.Duration, handler func([]byte, net.Addr, error)) {
	runWithDeadline[datagramRecvResult](strand, endpoint, timeout,
		func(done func(result datagramRecvResult, err error)) {
			go func() {
				buf := make([]byte, int(maxMessageSize)+frameHeaderSize)
				n, addr, err := conn.ReadFrom(buf)
				done(datagramRecvResult{buf: buf[:n], addr: addr}, err)
			}()
		},
		func(result datagramRecvResult, classified *Error) {
			if classified.Kind != Success {
				handler(nil, result.addr, classified)
				return
			}
			payload, err := decodeDatagramFrame(result.buf)
			if err != nil {
				handler(nil, result.addr, &Error{Kind: InvalidFrame, Cause: err})
				return
			}
			handler(payload, result.addr, nil)
		},
	)
}
