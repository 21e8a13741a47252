package netasync

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DatagramSender sends one framed datagram per call, serialized through
// an OperationQueue so sends from one sender complete in FIFO order
// (§6).
type DatagramSender[M any] struct {
	executor *Executor
	strand   *Strand
	queue    *OperationQueue
	codec    Codec[M]
	logger   *log.Logger

	mu       sync.Mutex
	conn     net.PacketConn
	endpoint *datagramEndpoint
}

// NewDatagramSender returns a DatagramSender posting its work through ex.
func NewDatagramSender[M any](ex *Executor, codec Codec[M], opts ...Option) *DatagramSender[M] {
	o := resolveOptions(opts)
	return &DatagramSender[M]{
		executor: ex,
		strand:   ex.NewStrand(),
		queue:    NewOperationQueue(ex),
		codec:    codec,
		logger:   o.logger,
	}
}

func (s *DatagramSender[M]) ensureConn() (net.PacketConn, *datagramEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, s.endpoint, nil
	}
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, nil, err
	}
	s.conn = conn
	s.endpoint = newDatagramEndpoint(conn)
	return s.conn, s.endpoint, nil
}

// AsyncSend encodes msg and sends it to ip:port under timeout. The
// underlying UDP socket is opened lazily on first use and reused across
// calls until Stop().
func (s *DatagramSender[M]) AsyncSend(msg M, ip string, port int, timeout time.Duration, handler func(error)) {
	s.queue.Dispatch(func(finish func()) {
		payload, err := s.codec.Encode(msg)
		if err != nil {
			if s.logger != nil {
				s.logger.Debug("encode failed", "err", err)
			}
			finish()
			handler(&Error{Kind: Encoding, Cause: err})
			return
		}
		conn, endpoint, err := s.ensureConn()
		if err != nil {
			finish()
			handler(&Error{Kind: FailedOperation, Cause: err})
			return
		}
		dest, err := net.ResolveUDPAddr("udp", net.JoinHostPort(ip, fmt.Sprint(port)))
		if err != nil {
			finish()
			handler(&Error{Kind: FailedOperation, Cause: err})
			return
		}
		asyncSendTo(s.strand, endpoint, conn, payload, dest, timeout, func(serr error) {
			finish()
			handler(serr)
		})
	})
}

// Stop closes the sender's socket and drops any queued sends. Subsequent
// AsyncSend calls re-open a fresh socket lazily.
func (s *DatagramSender[M]) Stop() {
	s.queue.CancelQueued()
	s.mu.Lock()
	conn := s.conn
	s.conn, s.endpoint = nil, nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// DatagramReceiver receives one framed datagram per call on a fixed
// bound port, serialized through an OverrideSlot: re-arming cancels the
// outstanding receive (§6).
type DatagramReceiver[M any] struct {
	executor       *Executor
	strand         *Strand
	slot           *OverrideSlot
	bindingPort    int
	maxMessageSize uint32
	codec          Codec[M]
	logger         *log.Logger

	mu       sync.Mutex
	conn     net.PacketConn
	endpoint *datagramEndpoint
}

// NewDatagramReceiver returns a DatagramReceiver that will bind
// bindingPort lazily on first AsyncReceive.
func NewDatagramReceiver[M any](ex *Executor, bindingPort int, maxMessageSize uint32, codec Codec[M], opts ...Option) *DatagramReceiver[M] {
	o := resolveOptions(opts)
	return &DatagramReceiver[M]{
		executor:       ex,
		strand:         ex.NewStrand(),
		slot:           NewOverrideSlot(ex),
		bindingPort:    bindingPort,
		maxMessageSize: maxMessageSize,
		codec:          codec,
		logger:         o.logger,
	}
}

func (r *DatagramReceiver[M]) ensureConn() (net.PacketConn, *datagramEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, r.endpoint, nil
	}
	conn, err := listenUDPReusable(r.bindingPort)
	if err != nil {
		return nil, nil, err
	}
	r.conn = conn
	r.endpoint = newDatagramEndpoint(conn)
	return r.conn, r.endpoint, nil
}

func (r *DatagramReceiver[M]) closeConn() {
	r.mu.Lock()
	ep := r.endpoint
	r.conn, r.endpoint = nil, nil
	r.mu.Unlock()
	if ep != nil {
		ep.Close()
	}
}

// AsyncReceive waits for one datagram under timeout. Calling it again
// before the previous call completed cancels that previous call (it
// fires Aborted) and proceeds with the newest request, per §4.4/§8
// invariant 3.
func (r *DatagramReceiver[M]) AsyncReceive(timeout time.Duration, handler func(M, net.Addr, error)) {
	r.slot.Dispatch(
		r.closeConn,
		func(finish func()) {
			var zero M
			conn, endpoint, err := r.ensureConn()
			if err != nil {
				finish()
				handler(zero, nil, &Error{Kind: FailedOperation, Cause: err})
				return
			}
			asyncReceiveFrom(r.strand, endpoint, conn, r.maxMessageSize, timeout,
				func(payload []byte, addr net.Addr, rerr error) {
					finish()
					if rerr != nil {
						handler(zero, addr, rerr)
						return
					}
					msg, derr := r.codec.Decode(payload)
					if derr != nil {
						if r.logger != nil {
							r.logger.Debug("decode failed", "addr", addr, "err", derr)
						}
						handler(msg, addr, &Error{Kind: Decoding, Cause: derr})
						return
					}
					handler(msg, addr, nil)
				},
			)
		},
	)
}

// Stop drops any pending receive and closes the bound socket. A
// subsequent AsyncReceive re-binds lazily.
func (r *DatagramReceiver[M]) Stop() {
	r.slot.CancelPending()
	r.closeConn()
}

// listenUDPReusable opens a UDP socket bound to port with SO_REUSEADDR
// and SO_BROADCAST set, as spec.md §6 requires for DatagramReceiver's
// first use. No library in the retrieved corpus sets these two
// socket-level options on a UDP listener directly (golang.org/x/net/ipv4
// covers multicast group membership, not this; golang.org/x/sys/unix
// appears only as an indirect, never-imported transitive dependency) —
// this is implemented on net.ListenConfig.Control + syscall, both
// standard library (see netopts_unix.go / netopts_other.go).
func listenUDPReusable(port int) (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: setReuseAddrBroadcast,
	}
	return lc.ListenPacket(context.Background(), "udp", fmt.Sprintf(":%d", port))
}
