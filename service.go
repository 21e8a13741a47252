package netasync

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// ServiceClient issues one request/response exchange per call, each over
// a fresh TCP connection closed on completion, serialized through an
// OperationQueue so calls from one client observe FIFO ordering (§6).
// Each call resolves its host, dials, writes, and reads in sequence, all
// under the one overall timeout the caller supplies (§4.6/§4.2).
type ServiceClient[Req, Resp any] struct {
	executor       *Executor
	strand         *Strand
	queue          *OperationQueue
	resolver       *Resolver
	maxMessageSize uint32
	reqCodec       Codec[Req]
	respCodec      Codec[Resp]
	logger         *log.Logger
}

// NewServiceClient returns a ServiceClient posting its work through ex.
func NewServiceClient[Req, Resp any](ex *Executor, maxMessageSize uint32, reqCodec Codec[Req], respCodec Codec[Resp], opts ...Option) *ServiceClient[Req, Resp] {
	o := resolveOptions(opts)
	return &ServiceClient[Req, Resp]{
		executor:       ex,
		strand:         ex.NewStrand(),
		queue:          NewOperationQueue(ex),
		resolver:       NewResolver(ex, opts...),
		maxMessageSize: maxMessageSize,
		reqCodec:       reqCodec,
		respCodec:      respCodec,
		logger:         o.logger,
	}
}

// asyncDial connects to addr under timeout, using a cancelEndpoint so a
// timer expiry cancels the dial's context exactly like any other
// deadline-bound operation — never a bare context.WithTimeout, so a
// connect timeout classifies as Aborted rather than FailedOperation.
func asyncDial(strand *Strand, network, addr string, timeout time.Duration, handler func(net.Conn, error)) {
	ctx, cancel := context.WithCancel(context.Background())
	endpoint := newCancelEndpoint(cancel)
	runWithDeadline[net.Conn](strand, endpoint, timeout,
		func(done func(result net.Conn, err error)) {
			go func() {
				conn, err := (&net.Dialer{}).DialContext(ctx, network, addr)
				done(conn, err)
			}()
		},
		func(conn net.Conn, classified *Error) {
			if classified.Kind == Success {
				handler(conn, nil)
				return
			}
			handler(conn, classified)
		},
	)
}

// AsyncCall resolves host, dials the first resolved address, writes req,
// reads the response, and closes the connection, all under a single
// overall timeout. Calls on one client queue FIFO; a call dispatched
// while another is in flight waits its turn.
func (c *ServiceClient[Req, Resp]) AsyncCall(req Req, host string, port int, timeout time.Duration, handler func(Resp, error)) {
	c.queue.Dispatch(func(finish func()) {
		var zero Resp
		payload, err := c.reqCodec.Encode(req)
		if err != nil {
			finish()
			handler(zero, &Error{Kind: Encoding, Cause: err})
			return
		}

		deadline := time.Now().Add(timeout)
		c.resolver.AsyncResolve(host, port, timeout, func(addrs []net.Addr, rerr error) {
			if rerr != nil {
				finish()
				handler(zero, rerr)
				return
			}
			if len(addrs) == 0 {
				finish()
				handler(zero, &Error{Kind: FailedOperation, Cause: ErrNoAddresses})
				return
			}

			dialTimeout := time.Until(deadline)
			if dialTimeout < 0 {
				dialTimeout = 0
			}
			asyncDial(c.strand, "tcp", addrs[0].String(), dialTimeout, func(conn net.Conn, derr error) {
				if derr != nil {
					finish()
					handler(zero, derr)
					return
				}
				endpoint := newConnEndpoint(conn)

				writeTimeout := time.Until(deadline)
				if writeTimeout < 0 {
					writeTimeout = 0
				}
				asyncWrite(c.strand, endpoint, conn, payload, writeTimeout, func(werr error) {
					if werr != nil {
						endpoint.Close()
						finish()
						handler(zero, werr)
						return
					}

					readTimeout := time.Until(deadline)
					if readTimeout < 0 {
						readTimeout = 0
					}
					asyncRead(c.strand, endpoint, conn, c.maxMessageSize, readTimeout, func(respBytes []byte, rerr error) {
						endpoint.Close()
						finish()
						if rerr != nil {
							handler(zero, rerr)
							return
						}
						resp, derr := c.respCodec.Decode(respBytes)
						if derr != nil {
							handler(resp, &Error{Kind: Decoding, Cause: derr})
							return
						}
						handler(resp, nil)
					})
				})
			})
		})
	})
}

// Stop drops any calls still waiting in this client's queue and any
// lookups still waiting in its resolver's queue. A call already in
// flight runs to completion or timeout.
func (c *ServiceClient[Req, Resp]) Stop() {
	c.queue.CancelQueued()
	c.resolver.Stop()
}

// ServiceServer accepts connections continuously; for each, it reads one
// request, invokes handler, writes the response, and closes the
// connection (§6).
type ServiceServer[Req, Resp any] struct {
	executor       *Executor
	strand         *Strand
	bindingPort    int
	maxMessageSize uint32
	reqCodec       Codec[Req]
	respCodec      Codec[Resp]
	logger         *log.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServiceServer returns a ServiceServer that will bind to bindingPort
// once Advertise is called.
func NewServiceServer[Req, Resp any](ex *Executor, bindingPort int, maxMessageSize uint32, reqCodec Codec[Req], respCodec Codec[Resp], opts ...Option) *ServiceServer[Req, Resp] {
	o := resolveOptions(opts)
	return &ServiceServer[Req, Resp]{
		executor:       ex,
		strand:         ex.NewStrand(),
		bindingPort:    bindingPort,
		maxMessageSize: maxMessageSize,
		reqCodec:       reqCodec,
		respCodec:      respCodec,
		logger:         o.logger,
	}
}

// Advertise binds the server's listening port and starts accepting
// connections in the background, applying handler to every request.
// recv_timeout defaults to 60s, send_timeout to 10s (§6); a receive
// timeout silently drops the connection unless WithOnReceiveTimeout was
// passed, per spec.md §9 Open Question (a).
func (s *ServiceServer[Req, Resp]) Advertise(handler func(client Endpoint, req Req) Resp, opts ...Option) error {
	o := resolveOptions(opts)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.bindingPort))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go s.acceptLoop(ln, handler, o)
	return nil
}

// Addr returns the server's bound address once Advertise has succeeded.
func (s *ServiceServer[Req, Resp]) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *ServiceServer[Req, Resp]) acceptLoop(ln net.Listener, handler func(Endpoint, Req) Resp, o *Options) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn, handler, o)
	}
}

func (s *ServiceServer[Req, Resp]) handleConn(conn net.Conn, handler func(Endpoint, Req) Resp, o *Options) {
	endpoint := newConnEndpoint(conn)
	defer endpoint.Close()
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Warn("recovered panic from request handler", "panic", r)
		}
	}()

	waiter := NewWaiter(s.executor)

	readWaitable := waiter.NewWaitable()
	var reqBytes []byte
	var readErr error
	asyncRead(s.strand, endpoint, conn, s.maxMessageSize, o.recvTimeout,
		WrapHandler2(readWaitable, func(b []byte, err error) { reqBytes, readErr = b, err }))
	waiter.Await(readWaitable.Ready)

	if readErr != nil {
		if ne, ok := readErr.(*Error); ok && ne.Kind == Aborted && o.onReceiveTimeout != nil {
			o.onReceiveTimeout(readErr)
		}
		return
	}

	req, derr := s.reqCodec.Decode(reqBytes)
	if derr != nil {
		if s.logger != nil {
			s.logger.Debug("dropping connection: request decode failed", "err", derr)
		}
		return
	}

	resp := handler(endpoint, req)

	payload, eerr := s.respCodec.Encode(resp)
	if eerr != nil {
		if s.logger != nil {
			s.logger.Debug("dropping connection: response encode failed", "err", eerr)
		}
		return
	}

	writeWaitable := waiter.NewWaitable()
	asyncWrite(s.strand, endpoint, conn, payload, o.sendTimeout,
		WrapHandler1(writeWaitable, func(error) {}))
	waiter.Await(writeWaitable.Ready)
}

// Stop closes the listening socket, ending the accept loop. Connections
// already being handled run to completion.
func (s *ServiceServer[Req, Resp]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
}
