package netasync

import (
	"context"
	"net"
	"time"

	"github.com/charmbracelet/log"
)

// Resolver resolves a host/port pair into an ordered list of
// endpoints, with timeout and cancellation managed exactly like any
// other asynchronous operation in this package (§4.6). Concurrent
// resolves from one Resolver are serialized through an OperationQueue.
type Resolver struct {
	executor    *Executor
	strand      *Strand
	queue       *OperationQueue
	netResolver *net.Resolver
	logger      *log.Logger
}

// NewResolver returns a Resolver posting its work through ex.
func NewResolver(ex *Executor, opts ...Option) *Resolver {
	o := resolveOptions(opts)
	return &Resolver{
		executor:    ex,
		strand:      ex.NewStrand(),
		queue:       NewOperationQueue(ex),
		netResolver: net.DefaultResolver,
		logger:      o.logger,
	}
}

// AsyncResolve looks up host under timeout, delivering an ordered list of
// resolved addresses (port is not looked up; it is copied into the Port
// of every returned net.TCPAddr). Closing the Resolver's in-flight
// endpoint (internally, on timeout) cancels the lookup's context.
func (r *Resolver) AsyncResolve(host string, port int, timeout time.Duration, handler func([]net.Addr, error)) {
	r.queue.Dispatch(func(finish func()) {
		ctx, cancel := context.WithCancel(context.Background())
		endpoint := newCancelEndpoint(cancel)

		runWithDeadline[[]net.Addr](r.strand, endpoint, timeout,
			func(done func(result []net.Addr, err error)) {
				go func() {
					ipAddrs, err := r.netResolver.LookupIPAddr(ctx, host)
					if err != nil {
						done(nil, err)
						return
					}
					addrs := make([]net.Addr, 0, len(ipAddrs))
					for _, ip := range ipAddrs {
						addrs = append(addrs, &net.TCPAddr{IP: ip.IP, Port: port})
					}
					done(addrs, nil)
				}()
			},
			func(result []net.Addr, classified *Error) {
				finish()
				if classified.Kind != Success {
					if r.logger != nil {
						r.logger.Debug("resolve failed", "host", host, "err", classified)
					}
					handler(nil, classified)
					return
				}
				handler(result, nil)
			},
		)
	})
}

// Stop drops any resolves still waiting in this Resolver's queue. A
// resolve already in flight keeps running to completion or timeout.
func (r *Resolver) Stop() {
	r.queue.CancelQueued()
}
