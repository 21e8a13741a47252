package netasync

import (
	"time"

	"github.com/charmbracelet/log"
)

// Options configures the constructors in this package. Callers do not
// build it themselves; they apply zero or more Option values.
//
// Grounded on hayabusa-cloud-framer's options.go/netopts.go functional
// options pattern — the teacher (smux) configures itself with a plain
// exported Config struct instead, but this package's constructors take
// several independent, often-defaulted knobs (logger, timeouts, queue
// sizing) for which the With* option style reads better at call sites.
type Options struct {
	logger           *log.Logger
	taskQueueSize    int
	recvTimeout      time.Duration
	sendTimeout      time.Duration
	onReceiveTimeout func(error)
}

// Option mutates an Options value at construction time.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		taskQueueSize: 256,
		recvTimeout:   60 * time.Second,
		sendTimeout:   10 * time.Second,
	}
}

func resolveOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger injects a structured logger used for best-effort diagnostics
// (recovered panics, failed resolves, dropped requests, encode/decode
// failures). Nil by default, meaning nothing is logged.
func WithLogger(l *log.Logger) Option {
	return func(o *Options) { o.logger = l }
}

// WithTaskQueueSize sets the buffering of an Executor's task channel.
func WithTaskQueueSize(n int) Option {
	return func(o *Options) { o.taskQueueSize = n }
}

// WithRecvTimeout overrides ServiceServer.Advertise's default 60s receive
// timeout per connection.
func WithRecvTimeout(d time.Duration) Option {
	return func(o *Options) { o.recvTimeout = d }
}

// WithSendTimeout overrides ServiceServer.Advertise's default 10s send
// timeout per connection.
func WithSendTimeout(d time.Duration) Option {
	return func(o *Options) { o.sendTimeout = d }
}

// WithOnReceiveTimeout registers a hook invoked when a server connection's
// request read aborts (typically on recv_timeout). Nil by default, which
// preserves the silent-drop behaviour spec.md §9 Open Question (a) flags
// as unjustified-but-latest-revision; passing a hook makes that behaviour
// observable without changing the default.
func WithOnReceiveTimeout(fn func(error)) Option {
	return func(o *Options) { o.onReceiveTimeout = fn }
}
