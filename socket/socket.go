// Package socket implements an outbound Cast channel: TCP connect, TLS with
// a one-time trust of the receiver's self-signed certificate, device
// authentication, then framed message exchange.
//
// All state of a socket lives on one serial queue. Public methods may be
// called from any goroutine; callbacks and observer notifications run on
// the socket's queue, one at a time.
package socket

import (
	"crypto/x509"
	"net/netip"
	"sync/atomic"

	"sutext.github.io/cast/auth"
	"sutext.github.io/cast/castmsg"
	"sutext.github.io/cast/channel"
	"sutext.github.io/cast/internal/metrics"
	"sutext.github.io/cast/logger"
	"sutext.github.io/cast/network"
	"sutext.github.io/cast/transport"
	"sutext.github.io/cast/xlog"
)

// OnOpenCallback receives the socket whose Connect finished. Success is
// read from ReadyState and ErrorState.
type OnOpenCallback func(s Socket)

// Observer hears about every channel error and inbound message of the
// sockets it is registered with. Observers are compared by identity, so use
// pointer types.
type Observer interface {
	OnError(s Socket, err channel.ChannelError)
	OnMessage(s Socket, m *castmsg.CastMessage)
}

// ReadyStateObserver is implemented by observers that also want ready
// state transitions.
type ReadyStateObserver interface {
	OnReadyStateChanged(s Socket)
}

type Socket interface {
	// Connect starts the connect sequence on first call. Calls made while
	// connecting queue cb; later calls run cb right away.
	Connect(cb OnOpenCallback)
	// Close tears the channel down. It is idempotent and cb, if any, is
	// called once per call.
	Close(cb func(error))
	// Destroy closes the socket, fails pending open callbacks with
	// ChannelErrorUnknown and stops its queue. The channel closes when
	// that is done. The socket must not be used afterwards.
	Destroy() <-chan struct{}
	Transport() *transport.Transport
	AddObserver(o Observer)
	RemoveObserver(o Observer)
	ID() int
	Endpoint() netip.AddrPort
	ReadyState() channel.ReadyState
	ErrorState() channel.ChannelError
	KeepAlive() bool
	AudioOnly() bool
	OpenParams() channel.OpenParams
	// SendMessage writes m once the channel is open.
	SendMessage(m *castmsg.CastMessage, cb func(error))
}

var lastChannelID atomic.Int32

// NextChannelID hands out process wide channel ids, starting at 1.
func NextChannelID() int {
	return int(lastChannelID.Add(1))
}

type Options struct {
	Logger       *xlog.Logger
	Events       *logger.Logger
	Network      network.Context
	Trust        *auth.TrustStore
	TLSRoots     *x509.CertPool
	Metrics      *metrics.Recorder
	EnforceNonce bool
	ChannelID    int
}
type Option struct {
	f func(*Options)
}

func newOptions(opts ...Option) *Options {
	options := &Options{
		Logger:       xlog.With("GROUP", "SOCKET"),
		EnforceNonce: true,
	}
	for _, o := range opts {
		o.f(options)
	}
	if options.Events == nil {
		options.Events = logger.New(0)
	}
	if options.TLSRoots == nil {
		roots, err := x509.SystemCertPool()
		if err != nil {
			roots = x509.NewCertPool()
		}
		options.TLSRoots = roots
	}
	if options.ChannelID == 0 {
		options.ChannelID = NextChannelID()
	}
	return options
}

func WithLogger(logger *xlog.Logger) Option {
	return Option{f: func(o *Options) {
		o.Logger = logger
	}}
}

// WithEventLog shares a diagnostic event log between sockets.
func WithEventLog(events *logger.Logger) Option {
	return Option{f: func(o *Options) {
		o.Events = events
	}}
}

func WithNetworkContext(nc network.Context) Option {
	return Option{f: func(o *Options) {
		o.Network = nc
	}}
}

// WithTrustStore sets the Cast roots device certificates must chain to.
func WithTrustStore(trust *auth.TrustStore) Option {
	return Option{f: func(o *Options) {
		o.Trust = trust
	}}
}

// WithTLSRoots sets the pool the TLS certificate is first verified
// against. Receivers normally present a self-signed certificate, which
// fails this check and is then trusted for one retry.
func WithTLSRoots(roots *x509.CertPool) Option {
	return Option{f: func(o *Options) {
		o.TLSRoots = roots
	}}
}

func WithMetrics(r *metrics.Recorder) Option {
	return Option{f: func(o *Options) {
		o.Metrics = r
	}}
}

// WithNonceEnforcement controls whether a reply echoing the wrong nonce
// fails authentication. Enabled by default.
func WithNonceEnforcement(enforce bool) Option {
	return Option{f: func(o *Options) {
		o.EnforceNonce = enforce
	}}
}

func WithChannelID(id int) Option {
	return Option{f: func(o *Options) {
		o.ChannelID = id
	}}
}
