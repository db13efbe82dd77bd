package receiver

import (
	"net"

	"sutext.github.io/cast/xlog"
)

// AuthMode selects how the receiver answers the device auth challenge.
type AuthMode uint8

const (
	AuthOK AuthMode = iota
	AuthBadSignature
	AuthWrongNonce
	AuthErrorReply
	AuthSilent
)

type Option struct {
	f func(*Options)
}
type Options struct {
	Logger    *xlog.Logger
	Listener  net.Listener
	AuthMode  AuthMode
	Echo      bool
	Heartbeat bool
	// RotateTLSCert issues a new TLS certificate for every accepted
	// connection, so a sender's whitelisted certificate no longer matches.
	RotateTLSCert bool
	// OnMessage observes every non-auth message the receiver reads.
	OnMessage func(ns, payload string)
}

func newOptions(opts ...Option) *Options {
	options := &Options{
		Logger:    xlog.With("GROUP", "RECEIVER"),
		AuthMode:  AuthOK,
		Echo:      true,
		Heartbeat: true,
	}
	for _, o := range opts {
		o.f(options)
	}
	return options
}
func WithLogger(logger *xlog.Logger) Option {
	return Option{f: func(o *Options) { o.Logger = logger }}
}
func WithListener(l net.Listener) Option {
	return Option{f: func(o *Options) { o.Listener = l }}
}
func WithAuthMode(mode AuthMode) Option {
	return Option{f: func(o *Options) { o.AuthMode = mode }}
}
func WithEcho(echo bool) Option {
	return Option{f: func(o *Options) { o.Echo = echo }}
}
func WithHeartbeat(heartbeat bool) Option {
	return Option{f: func(o *Options) { o.Heartbeat = heartbeat }}
}
func WithRotateTLSCert(rotate bool) Option {
	return Option{f: func(o *Options) { o.RotateTLSCert = rotate }}
}
func WithOnMessage(f func(ns, payload string)) Option {
	return Option{f: func(o *Options) { o.OnMessage = f }}
}
