package service

import (
	"sutext.github.io/cast/logger"
	"sutext.github.io/cast/socket"
	"sutext.github.io/cast/xlog"
)

type Options struct {
	Logger        *xlog.Logger
	Events        *logger.Logger
	Retrier       *Retrier
	SocketOptions []socket.Option
}
type Option struct {
	f func(*Options)
}

func newOptions(opts ...Option) *Options {
	options := &Options{
		Logger: xlog.With("GROUP", "SERVICE"),
	}
	for _, o := range opts {
		o.f(options)
	}
	if options.Events == nil {
		options.Events = logger.New(0)
	}
	return options
}

func WithLogger(logger *xlog.Logger) Option {
	return Option{f: func(o *Options) {
		o.Logger = logger
	}}
}

// WithEventLog sets the diagnostic log shared by every socket of the
// service.
func WithEventLog(events *logger.Logger) Option {
	return Option{f: func(o *Options) {
		o.Events = events
	}}
}

// WithRetrier makes the service reconnect channels that fail after open.
func WithRetrier(r *Retrier) Option {
	return Option{f: func(o *Options) {
		o.Retrier = r
	}}
}

// WithSocketOptions applies opts to every socket the service creates.
func WithSocketOptions(opts ...socket.Option) Option {
	return Option{f: func(o *Options) {
		o.SocketOptions = append(o.SocketOptions, opts...)
	}}
}
