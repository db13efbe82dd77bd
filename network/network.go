// Package network provides the TCP and TLS plumbing a socket connects
// through.
package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
	"sutext.github.io/cast/xlog"
)

// Context creates connections on behalf of sockets. Implementations must be
// safe for concurrent use.
type Context interface {
	CreateTCPConnectedSocket(ctx context.Context, addr netip.AddrPort) (net.Conn, error)
	UpgradeToTLS(ctx context.Context, conn net.Conn, config *tls.Config) (*tls.Conn, error)
}

type Options struct {
	Logger    *xlog.Logger
	Dialer    *net.Dialer
	ProxyURL  *url.URL
	KeepAlive time.Duration
}
type Option struct {
	f func(*Options)
}

func newOptions(opts ...Option) *Options {
	options := &Options{
		Logger:    xlog.With("GROUP", "NETWORK"),
		KeepAlive: 15 * time.Second,
	}
	for _, o := range opts {
		o.f(options)
	}
	return options
}

func WithLogger(logger *xlog.Logger) Option {
	return Option{f: func(o *Options) {
		o.Logger = logger
	}}
}

// WithDialer replaces the default dialer, e.g. to bind a local address.
func WithDialer(dialer *net.Dialer) Option {
	return Option{f: func(o *Options) {
		o.Dialer = dialer
	}}
}

// WithProxy routes TCP connections through the proxy at u, e.g.
// socks5://127.0.0.1:1080.
func WithProxy(u *url.URL) Option {
	return Option{f: func(o *Options) {
		o.ProxyURL = u
	}}
}

func WithKeepAlive(d time.Duration) Option {
	return Option{f: func(o *Options) {
		o.KeepAlive = d
	}}
}

type netContext struct {
	logger *xlog.Logger
	dialer proxy.ContextDialer
}

func NewContext(opts ...Option) (Context, error) {
	options := newOptions(opts...)
	base := options.Dialer
	if base == nil {
		base = &net.Dialer{KeepAlive: options.KeepAlive}
	}
	c := &netContext{logger: options.Logger, dialer: base}
	if options.ProxyURL != nil {
		d, err := proxy.FromURL(options.ProxyURL, base)
		if err != nil {
			return nil, fmt.Errorf("network: proxy %s: %w", options.ProxyURL.Redacted(), err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("network: proxy %s does not support contexts", options.ProxyURL.Redacted())
		}
		c.dialer = cd
	}
	return c, nil
}

func (c *netContext) CreateTCPConnectedSocket(ctx context.Context, addr netip.AddrPort) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		c.logger.Debug("tcp connect failed", xlog.Endpoint(addr), xlog.Err(err))
		return nil, err
	}
	return conn, nil
}

// UpgradeToTLS runs the client handshake on conn. On failure conn is
// closed.
func (c *netContext) UpgradeToTLS(ctx context.Context, conn net.Conn, config *tls.Config) (*tls.Conn, error) {
	tc := tls.Client(conn, config)
	if err := tc.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tc, nil
}
