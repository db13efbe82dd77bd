// Package cast opens authenticated Cast channels to receiver devices.
//
// A channel is a socket.Socket: Connect drives TCP, TLS and device
// authentication, after which CastMessages flow to registered observers.
// A service.Service keeps one socket per receiver and can reconnect them.
package cast

import (
	"context"
	"net/netip"
	"time"

	"sutext.github.io/cast/channel"
	"sutext.github.io/cast/service"
	"sutext.github.io/cast/socket"
)

// NewSocket returns an unconnected socket for endpoint.
func NewSocket(endpoint netip.AddrPort, timeout time.Duration, opts ...socket.Option) socket.Socket {
	return socket.New(channel.NewOpenParams(endpoint, timeout), opts...)
}

func NewService(opts ...service.Option) *service.Service {
	return service.New(opts...)
}

// Dial connects a socket and waits for the outcome. On failure the socket
// is destroyed and the channel error returned. Canceling ctx abandons the
// attempt.
func Dial(ctx context.Context, params channel.OpenParams, opts ...socket.Option) (socket.Socket, error) {
	s := socket.New(params, opts...)
	done := make(chan struct{})
	s.Connect(func(socket.Socket) { close(done) })
	select {
	case <-done:
	case <-ctx.Done():
		<-s.Destroy()
		return nil, context.Cause(ctx)
	}
	if s.ReadyState() != channel.ReadyStateOpen {
		err := s.ErrorState()
		<-s.Destroy()
		return nil, err
	}
	return s, nil
}
