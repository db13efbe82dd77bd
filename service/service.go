// Package service keeps the Cast sockets of a process: one socket per
// receiver endpoint, shared observers and an optional reconnect policy.
package service

import (
	"net/netip"
	"sync"
	"sync/atomic"

	"sutext.github.io/cast/castmsg"
	"sutext.github.io/cast/channel"
	"sutext.github.io/cast/internal/observer"
	"sutext.github.io/cast/internal/safe"
	"sutext.github.io/cast/logger"
	"sutext.github.io/cast/socket"
	"sutext.github.io/cast/xerr"
	"sutext.github.io/cast/xlog"
)

type entry struct {
	socket socket.Socket
	retry  *retryState
}

type Service struct {
	opts      *Options
	logger    *xlog.Logger
	events    *logger.Logger
	mu        sync.Mutex
	closed    atomic.Bool
	sockets   *safe.Map[int, *entry]
	endpoints *safe.Map[netip.AddrPort, int]
	observers observer.List[socket.Observer]
	watcher   *watcher
}

func New(opts ...Option) *Service {
	options := newOptions(opts...)
	s := &Service{
		opts:      options,
		logger:    options.Logger,
		events:    options.Events,
		sockets:   safe.NewMap[int, *entry](),
		endpoints: safe.NewMap[netip.AddrPort, int](),
	}
	s.watcher = &watcher{s: s}
	return s
}

// Events returns the diagnostic log shared by the service's sockets.
func (s *Service) Events() *logger.Logger {
	return s.events
}

// OpenSocket connects to params.Endpoint, reusing the socket already
// registered for it. cb follows socket.Connect semantics.
func (s *Service) OpenSocket(params channel.OpenParams, cb socket.OnOpenCallback) (socket.Socket, error) {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return nil, xerr.ServiceIsClosed
	}
	var stale *entry
	if id, ok := s.endpoints.Get(params.Endpoint); ok {
		if e, ok := s.sockets.Get(id); ok {
			if e.socket.ReadyState() != channel.ReadyStateClosed {
				s.mu.Unlock()
				e.socket.Connect(cb)
				return e.socket, nil
			}
			// A closed socket never reopens, replace it.
			s.sockets.Delete(id)
			stale = e
		}
	}
	sock := s.newSocket(params, socket.NextChannelID())
	e := &entry{socket: sock, retry: s.opts.Retrier.state()}
	s.sockets.Set(sock.ID(), e)
	s.endpoints.Set(params.Endpoint, sock.ID())
	s.mu.Unlock()
	if stale != nil {
		s.release(stale, false)
	}
	s.logger.Info("open socket", xlog.Channel(sock.ID()), xlog.Endpoint(params.Endpoint))
	sock.Connect(cb)
	return sock, nil
}

func (s *Service) newSocket(params channel.OpenParams, id int) socket.Socket {
	opts := append([]socket.Option{
		socket.WithEventLog(s.events),
	}, s.opts.SocketOptions...)
	opts = append(opts, socket.WithChannelID(id))
	sock := socket.New(params, opts...)
	sock.AddObserver(s.watcher)
	s.observers.Notify(func(o socket.Observer) {
		sock.AddObserver(o)
	})
	return sock
}

func (s *Service) GetSocket(id int) (socket.Socket, bool) {
	e, ok := s.sockets.Get(id)
	if !ok {
		return nil, false
	}
	return e.socket, true
}

func (s *Service) GetSocketByEndpoint(ep netip.AddrPort) (socket.Socket, bool) {
	id, ok := s.endpoints.Get(ep)
	if !ok {
		return nil, false
	}
	return s.GetSocket(id)
}

// Len returns the number of registered sockets.
func (s *Service) Len() int {
	return s.sockets.Len()
}

// SendMessage writes m on channel id.
func (s *Service) SendMessage(id int, m *castmsg.CastMessage, cb func(error)) {
	e, ok := s.sockets.Get(id)
	if !ok {
		if cb != nil {
			cb(xerr.SocketNotFound)
		}
		return
	}
	e.socket.SendMessage(m, cb)
}

// CloseSocket unregisters channel id and closes it. It does not wait for
// the socket's queue to drain, so observers and open callbacks may call it.
func (s *Service) CloseSocket(id int) error {
	s.mu.Lock()
	e, ok := s.sockets.Take(id)
	if ok {
		s.endpoints.DeleteIf(e.socket.Endpoint(), func(v int) bool { return v == id })
	}
	s.mu.Unlock()
	if !ok {
		return xerr.SocketNotFound
	}
	s.release(e, false)
	return nil
}

// release destroys the socket of e. wait must be false on any path an
// observer or open callback can reach, those run on the socket's queue.
func (s *Service) release(e *entry, wait bool) {
	if e.retry != nil {
		e.retry.cancel()
	}
	done := e.socket.Destroy()
	forget := func() {
		<-done
		s.events.ClearLastError(e.socket.ID())
	}
	if wait {
		forget()
	} else {
		go forget()
	}
}

// AddObserver registers o with every current and future socket.
func (s *Service) AddObserver(o socket.Observer) {
	s.observers.Add(o)
	for _, e := range s.sockets.Values() {
		e.socket.AddObserver(o)
	}
}

func (s *Service) RemoveObserver(o socket.Observer) {
	s.observers.Remove(o)
	for _, e := range s.sockets.Values() {
		e.socket.RemoveObserver(o)
	}
}

// Shutdown destroys every socket and waits for them. The service cannot be
// used afterwards. It must not be called from an observer or open callback.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return
	}
	var entries []*entry
	s.sockets.Range(func(id int, e *entry) bool {
		s.sockets.Delete(id)
		entries = append(entries, e)
		return true
	})
	s.endpoints.Range(func(ep netip.AddrPort, _ int) bool {
		s.endpoints.Delete(ep)
		return true
	})
	s.mu.Unlock()
	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.release(e, true)
		}()
	}
	wg.Wait()
	s.observers.Clear()
	s.logger.Info("service shutdown", xlog.Int("sockets", len(entries)))
}

// scheduleReconnect arms the channel's retrier after failure err of sock.
func (s *Service) scheduleReconnect(sock socket.Socket, err channel.ChannelError) {
	if s.closed.Load() {
		return
	}
	e, ok := s.sockets.Get(sock.ID())
	if !ok || e.socket != sock || e.retry == nil {
		return
	}
	delay, ok := e.retry.can(err)
	if !ok {
		s.logger.Warn("giving up on channel", xlog.Channel(sock.ID()), xlog.State("error", err))
		return
	}
	s.logger.Info("reconnect scheduled", xlog.Channel(sock.ID()), xlog.State("error", err), xlog.Duration("delay", delay))
	e.retry.retry(delay, func() { s.reconnect(sock) })
}

// reconnect replaces old with a fresh socket on the same channel id.
func (s *Service) reconnect(old socket.Socket) {
	s.mu.Lock()
	e, ok := s.sockets.Get(old.ID())
	if s.closed.Load() || !ok || e.socket != old {
		s.mu.Unlock()
		return
	}
	fresh := s.newSocket(old.OpenParams(), old.ID())
	next := &entry{socket: fresh, retry: e.retry}
	s.sockets.Set(old.ID(), next)
	s.mu.Unlock()

	old.Close(nil)
	<-old.Destroy()
	fresh.Connect(func(sock socket.Socket) {
		if sock.ReadyState() == channel.ReadyStateOpen {
			next.retry.reset()
			s.logger.Info("channel reconnected", xlog.Channel(sock.ID()))
			return
		}
		s.scheduleReconnect(sock, sock.ErrorState())
	})
}

// watcher is the service's own observer on every socket.
type watcher struct {
	s *Service
}

func (w *watcher) OnError(sock socket.Socket, err channel.ChannelError) {
	if sock.ReadyState() != channel.ReadyStateOpen {
		return
	}
	w.s.scheduleReconnect(sock, err)
}

func (w *watcher) OnMessage(socket.Socket, *castmsg.CastMessage) {}
