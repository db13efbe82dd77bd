package socket

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"sutext.github.io/cast/auth"
	"sutext.github.io/cast/castmsg"
	"sutext.github.io/cast/channel"
	"sutext.github.io/cast/internal/keepalive"
	"sutext.github.io/cast/internal/metrics"
	"sutext.github.io/cast/internal/observer"
	"sutext.github.io/cast/internal/queue"
	"sutext.github.io/cast/logger"
	"sutext.github.io/cast/network"
	"sutext.github.io/cast/transport"
	"sutext.github.io/cast/xerr"
	"sutext.github.io/cast/xlog"
)

type socket struct {
	id         int
	params     channel.OpenParams
	opts       *Options
	logger     *xlog.Logger
	events     *logger.Logger
	metrics    *metrics.Recorder
	net        network.Context
	seq        *queue.Queue
	observers  observer.List[Observer]
	transport  atomic.Pointer[transport.Transport]
	readyState atomic.Uint32
	errorState atomic.Uint32
	audioOnly  atomic.Bool
	destroyed  atomic.Bool

	// Owned by seq.
	gen              uint64
	canceled         bool
	connectState     channel.ConnectionState
	connectCallbacks []OnOpenCallback
	connectStart     time.Time
	connectTimer     *time.Timer
	cancel           context.CancelFunc
	ctx              context.Context
	authCtx          *auth.Context
	tcpConn          net.Conn
	tlsConn          *tls.Conn
	peerCert         *x509.Certificate
	whitelisted      *x509.Certificate
	challengeReply   *castmsg.CastMessage
	authError        channel.ChannelError
	keepAlive        *keepalive.KeepAlive
}

// New returns a socket for params in ReadyStateNone. Nothing touches the
// network before Connect.
func New(params channel.OpenParams, opts ...Option) Socket {
	options := newOptions(opts...)
	s := &socket{
		id:      options.ChannelID,
		params:  params,
		opts:    options,
		events:  options.Events,
		metrics: options.Metrics,
		net:     options.Network,
		seq:     queue.New(0),
		logger:  options.Logger.With(xlog.Channel(options.ChannelID), xlog.Endpoint(params.Endpoint)),
	}
	if s.net == nil {
		s.net, _ = network.NewContext(network.WithLogger(s.logger))
	}
	s.events.LogSocketEventWithDetails(s.id, logger.EventSocketCreated, params.Endpoint.String())
	return s
}

func (s *socket) ID() int {
	return s.id
}
func (s *socket) Endpoint() netip.AddrPort {
	return s.params.Endpoint
}
func (s *socket) OpenParams() channel.OpenParams {
	return s.params
}
func (s *socket) ReadyState() channel.ReadyState {
	return channel.ReadyState(s.readyState.Load())
}
func (s *socket) ErrorState() channel.ChannelError {
	return channel.ChannelError(s.errorState.Load())
}
func (s *socket) KeepAlive() bool {
	return s.params.KeepAlive()
}
func (s *socket) AudioOnly() bool {
	return s.audioOnly.Load()
}
func (s *socket) Transport() *transport.Transport {
	return s.transport.Load()
}
func (s *socket) AddObserver(o Observer) {
	s.observers.Add(o)
}
func (s *socket) RemoveObserver(o Observer) {
	s.observers.Remove(o)
}

// run queues task on the socket's sequence and reports whether it was
// accepted.
func (s *socket) run(task func()) bool {
	return s.seq.Push(task) == nil
}

// post queues a continuation of connect attempt gen. If the attempt has
// been finished or canceled by the time it runs, cleanup runs instead.
func (s *socket) post(gen uint64, task func(), cleanup func()) {
	ok := s.run(func() {
		if s.isStale(gen) {
			if cleanup != nil {
				cleanup()
			}
			return
		}
		task()
	})
	if !ok && cleanup != nil {
		cleanup()
	}
}

func (s *socket) isStale(gen uint64) bool {
	return s.canceled || gen != s.gen
}

func (s *socket) Connect(cb OnOpenCallback) {
	if cb == nil {
		cb = func(Socket) {}
	}
	if !s.run(func() { s.connect(cb) }) {
		s.notOpen()
		cb(s)
	}
}

func (s *socket) connect(cb OnOpenCallback) {
	switch s.ReadyState() {
	case channel.ReadyStateNone:
	case channel.ReadyStateConnecting:
		s.connectCallbacks = append(s.connectCallbacks, cb)
		return
	default:
		s.notOpen()
		cb(s)
		return
	}
	s.connectCallbacks = append(s.connectCallbacks, cb)
	s.connectStart = time.Now()
	s.setReadyState(channel.ReadyStateConnecting)
	if err := s.params.Validate(); err != nil {
		s.logger.Error("invalid open params", xlog.Err(err))
		s.events.LogSocketEventWithRV(s.id, logger.EventConnectFailed, err)
		s.finishConnect(channel.ChannelErrorConnectError)
		return
	}
	if s.net == nil {
		s.events.LogSocketEventWithRV(s.id, logger.EventConnectFailed, xerr.NetworkContextMissing)
		s.finishConnect(channel.ChannelErrorConnectError)
		return
	}
	s.gen++
	gen := s.gen
	s.authCtx = auth.NewContext()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.connectTimer = time.AfterFunc(s.params.ConnectTimeout, func() {
		s.post(gen, s.onConnectTimeout, nil)
	})
	s.setConnectState(channel.ConnectionStateTCPConnect)
	s.post(gen, func() { s.doConnectLoop(gen, nil) }, nil)
}

// notOpen marks a socket that will never open, so a late Connect still
// observes a failure.
func (s *socket) notOpen() {
	if s.ReadyState() != channel.ReadyStateOpen && s.ErrorState() == channel.ChannelErrorNone {
		s.errorState.Store(uint32(channel.ChannelErrorChannelNotOpen))
	}
}

// doConnectLoop advances the connect state machine until a step goes
// asynchronous or the attempt ends. Async steps post their completion back
// here with the result.
func (s *socket) doConnectLoop(gen uint64, result error) {
	if s.isStale(gen) {
		return
	}
	for {
		var (
			pending bool
			failure channel.ChannelError
		)
		switch s.connectState {
		case channel.ConnectionStateTCPConnect:
			pending = s.doTCPConnect(gen)
		case channel.ConnectionStateTCPConnectComplete:
			failure = s.doTCPConnectComplete(result)
		case channel.ConnectionStateSSLConnect:
			pending = s.doSSLConnect(gen)
		case channel.ConnectionStateSSLConnectComplete:
			failure = s.doSSLConnectComplete(gen, result)
		case channel.ConnectionStateAuthChallengeSend:
			pending = s.doAuthChallengeSend(gen)
		case channel.ConnectionStateAuthChallengeSendComplete:
			pending, failure = s.doAuthChallengeSendComplete(result)
		case channel.ConnectionStateAuthChallengeReplyComplete:
			pending, failure = s.doAuthChallengeReplyComplete()
		case channel.ConnectionStateFinished:
			s.finishConnect(channel.ChannelErrorNone)
			return
		default:
			s.logger.Error("unexpected connection state", xlog.State("state", s.connectState))
			s.finishConnect(channel.ChannelErrorUnknown)
			return
		}
		if failure != channel.ChannelErrorNone {
			s.finishConnect(failure)
			return
		}
		if pending {
			return
		}
		result = nil
	}
}

func (s *socket) doTCPConnect(gen uint64) bool {
	s.setConnectState(channel.ConnectionStateTCPConnectComplete)
	ctx, endpoint := s.ctx, s.params.Endpoint
	go func() {
		conn, err := s.net.CreateTCPConnectedSocket(ctx, endpoint)
		cleanup := func() {
			if conn != nil {
				conn.Close()
			}
		}
		s.post(gen, func() {
			s.tcpConn = conn
			s.doConnectLoop(gen, err)
		}, cleanup)
	}()
	return true
}

func (s *socket) doTCPConnectComplete(err error) channel.ChannelError {
	s.events.LogSocketEventWithRV(s.id, logger.EventTCPSocketConnect, err)
	if err != nil {
		s.logger.Debug("tcp connect failed", xlog.Err(err))
		return channel.ChannelErrorConnectError
	}
	s.setConnectState(channel.ConnectionStateSSLConnect)
	return channel.ChannelErrorNone
}

func (s *socket) doSSLConnect(gen uint64) bool {
	s.setConnectState(channel.ConnectionStateSSLConnectComplete)
	ctx, conn := s.ctx, s.tcpConn
	s.tcpConn = nil
	config := tlsConfig(s.opts.TLSRoots, s.whitelisted)
	go func() {
		tc, err := s.net.UpgradeToTLS(ctx, conn, config)
		cleanup := func() {
			if tc != nil {
				tc.Close()
			}
		}
		s.post(gen, func() {
			s.tlsConn = tc
			s.doConnectLoop(gen, err)
		}, cleanup)
	}()
	return true
}

func (s *socket) doSSLConnectComplete(gen uint64, err error) channel.ChannelError {
	s.events.LogSocketEventWithRV(s.id, logger.EventSSLSocketConnect, err)
	if err != nil {
		if cert := untrustedCertificate(err); cert != nil && s.whitelisted == nil {
			s.whitelisted = cert
			s.events.LogSocketEventWithDetails(s.id, logger.EventSSLCertWhitelisted, cert.Subject.String())
			s.logger.Debug("retrying with whitelisted certificate", xlog.Str("subject", cert.Subject.String()))
			s.setConnectState(channel.ConnectionStateTCPConnect)
			return channel.ChannelErrorNone
		}
		s.logger.Debug("tls connect failed", xlog.Err(err))
		return channel.ChannelErrorConnectError
	}
	peers := s.tlsConn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		s.events.LogSocketChallengeReplyEvent(s.id, auth.Result{Type: auth.ErrorPeerCertEmpty})
		return channel.ChannelErrorAuthenticationError
	}
	s.peerCert = peers[0]
	s.events.LogSocketEventWithDetails(s.id, logger.EventSSLInfoObtained, tls.CipherSuiteName(s.tlsConn.ConnectionState().CipherSuite))
	if r := auth.VerifyTLSCertificate(s.peerCert, time.Now()); !r.Success() {
		s.events.LogSocketEventWithDetails(s.id, logger.EventPeerCertInvalid, r.Type.String())
		s.events.LogSocketChallengeReplyEvent(s.id, r)
		return channel.ChannelErrorAuthenticationError
	}
	t := transport.New(s.tlsConn, s.id, s.params.Endpoint, s.events, transport.WithMetrics(s.metrics))
	t.SetReadDelegate(&authDelegate{s: s, gen: gen})
	s.transport.Store(t)
	t.Start()
	s.setConnectState(channel.ConnectionStateAuthChallengeSend)
	return channel.ChannelErrorNone
}

func (s *socket) doAuthChallengeSend(gen uint64) bool {
	s.setConnectState(channel.ConnectionStateAuthChallengeSendComplete)
	challenge, err := auth.CreateAuthChallengeMessage(s.authCtx)
	if err != nil {
		s.post(gen, func() { s.doConnectLoop(gen, err) }, nil)
		return true
	}
	s.transport.Load().SendMessage(challenge, func(err error) {
		s.post(gen, func() { s.doConnectLoop(gen, err) }, nil)
	})
	return true
}

func (s *socket) doAuthChallengeSendComplete(err error) (bool, channel.ChannelError) {
	if err != nil {
		s.events.LogSocketEventWithRV(s.id, logger.EventSendMessageFailed, err)
		return false, channel.ChannelErrorCastSocketError
	}
	s.setConnectState(channel.ConnectionStateAuthChallengeReplyComplete)
	return s.challengeReply == nil && s.authError == channel.ChannelErrorNone, channel.ChannelErrorNone
}

func (s *socket) doAuthChallengeReplyComplete() (bool, channel.ChannelError) {
	if s.authError != channel.ChannelErrorNone {
		return false, s.authError
	}
	if s.challengeReply == nil {
		return true, channel.ChannelErrorNone
	}
	r := auth.AuthenticateChallengeReply(s.challengeReply, s.peerCert, s.authCtx, auth.VerifyOptions{
		Trust:        s.opts.Trust,
		EnforceNonce: s.opts.EnforceNonce,
	})
	s.events.LogSocketChallengeReplyEvent(s.id, r)
	if !r.Success() {
		s.logger.Warn("device authentication failed", xlog.Err(r.Err()))
		return false, channel.ChannelErrorAuthenticationError
	}
	s.audioOnly.Store(r.Policy.AudioOnly())
	if !s.verifyChannelPolicy(r) {
		return false, channel.ChannelErrorAuthenticationError
	}
	s.setConnectState(channel.ConnectionStateFinished)
	return false, channel.ChannelErrorNone
}

// verifyChannelPolicy rejects devices declaring video output whose
// certificate only allows audio.
func (s *socket) verifyChannelPolicy(r auth.Result) bool {
	if s.params.DeviceCapabilities.Has(channel.CapabilityVideoOut) && r.Policy.AudioOnly() {
		s.events.LogSocketEventWithDetails(s.id, logger.EventChannelPolicyMismatch, s.params.DeviceCapabilities.String())
		s.logger.Warn("audio only device declared video output", xlog.State("capabilities", s.params.DeviceCapabilities))
		return false
	}
	return true
}

func (s *socket) onConnectTimeout() {
	s.events.LogSocketEvent(s.id, logger.EventConnectTimedOut)
	s.logger.Warn("connect timed out", xlog.State("state", s.connectState), xlog.Duration("timeout", s.params.ConnectTimeout))
	s.setConnectState(channel.ConnectionStateTimeout)
	s.finishConnect(channel.ChannelErrorConnectTimeout)
	s.canceled = true
}

// finishConnect ends the connect attempt, opening the channel when err is
// ChannelErrorNone, and runs the queued open callbacks.
func (s *socket) finishConnect(err channel.ChannelError) {
	s.gen++
	s.stopConnect()
	s.metrics.Connected(time.Since(s.connectStart), err.String())
	if err == channel.ChannelErrorNone {
		t := s.transport.Load()
		t.SetReadDelegate(&messageDelegate{s: s})
		s.setReadyState(channel.ReadyStateOpen)
		s.startKeepAlive()
		s.logger.Info("channel open", xlog.Bool("audioOnly", s.AudioOnly()))
	} else {
		if s.connectState != channel.ConnectionStateTimeout {
			s.setConnectState(channel.ConnectionStateError)
		}
		s.events.LogSocketEventWithDetails(s.id, logger.EventConnectFailed, err.String())
		s.SetErrorState(err)
		s.closeConnections()
		s.setReadyState(channel.ReadyStateClosed)
	}
	s.runConnectCallbacks()
}

func (s *socket) stopConnect() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *socket) runConnectCallbacks() {
	callbacks := s.connectCallbacks
	s.connectCallbacks = nil
	for _, cb := range callbacks {
		cb(s)
	}
}

func (s *socket) closeConnections() {
	if t := s.transport.Load(); t != nil {
		t.Close()
	}
	if s.tlsConn != nil {
		s.tlsConn.Close()
		s.tlsConn = nil
	}
	if s.tcpConn != nil {
		s.tcpConn.Close()
		s.tcpConn = nil
	}
}

// SetErrorState records err as the channel's current fault and tells the
// observers. It never closes the socket.
func (s *socket) SetErrorState(err channel.ChannelError) {
	s.errorState.Store(uint32(err))
	s.events.LogSocketErrorState(s.id, err)
	if err == channel.ChannelErrorNone {
		return
	}
	s.metrics.ChannelError(err.String())
	s.observers.Notify(func(o Observer) {
		o.OnError(s, err)
	})
}

func (s *socket) setReadyState(state channel.ReadyState) {
	if channel.ReadyState(s.readyState.Swap(uint32(state))) == state {
		return
	}
	s.events.LogSocketReadyState(s.id, state)
	s.observers.Notify(func(o Observer) {
		if r, ok := o.(ReadyStateObserver); ok {
			r.OnReadyStateChanged(s)
		}
	})
}

func (s *socket) setConnectState(state channel.ConnectionState) {
	if s.connectState == state {
		return
	}
	s.connectState = state
	s.events.LogSocketConnectState(s.id, state)
}

func (s *socket) Close(cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}
	if !s.run(func() {
		s.closeInternal()
		cb(nil)
	}) {
		cb(nil)
	}
}

func (s *socket) closeInternal() {
	state := s.ReadyState()
	if state == channel.ReadyStateClosed {
		return
	}
	if state == channel.ReadyStateConnecting {
		s.gen++
		s.canceled = true
		s.stopConnect()
		if s.ErrorState() == channel.ChannelErrorNone {
			s.errorState.Store(uint32(channel.ChannelErrorUnknown))
			s.events.LogSocketErrorState(s.id, channel.ChannelErrorUnknown)
		}
	}
	s.setReadyState(channel.ReadyStateClosing)
	s.stopKeepAlive()
	s.closeConnections()
	s.setReadyState(channel.ReadyStateClosed)
	s.events.LogSocketEvent(s.id, logger.EventSocketClosed)
	s.runConnectCallbacks()
}

func (s *socket) Destroy() <-chan struct{} {
	if s.destroyed.CompareAndSwap(false, true) {
		s.run(func() {
			s.closeInternal()
			s.observers.Clear()
		})
		s.seq.Close()
	}
	return s.seq.Done()
}

func (s *socket) SendMessage(m *castmsg.CastMessage, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}
	if !s.run(func() {
		if s.ReadyState() != channel.ReadyStateOpen {
			cb(xerr.SocketNotOpen)
			return
		}
		s.transport.Load().SendMessage(m, cb)
	}) {
		cb(xerr.SocketDestroyed)
	}
}

func (s *socket) startKeepAlive() {
	if !s.params.KeepAlive() {
		return
	}
	k := keepalive.New(s.params.PingInterval, s.params.LivenessTimeout)
	k.PingFunc(func() { s.run(s.sendPing) })
	k.TimeoutFunc(func() { s.run(s.onPingTimeout) })
	s.keepAlive = k
	k.Start()
}

func (s *socket) stopKeepAlive() {
	if s.keepAlive != nil {
		s.keepAlive.Stop()
	}
}

func (s *socket) sendPing() {
	if s.ReadyState() != channel.ReadyStateOpen {
		return
	}
	s.transport.Load().SendMessage(castmsg.NewPing(), func(err error) {
		if err != nil {
			s.logger.Debug("ping failed", xlog.Err(err))
		}
	})
}

func (s *socket) onPingTimeout() {
	if s.ReadyState() != channel.ReadyStateOpen {
		return
	}
	s.events.LogSocketEvent(s.id, logger.EventPingTimeout)
	s.logger.Warn("ping timeout", xlog.Time("lastPacket", s.keepAlive.LastPacketTime()))
	s.SetErrorState(channel.ChannelErrorPingTimeout)
}

// handleMessage runs on seq for every message read after open.
func (s *socket) handleMessage(m *castmsg.CastMessage) {
	if s.ReadyState() != channel.ReadyStateOpen {
		return
	}
	if s.keepAlive != nil {
		s.keepAlive.UpdateTime()
	}
	if castmsg.IsHeartbeat(m) {
		if castmsg.IsPing(m) {
			s.transport.Load().SendMessage(castmsg.NewPong(), nil)
		}
		return
	}
	s.observers.Notify(func(o Observer) {
		o.OnMessage(s, m)
	})
}

func (s *socket) handleTransportError(err channel.ChannelError) {
	if s.ReadyState() != channel.ReadyStateOpen {
		return
	}
	s.stopKeepAlive()
	s.logger.Warn("transport error", xlog.State("error", err))
	s.SetErrorState(err)
}
