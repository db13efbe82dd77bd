package socket_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/net/nettest"
	"sutext.github.io/cast/auth"
	"sutext.github.io/cast/castmsg"
	"sutext.github.io/cast/channel"
	"sutext.github.io/cast/internal/receiver"
	"sutext.github.io/cast/logger"
	"sutext.github.io/cast/socket"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testNamespace = "urn:x-cast:com.example.test"

func newCredentials(t *testing.T, opts receiver.CredentialOptions) *receiver.Credentials {
	t.Helper()
	creds, err := receiver.NewCredentials(opts)
	if err != nil {
		t.Fatal(err)
	}
	return creds
}

func startReceiver(t *testing.T, creds *receiver.Credentials, opts ...receiver.Option) *receiver.Receiver {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp4")
	if err != nil {
		t.Fatal(err)
	}
	r, err := receiver.New(creds, append(opts, receiver.WithListener(ln))...)
	if err != nil {
		ln.Close()
		t.Fatal(err)
	}
	if err := r.Listen(""); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func newSocket(t *testing.T, params channel.OpenParams, opts ...socket.Option) (socket.Socket, *logger.Logger) {
	t.Helper()
	events := logger.New(256)
	s := socket.New(params, append([]socket.Option{socket.WithEventLog(events)}, opts...)...)
	t.Cleanup(func() {
		select {
		case <-s.Destroy():
		case <-time.After(5 * time.Second):
			t.Error("destroy did not finish")
		}
	})
	return s, events
}

// connect runs Connect and waits for its callback.
func connect(t *testing.T, s socket.Socket) socket.Socket {
	t.Helper()
	done := make(chan socket.Socket, 1)
	s.Connect(func(got socket.Socket) { done <- got })
	select {
	case got := <-done:
		return got
	case <-time.After(10 * time.Second):
		t.Fatal("connect callback never fired")
		return nil
	}
}

func assertOpenIffNoError(t *testing.T, s socket.Socket) {
	t.Helper()
	open := s.ReadyState() == channel.ReadyStateOpen
	clean := s.ErrorState() == channel.ChannelErrorNone
	if open != clean {
		t.Errorf("ready state %v inconsistent with error state %v", s.ReadyState(), s.ErrorState())
	}
}

type event struct {
	name string
	err  channel.ChannelError
	msg  *castmsg.CastMessage
}

type recordingObserver struct {
	name   string
	events chan event
	log    *[]string
	mu     *sync.Mutex
	onMsg  func()
}

func newObserver(name string) *recordingObserver {
	return &recordingObserver{name: name, events: make(chan event, 16)}
}

func (o *recordingObserver) OnError(_ socket.Socket, err channel.ChannelError) {
	o.events <- event{name: o.name, err: err}
}

func (o *recordingObserver) OnMessage(_ socket.Socket, m *castmsg.CastMessage) {
	if o.log != nil {
		o.mu.Lock()
		*o.log = append(*o.log, o.name)
		o.mu.Unlock()
	}
	if o.onMsg != nil {
		o.onMsg()
	}
	o.events <- event{name: o.name, msg: m}
}

func (o *recordingObserver) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-o.events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatalf("observer %s heard nothing", o.name)
		return event{}
	}
}

func hasEvent(events []logger.Event, kind logger.EventType) bool {
	for _, e := range events {
		if e.Type == kind {
			return true
		}
	}
	return false
}

func TestConnectSuccess(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	r := startReceiver(t, creds)
	s, events := newSocket(t, channel.NewOpenParams(r.Addr(), 5*time.Second), socket.WithTrustStore(creds.TrustStore()))
	if s.ReadyState() != channel.ReadyStateNone {
		t.Fatalf("expected ReadyStateNone before connect, got %v", s.ReadyState())
	}
	got := connect(t, s)
	if got != s {
		t.Error("callback should receive the same socket")
	}
	if s.ReadyState() != channel.ReadyStateOpen || s.ErrorState() != channel.ChannelErrorNone {
		t.Fatalf("expected open channel, got %v / %v", s.ReadyState(), s.ErrorState())
	}
	if s.AudioOnly() {
		t.Error("device should not be audio only")
	}
	if s.Transport() == nil {
		t.Error("transport should be available once open")
	}
	if n := r.Accepted(); n != 2 {
		t.Errorf("self-signed certificate should cost exactly one retry, accepted %d", n)
	}
	if !hasEvent(events.Events(s.ID()), logger.EventSSLCertWhitelisted) {
		t.Error("expected whitelisted certificate event")
	}

	o := newObserver("echo")
	s.AddObserver(o)
	sent := make(chan error, 1)
	s.SendMessage(castmsg.NewStringMessage(testNamespace, "sender-0", "receiver-0", "hello"), func(err error) { sent <- err })
	if err := <-sent; err != nil {
		t.Fatal(err)
	}
	e := o.next(t)
	if e.msg == nil || e.msg.PayloadUTF8 != "hello" || e.msg.SourceID != "receiver-0" {
		t.Errorf("unexpected echo %+v", e)
	}

	again := connect(t, s)
	if again != s || s.ReadyState() != channel.ReadyStateOpen {
		t.Error("connect on an open socket should report it open right away")
	}
}

func TestTrustedTLSCertificateSkipsRetry(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	r := startReceiver(t, creds)
	roots := x509.NewCertPool()
	roots.AddCert(r.Certificate())
	s, events := newSocket(t, channel.NewOpenParams(r.Addr(), 5*time.Second),
		socket.WithTrustStore(creds.TrustStore()),
		socket.WithTLSRoots(roots),
	)
	connect(t, s)
	if s.ReadyState() != channel.ReadyStateOpen {
		t.Fatalf("expected open, got %v / %v", s.ReadyState(), s.ErrorState())
	}
	if n := r.Accepted(); n != 1 {
		t.Errorf("expected a single connection, got %d", n)
	}
	if hasEvent(events.Events(s.ID()), logger.EventSSLCertWhitelisted) {
		t.Error("no certificate should be whitelisted")
	}
}

func TestConnectRefused(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp4")
	if err != nil {
		t.Fatal(err)
	}
	addr := netip.MustParseAddrPort(ln.Addr().String())
	ln.Close()

	s, events := newSocket(t, channel.NewOpenParams(addr, 5*time.Second))
	var calls atomic.Int32
	done := make(chan struct{})
	s.Connect(func(socket.Socket) {
		if calls.Add(1) == 1 {
			close(done)
		}
	})
	<-done
	if s.ReadyState() == channel.ReadyStateOpen || s.ErrorState() != channel.ChannelErrorConnectError {
		t.Errorf("expected connect error, got %v / %v", s.ReadyState(), s.ErrorState())
	}
	assertOpenIffNoError(t, s)
	last := events.LastError(s.ID())
	if last.EventType != logger.EventTCPSocketConnect || last.NetError == nil {
		t.Errorf("unexpected last error %+v", last)
	}
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("callback fired %d times", n)
	}
}

func TestWhitelistRetriedOnlyOnce(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	r := startReceiver(t, creds, receiver.WithRotateTLSCert(true))
	s, events := newSocket(t, channel.NewOpenParams(r.Addr(), 5*time.Second), socket.WithTrustStore(creds.TrustStore()))
	connect(t, s)
	if s.ErrorState() != channel.ChannelErrorConnectError {
		t.Errorf("expected connect error, got %v", s.ErrorState())
	}
	assertOpenIffNoError(t, s)
	time.Sleep(50 * time.Millisecond)
	if n := r.Accepted(); n != 2 {
		t.Errorf("expected exactly one retry, accepted %d", n)
	}
	if last := events.LastError(s.ID()); last.EventType != logger.EventSSLSocketConnect {
		t.Errorf("unexpected last error %+v", last)
	}
}

func TestTLSCertificateValidity(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		notBefore time.Time
		notAfter  time.Time
		trusted   bool
		want      auth.ErrorType
	}{
		{"expired", now.Add(-48 * time.Hour), now.Add(-time.Hour), false, auth.ErrorTLSCertExpired},
		{"not yet valid", now.Add(time.Hour), now.Add(48 * time.Hour), false, auth.ErrorTLSCertValidStartDateInFuture},
		{"expired trusted", now.Add(-48 * time.Hour), now.Add(-time.Hour), true, auth.ErrorTLSCertExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := newCredentials(t, receiver.CredentialOptions{TLSNotBefore: tt.notBefore, TLSNotAfter: tt.notAfter})
			r := startReceiver(t, creds)
			roots := x509.NewCertPool()
			if tt.trusted {
				roots.AddCert(r.Certificate())
			}
			s, events := newSocket(t, channel.NewOpenParams(r.Addr(), 5*time.Second),
				socket.WithTrustStore(creds.TrustStore()),
				socket.WithTLSRoots(roots),
			)
			connect(t, s)
			if s.ErrorState() != channel.ChannelErrorAuthenticationError {
				t.Fatalf("expected authentication error, got %v / %v", s.ReadyState(), s.ErrorState())
			}
			assertOpenIffNoError(t, s)
			if got := events.LastError(s.ID()).ChallengeReplyError; got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if whitelisted := hasEvent(events.Events(s.ID()), logger.EventSSLCertWhitelisted); whitelisted == tt.trusted {
				t.Errorf("whitelisted=%v with trusted root=%v", whitelisted, tt.trusted)
			}
			if !hasEvent(events.Events(s.ID()), logger.EventPeerCertInvalid) {
				t.Error("expected a peer certificate invalid event")
			}
		})
	}
}

func TestAuthenticationFailures(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	tests := []struct {
		name  string
		mode  receiver.AuthMode
		trust *auth.TrustStore
		want  auth.ErrorType
	}{
		{"bad signature", receiver.AuthBadSignature, creds.TrustStore(), auth.ErrorSignedBlobsMismatch},
		{"wrong nonce", receiver.AuthWrongNonce, creds.TrustStore(), auth.ErrorSenderNonceMismatch},
		{"error reply", receiver.AuthErrorReply, creds.TrustStore(), auth.ErrorMessageError},
		{"untrusted root", receiver.AuthOK, newCredentials(t, receiver.CredentialOptions{}).TrustStore(), auth.ErrorCertNotSignedByTrustedCA},
		{"no trust store", receiver.AuthOK, nil, auth.ErrorCertNotSignedByTrustedCA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := startReceiver(t, creds, receiver.WithAuthMode(tt.mode))
			s, events := newSocket(t, channel.NewOpenParams(r.Addr(), 5*time.Second), socket.WithTrustStore(tt.trust))
			connect(t, s)
			if s.ErrorState() != channel.ChannelErrorAuthenticationError {
				t.Fatalf("expected authentication error, got %v", s.ErrorState())
			}
			if s.ReadyState() != channel.ReadyStateClosed {
				t.Errorf("expected closed, got %v", s.ReadyState())
			}
			if got := events.LastError(s.ID()).ChallengeReplyError; got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestChannelPolicy(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{AudioOnly: true})
	r := startReceiver(t, creds)
	t.Run("video device with audio only cert", func(t *testing.T) {
		params := channel.NewOpenParams(r.Addr(), 5*time.Second)
		params.DeviceCapabilities = channel.CapabilityVideoOut | channel.CapabilityAudioOut
		s, events := newSocket(t, params, socket.WithTrustStore(creds.TrustStore()))
		opened := false
		o := &readyObserver{onChange: func(s socket.Socket) {
			if s.ReadyState() == channel.ReadyStateOpen {
				opened = true
			}
		}}
		s.AddObserver(o)
		connect(t, s)
		if s.ErrorState() != channel.ChannelErrorAuthenticationError || opened {
			t.Errorf("expected policy failure, got %v (opened %v)", s.ErrorState(), opened)
		}
		if !hasEvent(events.Events(s.ID()), logger.EventChannelPolicyMismatch) {
			t.Error("expected policy mismatch event")
		}
	})
	t.Run("audio device with audio only cert", func(t *testing.T) {
		params := channel.NewOpenParams(r.Addr(), 5*time.Second)
		params.DeviceCapabilities = channel.CapabilityAudioOut
		s, _ := newSocket(t, params, socket.WithTrustStore(creds.TrustStore()))
		connect(t, s)
		if s.ReadyState() != channel.ReadyStateOpen {
			t.Fatalf("expected open, got %v / %v", s.ReadyState(), s.ErrorState())
		}
		if !s.AudioOnly() {
			t.Error("expected audio only channel")
		}
	})
}

type readyObserver struct {
	onChange func(s socket.Socket)
}

func (o *readyObserver) OnError(socket.Socket, channel.ChannelError)   {}
func (o *readyObserver) OnMessage(socket.Socket, *castmsg.CastMessage) {}
func (o *readyObserver) OnReadyStateChanged(s socket.Socket)           { o.onChange(s) }

func TestReadyStateObserver(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	r := startReceiver(t, creds)
	s, _ := newSocket(t, channel.NewOpenParams(r.Addr(), 5*time.Second), socket.WithTrustStore(creds.TrustStore()))
	var states []channel.ReadyState
	s.AddObserver(&readyObserver{onChange: func(s socket.Socket) {
		states = append(states, s.ReadyState())
	}})
	connect(t, s)
	closed := make(chan struct{})
	s.Close(func(error) { close(closed) })
	<-closed
	want := []channel.ReadyState{
		channel.ReadyStateConnecting,
		channel.ReadyStateOpen,
		channel.ReadyStateClosing,
		channel.ReadyStateClosed,
	}
	if len(states) != len(want) {
		t.Fatalf("expected %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d: expected %v, got %v", i, want[i], states[i])
		}
	}
}

func TestConnectTimeout(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	r := startReceiver(t, creds, receiver.WithAuthMode(receiver.AuthSilent))
	s, events := newSocket(t, channel.NewOpenParams(r.Addr(), 300*time.Millisecond), socket.WithTrustStore(creds.TrustStore()))
	connect(t, s)
	if s.ErrorState() != channel.ChannelErrorConnectTimeout {
		t.Fatalf("expected connect timeout, got %v", s.ErrorState())
	}
	if s.ReadyState() != channel.ReadyStateClosed {
		t.Errorf("expected closed, got %v", s.ReadyState())
	}
	assertOpenIffNoError(t, s)
	if !hasEvent(events.Events(s.ID()), logger.EventConnectTimedOut) {
		t.Error("expected timeout event")
	}
}

// stallingNetwork holds TCP connects until released, ignoring cancellation,
// so its result arrives after the attempt is over.
type stallingNetwork struct {
	release chan struct{}
	conns   chan net.Conn
}

func (n *stallingNetwork) CreateTCPConnectedSocket(ctx context.Context, addr netip.AddrPort) (net.Conn, error) {
	<-n.release
	client, server := net.Pipe()
	n.conns <- server
	return client, nil
}

func (n *stallingNetwork) UpgradeToTLS(ctx context.Context, conn net.Conn, config *tls.Config) (*tls.Conn, error) {
	panic("no TLS upgrade may follow a timed out connect")
}

func TestLateResultAfterTimeout(t *testing.T) {
	nw := &stallingNetwork{release: make(chan struct{}), conns: make(chan net.Conn, 1)}
	params := channel.NewOpenParams(netip.MustParseAddrPort("192.0.2.1:8009"), 100*time.Millisecond)
	s, events := newSocket(t, params, socket.WithNetworkContext(nw))
	connect(t, s)
	if s.ErrorState() != channel.ChannelErrorConnectTimeout {
		t.Fatalf("expected connect timeout, got %v", s.ErrorState())
	}
	before := len(events.Events(s.ID()))
	close(nw.release)
	server := <-nw.conns
	defer server.Close()
	// The stale connection is closed by the socket, unblocking this read.
	server.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := server.Read(make([]byte, 1)); err == nil {
		t.Error("late connection should be closed")
	}
	if after := events.Events(s.ID()); len(after) != before {
		t.Errorf("no step may run after the timeout, got %v", after[before:])
	}
	if s.ReadyState() != channel.ReadyStateClosed {
		t.Errorf("expected closed, got %v", s.ReadyState())
	}
}

func TestDestroyWithPendingConnect(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	r := startReceiver(t, creds, receiver.WithAuthMode(receiver.AuthSilent))
	s := socket.New(channel.NewOpenParams(r.Addr(), 10*time.Second), socket.WithTrustStore(creds.TrustStore()))
	var calls atomic.Int32
	var seen atomic.Uint32
	s.Connect(func(s socket.Socket) {
		calls.Add(1)
		seen.Store(uint32(s.ErrorState()))
	})
	time.Sleep(100 * time.Millisecond)
	select {
	case <-s.Destroy():
	case <-time.After(5 * time.Second):
		t.Fatal("destroy did not finish")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one callback before destroy completes, got %d", n)
	}
	if got := channel.ChannelError(seen.Load()); got != channel.ChannelErrorUnknown {
		t.Errorf("expected Unknown, got %v", got)
	}
	late := make(chan socket.Socket, 1)
	s.Connect(func(s socket.Socket) { late <- s })
	if got := <-late; got.ReadyState() == channel.ReadyStateOpen {
		t.Error("a destroyed socket never opens")
	}
}

func TestCloseIdempotent(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	r := startReceiver(t, creds)
	s, _ := newSocket(t, channel.NewOpenParams(r.Addr(), 5*time.Second), socket.WithTrustStore(creds.TrustStore()))
	connect(t, s)
	var first, second atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)
	s.Close(func(error) { first.Add(1); wg.Done() })
	s.Close(func(error) { second.Add(1); wg.Done() })
	wg.Wait()
	time.Sleep(20 * time.Millisecond)
	if first.Load() != 1 || second.Load() != 1 {
		t.Errorf("each close callback must fire once, got %d and %d", first.Load(), second.Load())
	}
	if s.ReadyState() != channel.ReadyStateClosed {
		t.Errorf("expected closed, got %v", s.ReadyState())
	}
	sent := make(chan error, 1)
	s.SendMessage(castmsg.NewStringMessage(testNamespace, "sender-0", "receiver-0", "late"), func(err error) { sent <- err })
	if err := <-sent; err == nil {
		t.Error("send on a closed socket must fail")
	}
}

func TestCloseWhileConnecting(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	r := startReceiver(t, creds, receiver.WithAuthMode(receiver.AuthSilent))
	s, _ := newSocket(t, channel.NewOpenParams(r.Addr(), 10*time.Second), socket.WithTrustStore(creds.TrustStore()))
	opened := make(chan channel.ChannelError, 2)
	s.Connect(func(s socket.Socket) { opened <- s.ErrorState() })
	s.Connect(func(s socket.Socket) { opened <- s.ErrorState() })
	closed := make(chan struct{})
	s.Close(func(error) { close(closed) })
	for range 2 {
		if got := <-opened; got != channel.ChannelErrorUnknown {
			t.Errorf("expected Unknown, got %v", got)
		}
	}
	<-closed
	if s.ReadyState() != channel.ReadyStateClosed {
		t.Errorf("expected closed, got %v", s.ReadyState())
	}
}

func TestCloseFromOpenCallback(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	r := startReceiver(t, creds)
	s, _ := newSocket(t, channel.NewOpenParams(r.Addr(), 5*time.Second), socket.WithTrustStore(creds.TrustStore()))
	closed := make(chan struct{})
	s.Connect(func(s socket.Socket) {
		s.Close(func(error) { close(closed) })
	})
	select {
	case <-closed:
	case <-time.After(10 * time.Second):
		t.Fatal("close from open callback never completed")
	}
	if s.ReadyState() != channel.ReadyStateClosed {
		t.Errorf("expected closed, got %v", s.ReadyState())
	}
}

func TestObserverOrderAndRemoval(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	r := startReceiver(t, creds)
	s, _ := newSocket(t, channel.NewOpenParams(r.Addr(), 5*time.Second), socket.WithTrustStore(creds.TrustStore()))
	connect(t, s)

	var mu sync.Mutex
	var order []string
	first, second, third := newObserver("first"), newObserver("second"), newObserver("third")
	for _, o := range []*recordingObserver{first, second, third} {
		o.log, o.mu = &order, &mu
		s.AddObserver(o)
	}
	s.AddObserver(first)
	removed := false
	second.onMsg = func() {
		if !removed {
			removed = true
			s.RemoveObserver(third)
		}
	}
	r.Broadcast(castmsg.NewStringMessage(testNamespace, "receiver-0", "sender-0", "one"))
	first.next(t)
	second.next(t)
	r.Broadcast(castmsg.NewStringMessage(testNamespace, "receiver-0", "sender-0", "two"))
	first.next(t)
	second.next(t)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "first", "second"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("delivery %d: expected %s, got %s", i, want[i], order[i])
		}
	}
	if len(third.events) != 0 {
		t.Error("observer removed during dispatch must not hear that pass")
	}
}

func TestHeartbeat(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	t.Run("pong keeps channel alive", func(t *testing.T) {
		r := startReceiver(t, creds)
		params := channel.NewOpenParams(r.Addr(), 5*time.Second)
		params.LivenessTimeout, params.PingInterval = 300*time.Millisecond, 100*time.Millisecond
		s, _ := newSocket(t, params, socket.WithTrustStore(creds.TrustStore()))
		if !s.KeepAlive() {
			t.Fatal("keep-alive should be enabled")
		}
		o := newObserver("watch")
		s.AddObserver(o)
		connect(t, s)
		r.Broadcast(castmsg.NewPing())
		r.Broadcast(castmsg.NewStringMessage(testNamespace, "receiver-0", "sender-0", "after ping"))
		if e := o.next(t); e.msg == nil || e.msg.PayloadUTF8 != "after ping" {
			t.Errorf("heartbeat must not reach observers, got %+v", e)
		}
		time.Sleep(time.Second)
		if s.ErrorState() != channel.ChannelErrorNone {
			t.Errorf("expected healthy channel, got %v", s.ErrorState())
		}
	})
	t.Run("silent peer times out", func(t *testing.T) {
		r := startReceiver(t, creds, receiver.WithHeartbeat(false))
		params := channel.NewOpenParams(r.Addr(), 5*time.Second)
		params.LivenessTimeout, params.PingInterval = 300*time.Millisecond, 100*time.Millisecond
		s, _ := newSocket(t, params, socket.WithTrustStore(creds.TrustStore()))
		connect(t, s)
		o := newObserver("watch")
		s.AddObserver(o)
		if e := o.next(t); e.err != channel.ChannelErrorPingTimeout {
			t.Errorf("expected ping timeout, got %+v", e)
		}
		if s.ReadyState() != channel.ReadyStateOpen {
			t.Errorf("ping timeout must not close the socket, got %v", s.ReadyState())
		}
	})
}

func TestTransportErrorAfterOpen(t *testing.T) {
	creds := newCredentials(t, receiver.CredentialOptions{})
	r := startReceiver(t, creds)
	s, _ := newSocket(t, channel.NewOpenParams(r.Addr(), 5*time.Second), socket.WithTrustStore(creds.TrustStore()))
	connect(t, s)
	o := newObserver("watch")
	s.AddObserver(o)
	r.DropConnections()
	if e := o.next(t); e.err != channel.ChannelErrorTransportError {
		t.Errorf("expected transport error, got %+v", e)
	}
	if s.ReadyState() != channel.ReadyStateOpen || s.ErrorState() != channel.ChannelErrorTransportError {
		t.Errorf("socket should stay open with the error recorded, got %v / %v", s.ReadyState(), s.ErrorState())
	}
}

func TestInvalidParams(t *testing.T) {
	s, _ := newSocket(t, channel.OpenParams{})
	connect(t, s)
	if s.ErrorState() != channel.ChannelErrorConnectError || s.ReadyState() != channel.ReadyStateClosed {
		t.Errorf("expected connect error, got %v / %v", s.ReadyState(), s.ErrorState())
	}
}
