// Package receiver runs a fake Cast receiver: a TLS listener that answers
// the device auth challenge with generated credentials, replies to
// heartbeats and echoes application messages. It backs the end-to-end tests
// and the castctl serve mode.
package receiver

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"sutext.github.io/cast/castmsg"
	"sutext.github.io/cast/xlog"
)

type Receiver struct {
	creds    *Credentials
	opts     *Options
	logger   *xlog.Logger
	listener net.Listener
	tlsCert  tls.Certificate
	accepted atomic.Int32
	mu       sync.Mutex
	conns    map[*conn]struct{}
	closed   atomic.Bool
	wg       sync.WaitGroup
}

func New(creds *Credentials, opts ...Option) (*Receiver, error) {
	options := newOptions(opts...)
	cert, err := creds.TLSCertificate()
	if err != nil {
		return nil, err
	}
	return &Receiver{
		creds:    creds,
		opts:     options,
		logger:   options.Logger,
		listener: options.Listener,
		tlsCert:  cert,
		conns:    make(map[*conn]struct{}),
	}, nil
}

// Listen binds address unless a listener was supplied and serves in the
// background.
func (r *Receiver) Listen(address string) error {
	if r.listener == nil {
		l, err := net.Listen("tcp", address)
		if err != nil {
			return err
		}
		r.listener = l
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.serve()
	}()
	return nil
}

func (r *Receiver) Addr() netip.AddrPort {
	if r.listener == nil {
		return netip.AddrPort{}
	}
	return r.listener.Addr().(*net.TCPAddr).AddrPort()
}

// Certificate returns the TLS certificate served to new connections.
func (r *Receiver) Certificate() *x509.Certificate {
	return r.tlsCert.Leaf
}

// Accepted returns the number of TCP connections accepted so far.
func (r *Receiver) Accepted() int {
	return int(r.accepted.Load())
}

// Broadcast sends m to every authenticated connection.
func (r *Receiver) Broadcast(m *castmsg.CastMessage) {
	r.mu.Lock()
	conns := make([]*conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()
	for _, c := range conns {
		if c.authed.Load() {
			if err := c.write(m); err != nil {
				r.logger.Warn("broadcast failed", xlog.Err(err))
			}
		}
	}
}

// DropConnections closes every open connection without stopping the listener.
func (r *Receiver) DropConnections() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.conns {
		c.raw.Close()
	}
}

func (r *Receiver) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if r.listener != nil {
		err = r.listener.Close()
	}
	r.DropConnections()
	r.wg.Wait()
	return err
}

func (r *Receiver) serve() {
	for {
		raw, err := r.listener.Accept()
		if err != nil {
			if !r.closed.Load() {
				r.logger.Error("accept failed", xlog.Err(err))
			}
			return
		}
		r.accepted.Add(1)
		cert := r.tlsCert
		if r.opts.RotateTLSCert {
			if cert, err = r.creds.TLSCertificate(); err != nil {
				r.logger.Error("issue tls cert failed", xlog.Err(err))
				raw.Close()
				continue
			}
		}
		c := &conn{raw: tls.Server(raw, &tls.Config{Certificates: []tls.Certificate{cert}}), cert: cert}
		r.mu.Lock()
		r.conns[c] = struct{}{}
		r.mu.Unlock()
		if r.closed.Load() {
			c.raw.Close()
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handleConn(c)
			r.mu.Lock()
			delete(r.conns, c)
			r.mu.Unlock()
		}()
	}
}

type conn struct {
	raw    *tls.Conn
	cert   tls.Certificate
	wmu    sync.Mutex
	authed atomic.Bool
}

func (c *conn) write(m *castmsg.CastMessage) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return castmsg.WriteTo(c.raw, m)
}

func (r *Receiver) handleConn(c *conn) {
	defer c.raw.Close()
	timer := time.AfterFunc(time.Second*10, func() {
		r.logger.Warn("wait auth challenge timeout")
		c.raw.Close()
	})
	defer timer.Stop()
	for {
		m, err := castmsg.ReadFrom(c.raw)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				r.logger.Debug("read failed", xlog.Err(err))
			}
			return
		}
		switch {
		case m.Namespace == castmsg.AuthNamespace:
			timer.Stop()
			if err := r.handleChallenge(c, m); err != nil {
				r.logger.Error("auth challenge failed", xlog.Err(err))
				return
			}
		case castmsg.IsPing(m):
			if r.opts.Heartbeat {
				pong := castmsg.NewPong()
				pong.SourceID, pong.DestinationID = m.DestinationID, m.SourceID
				c.write(pong)
			}
		case castmsg.IsHeartbeat(m):
		default:
			if r.opts.OnMessage != nil {
				r.opts.OnMessage(m.Namespace, m.PayloadUTF8)
			}
			if r.opts.Echo {
				reply := *m
				reply.SourceID, reply.DestinationID = m.DestinationID, m.SourceID
				c.write(&reply)
			}
		}
	}
}

func (r *Receiver) handleChallenge(c *conn, m *castmsg.CastMessage) error {
	if r.opts.AuthMode == AuthSilent {
		return nil
	}
	challenge, err := castmsg.UnmarshalAuth(m.PayloadBinary)
	if err != nil {
		return err
	}
	if challenge.Challenge == nil {
		return errors.New("auth message without challenge")
	}
	reply := &castmsg.DeviceAuthMessage{}
	if r.opts.AuthMode == AuthErrorReply {
		reply.Error = &castmsg.AuthError{ErrorType: castmsg.AuthErrorInternal}
	} else {
		resp, err := r.sign(challenge.Challenge, c.cert.Leaf.Raw)
		if err != nil {
			return err
		}
		reply.Response = resp
	}
	payload, err := castmsg.MarshalAuth(reply)
	if err != nil {
		return err
	}
	out := castmsg.NewBinaryMessage(castmsg.AuthNamespace, castmsg.PlatformReceiverID, castmsg.PlatformSenderID, payload)
	if err := c.write(out); err != nil {
		return err
	}
	c.authed.Store(true)
	return nil
}

func (r *Receiver) sign(challenge *castmsg.AuthChallenge, tlsDER []byte) (*castmsg.AuthResponse, error) {
	nonce := challenge.SenderNonce
	if r.opts.AuthMode == AuthWrongNonce {
		nonce = make([]byte, len(challenge.SenderNonce))
		rand.Read(nonce)
	}
	resp, err := r.creds.SignChallenge(nonce, tlsDER, challenge.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	if r.opts.AuthMode == AuthBadSignature {
		resp.Signature[len(resp.Signature)-1] ^= 0xff
	}
	return resp, nil
}
