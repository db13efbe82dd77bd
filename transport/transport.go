// Package transport moves framed CastMessages over an established byte
// stream. Reads are delivered to the installed Delegate, writes go through
// a serial queue and complete in order.
package transport

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"sutext.github.io/cast/castmsg"
	"sutext.github.io/cast/channel"
	"sutext.github.io/cast/internal/metrics"
	"sutext.github.io/cast/internal/queue"
	"sutext.github.io/cast/logger"
	"sutext.github.io/cast/xerr"
	"sutext.github.io/cast/xlog"
)

// Delegate receives what the read pump produces. Calls are made from the
// read goroutine, one at a time.
type Delegate interface {
	OnError(err channel.ChannelError)
	OnMessage(m *castmsg.CastMessage)
}

type nopDelegate struct{}

func (nopDelegate) OnError(channel.ChannelError)   {}
func (nopDelegate) OnMessage(*castmsg.CastMessage) {}

type Options struct {
	Metrics    *metrics.Recorder
	QueueLimit int
}
type Option struct {
	f func(*Options)
}

func WithMetrics(r *metrics.Recorder) Option {
	return Option{f: func(o *Options) {
		o.Metrics = r
	}}
}

// WithQueueLimit bounds the number of frames waiting to be written.
func WithQueueLimit(limit int) Option {
	return Option{f: func(o *Options) {
		o.QueueLimit = limit
	}}
}

type Transport struct {
	id         int
	conn       io.ReadWriteCloser
	endpoint   netip.AddrPort
	events     *logger.Logger
	logger     *xlog.Logger
	metrics    *metrics.Recorder
	writes     *queue.Queue
	started    atomic.Bool
	closed     atomic.Bool
	readState  atomic.Uint32
	writeState atomic.Uint32
	mu         sync.Mutex
	delegate   Delegate
	writeErr   error
}

func New(conn io.ReadWriteCloser, channelID int, endpoint netip.AddrPort, events *logger.Logger, opts ...Option) *Transport {
	options := &Options{}
	for _, o := range opts {
		o.f(options)
	}
	if events == nil {
		events = logger.New(0)
	}
	t := &Transport{
		id:       channelID,
		conn:     conn,
		endpoint: endpoint,
		events:   events,
		logger:   xlog.With("GROUP", "TRANSPORT", xlog.Channel(channelID), xlog.Endpoint(endpoint)),
		metrics:  options.Metrics,
		writes:   queue.New(options.QueueLimit),
		delegate: nopDelegate{},
	}
	t.setWriteState(channel.WriteStateIdle)
	return t
}

// SetReadDelegate installs d for every message read from now on.
func (t *Transport) SetReadDelegate(d Delegate) {
	if d == nil {
		d = nopDelegate{}
	}
	t.mu.Lock()
	t.delegate = d
	t.mu.Unlock()
}

func (t *Transport) currentDelegate() Delegate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delegate
}

// Start launches the read pump. Calls after the first are ignored.
func (t *Transport) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	go t.readLoop()
}

func (t *Transport) ReadState() channel.ReadState {
	return channel.ReadState(t.readState.Load())
}
func (t *Transport) WriteState() channel.WriteState {
	return channel.WriteState(t.writeState.Load())
}
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

func (t *Transport) setReadState(s channel.ReadState) {
	if channel.ReadState(t.readState.Swap(uint32(s))) != s {
		t.events.LogSocketReadState(t.id, s)
	}
}
func (t *Transport) setWriteState(s channel.WriteState) {
	if channel.WriteState(t.writeState.Swap(uint32(s))) != s {
		t.events.LogSocketWriteState(t.id, s)
	}
}

func (t *Transport) readLoop() {
	for {
		t.setReadState(channel.ReadStateRead)
		m, err := castmsg.ReadFrom(t.conn)
		if t.closed.Load() {
			t.setReadState(channel.ReadStateUnknown)
			return
		}
		if err == nil && !m.IsValid() {
			err = castmsg.ErrInvalidMessage
		}
		if err != nil {
			t.handleReadError(err)
			return
		}
		t.setReadState(channel.ReadStateReadComplete)
		t.events.LogSocketEventWithDetails(t.id, logger.EventMessageRead, m.Namespace)
		t.metrics.MessageRead(m.Namespace)
		t.setReadState(channel.ReadStateDoCallback)
		t.currentDelegate().OnMessage(m)
	}
}

func (t *Transport) handleReadError(err error) {
	t.setReadState(channel.ReadStateHandleError)
	kind := classifyReadError(err)
	if kind == channel.ChannelErrorInvalidMessage {
		t.events.LogSocketEventWithRV(t.id, logger.EventInvalidMessage, err)
	} else {
		t.events.LogSocketEventWithRV(t.id, logger.EventSocketClosed, err)
	}
	t.logger.Debug("read failed", xlog.Err(err), xlog.State("kind", kind))
	t.setReadState(channel.ReadStateError)
	t.currentDelegate().OnError(kind)
}

func classifyReadError(err error) channel.ChannelError {
	var ce castmsg.Error
	if errors.As(err, &ce) {
		switch ce {
		case castmsg.ErrDecodeFailed, castmsg.ErrInvalidMessage, castmsg.ErrMissingPayloadType:
			return channel.ChannelErrorInvalidMessage
		}
	}
	return channel.ChannelErrorTransportError
}

// SendMessage frames m and queues it for writing. cb, if not nil, is called
// exactly once with the outcome, possibly before SendMessage returns.
func (t *Transport) SendMessage(m *castmsg.CastMessage, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}
	if t.closed.Load() {
		cb(xerr.TransportClosed)
		return
	}
	frame, err := castmsg.Frame(m)
	if err != nil {
		if errors.Is(err, castmsg.ErrBodyTooLarge) {
			err = xerr.MessageTooLarge
		} else {
			err = xerr.InvalidMessage
		}
		t.events.LogSocketEventWithRV(t.id, logger.EventSendMessageFailed, err)
		cb(err)
		return
	}
	t.events.LogSocketEventWithDetails(t.id, logger.EventMessageEnqueued, m.Namespace)
	namespace := m.Namespace
	err = t.writes.Push(func() {
		err := t.write(frame, namespace)
		if err != nil {
			cb(err)
			return
		}
		t.setWriteState(channel.WriteStateDoCallback)
		cb(nil)
		t.setWriteState(channel.WriteStateIdle)
	})
	if err != nil {
		if errors.Is(err, queue.ErrQueueIsFull) {
			err = xerr.SendingQueueIsFull
		} else {
			err = xerr.TransportClosed
		}
		t.events.LogSocketEventWithRV(t.id, logger.EventSendMessageFailed, err)
		cb(err)
	}
}

// write runs on the write queue.
func (t *Transport) write(frame []byte, namespace string) error {
	if t.closed.Load() {
		return xerr.TransportClosed
	}
	if t.writeErr != nil {
		return t.writeErr
	}
	t.setWriteState(channel.WriteStateWrite)
	_, err := t.conn.Write(frame)
	if err != nil {
		t.setWriteState(channel.WriteStateHandleError)
		t.writeErr = err
		t.events.LogSocketEventWithRV(t.id, logger.EventSendMessageFailed, err)
		if t.closed.Load() {
			return xerr.TransportClosed
		}
		t.logger.Debug("write failed", xlog.Err(err))
		t.setWriteState(channel.WriteStateError)
		t.currentDelegate().OnError(channel.ChannelErrorTransportError)
		return err
	}
	t.setWriteState(channel.WriteStateWriteComplete)
	t.events.LogSocketEventWithDetails(t.id, logger.EventMessageWritten, namespace)
	t.metrics.MessageSent(namespace)
	return nil
}

// Close stops both pumps and closes the stream. Queued writes complete with
// xerr.TransportClosed.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := t.conn.Close()
	t.writes.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}
