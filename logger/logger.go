// Package logger is the shared diagnostic sink of Cast channels. Many
// sockets write to one Logger concurrently; each channel keeps a bounded,
// append-only history and a summary of its last error.
package logger

import (
	"sync"
	"sync/atomic"
	"time"

	"sutext.github.io/cast/auth"
	"sutext.github.io/cast/channel"
	"sutext.github.io/cast/internal/safe"
	"sutext.github.io/cast/xlog"
)

const (
	// DefaultHistory is the number of events kept per channel.
	DefaultHistory = 64
	// DefaultChannels is the number of channels tracked at once. Past it the
	// least recently written channel is forgotten.
	DefaultChannels = 256
)

type Event struct {
	ChannelID int
	Time      time.Time
	Type      EventType
	Details   string
	Err       error
}

// LastError summarizes the most recent failure of a channel.
type LastError struct {
	EventType           EventType
	ChallengeReplyError auth.ErrorType
	NetError            error
}

type channelLog struct {
	used   atomic.Uint64
	mu     sync.Mutex
	events []Event
	last   LastError
}

// Logger is shared by the sockets of a process. Whoever owns a channel id
// calls ClearLastError once the channel is gone; channels nobody clears are
// evicted least recently written first beyond the channel limit.
type Logger struct {
	xlog        *xlog.Logger
	history     int
	maxChannels int
	seq         atomic.Uint64
	channels    *safe.Map[int, *channelLog]
}

func New(history int) *Logger {
	return NewWithLimit(history, DefaultChannels)
}

// NewWithLimit keeps history events for each of at most channels channels.
func NewWithLimit(history, channels int) *Logger {
	if history <= 0 {
		history = DefaultHistory
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	return &Logger{
		xlog:        xlog.With("GROUP", "CHANNEL"),
		history:     history,
		maxChannels: channels,
		channels:    safe.NewMap[int, *channelLog](),
	}
}

func (l *Logger) channel(id int) *channelLog {
	c, loaded := l.channels.GetOrSet(id, &channelLog{})
	c.used.Store(l.seq.Add(1))
	if !loaded && l.channels.Len() > l.maxChannels {
		l.evict(id)
	}
	return c
}

// evict forgets the least recently written channel other than keep.
func (l *Logger) evict(keep int) {
	oldest, found := 0, false
	var used uint64
	l.channels.Range(func(id int, c *channelLog) bool {
		if u := c.used.Load(); id != keep && (!found || u < used) {
			oldest, used, found = id, u, true
		}
		return true
	})
	if found {
		l.channels.Delete(oldest)
	}
}

func (l *Logger) append(e Event, updateLast func(*LastError)) {
	e.Time = time.Now()
	c := l.channel(e.ChannelID)
	c.mu.Lock()
	if len(c.events) >= l.history {
		copy(c.events, c.events[1:])
		c.events = c.events[:len(c.events)-1]
	}
	c.events = append(c.events, e)
	if updateLast != nil {
		updateLast(&c.last)
	}
	c.mu.Unlock()
	if l.xlog.Enabled(xlog.LevelDebug) {
		attrs := []any{xlog.Channel(e.ChannelID), xlog.Str("event", e.Type.String())}
		if e.Details != "" {
			attrs = append(attrs, xlog.Str("details", e.Details))
		}
		if e.Err != nil {
			attrs = append(attrs, xlog.Err(e.Err))
		}
		l.xlog.With(attrs...).Debug("channel event")
	}
}

func (l *Logger) LogSocketEvent(id int, event EventType) {
	l.append(Event{ChannelID: id, Type: event}, nil)
}

func (l *Logger) LogSocketEventWithDetails(id int, event EventType, details string) {
	l.append(Event{ChannelID: id, Type: event, Details: details}, nil)
}

// LogSocketEventWithRV records an event with the network result; a non-nil
// err becomes the channel's last net error.
func (l *Logger) LogSocketEventWithRV(id int, event EventType, err error) {
	l.append(Event{ChannelID: id, Type: event, Err: err}, func(last *LastError) {
		if err != nil {
			last.EventType = event
			last.NetError = err
		}
	})
}

func (l *Logger) LogSocketReadyState(id int, state channel.ReadyState) {
	l.append(Event{ChannelID: id, Type: EventReadyStateChanged, Details: state.String()}, nil)
}

func (l *Logger) LogSocketConnectState(id int, state channel.ConnectionState) {
	l.append(Event{ChannelID: id, Type: EventConnectionStateChanged, Details: state.String()}, nil)
}

func (l *Logger) LogSocketReadState(id int, state channel.ReadState) {
	l.append(Event{ChannelID: id, Type: EventReadStateChanged, Details: state.String()}, nil)
}

func (l *Logger) LogSocketWriteState(id int, state channel.WriteState) {
	l.append(Event{ChannelID: id, Type: EventWriteStateChanged, Details: state.String()}, nil)
}

func (l *Logger) LogSocketErrorState(id int, err channel.ChannelError) {
	l.append(Event{ChannelID: id, Type: EventErrorStateChanged, Details: err.String()}, nil)
}

// LogSocketChallengeReplyEvent records the outcome of device auth.
func (l *Logger) LogSocketChallengeReplyEvent(id int, result auth.Result) {
	l.append(Event{ChannelID: id, Type: EventAuthChallengeReply, Details: result.Type.String(), Err: result.Err()}, func(last *LastError) {
		if !result.Success() {
			last.EventType = EventAuthChallengeReply
			last.ChallengeReplyError = result.Type
		}
	})
}

func (l *Logger) LastError(id int) LastError {
	c, ok := l.channels.Get(id)
	if !ok {
		return LastError{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Events returns a copy of the channel's history, oldest first.
func (l *Logger) Events(id int) []Event {
	c, ok := l.channels.Get(id)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// ClearLastError forgets the channel, typically once its socket is gone.
func (l *Logger) ClearLastError(id int) {
	l.channels.Delete(id)
}
