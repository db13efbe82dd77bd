package service

import (
	"sync"
	"time"

	"sutext.github.io/cast/backoff"
	"sutext.github.io/cast/channel"
)

// Retrier is the reconnect policy of a service. Each channel keeps its own
// attempt count.
type Retrier struct {
	limit   int64
	backoff backoff.Backoff
	filter  func(channel.ChannelError) bool
}

// NewRetrier allows limit consecutive reconnects per channel, waiting
// according to b before each.
func NewRetrier(limit int64, b backoff.Backoff) *Retrier {
	if b == nil {
		b = backoff.Default()
	}
	return &Retrier{
		limit:   limit,
		backoff: b,
		filter:  skipPermanent,
	}
}

// Filter replaces the default filter. f returns true for errors that must
// not trigger a reconnect.
func (r *Retrier) Filter(f func(channel.ChannelError) bool) *Retrier {
	r.filter = f
	return r
}

// skipPermanent only retries failures a new connection can fix.
func skipPermanent(err channel.ChannelError) bool {
	switch err {
	case channel.ChannelErrorPingTimeout,
		channel.ChannelErrorTransportError,
		channel.ChannelErrorConnectError,
		channel.ChannelErrorConnectTimeout:
		return false
	default:
		return true
	}
}

type retryState struct {
	*Retrier
	mu    sync.Mutex
	count int64
	timer *time.Timer
}

func (r *Retrier) state() *retryState {
	if r == nil {
		return nil
	}
	return &retryState{Retrier: r}
}

func (r *retryState) can(reason channel.ChannelError) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filter != nil && r.filter(reason) {
		return 0, false
	}
	if r.count >= r.limit {
		return 0, false
	}
	r.count++
	return r.backoff.Next(r.count), true
}

// reset forgets earlier attempts once a reconnect succeeded.
func (r *retryState) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count = 0
}

func (r *retryState) cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.count = 0
}

// retry runs fn after delay unless a retry is already pending.
func (r *retryState) retry(delay time.Duration, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		return false
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		if r.timer != timer {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		r.mu.Unlock()
		fn()
	})
	r.timer = timer
	return true
}
