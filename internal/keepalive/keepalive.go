// Package keepalive detects a silently dead peer on an open channel.
//
// A ping is requested every interval; any inbound traffic rearms both the
// ping and the liveness timer. If nothing arrives within timeout the
// timeout function runs once and the keep-alive stops itself.
package keepalive

import (
	"sync"
	"time"
)

type KeepAlive struct {
	mu          sync.Mutex
	gen         uint64
	started     bool
	timeout     time.Duration
	interval    time.Duration
	sendFunc    func()
	timeoutFunc func()
	pingTimer   *time.Timer
	aliveTimer  *time.Timer
	lastPacket  time.Time
}

func New(interval time.Duration, timeout time.Duration) *KeepAlive {
	return &KeepAlive{
		interval:    interval,
		timeout:     timeout,
		sendFunc:    func() {},
		timeoutFunc: func() {},
	}
}
func (k *KeepAlive) PingFunc(f func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.sendFunc = f
}
func (k *KeepAlive) TimeoutFunc(f func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.timeoutFunc = f
}
func (k *KeepAlive) Start() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return
	}
	k.started = true
	k.lastPacket = time.Now()
	k.arm()
}
func (k *KeepAlive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.started = false
	k.disarm()
}
func (k *KeepAlive) IsStarted() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.started
}

// UpdateTime records inbound traffic and rearms both timers.
func (k *KeepAlive) UpdateTime() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lastPacket = time.Now()
	if !k.started {
		return
	}
	k.disarm()
	k.arm()
}

// HandlePong is inbound traffic like any other message.
func (k *KeepAlive) HandlePong() {
	k.UpdateTime()
}

// LastPacketTime returns when inbound traffic was last seen.
func (k *KeepAlive) LastPacketTime() time.Time {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lastPacket
}

// arm must be called with mu held.
func (k *KeepAlive) arm() {
	k.gen++
	gen := k.gen
	k.pingTimer = time.AfterFunc(k.interval, func() { k.onPing(gen) })
	k.aliveTimer = time.AfterFunc(k.timeout, func() { k.onTimeout(gen) })
}

// disarm must be called with mu held.
func (k *KeepAlive) disarm() {
	k.gen++
	if k.pingTimer != nil {
		k.pingTimer.Stop()
		k.pingTimer = nil
	}
	if k.aliveTimer != nil {
		k.aliveTimer.Stop()
		k.aliveTimer = nil
	}
}

func (k *KeepAlive) onPing(gen uint64) {
	k.mu.Lock()
	if !k.started || gen != k.gen {
		k.mu.Unlock()
		return
	}
	send := k.sendFunc
	k.pingTimer = time.AfterFunc(k.interval, func() { k.onPing(gen) })
	k.mu.Unlock()
	send()
}

func (k *KeepAlive) onTimeout(gen uint64) {
	k.mu.Lock()
	if !k.started || gen != k.gen {
		k.mu.Unlock()
		return
	}
	k.started = false
	k.disarm()
	timeout := k.timeoutFunc
	k.mu.Unlock()
	timeout()
}
