package socket

import (
	"sutext.github.io/cast/auth"
	"sutext.github.io/cast/castmsg"
	"sutext.github.io/cast/channel"
)

// authDelegate collects the challenge reply while connecting.
type authDelegate struct {
	s   *socket
	gen uint64
}

func (d *authDelegate) OnMessage(m *castmsg.CastMessage) {
	s := d.s
	s.run(func() {
		if s.isStale(d.gen) {
			// The reader may race the delegate swap right after open.
			s.handleMessage(m)
			return
		}
		if s.challengeReply != nil || s.authError != channel.ChannelErrorNone {
			return
		}
		if !auth.IsAuthMessage(m) {
			s.authError = channel.ChannelErrorTransportError
		} else {
			s.challengeReply = m
		}
		if s.connectState == channel.ConnectionStateAuthChallengeReplyComplete {
			s.doConnectLoop(d.gen, nil)
		}
	})
}

func (d *authDelegate) OnError(err channel.ChannelError) {
	s := d.s
	s.run(func() {
		if s.isStale(d.gen) {
			s.handleTransportError(err)
			return
		}
		if s.authError != channel.ChannelErrorNone {
			return
		}
		s.authError = err
		if s.connectState == channel.ConnectionStateAuthChallengeReplyComplete {
			s.doConnectLoop(d.gen, nil)
		}
	})
}

// messageDelegate forwards traffic of an open channel to the observers.
type messageDelegate struct {
	s *socket
}

func (d *messageDelegate) OnMessage(m *castmsg.CastMessage) {
	d.s.run(func() { d.s.handleMessage(m) })
}

func (d *messageDelegate) OnError(err channel.ChannelError) {
	d.s.run(func() { d.s.handleTransportError(err) })
}
