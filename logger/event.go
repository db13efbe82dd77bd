package logger

// EventType names a significant step in a channel's life.
type EventType uint8

const (
	EventUnknown EventType = iota
	EventSocketCreated
	EventReadyStateChanged
	EventConnectionStateChanged
	EventReadStateChanged
	EventWriteStateChanged
	EventErrorStateChanged
	EventConnectFailed
	EventTCPSocketConnect
	EventSSLCertWhitelisted
	EventSSLSocketConnect
	EventSSLInfoObtained
	EventPeerCertInvalid
	EventAuthChallengeReply
	EventConnectTimedOut
	EventSendMessageFailed
	EventMessageEnqueued
	EventMessageWritten
	EventMessageRead
	EventSocketClosed
	EventPingTimeout
	EventInvalidMessage
	EventChannelPolicyMismatch
)

var eventNames = [...]string{
	"Unknown",
	"SocketCreated",
	"ReadyStateChanged",
	"ConnectionStateChanged",
	"ReadStateChanged",
	"WriteStateChanged",
	"ErrorStateChanged",
	"ConnectFailed",
	"TCPSocketConnect",
	"SSLCertWhitelisted",
	"SSLSocketConnect",
	"SSLInfoObtained",
	"PeerCertInvalid",
	"AuthChallengeReply",
	"ConnectTimedOut",
	"SendMessageFailed",
	"MessageEnqueued",
	"MessageWritten",
	"MessageRead",
	"SocketClosed",
	"PingTimeout",
	"InvalidMessage",
	"ChannelPolicyMismatch",
}

func (e EventType) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "Unknown"
}
