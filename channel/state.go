// Package channel defines the value types shared by every layer of a Cast
// channel: open parameters, lifecycle states and the channel error taxonomy.
package channel

// ReadyState is the coarse lifecycle phase of a channel.
// A channel never leaves ReadyStateClosed.
type ReadyState uint8

// Channel ready state constants.
const (
	// ReadyStateNone indicates Connect has not been called yet.
	ReadyStateNone ReadyState = iota
	// ReadyStateConnecting indicates a connect attempt is in flight.
	ReadyStateConnecting
	// ReadyStateOpen indicates the channel is authenticated and carries messages.
	ReadyStateOpen
	// ReadyStateClosing indicates the channel is being torn down.
	ReadyStateClosing
	// ReadyStateClosed indicates the channel is closed for good.
	ReadyStateClosed
)

// String returns the string representation of the ReadyState.
func (s ReadyState) String() string {
	switch s {
	case ReadyStateNone:
		return "None"
	case ReadyStateConnecting:
		return "Connecting"
	case ReadyStateOpen:
		return "Open"
	case ReadyStateClosing:
		return "Closing"
	case ReadyStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionState is the step of the connect loop.
type ConnectionState uint8

const (
	ConnectionStateUnknown ConnectionState = iota
	ConnectionStateTCPConnect
	ConnectionStateTCPConnectComplete
	ConnectionStateSSLConnect
	ConnectionStateSSLConnectComplete
	ConnectionStateAuthChallengeSend
	ConnectionStateAuthChallengeSendComplete
	ConnectionStateAuthChallengeReplyComplete
	ConnectionStateStartConnect
	ConnectionStateFinished
	ConnectionStateError
	ConnectionStateTimeout
)

var connectionStateNames = [...]string{
	"Unknown",
	"TCPConnect",
	"TCPConnectComplete",
	"SSLConnect",
	"SSLConnectComplete",
	"AuthChallengeSend",
	"AuthChallengeSendComplete",
	"AuthChallengeReplyComplete",
	"StartConnect",
	"Finished",
	"Error",
	"Timeout",
}

func (s ConnectionState) String() string {
	if int(s) < len(connectionStateNames) {
		return connectionStateNames[s]
	}
	return "Unknown"
}

// ReadState is the state of the transport read pump.
type ReadState uint8

const (
	ReadStateUnknown ReadState = iota
	ReadStateRead
	ReadStateReadComplete
	ReadStateDoCallback
	ReadStateHandleError
	ReadStateError
)

func (s ReadState) String() string {
	switch s {
	case ReadStateRead:
		return "Read"
	case ReadStateReadComplete:
		return "ReadComplete"
	case ReadStateDoCallback:
		return "DoCallback"
	case ReadStateHandleError:
		return "HandleError"
	case ReadStateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// WriteState is the state of the transport write pump.
type WriteState uint8

const (
	WriteStateUnknown WriteState = iota
	WriteStateIdle
	WriteStateWrite
	WriteStateWriteComplete
	WriteStateDoCallback
	WriteStateHandleError
	WriteStateError
)

func (s WriteState) String() string {
	switch s {
	case WriteStateIdle:
		return "Idle"
	case WriteStateWrite:
		return "Write"
	case WriteStateWriteComplete:
		return "WriteComplete"
	case WriteStateDoCallback:
		return "DoCallback"
	case WriteStateHandleError:
		return "HandleError"
	case WriteStateError:
		return "Error"
	default:
		return "Unknown"
	}
}
