package channel

// ChannelError classifies the current fault of a channel. Exactly one value
// is current per channel; it is replaced, never accumulated.
type ChannelError uint8

const (
	ChannelErrorNone ChannelError = iota
	ChannelErrorChannelNotOpen
	ChannelErrorAuthenticationError
	ChannelErrorConnectError
	ChannelErrorCastSocketError
	ChannelErrorTransportError
	ChannelErrorInvalidMessage
	ChannelErrorInvalidChannelID
	ChannelErrorConnectTimeout
	ChannelErrorPingTimeout
	ChannelErrorUnknown
)

var channelErrorMap = map[ChannelError]string{
	ChannelErrorNone:                "None",
	ChannelErrorChannelNotOpen:      "Channel Not Open",
	ChannelErrorAuthenticationError: "Authentication Error",
	ChannelErrorConnectError:        "Connect Error",
	ChannelErrorCastSocketError:     "Cast Socket Error",
	ChannelErrorTransportError:      "Transport Error",
	ChannelErrorInvalidMessage:      "Invalid Message",
	ChannelErrorInvalidChannelID:    "Invalid Channel ID",
	ChannelErrorConnectTimeout:      "Connect Timeout",
	ChannelErrorPingTimeout:         "Ping Timeout",
	ChannelErrorUnknown:             "Unknown",
}

func (e ChannelError) String() string {
	if s, ok := channelErrorMap[e]; ok {
		return s
	}
	return "Unknown"
}

// Error implements the error interface so a ChannelError can travel through
// error returns and be matched with errors.Is.
func (e ChannelError) Error() string {
	return e.String()
}

// AsChannelError maps an arbitrary error onto the taxonomy.
func AsChannelError(err error) ChannelError {
	switch e := err.(type) {
	case nil:
		return ChannelErrorNone
	case ChannelError:
		return e
	default:
		return ChannelErrorUnknown
	}
}
