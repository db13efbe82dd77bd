package xerr

type Error uint16

const (
	SocketNotOpen Error = iota
	SocketDestroyed
	InvalidEndpoint
	InvalidMessage
	InvalidOpenParams
	MessageTooLarge
	TransportClosed
	SendingQueueIsFull
	SocketNotFound
	ServiceIsClosed
	NetworkContextMissing
	TrustStoreEmpty
)

var errorMap = map[Error]string{
	SocketNotOpen:         "socket is not open",
	SocketDestroyed:       "socket is destroyed",
	InvalidEndpoint:       "invalid endpoint",
	InvalidMessage:        "invalid cast message",
	InvalidOpenParams:     "invalid open params",
	MessageTooLarge:       "message too large",
	TransportClosed:       "transport is closed",
	SendingQueueIsFull:    "sending queue is full",
	SocketNotFound:        "socket not found",
	ServiceIsClosed:       "service is closed",
	NetworkContextMissing: "network context missing",
	TrustStoreEmpty:       "trust store is empty",
}

func (e Error) Error() string {
	return errorMap[e]
}
func (e Error) String() string {
	return errorMap[e]
}
