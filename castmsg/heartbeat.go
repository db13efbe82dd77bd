package castmsg

import "encoding/json"

const (
	heartbeatPing = "PING"
	heartbeatPong = "PONG"
)

type heartbeat struct {
	Type string `json:"type"`
}

func newHeartbeat(kind string) *CastMessage {
	data, _ := json.Marshal(heartbeat{Type: kind})
	return NewStringMessage(HeartbeatNamespace, PlatformSenderID, PlatformReceiverID, string(data))
}

// NewPing returns a keep-alive PING addressed to the platform receiver.
func NewPing() *CastMessage {
	return newHeartbeat(heartbeatPing)
}

// NewPong returns a keep-alive PONG addressed to the platform receiver.
func NewPong() *CastMessage {
	return newHeartbeat(heartbeatPong)
}

func IsHeartbeat(m *CastMessage) bool {
	return m != nil && m.Namespace == HeartbeatNamespace
}

func IsPing(m *CastMessage) bool {
	return heartbeatType(m) == heartbeatPing
}

func IsPong(m *CastMessage) bool {
	return heartbeatType(m) == heartbeatPong
}

func heartbeatType(m *CastMessage) string {
	if !IsHeartbeat(m) || m.PayloadType != PayloadString {
		return ""
	}
	var hb heartbeat
	if err := json.Unmarshal([]byte(m.PayloadUTF8), &hb); err != nil {
		return ""
	}
	return hb.Type
}
