// Package castmsg defines the messages exchanged on a Cast channel and the
// length-prefixed framing used to carry them over a byte stream.
//
// CastMessage and DeviceAuthMessage follow the field numbering of the
// cast_channel.proto schema and are encoded with the protobuf wire format.
package castmsg

import (
	"fmt"
	"io"

	"sutext.github.io/cast/coder"
)

// ProtocolVersion is the Cast channel protocol version of a message.
type ProtocolVersion uint8

const (
	CASTV2_1_0 ProtocolVersion = 0
	CASTV2_1_1 ProtocolVersion = 1
	CASTV2_1_2 ProtocolVersion = 2
	CASTV2_1_3 ProtocolVersion = 3
)

// PayloadType selects which payload field of a CastMessage is populated.
type PayloadType uint8

const (
	PayloadString PayloadType = 0
	PayloadBinary PayloadType = 1
)

func (t PayloadType) String() string {
	switch t {
	case PayloadString:
		return "STRING"
	case PayloadBinary:
		return "BINARY"
	default:
		return "UNKNOWN"
	}
}

// Well known endpoints and namespaces of the platform.
const (
	PlatformSenderID    = "sender-0"
	PlatformReceiverID  = "receiver-0"
	AuthNamespace       = "urn:x-cast:com.google.cast.tp.deviceauth"
	HeartbeatNamespace  = "urn:x-cast:com.google.cast.tp.heartbeat"
	ConnectionNamespace = "urn:x-cast:com.google.cast.tp.connection"
	ReceiverNamespace   = "urn:x-cast:com.google.cast.receiver"
)

const (
	fieldProtocolVersion coder.Number = 1
	fieldSourceID        coder.Number = 2
	fieldDestinationID   coder.Number = 3
	fieldNamespace       coder.Number = 4
	fieldPayloadType     coder.Number = 5
	fieldPayloadUTF8     coder.Number = 6
	fieldPayloadBinary   coder.Number = 7
)

// CastMessage is the unit exchanged on an open channel.
type CastMessage struct {
	ProtocolVersion ProtocolVersion
	SourceID        string
	DestinationID   string
	Namespace       string
	PayloadType     PayloadType
	PayloadUTF8     string
	PayloadBinary   []byte

	decoded    bool
	hasUTF8    bool
	hasBinary  bool
	hasPayType bool
}

// NewStringMessage creates a CASTV2_1_0 message with a UTF-8 payload.
func NewStringMessage(namespace, source, destination, payload string) *CastMessage {
	return &CastMessage{
		ProtocolVersion: CASTV2_1_0,
		SourceID:        source,
		DestinationID:   destination,
		Namespace:       namespace,
		PayloadType:     PayloadString,
		PayloadUTF8:     payload,
	}
}

// NewBinaryMessage creates a CASTV2_1_0 message with a binary payload.
func NewBinaryMessage(namespace, source, destination string, payload []byte) *CastMessage {
	return &CastMessage{
		ProtocolVersion: CASTV2_1_0,
		SourceID:        source,
		DestinationID:   destination,
		Namespace:       namespace,
		PayloadType:     PayloadBinary,
		PayloadBinary:   payload,
	}
}

// IsValid reports whether the message carries the fields a receiver
// requires: both ids, a namespace and the payload matching PayloadType.
func (m *CastMessage) IsValid() bool {
	if m == nil {
		return false
	}
	if m.SourceID == "" || m.DestinationID == "" || m.Namespace == "" {
		return false
	}
	switch m.PayloadType {
	case PayloadString:
		return !m.decoded || m.hasUTF8
	case PayloadBinary:
		return !m.decoded || m.hasBinary
	default:
		return false
	}
}

func (m *CastMessage) String() string {
	var payload string
	switch m.PayloadType {
	case PayloadString:
		payload = fmt.Sprintf("%q", m.PayloadUTF8)
	default:
		payload = fmt.Sprintf("binary(%d)", len(m.PayloadBinary))
	}
	return fmt.Sprintf("CastMessage(ns=%s, src=%s, dst=%s, payload=%s)", m.Namespace, m.SourceID, m.DestinationID, payload)
}

// EncodeTo writes the message in field order.
func (m *CastMessage) EncodeTo(w coder.Encoder) error {
	w.WriteVarint(fieldProtocolVersion, uint64(m.ProtocolVersion))
	w.WriteString(fieldSourceID, m.SourceID)
	w.WriteString(fieldDestinationID, m.DestinationID)
	w.WriteString(fieldNamespace, m.Namespace)
	w.WriteVarint(fieldPayloadType, uint64(m.PayloadType))
	switch m.PayloadType {
	case PayloadString:
		w.WriteString(fieldPayloadUTF8, m.PayloadUTF8)
	case PayloadBinary:
		w.WriteBytes(fieldPayloadBinary, m.PayloadBinary)
	}
	return nil
}

// DecodeFrom reads a message, skipping unknown fields.
func (m *CastMessage) DecodeFrom(r coder.Decoder) error {
	m.decoded = true
	for {
		num, _, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		var v uint64
		switch num {
		case fieldProtocolVersion:
			v, err = r.ReadVarint()
			m.ProtocolVersion = ProtocolVersion(v)
		case fieldSourceID:
			m.SourceID, err = r.ReadString()
		case fieldDestinationID:
			m.DestinationID, err = r.ReadString()
		case fieldNamespace:
			m.Namespace, err = r.ReadString()
		case fieldPayloadType:
			v, err = r.ReadVarint()
			m.PayloadType = PayloadType(v)
			m.hasPayType = true
		case fieldPayloadUTF8:
			m.PayloadUTF8, err = r.ReadString()
			m.hasUTF8 = true
		case fieldPayloadBinary:
			m.PayloadBinary, err = r.ReadBytes()
			m.hasBinary = true
		default:
			err = r.Skip()
		}
		if err != nil {
			return err
		}
	}
	if !m.hasPayType {
		return ErrMissingPayloadType
	}
	return nil
}
