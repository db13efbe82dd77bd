package castmsg

import (
	"encoding/binary"
	"fmt"
	"io"

	"sutext.github.io/cast/coder"
)

const (
	HeaderSize     = 4
	MaxMessageSize = 65536
	MaxBodySize    = MaxMessageSize - HeaderSize
)

// Error represents a framing or decoding error.
type Error uint8

const (
	ErrBodyTooLarge       Error = 1
	ErrEmptyBody          Error = 2
	ErrDecodeFailed       Error = 3
	ErrEncodeFailed       Error = 4
	ErrInvalidMessage     Error = 5
	ErrMissingPayloadType Error = 6
)

func (e Error) Error() string {
	switch e {
	case ErrBodyTooLarge:
		return "message body too large"
	case ErrEmptyBody:
		return "message body is empty"
	case ErrDecodeFailed:
		return "message decode failed"
	case ErrEncodeFailed:
		return "message encode failed"
	case ErrInvalidMessage:
		return "invalid message"
	case ErrMissingPayloadType:
		return "missing payload type"
	default:
		return "unknown error"
	}
}

// Marshal returns the serialized body of m without a frame header.
func Marshal(m *CastMessage) ([]byte, error) {
	data, err := coder.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return data, nil
}

// Unmarshal decodes a frame body into a CastMessage.
func Unmarshal(body []byte) (*CastMessage, error) {
	m := &CastMessage{}
	if err := coder.Unmarshal(body, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return m, nil
}

// Frame serializes m and prepends the big-endian body length.
func Frame(m *CastMessage) ([]byte, error) {
	if !m.IsValid() {
		return nil, ErrInvalidMessage
	}
	body, err := Marshal(m)
	if err != nil {
		return nil, err
	}
	if len(body) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	frame := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	return append(frame, body...), nil
}

// WriteTo writes one framed message with a single Write call.
func WriteTo(w io.Writer, m *CastMessage) error {
	frame, err := Frame(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadFrom reads exactly one framed message. I/O errors are returned as is;
// framing and decoding problems are reported as Error values.
func ReadFrom(r io.Reader) (*CastMessage, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return nil, ErrEmptyBody
	}
	if size > MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return Unmarshal(body)
}
