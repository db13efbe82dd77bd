// Package coder reads and writes protobuf wire format fields.
//
// It is a small hand-driven layer over protowire used for the few fixed
// messages of the Cast channel protocol, so the module does not depend on
// generated code.
package coder

import "google.golang.org/protobuf/encoding/protowire"

type Number = protowire.Number
type Type = protowire.Type

type Encodable interface {
	EncodeTo(Encoder) error
}
type Decodable interface {
	DecodeFrom(Decoder) error
}
type Codable interface {
	Encodable
	Decodable
}
type Error uint8

const (
	ErrMalformedField     Error = 1
	ErrWireTypeMismatch   Error = 2
	ErrInvalidFieldNumber Error = 3
	ErrNoCurrentField     Error = 4
)

func (e Error) Error() string {
	switch e {
	case ErrMalformedField:
		return "malformed protobuf field"
	case ErrWireTypeMismatch:
		return "protobuf wire type mismatch"
	case ErrInvalidFieldNumber:
		return "invalid protobuf field number"
	case ErrNoCurrentField:
		return "no current protobuf field"
	default:
		return "unknown error"
	}
}

func Marshal(ec Encodable) ([]byte, error) {
	coder := NewEncoder()
	err := ec.EncodeTo(coder)
	return coder.Bytes(), err
}

func Unmarshal(b []byte, dc Decodable) error {
	coder := NewDecoder(b)
	return dc.DecodeFrom(coder)
}
