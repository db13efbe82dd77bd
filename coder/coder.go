package coder

import (
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

type Encoder interface {
	Bytes() []byte
	WriteVarint(num Number, v uint64)
	WriteBool(num Number, b bool)
	WriteBytes(num Number, p []byte)
	WriteString(num Number, s string)
	WriteMessage(num Number, m Encodable) error
}

// Decoder walks the fields of one message. Next must be called before each
// typed read; fields the caller does not know are passed to Skip.
type Decoder interface {
	Next() (Number, Type, error)
	ReadVarint() (uint64, error)
	ReadBool() (bool, error)
	ReadBytes() ([]byte, error)
	ReadString() (string, error)
	ReadMessage(m Decodable) error
	Skip() error
}

func NewEncoder(cap ...int) Encoder {
	if len(cap) > 0 && cap[0] > 0 {
		return &encoder{buf: make([]byte, 0, cap[0])}
	}
	return &encoder{buf: make([]byte, 0, 256)}
}
func NewDecoder(bytes []byte) Decoder {
	return &decoder{buf: bytes, typ: -1}
}

type encoder struct {
	buf []byte
}

func (e *encoder) Bytes() []byte {
	return e.buf
}
func (e *encoder) WriteVarint(num Number, v uint64) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}
func (e *encoder) WriteBool(num Number, b bool) {
	e.WriteVarint(num, protowire.EncodeBool(b))
}
func (e *encoder) WriteBytes(num Number, p []byte) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, p)
}
func (e *encoder) WriteString(num Number, s string) {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, s)
}
func (e *encoder) WriteMessage(num Number, m Encodable) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	e.WriteBytes(num, data)
	return nil
}

type decoder struct {
	buf []byte
	pos int
	num Number
	typ Type
}

func (d *decoder) Next() (Number, Type, error) {
	if d.pos >= len(d.buf) {
		return 0, 0, io.EOF
	}
	num, typ, n := protowire.ConsumeTag(d.buf[d.pos:])
	if n < 0 {
		return 0, 0, ErrMalformedField
	}
	if !num.IsValid() {
		return 0, 0, ErrInvalidFieldNumber
	}
	d.pos += n
	d.num, d.typ = num, typ
	return num, typ, nil
}
func (d *decoder) expect(typ Type) error {
	if d.typ < 0 {
		return ErrNoCurrentField
	}
	if d.typ != typ {
		return ErrWireTypeMismatch
	}
	return nil
}
func (d *decoder) ReadVarint() (uint64, error) {
	if err := d.expect(protowire.VarintType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(d.buf[d.pos:])
	if n < 0 {
		return 0, ErrMalformedField
	}
	d.pos += n
	d.typ = -1
	return v, nil
}
func (d *decoder) ReadBool() (bool, error) {
	v, err := d.ReadVarint()
	if err != nil {
		return false, err
	}
	return protowire.DecodeBool(v), nil
}
func (d *decoder) ReadBytes() ([]byte, error) {
	if err := d.expect(protowire.BytesType); err != nil {
		return nil, err
	}
	v, n := protowire.ConsumeBytes(d.buf[d.pos:])
	if n < 0 {
		return nil, ErrMalformedField
	}
	d.pos += n
	d.typ = -1
	// detach from the frame buffer, which the caller may reuse
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}
func (d *decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
func (d *decoder) ReadMessage(m Decodable) error {
	b, err := d.ReadBytes()
	if err != nil {
		return err
	}
	return Unmarshal(b, m)
}
func (d *decoder) Skip() error {
	if d.typ < 0 {
		return ErrNoCurrentField
	}
	n := protowire.ConsumeFieldValue(d.num, d.typ, d.buf[d.pos:])
	if n < 0 {
		return ErrMalformedField
	}
	d.pos += n
	d.typ = -1
	return nil
}
