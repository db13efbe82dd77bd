package castmsg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

type ReadWriter struct {
	data []byte
}

func (w *ReadWriter) Write(p []byte) (n int, err error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *ReadWriter) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(w.data) == 0 {
		return 0, io.EOF
	}
	n = copy(p, w.data)
	w.data = w.data[n:]
	return n, nil
}

func TestFraming(t *testing.T) {
	messages := []*CastMessage{
		NewStringMessage(ReceiverNamespace, PlatformSenderID, PlatformReceiverID, `{"type":"GET_STATUS","requestId":1}`),
		NewBinaryMessage(AuthNamespace, PlatformSenderID, PlatformReceiverID, bytes.Repeat([]byte{0xab}, 0xfff)),
		NewPing(),
	}
	rw := &ReadWriter{}
	for _, m := range messages {
		if err := WriteTo(rw, m); err != nil {
			t.Fatalf("WriteTo failed: %v", err)
		}
	}
	for i, want := range messages {
		got, err := ReadFrom(rw)
		if err != nil {
			t.Fatalf("ReadFrom(%d) failed: %v", i, err)
		}
		if !got.IsValid() {
			t.Errorf("message %d not valid after decode: %v", i, got)
		}
		if got.Namespace != want.Namespace || got.PayloadUTF8 != want.PayloadUTF8 || !bytes.Equal(got.PayloadBinary, want.PayloadBinary) {
			t.Errorf("message %d mismatch:\n got %v\nwant %v", i, got, want)
		}
	}
	if _, err := ReadFrom(rw); err != io.EOF {
		t.Errorf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestFramingErrors(t *testing.T) {
	t.Run("TooLarge", func(t *testing.T) {
		m := NewBinaryMessage(ReceiverNamespace, PlatformSenderID, PlatformReceiverID, make([]byte, MaxBodySize))
		if err := WriteTo(&ReadWriter{}, m); !errors.Is(err, ErrBodyTooLarge) {
			t.Errorf("expected ErrBodyTooLarge, got %v", err)
		}
		header := binary.BigEndian.AppendUint32(nil, MaxBodySize+1)
		if _, err := ReadFrom(&ReadWriter{data: header}); !errors.Is(err, ErrBodyTooLarge) {
			t.Errorf("expected ErrBodyTooLarge on read, got %v", err)
		}
	})
	t.Run("Empty", func(t *testing.T) {
		if _, err := ReadFrom(&ReadWriter{data: []byte{0, 0, 0, 0}}); !errors.Is(err, ErrEmptyBody) {
			t.Errorf("expected ErrEmptyBody, got %v", err)
		}
	})
	t.Run("ShortBody", func(t *testing.T) {
		data := binary.BigEndian.AppendUint32(nil, 10)
		data = append(data, 1, 2)
		if _, err := ReadFrom(&ReadWriter{data: data}); err != io.ErrUnexpectedEOF {
			t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
		}
	})
	t.Run("Invalid", func(t *testing.T) {
		m := NewStringMessage("", PlatformSenderID, PlatformReceiverID, "x")
		if err := WriteTo(&ReadWriter{}, m); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("expected ErrInvalidMessage, got %v", err)
		}
	})
	t.Run("Garbage", func(t *testing.T) {
		data := binary.BigEndian.AppendUint32(nil, 3)
		data = append(data, 0xff, 0xff, 0xff)
		if _, err := ReadFrom(&ReadWriter{data: data}); !errors.Is(err, ErrDecodeFailed) {
			t.Errorf("expected ErrDecodeFailed, got %v", err)
		}
	})
}

func TestDecodedPayloadPresence(t *testing.T) {
	m := NewStringMessage(ReceiverNamespace, PlatformSenderID, PlatformReceiverID, "")
	m.PayloadType = PayloadBinary
	body, err := Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Unmarshal(body)
	if err != nil {
		t.Fatal(err)
	}
	if !decoded.IsValid() {
		t.Error("binary message with empty payload should be valid when the field is present")
	}
	decoded.hasBinary = false
	if decoded.IsValid() {
		t.Error("decoded message without its payload field should be invalid")
	}
}

func TestDeviceAuthMessage(t *testing.T) {
	in := &DeviceAuthMessage{
		Response: &AuthResponse{
			Signature:               []byte("sig"),
			ClientAuthCertificate:   []byte("leaf"),
			IntermediateCertificate: [][]byte{[]byte("ica1"), []byte("ica2")},
			SignatureAlgorithm:      SignatureRSASSAPKCS1v15,
			SenderNonce:             []byte("nonce"),
			HashAlgorithm:           HashSHA256,
		},
	}
	data, err := MarshalAuth(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := UnmarshalAuth(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Challenge != nil || out.Error != nil || out.Response == nil {
		t.Fatalf("unexpected fields: %+v", out)
	}
	r := out.Response
	if string(r.Signature) != "sig" || string(r.ClientAuthCertificate) != "leaf" || len(r.IntermediateCertificate) != 2 {
		t.Errorf("response mismatch: %+v", r)
	}
	if r.HashAlgorithm != HashSHA256 || string(r.SenderNonce) != "nonce" {
		t.Errorf("response mismatch: %+v", r)
	}
}

func TestHeartbeat(t *testing.T) {
	if !IsPing(NewPing()) || IsPong(NewPing()) {
		t.Error("ping classification wrong")
	}
	if !IsPong(NewPong()) || IsPing(NewPong()) {
		t.Error("pong classification wrong")
	}
	other := NewStringMessage(ReceiverNamespace, PlatformSenderID, PlatformReceiverID, `{"type":"PING"}`)
	if IsHeartbeat(other) || IsPing(other) {
		t.Error("non heartbeat namespace classified as heartbeat")
	}
}
