package castmsg

import (
	"io"

	"sutext.github.io/cast/coder"
)

type SignatureAlgorithm uint8

const (
	SignatureUnspecified    SignatureAlgorithm = 0
	SignatureRSASSAPKCS1v15 SignatureAlgorithm = 1
	SignatureRSASSAPSS      SignatureAlgorithm = 2
)

type HashAlgorithm uint8

const (
	HashSHA1   HashAlgorithm = 0
	HashSHA256 HashAlgorithm = 1
)

func (h HashAlgorithm) String() string {
	switch h {
	case HashSHA1:
		return "SHA1"
	case HashSHA256:
		return "SHA256"
	default:
		return "UNKNOWN"
	}
}

type AuthErrorType uint8

const (
	AuthErrorInternal                      AuthErrorType = 0
	AuthErrorNoTLS                         AuthErrorType = 1
	AuthErrorSignatureAlgorithmUnavailable AuthErrorType = 2
)

// AuthChallenge is sent by the sender right after the TLS handshake.
type AuthChallenge struct {
	SignatureAlgorithm SignatureAlgorithm
	SenderNonce        []byte
	HashAlgorithm      HashAlgorithm
}

func (c *AuthChallenge) EncodeTo(w coder.Encoder) error {
	w.WriteVarint(1, uint64(c.SignatureAlgorithm))
	if len(c.SenderNonce) > 0 {
		w.WriteBytes(2, c.SenderNonce)
	}
	w.WriteVarint(3, uint64(c.HashAlgorithm))
	return nil
}

func (c *AuthChallenge) DecodeFrom(r coder.Decoder) error {
	return decodeFields(r, func(num coder.Number) (err error) {
		var v uint64
		switch num {
		case 1:
			v, err = r.ReadVarint()
			c.SignatureAlgorithm = SignatureAlgorithm(v)
		case 2:
			c.SenderNonce, err = r.ReadBytes()
		case 3:
			v, err = r.ReadVarint()
			c.HashAlgorithm = HashAlgorithm(v)
		default:
			err = r.Skip()
		}
		return err
	})
}

// AuthResponse is the receiver's signed answer to an AuthChallenge.
type AuthResponse struct {
	Signature               []byte
	ClientAuthCertificate   []byte
	IntermediateCertificate [][]byte
	SignatureAlgorithm      SignatureAlgorithm
	SenderNonce             []byte
	HashAlgorithm           HashAlgorithm
	CRL                     []byte
}

func (p *AuthResponse) EncodeTo(w coder.Encoder) error {
	w.WriteBytes(1, p.Signature)
	w.WriteBytes(2, p.ClientAuthCertificate)
	for _, cert := range p.IntermediateCertificate {
		w.WriteBytes(3, cert)
	}
	w.WriteVarint(4, uint64(p.SignatureAlgorithm))
	if len(p.SenderNonce) > 0 {
		w.WriteBytes(5, p.SenderNonce)
	}
	w.WriteVarint(6, uint64(p.HashAlgorithm))
	if len(p.CRL) > 0 {
		w.WriteBytes(7, p.CRL)
	}
	return nil
}

func (p *AuthResponse) DecodeFrom(r coder.Decoder) error {
	return decodeFields(r, func(num coder.Number) (err error) {
		var v uint64
		switch num {
		case 1:
			p.Signature, err = r.ReadBytes()
		case 2:
			p.ClientAuthCertificate, err = r.ReadBytes()
		case 3:
			var cert []byte
			cert, err = r.ReadBytes()
			p.IntermediateCertificate = append(p.IntermediateCertificate, cert)
		case 4:
			v, err = r.ReadVarint()
			p.SignatureAlgorithm = SignatureAlgorithm(v)
		case 5:
			p.SenderNonce, err = r.ReadBytes()
		case 6:
			v, err = r.ReadVarint()
			p.HashAlgorithm = HashAlgorithm(v)
		case 7:
			p.CRL, err = r.ReadBytes()
		default:
			err = r.Skip()
		}
		return err
	})
}

type AuthError struct {
	ErrorType AuthErrorType
}

func (e *AuthError) EncodeTo(w coder.Encoder) error {
	w.WriteVarint(1, uint64(e.ErrorType))
	return nil
}

func (e *AuthError) DecodeFrom(r coder.Decoder) error {
	return decodeFields(r, func(num coder.Number) error {
		if num != 1 {
			return r.Skip()
		}
		v, err := r.ReadVarint()
		e.ErrorType = AuthErrorType(v)
		return err
	})
}

// DeviceAuthMessage is the binary payload of every message on AuthNamespace.
// Exactly one of the fields is expected to be set.
type DeviceAuthMessage struct {
	Challenge *AuthChallenge
	Response  *AuthResponse
	Error     *AuthError
}

func (m *DeviceAuthMessage) EncodeTo(w coder.Encoder) error {
	if m.Challenge != nil {
		if err := w.WriteMessage(1, m.Challenge); err != nil {
			return err
		}
	}
	if m.Response != nil {
		if err := w.WriteMessage(2, m.Response); err != nil {
			return err
		}
	}
	if m.Error != nil {
		if err := w.WriteMessage(3, m.Error); err != nil {
			return err
		}
	}
	return nil
}

func (m *DeviceAuthMessage) DecodeFrom(r coder.Decoder) error {
	return decodeFields(r, func(num coder.Number) error {
		switch num {
		case 1:
			m.Challenge = &AuthChallenge{}
			return r.ReadMessage(m.Challenge)
		case 2:
			m.Response = &AuthResponse{}
			return r.ReadMessage(m.Response)
		case 3:
			m.Error = &AuthError{}
			return r.ReadMessage(m.Error)
		default:
			return r.Skip()
		}
	})
}

// MarshalAuth serializes a DeviceAuthMessage.
func MarshalAuth(m *DeviceAuthMessage) ([]byte, error) {
	return coder.Marshal(m)
}

// UnmarshalAuth parses a DeviceAuthMessage payload.
func UnmarshalAuth(data []byte) (*DeviceAuthMessage, error) {
	m := &DeviceAuthMessage{}
	if err := coder.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeFields(r coder.Decoder, field func(num coder.Number) error) error {
	for {
		num, _, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := field(num); err != nil {
			return err
		}
	}
}
