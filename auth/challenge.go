package auth

import (
	"bytes"
	"crypto/x509"
	"time"

	"sutext.github.io/cast/castmsg"
)

// CreateAuthChallengeMessage builds the binary DeviceAuthMessage challenge
// carrying the nonce of ctx.
func CreateAuthChallengeMessage(ctx *Context) (*castmsg.CastMessage, error) {
	payload, err := castmsg.MarshalAuth(&castmsg.DeviceAuthMessage{
		Challenge: &castmsg.AuthChallenge{
			SignatureAlgorithm: castmsg.SignatureRSASSAPKCS1v15,
			SenderNonce:        ctx.Nonce(),
			HashAlgorithm:      castmsg.HashSHA256,
		},
	})
	if err != nil {
		return nil, err
	}
	return castmsg.NewBinaryMessage(castmsg.AuthNamespace, castmsg.PlatformSenderID, castmsg.PlatformReceiverID, payload), nil
}

// IsAuthMessage reports whether m belongs to the device auth namespace.
func IsAuthMessage(m *castmsg.CastMessage) bool {
	return m != nil && m.Namespace == castmsg.AuthNamespace
}

// VerifyOptions tunes AuthenticateChallengeReply.
type VerifyOptions struct {
	Trust        *TrustStore
	EnforceNonce bool
	// Now overrides the verification time; zero means time.Now.
	Now time.Time
}

func (o VerifyOptions) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// AuthenticateChallengeReply validates the receiver's reply to the challenge
// created from ctx. peerCert is the certificate presented in the TLS
// handshake; the device must have signed it together with the nonce.
func AuthenticateChallengeReply(reply *castmsg.CastMessage, peerCert *x509.Certificate, ctx *Context, opts VerifyOptions) Result {
	if peerCert == nil {
		return failure(ErrorPeerCertEmpty, "")
	}
	if reply.PayloadType != castmsg.PayloadBinary {
		return failure(ErrorWrongPayloadType, "payload type %s", reply.PayloadType)
	}
	if len(reply.PayloadBinary) == 0 {
		return failure(ErrorNoPayload, "")
	}
	msg, err := castmsg.UnmarshalAuth(reply.PayloadBinary)
	if err != nil {
		return failure(ErrorPayloadParsingFailed, "%v", err)
	}
	if msg.Error != nil {
		return failure(ErrorMessageError, "auth error type %d", msg.Error.ErrorType)
	}
	if msg.Response == nil {
		return failure(ErrorNoResponse, "")
	}
	now := opts.now()
	if r := VerifyTLSCertificate(peerCert, now); !r.Success() {
		return r
	}
	if r := ctx.VerifySenderNonce(msg.Response.SenderNonce, opts.EnforceNonce); !r.Success() {
		return r
	}
	signed := append(bytes.Clone(msg.Response.SenderNonce), peerCert.Raw...)
	return VerifyCredentials(msg.Response, signed, opts.Trust, now)
}
