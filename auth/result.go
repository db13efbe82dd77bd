package auth

import "fmt"

// ErrorType classifies an authentication failure.
type ErrorType uint8

const (
	ErrorNone ErrorType = iota
	ErrorPeerCertEmpty
	ErrorWrongPayloadType
	ErrorNoPayload
	ErrorPayloadParsingFailed
	ErrorMessageError
	ErrorNoResponse
	ErrorFingerprintNotFound
	ErrorCertParsingFailed
	ErrorCertNotSignedByTrustedCA
	ErrorCannotExtractPublicKey
	ErrorSignedBlobsMismatch
	ErrorTLSCertValidityPeriodTooLong
	ErrorTLSCertValidStartDateInFuture
	ErrorTLSCertExpired
	ErrorSenderNonceMismatch
	ErrorSignatureEmpty
	ErrorDigestUnsupported
)

var errorTypeMap = map[ErrorType]string{
	ErrorNone:                          "none",
	ErrorPeerCertEmpty:                 "peer cert empty",
	ErrorWrongPayloadType:              "wrong payload type",
	ErrorNoPayload:                     "no payload",
	ErrorPayloadParsingFailed:          "payload parsing failed",
	ErrorMessageError:                  "message error",
	ErrorNoResponse:                    "no response",
	ErrorFingerprintNotFound:           "fingerprint not found",
	ErrorCertParsingFailed:             "cert parsing failed",
	ErrorCertNotSignedByTrustedCA:      "cert not signed by trusted ca",
	ErrorCannotExtractPublicKey:        "cannot extract public key",
	ErrorSignedBlobsMismatch:           "signed blobs mismatch",
	ErrorTLSCertValidityPeriodTooLong:  "tls cert validity period too long",
	ErrorTLSCertValidStartDateInFuture: "tls cert valid start date in future",
	ErrorTLSCertExpired:                "tls cert expired",
	ErrorSenderNonceMismatch:           "sender nonce mismatch",
	ErrorSignatureEmpty:                "signature empty",
	ErrorDigestUnsupported:             "digest unsupported",
}

func (e ErrorType) String() string {
	if s, ok := errorTypeMap[e]; ok {
		return s
	}
	return "unknown"
}
func (e ErrorType) Error() string {
	return e.String()
}

// Policy is a bitmask of restrictions the device certificate imposes on the
// channel.
type Policy uint8

const (
	PolicyNone      Policy = 0
	PolicyAudioOnly Policy = 1 << 0
)

func (p Policy) AudioOnly() bool {
	return p&PolicyAudioOnly != 0
}

// Result is the outcome of authenticating a challenge reply.
type Result struct {
	Type   ErrorType
	Policy Policy
	Detail string
}

func success(policy Policy) Result {
	return Result{Type: ErrorNone, Policy: policy}
}

func failure(t ErrorType, format string, args ...any) Result {
	return Result{Type: t, Detail: fmt.Sprintf(format, args...)}
}

func (r Result) Success() bool {
	return r.Type == ErrorNone
}

// Err returns nil on success, otherwise an error wrapping the ErrorType.
func (r Result) Err() error {
	if r.Success() {
		return nil
	}
	if r.Detail == "" {
		return r.Type
	}
	return fmt.Errorf("%w: %s", r.Type, r.Detail)
}
