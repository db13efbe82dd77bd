package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"time"

	"sutext.github.io/cast/castmsg"
)

// MaxTLSCertLifetime bounds how far in the future the receiver's self-signed
// TLS certificate may expire.
const MaxTLSCertLifetime = 4 * 24 * time.Hour

// AudioOnlyPolicyOID marks a device certificate chain as audio-only.
var AudioOnlyPolicyOID = []uint64{1, 3, 6, 1, 4, 1, 11129, 2, 5, 2}

var audioOnlyOID, _ = x509.OIDFromInts(AudioOnlyPolicyOID)

// VerifyTLSCertificate checks the validity window of the peer's TLS cert.
func VerifyTLSCertificate(cert *x509.Certificate, now time.Time) Result {
	if cert.NotBefore.After(now) {
		return failure(ErrorTLSCertValidStartDateInFuture, "not before %s", cert.NotBefore)
	}
	if cert.NotAfter.Before(now) {
		return failure(ErrorTLSCertExpired, "not after %s", cert.NotAfter)
	}
	if cert.NotAfter.After(now.Add(MaxTLSCertLifetime)) {
		return failure(ErrorTLSCertValidityPeriodTooLong, "not after %s", cert.NotAfter)
	}
	return success(PolicyNone)
}

// VerifyCredentials verifies the device certificate chain of resp against
// trust and the signature over signed. On success the result carries the
// policy derived from the verified chain.
func VerifyCredentials(resp *castmsg.AuthResponse, signed []byte, trust *TrustStore, now time.Time) Result {
	leaf, err := x509.ParseCertificate(resp.ClientAuthCertificate)
	if err != nil {
		return failure(ErrorCertParsingFailed, "device cert: %v", err)
	}
	intermediates := x509.NewCertPool()
	for i, der := range resp.IntermediateCertificate {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return failure(ErrorCertParsingFailed, "intermediate %d: %v", i, err)
		}
		intermediates.AddCert(cert)
	}
	if trust == nil || trust.Len() == 0 {
		return failure(ErrorCertNotSignedByTrustedCA, "no trusted roots")
	}
	chains, err := leaf.Verify(x509.VerifyOptions{
		Roots:         trust.pool,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return failure(ErrorCertNotSignedByTrustedCA, "%v", err)
	}
	if len(resp.Signature) == 0 {
		return failure(ErrorSignatureEmpty, "")
	}
	if r := verifySignature(leaf, resp, signed); !r.Success() {
		return r
	}
	return success(chainPolicy(chains))
}

func verifySignature(leaf *x509.Certificate, resp *castmsg.AuthResponse, signed []byte) Result {
	var (
		hash   crypto.Hash
		digest []byte
	)
	switch resp.HashAlgorithm {
	case castmsg.HashSHA1:
		sum := sha1.Sum(signed)
		hash, digest = crypto.SHA1, sum[:]
	case castmsg.HashSHA256:
		sum := sha256.Sum256(signed)
		hash, digest = crypto.SHA256, sum[:]
	default:
		return failure(ErrorDigestUnsupported, "hash algorithm %d", resp.HashAlgorithm)
	}
	switch key := leaf.PublicKey.(type) {
	case *rsa.PublicKey:
		var err error
		if resp.SignatureAlgorithm == castmsg.SignatureRSASSAPSS {
			err = rsa.VerifyPSS(key, hash, digest, resp.Signature, nil)
		} else {
			err = rsa.VerifyPKCS1v15(key, hash, digest, resp.Signature)
		}
		if err != nil {
			return failure(ErrorSignedBlobsMismatch, "%v", err)
		}
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest, resp.Signature) {
			return failure(ErrorSignedBlobsMismatch, "ecdsa signature mismatch")
		}
	default:
		return failure(ErrorCannotExtractPublicKey, "unsupported key %T", leaf.PublicKey)
	}
	return success(PolicyNone)
}

func chainPolicy(chains [][]*x509.Certificate) Policy {
	for _, chain := range chains {
		for _, cert := range chain {
			for _, oid := range cert.Policies {
				if oid.Equal(audioOnlyOID) {
					return PolicyAudioOnly
				}
			}
		}
	}
	return PolicyNone
}
