package socket

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"
)

var (
	errNoPeerCertificate  = errors.New("peer presented no certificate")
	errCertNotWhitelisted = errors.New("peer certificate does not match the whitelisted one")
)

// tlsConfig verifies the peer chain against roots without a host name
// check, receivers are addressed by IP. With a whitelisted certificate only
// that exact certificate is accepted.
func tlsConfig(roots *x509.CertPool, whitelisted *x509.Certificate) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errNoPeerCertificate
			}
			leaf := cs.PeerCertificates[0]
			if whitelisted != nil {
				if leaf.Equal(whitelisted) {
					return nil
				}
				return errCertNotWhitelisted
			}
			intermediates := x509.NewCertPool()
			for _, cert := range cs.PeerCertificates[1:] {
				intermediates.AddCert(cert)
			}
			_, err := leaf.Verify(x509.VerifyOptions{
				Roots:         roots,
				Intermediates: intermediates,
				CurrentTime:   withinValidity(leaf, time.Now()),
			})
			if err != nil {
				return &tls.CertificateVerificationError{UnverifiedCertificates: cs.PeerCertificates, Err: err}
			}
			return nil
		},
	}
}

// withinValidity clamps now into the leaf's validity window. Expiry is
// judged after the handshake by auth.VerifyTLSCertificate, the handshake
// only decides trust.
func withinValidity(leaf *x509.Certificate, now time.Time) time.Time {
	if now.Before(leaf.NotBefore) {
		return leaf.NotBefore
	}
	if now.After(leaf.NotAfter) {
		return leaf.NotAfter
	}
	return now
}

// untrustedCertificate returns the certificate the peer offered when err
// says only that its issuer is unknown.
func untrustedCertificate(err error) *x509.Certificate {
	var cve *tls.CertificateVerificationError
	if !errors.As(err, &cve) || len(cve.UnverifiedCertificates) == 0 {
		return nil
	}
	var unknown x509.UnknownAuthorityError
	if !errors.As(cve.Err, &unknown) {
		return nil
	}
	return cve.UnverifiedCertificates[0]
}
