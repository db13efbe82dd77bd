package receiver

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"net"
	"time"

	"sutext.github.io/cast/auth"
	"sutext.github.io/cast/castmsg"
)

// Credentials is the certificate material of a fake Cast device: a root CA
// the sender trusts, an intermediate, the device certificate that signs
// challenges, and the self-signed TLS certificate served on the socket.
type Credentials struct {
	Root         *x509.Certificate
	Intermediate *x509.Certificate
	Device       *x509.Certificate
	DeviceKey    crypto.Signer

	tlsKey      crypto.Signer
	ips         []net.IP
	tlsValidity [2]time.Time
}

type CredentialOptions struct {
	// AudioOnly marks the intermediate with the audio-only policy.
	AudioOnly bool
	// RSA makes the device key RSA instead of ECDSA P-256.
	RSA bool
	// IPs are placed in the TLS certificate's subject alternative names.
	IPs []net.IP
	// TLSNotBefore and TLSNotAfter override the validity window of the
	// served TLS certificate.
	TLSNotBefore time.Time
	TLSNotAfter  time.Time
}

func NewCredentials(opts CredentialOptions) (*Credentials, error) {
	now := time.Now()
	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	root, err := createCert(&x509.Certificate{
		Subject:               pkix.Name{CommonName: "Fake Cast Root CA"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}, nil, rootKey.Public(), rootKey)
	if err != nil {
		return nil, err
	}
	icaKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	icaTemplate := &x509.Certificate{
		Subject:               pkix.Name{CommonName: "Fake Cast ICA"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(180 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	if opts.AudioOnly {
		oid, err := x509.OIDFromInts(auth.AudioOnlyPolicyOID)
		if err != nil {
			return nil, err
		}
		icaTemplate.Policies = []x509.OID{oid}
		icaTemplate.PolicyIdentifiers = []asn1.ObjectIdentifier{audioOnlyASN1()}
	}
	ica, err := createCert(icaTemplate, root, icaKey.Public(), rootKey)
	if err != nil {
		return nil, err
	}
	var deviceKey crypto.Signer
	if opts.RSA {
		deviceKey, err = rsa.GenerateKey(rand.Reader, 2048)
	} else {
		deviceKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	if err != nil {
		return nil, err
	}
	device, err := createCert(&x509.Certificate{
		Subject:   pkix.Name{CommonName: "Fake Cast Device"},
		NotBefore: now.Add(-time.Hour),
		NotAfter:  now.Add(30 * 24 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}, ica, deviceKey.Public(), icaKey)
	if err != nil {
		return nil, err
	}
	tlsKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Credentials{
		Root:         root,
		Intermediate: ica,
		Device:       device,
		DeviceKey:    deviceKey,
		tlsKey:       tlsKey,
		ips:          opts.IPs,
		tlsValidity:  [2]time.Time{opts.TLSNotBefore, opts.TLSNotAfter},
	}, nil
}

// TLSCertificate issues a fresh self-signed certificate for the socket,
// valid for two days like the one a real receiver rotates.
func (c *Credentials) TLSCertificate() (tls.Certificate, error) {
	now := time.Now()
	notBefore, notAfter := now.Add(-time.Minute), now.Add(48*time.Hour)
	if !c.tlsValidity[0].IsZero() {
		notBefore = c.tlsValidity[0]
	}
	if !c.tlsValidity[1].IsZero() {
		notAfter = c.tlsValidity[1]
	}
	template := &x509.Certificate{
		Subject:     pkix.Name{CommonName: "Fake Cast Receiver"},
		NotBefore:   notBefore,
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses: c.ips,
	}
	cert, err := createCert(template, nil, c.tlsKey.Public(), c.tlsKey)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  c.tlsKey,
		Leaf:        cert,
	}, nil
}

// SignChallenge builds the auth response a genuine device would send for
// nonce over the TLS certificate tlsDER.
func (c *Credentials) SignChallenge(nonce, tlsDER []byte, hashAlg castmsg.HashAlgorithm) (*castmsg.AuthResponse, error) {
	signed := append(append([]byte{}, nonce...), tlsDER...)
	var (
		hash   crypto.Hash
		digest []byte
	)
	if hashAlg == castmsg.HashSHA1 {
		sum := sha1.Sum(signed)
		hash, digest = crypto.SHA1, sum[:]
	} else {
		sum := sha256.Sum256(signed)
		hash, digest = crypto.SHA256, sum[:]
	}
	signature, err := c.DeviceKey.Sign(rand.Reader, digest, hash)
	if err != nil {
		return nil, err
	}
	algorithm := castmsg.SignatureRSASSAPKCS1v15
	if _, ok := c.DeviceKey.(*rsa.PrivateKey); !ok {
		algorithm = castmsg.SignatureUnspecified
	}
	return &castmsg.AuthResponse{
		Signature:               signature,
		ClientAuthCertificate:   c.Device.Raw,
		IntermediateCertificate: [][]byte{c.Intermediate.Raw},
		SignatureAlgorithm:      algorithm,
		SenderNonce:             nonce,
		HashAlgorithm:           hashAlg,
	}, nil
}

// TrustStore returns a store trusting this device's root.
func (c *Credentials) TrustStore() *auth.TrustStore {
	return auth.NewTrustStore(c.Root)
}

// RootPEM encodes the root certificate for config files.
func (c *Credentials) RootPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Root.Raw})
}

func createCert(template, parent *x509.Certificate, pub crypto.PublicKey, signer crypto.Signer) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, err
	}
	template.SerialNumber = serial
	if parent == nil {
		parent = template
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

func audioOnlyASN1() asn1.ObjectIdentifier {
	oid := make(asn1.ObjectIdentifier, len(auth.AudioOnlyPolicyOID))
	for i, v := range auth.AudioOnlyPolicyOID {
		oid[i] = int(v)
	}
	return oid
}
