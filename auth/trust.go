package auth

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"sutext.github.io/cast/xerr"
)

// TrustStore is the set of Cast root certificates device chains must
// verify against. It is immutable after construction.
type TrustStore struct {
	pool  *x509.CertPool
	count int
}

func NewTrustStore(roots ...*x509.Certificate) *TrustStore {
	pool := x509.NewCertPool()
	for _, root := range roots {
		pool.AddCert(root)
	}
	return &TrustStore{pool: pool, count: len(roots)}
}

// LoadTrustStore reads every CERTIFICATE block of a PEM file.
func LoadTrustStore(path string) (*TrustStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTrustStore(data)
}

func ParseTrustStore(data []byte) (*TrustStore, error) {
	var roots []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse trust root: %w", err)
		}
		roots = append(roots, cert)
	}
	if len(roots) == 0 {
		return nil, xerr.TrustStoreEmpty
	}
	return NewTrustStore(roots...), nil
}

func (s *TrustStore) Len() int {
	if s == nil {
		return 0
	}
	return s.count
}
