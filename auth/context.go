// Package auth implements the application level device authentication of a
// Cast channel: the challenge sent after the TLS handshake and the
// verification of the receiver's signed reply against trusted Cast roots.
package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
)

// NonceSize is the number of random bytes in a sender nonce.
const NonceSize = 16

// Context holds the nonce of one connection attempt. A new Context is
// created for every attempt and never reused.
type Context struct {
	nonce []byte
}

func NewContext() *Context {
	nonce := make([]byte, NonceSize)
	// crypto/rand.Read never returns an error on supported platforms
	rand.Read(nonce)
	return &Context{nonce: nonce}
}

// NewContextWithNonce is used by tests that need a deterministic nonce.
func NewContextWithNonce(nonce []byte) *Context {
	return &Context{nonce: bytes.Clone(nonce)}
}

func (c *Context) Nonce() []byte {
	return bytes.Clone(c.nonce)
}

func (c *Context) String() string {
	return hex.EncodeToString(c.nonce)
}

// VerifySenderNonce checks the nonce echoed by the receiver. Older receivers
// do not echo it, so a mismatch only fails when enforce is set.
func (c *Context) VerifySenderNonce(nonce []byte, enforce bool) Result {
	if bytes.Equal(c.nonce, nonce) {
		return success(PolicyNone)
	}
	if !enforce {
		return success(PolicyNone)
	}
	if len(nonce) == 0 {
		return failure(ErrorSenderNonceMismatch, "sender nonce missing")
	}
	return failure(ErrorSenderNonceMismatch, "expected %x, got %x", c.nonce, nonce)
}
