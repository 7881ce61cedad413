// Package credential handles the bearer token wire format and the one-way
// hashing of token secrets.
package credential

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Tokens are formatted as: ns_<prefix>_<secret>
//
// Both prefix and secret are lowercase hex, so the '_' delimiter can never
// appear inside either part.
const (
	Scheme    = "ns"
	Delimiter = "_"

	PrefixBytes = 4  // 8 hex chars
	SecretBytes = 24 // 48 hex chars, 192 bits
)

var ErrMalformedCredential = errors.New("malformed credential")

// Encode assembles a token from its public prefix and private secret.
func Encode(prefix, secret string) (string, error) {
	if prefix == "" || secret == "" ||
		strings.Contains(prefix, Delimiter) || strings.Contains(secret, Delimiter) {
		return "", ErrMalformedCredential
	}
	return Scheme + Delimiter + prefix + Delimiter + secret, nil
}

// Decode splits a token into prefix and secret. It performs no I/O.
func Decode(token string) (prefix, secret string, err error) {
	token = strings.TrimSpace(token)
	rest, ok := strings.CutPrefix(token, Scheme+Delimiter)
	if !ok {
		return "", "", ErrMalformedCredential
	}
	prefix, secret, ok = strings.Cut(rest, Delimiter)
	if !ok || prefix == "" || secret == "" || strings.Contains(secret, Delimiter) {
		return "", "", ErrMalformedCredential
	}
	return prefix, secret, nil
}

// NewPrefix returns a fresh random lookup prefix.
func NewPrefix() (string, error) {
	return randomHex(PrefixBytes)
}

// NewSecret returns a fresh random secret.
func NewSecret() (string, error) {
	return randomHex(SecretBytes)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
