// Package token generates the opaque session tokens that identify a single
// authorization handshake attempt.
package token

import (
	"crypto/rand"
)

// Length is the fixed length of a handshake session token.
const Length = 32

// alphabet is the set of characters a token is drawn from. Alphanumeric so
// the token survives QR encoding, URL query strings, and deep-link paths
// without escaping.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generate returns a new random session token: Length characters from an
// alphanumeric alphabet, ~190 bits of entropy. The token is the routing key
// for every notification channel of one attempt and must never be reused
// across attempts.
//
// Generate cannot fail: as of Go 1.24, crypto/rand.Read never returns an
// error and always fills the buffer.
func Generate() string {
	b := make([]byte, Length)
	_, _ = rand.Read(b)

	out := make([]byte, Length)
	for i, c := range b {
		out[i] = alphabet[int(c)%len(alphabet)]
	}
	return string(out)
}

// Valid reports whether s has the shape of a session token.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z':
		case 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9':
		default:
			return false
		}
	}
	return true
}
