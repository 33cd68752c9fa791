package internal

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const (
	alphanumericAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	linkTokenSize        = 32
	guestTokenSize       = 32
)

// NewNumericCode returns a uniformly random decimal one-time code.
func NewNumericCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// NewAlphanumericCode returns a uniformly random code over [0-9A-Z].
func NewAlphanumericCode(length int) (string, error) {
	if length < 6 || length > 16 {
		return "", errors.New("invalid code length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(alphanumericAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphanumericAlphabet[n.Int64()])
	}

	return b.String(), nil
}

// NewLinkToken returns a 256-bit magic-link token, base64url without
// padding.
func NewLinkToken() (string, error) {
	var raw [linkTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewGuestToken returns a 256-bit guest session token, hex-encoded.
func NewGuestToken() (string, error) {
	var raw [guestTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// HashCredential is the keyed hash persisted in place of a plaintext
// credential. The secret never leaves the server.
func HashCredential(secret []byte, plaintext string) [32]byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(plaintext))

	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}
