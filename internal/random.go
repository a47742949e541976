package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"math/big"
	"strings"
)

// NewOTP generates a numeric one-time code with the given digit count.
func NewOTP(digits int) (string, error) {
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

// HashOTP produces the digest stored in place of a plaintext code.
func HashOTP(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// OTPEqual compares an entered code against a stored digest in constant
// time.
func OTPEqual(code string, want [32]byte) bool {
	got := HashOTP(code)
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}

// IsDigits reports whether s is non-empty and all ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
