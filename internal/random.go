package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	// CodeMin and CodeMax bound the one-time codes, both inclusive.
	CodeMin = 100000
	CodeMax = 999999
)

var codeSpan = big.NewInt(CodeMax - CodeMin + 1)

// NewCode returns a uniformly distributed six-digit code from crypto/rand.
func NewCode() (int, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return 0, err
	}
	code := CodeMin + int(n.Int64())
	if !ValidCode(code) {
		return 0, errors.New("invalid code generation range")
	}
	return code, nil
}

// ValidCode reports whether code lies in the issued range.
func ValidCode(code int) bool {
	return code >= CodeMin && code <= CodeMax
}
