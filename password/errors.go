package password

import "errors"

var (
	ErrEmptyPassword   = errors.New("password is empty")
	ErrMalformedDigest = errors.New("malformed password digest")
)
