package keygate

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrValidation marks a request rejected for malformed fields. The
	// concrete error is a *ValidationError listing every offending field.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyExists marks a nickname or email taken by the time a
	// registration is confirmed. The concrete error is a *ConflictError.
	ErrAlreadyExists = errors.New("account already exists")
	// ErrInvalidCode is returned for a code that is unknown, expired, already
	// redeemed or outside the issued range.
	ErrInvalidCode = errors.New("invalid code")
	// ErrUserNotFound is returned when no account matches the identifier or email.
	ErrUserNotFound = errors.New("user not found")
	// ErrWrongPassword is returned when the account exists but the password does not match.
	ErrWrongPassword = errors.New("wrong password")
	// ErrTokenInvalid is returned for refresh or access tokens that are
	// malformed, forged, expired or of the wrong type.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrUnavailable wraps secret store, account store and hashing failures.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrNotification wraps a failed code delivery.
	ErrNotification = errors.New("notification failed")
	// ErrCodeSpaceExhausted means no free code could be found within the
	// configured number of attempts.
	ErrCodeSpaceExhausted = errors.New("no free code available")
	// ErrEngineNotReady is returned by an Engine missing a required dependency.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrAccountNotFound is returned by AccountStore lookups that match nothing.
	ErrAccountNotFound = errors.New("account not found")
)

// Field names used in ValidationError and ConflictError.
const (
	FieldNickname        = "nickname"
	FieldDisplayName     = "username"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
	FieldCode            = "code"
)

// ValidationError carries one human-readable message per rejected field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(ErrValidation.Error())
	b.WriteString(": ")
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(e.Fields[name])
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// add records msg for field unless the field already has a message.
func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ConflictError names the unique attribute that collided.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return ErrAlreadyExists.Error() + ": " + e.Field
}

func (e *ConflictError) Is(target error) bool { return target == ErrAlreadyExists }

// Message returns the user-facing text for the conflict.
func (e *ConflictError) Message() string {
	switch e.Field {
	case FieldNickname:
		return msgNicknameTaken
	case FieldEmail:
		return msgEmailTaken
	default:
		return "User already exists."
	}
}

// Kind classifies a workflow failure for callers that map errors to
// transport status codes.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindAlreadyExists
	KindInvalidCode
	KindUserNotFound
	KindWrongPassword
	KindTokenInvalid
	KindNotification
	KindUnavailable
)

var kindOrder = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrInvalidCode, KindInvalidCode},
	{ErrUserNotFound, KindUserNotFound},
	{ErrWrongPassword, KindWrongPassword},
	{ErrTokenInvalid, KindTokenInvalid},
	{ErrNotification, KindNotification},
	{ErrUnavailable, KindUnavailable},
	{ErrCodeSpaceExhausted, KindUnavailable},
	{ErrEngineNotReady, KindUnavailable},
}

// KindOf returns the failure kind of err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// IsCredentialFailure reports whether err is an unknown identity or a wrong
// password. Boundaries that must not reveal which one occurred can collapse
// both into a single response with it.
func IsCredentialFailure(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrWrongPassword)
}
