package keygate

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxNameLength     = 30
	maxEmailLength    = 254
	minPasswordLength = 8

	msgRequired         = "This field is required."
	msgTooLong          = "Ensure this field has no more than 30 characters."
	msgEmailTooLong     = "Ensure this field has no more than 254 characters."
	msgInvalidEmail     = "Invalid email format."
	msgNicknameTaken    = "User with this nickname already exists."
	msgEmailTaken       = "User with this email already exists."
	msgPasswordWeak     = "Password must be at least 8 characters long, contain at least one digit, contain at least one special character, and not have any spaces."
	msgPasswordMismatch = "Passwords must match."
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,4}$`)

// normalizeEmail lower-cases the domain part. The local part is kept as
// entered since some providers treat it case-sensitively.
func normalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// passwordStrong reports whether p has at least eight characters, a digit
// and a punctuation or symbol character, and no whitespace.
func passwordStrong(p string) bool {
	if utf8.RuneCountInString(p) < minPasswordLength {
		return false
	}
	var digit, symbol bool
	for _, r := range p {
		switch {
		case unicode.IsSpace(r):
			return false
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return digit && symbol
}

func validatePasswordPair(verr *ValidationError, password, confirm string) {
	if password == "" {
		verr.add(FieldPassword, msgRequired)
	} else if !passwordStrong(password) {
		verr.add(FieldPassword, msgPasswordWeak)
	}
	if password != confirm {
		verr.add(FieldConfirmPassword, msgPasswordMismatch)
	}
}

func validateName(verr *ValidationError, field, value string) {
	switch {
	case strings.TrimSpace(value) == "":
		verr.add(field, msgRequired)
	case utf8.RuneCountInString(value) > maxNameLength:
		verr.add(field, msgTooLong)
	}
}

// validateEmail also bounds the length to what account stores hold.
func validateEmail(verr *ValidationError, email string) {
	switch {
	case email == "":
		verr.add(FieldEmail, msgRequired)
	case len(email) > maxEmailLength:
		verr.add(FieldEmail, msgEmailTooLong)
	case !validEmail(email):
		verr.add(FieldEmail, msgInvalidEmail)
	}
}

// validateRegistration checks field rules and then, for fields that passed,
// uniqueness against the account store.
func (e *Engine) validateRegistration(ctx context.Context, req RegistrationRequest) error {
	verr := &ValidationError{}

	validateName(verr, FieldNickname, req.Nickname)
	validateName(verr, FieldDisplayName, req.DisplayName)
	validateEmail(verr, req.Email)
	validatePasswordPair(verr, req.Password, req.ConfirmPassword)

	if _, bad := verr.Fields[FieldNickname]; !bad {
		taken, err := e.accounts.ExistsByNickname(ctx, req.Nickname)
		if err != nil {
			return wrapUnavailable(err)
		}
		if taken {
			verr.add(FieldNickname, msgNicknameTaken)
		}
	}
	if _, bad := verr.Fields[FieldEmail]; !bad {
		taken, err := e.accounts.ExistsByEmail(ctx, req.Email)
		if err != nil {
			return wrapUnavailable(err)
		}
		if taken {
			verr.add(FieldEmail, msgEmailTaken)
		}
	}

	return verr.orNil()
}

// checkUnique repeats the uniqueness part of registration validation at
// confirmation time and reports the first collision as a ConflictError.
func (e *Engine) checkUnique(ctx context.Context, nickname, email string) error {
	taken, err := e.accounts.ExistsByNickname(ctx, nickname)
	if err != nil {
		return err
	}
	if taken {
		return &ConflictError{Field: FieldNickname}
	}
	taken, err = e.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if taken {
		return &ConflictError{Field: FieldEmail}
	}
	return nil
}

func validateRecoveryEmail(email string) error {
	verr := &ValidationError{}
	validateEmail(verr, email)
	return verr.orNil()
}

func validateNewPassword(password, confirm string) error {
	verr := &ValidationError{}
	validatePasswordPair(verr, password, confirm)
	return verr.orNil()
}
