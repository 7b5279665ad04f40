package auth

import (
	"strings"

	"github.com/asaskevich/govalidator"

	domainerrors "gatehouse/pkg/domain-errors"
)

// Client-side validation runs before any network call so obviously malformed
// input never reaches the backend.

const (
	minPasswordLength = 8
	otpCodeLength     = 6
)

func validateEmail(email string) error {
	if !govalidator.StringLength(email, "1", "255") || !govalidator.IsEmail(email) {
		return domainerrors.New(domainerrors.CodeValidation, "invalid email address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return domainerrors.Newf(domainerrors.CodeValidation,
			"password must be at least %d characters", minPasswordLength)
	}
	return nil
}

func validateOTPCode(code string) error {
	if len(code) != otpCodeLength || !govalidator.IsNumeric(code) {
		return domainerrors.Newf(domainerrors.CodeValidation,
			"verification code must be %d digits", otpCodeLength)
	}
	return nil
}

func validateName(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return domainerrors.Newf(domainerrors.CodeValidation, "%s is required", field)
	}
	return nil
}
