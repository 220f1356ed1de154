package accounts

import (
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

// MinPasswordLength applies to self-service sign up.
var MinPasswordLength = 8

// MinInvitePasswordLength applies to the invite acceptance form.
var MinInvitePasswordLength = 6

// ErrPasswordMismatch is returned when password and confirmation differ.
var ErrPasswordMismatch = goerrors.New("passwords must match", goerrors.CategoryValidation).
	WithTextCode("PASSWORD_MISMATCH").
	WithCode(goerrors.CodeBadRequest)

// SignUpForm is the self-service registration payload.
type SignUpForm struct {
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm-password" json:"confirm_password"`
	FirstName       string `form:"first-name" json:"first_name"`
	LastName        string `form:"last-name" json:"last_name"`
	Username        string `form:"username" json:"username"`
}

// Validate runs the form rules. Everything here rejects before any
// backend call is made.
func (f SignUpForm) Validate() error {
	if f.Password != f.ConfirmPassword {
		return ErrPasswordMismatch
	}

	err := validation.ValidateStruct(&f,
		validation.Field(&f.Email, validation.Required, is.Email),
		validation.Field(&f.Password,
			validation.Required,
			validation.Length(MinPasswordLength, 0).
				Error("password must be at least 8 characters"),
			validation.By(passwordStrength),
		),
		validation.Field(&f.FirstName, validation.Required),
		validation.Field(&f.LastName, validation.Required),
		validation.Field(&f.Username, validation.Required),
	)
	return invalidForm(err)
}

func (f SignUpForm) Metadata() SignupMetadata {
	return SignupMetadata{
		FirstName: strings.TrimSpace(f.FirstName),
		LastName:  strings.TrimSpace(f.LastName),
		Username:  strings.TrimSpace(f.Username),
	}
}

// SignInForm is the password sign-in payload.
type SignInForm struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (f SignInForm) Validate() error {
	return invalidForm(validation.ValidateStruct(&f,
		validation.Field(&f.Email, validation.Required, is.Email),
		validation.Field(&f.Password, validation.Required),
	))
}

// InviteForm collects the invited user's details before the code
// exchange.
type InviteForm struct {
	FirstName string `form:"first-name" json:"first_name"`
	LastName  string `form:"last-name" json:"last_name"`
	Username  string `form:"username" json:"username"`
	Password  string `form:"password" json:"password"`
}

func (f InviteForm) Validate() error {
	return invalidForm(validation.ValidateStruct(&f,
		validation.Field(&f.FirstName, validation.Required),
		validation.Field(&f.LastName, validation.Required),
		validation.Field(&f.Username, validation.Required),
		validation.Field(&f.Password,
			validation.Required,
			validation.Length(MinInvitePasswordLength, 0).
				Error("password must be at least 6 characters"),
		),
	))
}

func (f InviteForm) Metadata() SignupMetadata {
	return SignupMetadata{
		FirstName: strings.TrimSpace(f.FirstName),
		LastName:  strings.TrimSpace(f.LastName),
		Username:  strings.TrimSpace(f.Username),
	}
}

// passwordStrength requires a digit, an upper and lower case letter, and
// a special character.
func passwordStrength(value any) error {
	s, _ := value.(string)
	var hasDigit, hasLower, hasUpper, hasSpecial bool
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		default:
			hasSpecial = true
		}
	}
	if hasDigit && hasLower && hasUpper && hasSpecial {
		return nil
	}
	return validation.NewError(
		"validation_password_weak",
		"password is too weak, include digits, lowercase, uppercase, and special characters",
	)
}

func invalidForm(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
		WithCode(goerrors.CodeBadRequest)
}
