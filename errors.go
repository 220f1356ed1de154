package accounts

import (
	goerrors "github.com/goliatone/go-errors"
)

// ErrMissingSignupMetadata is returned when profile creation is attempted
// for an identity that carries no signup metadata.
var ErrMissingSignupMetadata = goerrors.New("no signup metadata found on identity", goerrors.CategoryValidation).
	WithTextCode("MISSING_SIGNUP_METADATA").
	WithCode(goerrors.CodeBadRequest)

// ErrNoProfileLoaded is returned when an update is attempted before a
// profile has been fetched or created.
var ErrNoProfileLoaded = goerrors.New("no user profile loaded to update", goerrors.CategoryConflict).
	WithTextCode("NO_PROFILE_LOADED").
	WithCode(goerrors.CodeConflict)

// ErrProfileNotFound is returned when no users row exists for the id.
var ErrProfileNotFound = goerrors.New("user profile not found", goerrors.CategoryNotFound).
	WithTextCode("PROFILE_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

// ErrDuplicateRegistration is the friendly mapping for the backend's
// "already registered" failure during sign up.
var ErrDuplicateRegistration = goerrors.New("email already registered, please sign in", goerrors.CategoryConflict).
	WithTextCode("DUPLICATE_REGISTRATION").
	WithCode(goerrors.CodeConflict)

// ErrInvalidInviteLink is returned when the invite fragment is missing its
// access token, carries the wrong type, or reports a provider error.
var ErrInvalidInviteLink = goerrors.New("invalid or missing invite link", goerrors.CategoryAuth).
	WithTextCode("INVALID_INVITE_LINK").
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionNotFound is returned by flows that require an authenticated
// session when none is present.
var ErrSessionNotFound = goerrors.New("no authenticated session", goerrors.CategoryAuth).
	WithTextCode("SESSION_NOT_FOUND").
	WithCode(goerrors.CodeUnauthorized)

// wrapAuth normalizes identity backend failures while keeping the backend
// message intact for inline display.
func wrapAuth(err error, msg string) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}
	return goerrors.Wrap(err, goerrors.CategoryAuth, msg).
		WithCode(goerrors.CodeUnauthorized)
}

// wrapProfile normalizes database backend failures. Not-found is preserved
// as a not-found category so callers can branch on it.
func wrapProfile(err error, msg string) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}
	if goerrors.IsNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryNotFound, msg).
			WithCode(goerrors.CodeNotFound)
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, msg)
}

// IsNotFound reports whether err represents a missing record.
func IsNotFound(err error) bool {
	return goerrors.IsNotFound(err)
}
