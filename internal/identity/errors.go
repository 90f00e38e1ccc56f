package identity

import "errors"

var (
	// ErrNotAuthenticated means there is no active session. It is a valid state, not a failure.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrProviderUnavailable wraps transport or provider failures.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrInvalidCredentials is returned when the provider rejects a sign-in.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrProfileNotFound is returned when a principal has no profile record and provisioning is disabled.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrEmailTaken is returned by sign-up when the email already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrRecoveryInvalid is returned when a recovery token is unknown or expired.
	ErrRecoveryInvalid = errors.New("recovery token invalid or expired")
	// ErrValidation marks bad caller input.
	ErrValidation = errors.New("validation error")
)
