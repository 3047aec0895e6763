package authcore

import "errors"

// Sentinel errors returned by Engine operations. Callers map these to
// transport-level responses with [KindOf].
var (
	// ErrEmailAlreadyExists is returned when registering (or requesting a
	// registration OTP for) an email that already has an account.
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrEmailNotFound is returned when an operation requires an existing
	// account for the given email and none exists.
	ErrEmailNotFound = errors.New("email not found")
	// ErrUserNotFound is returned when a user id does not resolve to an account.
	ErrUserNotFound = errors.New("user not found")
	// ErrPasswordIncorrect is returned by Login when the password does not match.
	ErrPasswordIncorrect = errors.New("password incorrect")

	// ErrInvalidOTP is returned when a verification code does not match the
	// stored one for (email, type).
	ErrInvalidOTP = errors.New("invalid otp code")
	// ErrOTPExpired is returned when a stored verification code exists but is
	// past its expiry.
	ErrOTPExpired = errors.New("otp code expired")
	// ErrFailedToSendOTP is returned when the email delivery of a generated
	// code fails. The stored code remains valid.
	ErrFailedToSendOTP = errors.New("failed to send otp")

	// ErrInvalidTOTP is returned when a supplied authenticator code does not
	// verify against the user's TOTP secret.
	ErrInvalidTOTP = errors.New("invalid totp code")
	// ErrTOTPNotSupplied is returned when an operation gated by 2FA receives
	// neither a TOTP code nor an email OTP.
	ErrTOTPNotSupplied = errors.New("totp or otp code required")
	// ErrTOTPAlreadyEnabled is returned by Setup2FA when the account already
	// has a TOTP secret.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrTOTPNotEnabled is returned by Disable2FA when the account has no
	// TOTP secret to remove.
	ErrTOTPNotEnabled = errors.New("totp not enabled")

	// ErrDeviceCreationFailed is returned when the device registry cannot
	// record the session device at login.
	ErrDeviceCreationFailed = errors.New("device creation failed")
	// ErrDeviceNotFound is returned by device registry lookups and updates
	// when the device id is unknown.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrRedisUnavailable wraps Redis transport failures from the engine's
	// operational stores.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrRefreshTokenNotFound is returned when a refresh-token row lookup
	// finds nothing.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrRefreshTokenAlreadyUsed is returned when a refresh token's stored
	// row was already consumed. A second concurrent rotation of the same
	// token always fails with this error; rotation is never idempotent.
	ErrRefreshTokenAlreadyUsed = errors.New("refresh token already used")

	// ErrMissingAccessToken is returned by the guard when no bearer token is
	// present on the request.
	ErrMissingAccessToken = errors.New("missing access token")
	// ErrInvalidAccessToken is returned when an access token fails
	// verification for any reason.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrPermissionDenied is returned when a verified identity lacks the
	// permission for the requested path and method.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRoleNotFound is returned by role repositories when a role id does
	// not resolve to an active, non-deleted role.
	ErrRoleNotFound = errors.New("role not found")

	// ErrInvalidGoogleEmail is returned when the Google userinfo response
	// carries no email address.
	ErrInvalidGoogleEmail = errors.New("google account has no email")
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Kind classifies an error for boundary mapping (HTTP status codes, gRPC
// codes). Unknown errors classify as KindInternal.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindUnprocessable
)

// KindOf reports the Kind of err by matching the package sentinels.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrEmailAlreadyExists),
		errors.Is(err, ErrTOTPAlreadyEnabled):
		return KindConflict
	case errors.Is(err, ErrEmailNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrRoleNotFound),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, ErrRefreshTokenNotFound):
		return KindNotFound
	case errors.Is(err, ErrPasswordIncorrect),
		errors.Is(err, ErrInvalidOTP),
		errors.Is(err, ErrOTPExpired),
		errors.Is(err, ErrInvalidTOTP),
		errors.Is(err, ErrTOTPNotSupplied),
		errors.Is(err, ErrTOTPNotEnabled):
		return KindUnprocessable
	case errors.Is(err, ErrMissingAccessToken),
		errors.Is(err, ErrInvalidAccessToken),
		errors.Is(err, ErrRefreshTokenAlreadyUsed):
		return KindUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return KindForbidden
	case errors.Is(err, ErrInvalidGoogleEmail):
		return KindValidation
	default:
		return KindInternal
	}
}
