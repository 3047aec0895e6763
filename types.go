package authcore

import (
	"context"
	"time"
)

// User is the account projection the engine works with. RoleName mirrors the
// joined role row so token issuance does not need a second repository call.
type User struct {
	ID           int64
	Email        string
	Name         string
	Phone        string
	Avatar       string
	PasswordHash string
	TOTPSecret   string
	RoleID       int64
	RoleName     string
}

// TOTPEnabled reports whether the account has a provisioned TOTP secret.
func (u *User) TOTPEnabled() bool {
	return u != nil && u.TOTPSecret != ""
}

// CreateUser carries the fields of a new account. The engine fills
// PasswordHash and RoleID before handing it to the repository.
type CreateUser struct {
	Email        string
	Name         string
	Phone        string
	Avatar       string
	PasswordHash string
	RoleID       int64
}

// UserRepository is the relational store behind user accounts. The engine
// never owns this storage; callers plug in their own implementation.
//
// FindByEmail and FindByID return ErrUserNotFound when no account matches.
// Create returns ErrEmailAlreadyExists on a duplicate email. Updating the
// TOTP secret with an empty string clears it.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, u CreateUser) (*User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateTOTPSecret(ctx context.Context, id int64, secret string) error
}

// Permission is a single route permission, matched by exact path and method.
type Permission struct {
	Path   string
	Method string
}

// RolePermissions is an active role together with its non-deleted permissions.
type RolePermissions struct {
	ID          int64
	Name        string
	Active      bool
	Permissions []Permission
}

// RoleRepository resolves roles for registration defaults and authorization.
//
// ClientRoleID returns the id of the default customer role assigned to
// self-registered and federated accounts. FindActiveWithPermissions returns
// ErrRoleNotFound when the role is missing, inactive, or deleted.
type RoleRepository interface {
	ClientRoleID(ctx context.Context) (int64, error)
	FindActiveWithPermissions(ctx context.Context, roleID int64) (*RolePermissions, error)
}

// EmailSender delivers verification codes. Implementations decide transport
// and templating; a send error surfaces to callers as ErrFailedToSendOTP.
type EmailSender interface {
	SendOTP(ctx context.Context, email, code string) error
}

// Device is one login session's client record. Devices are deactivated on
// logout, never deleted, so the session audit trail survives.
type Device struct {
	ID         int64
	UserID     int64
	UserAgent  string
	IP         string
	Active     bool
	CreatedAt  time.Time
	LastActive time.Time
}

// DeviceRegistry tracks login devices. Register assigns the device id.
// Touch refreshes metadata on token rotation and is best-effort; its failure
// never aborts a refresh. Deactivate marks the device inactive in place.
type DeviceRegistry interface {
	Register(ctx context.Context, userID int64, userAgent, ip string) (*Device, error)
	Touch(ctx context.Context, deviceID int64, userAgent, ip string) error
	Deactivate(ctx context.Context, deviceID int64) error
	Find(ctx context.Context, deviceID int64) (*Device, error)
}

// RefreshRecord is the stored row backing one outstanding refresh token.
type RefreshRecord struct {
	UserID    int64
	DeviceID  int64
	ExpiresAt time.Time
}

// RefreshTokenStore holds one row per outstanding refresh token. Consume
// atomically removes and returns the row; a missing row means the token was
// already spent and Consume returns ErrRefreshTokenAlreadyUsed. That single
// atomic removal is the arbiter for concurrent rotation of the same token.
type RefreshTokenStore interface {
	Save(ctx context.Context, token string, rec RefreshRecord, ttl time.Duration) error
	Find(ctx context.Context, token string) (*RefreshRecord, error)
	Consume(ctx context.Context, token string) (*RefreshRecord, error)
}

// VerificationType discriminates what a stored email code is allowed to gate.
type VerificationType string

const (
	VerificationRegister       VerificationType = "REGISTER"
	VerificationForgotPassword VerificationType = "FORGOT_PASSWORD"
	VerificationLogin          VerificationType = "LOGIN"
	VerificationDisable2FA     VerificationType = "DISABLE_2FA"
)

// VerificationCode is one stored email code, keyed by (Email, Type).
type VerificationCode struct {
	Email     string
	Type      VerificationType
	Code      string
	ExpiresAt time.Time
}

// VerificationCodeStore keeps at most one live code per (email, type).
// Upsert replaces any previous code, which closes the replay window for the
// old one. Validate returns ErrInvalidOTP on mismatch or absence and
// ErrOTPExpired when the stored code exists but is stale. Consume removes
// the code after the gated action succeeds.
type VerificationCodeStore interface {
	Upsert(ctx context.Context, code VerificationCode, ttl time.Duration) error
	Validate(ctx context.Context, email string, typ VerificationType, code string) error
	Consume(ctx context.Context, email string, typ VerificationType) error
}

// TokenPair is the result of login, refresh, and federated login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
