package authcore

import "context"

// TOTPSetup is the provisioning material returned by Setup2FA: the base32
// secret for manual entry and the otpauth:// URI for QR rendering.
type TOTPSetup struct {
	Secret string
	URI    string
}

// Setup2FA provisions a TOTP secret for the account and returns the
// provisioning material. An account with a secret already set must disable
// it first; silently rotating the secret would lock out the existing
// authenticator.
func (e *Engine) Setup2FA(ctx context.Context, userID int64) (*TOTPSetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if user.TOTPEnabled() {
		return nil, ErrTOTPAlreadyEnabled
	}

	_, secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	if err := e.users.UpdateTOTPSecret(ctx, user.ID, secret); err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricTOTPEnabled)
	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, user.ID, user.Email, 0, nil, nil)

	return &TOTPSetup{
		Secret: secret,
		URI:    e.totp.ProvisionURI(secret, user.Email),
	}, nil
}

// Disable2FAInput carries a request to remove the TOTP secret. The request
// is gated the same way as login: an authenticator code or an emailed
// DISABLE_2FA code.
type Disable2FAInput struct {
	UserID   int64
	TOTPCode string
	Code     string
}

// Disable2FA removes the account's TOTP secret after the second-factor gate
// passes. The emailed code, when used, is consumed best-effort afterwards.
func (e *Engine) Disable2FA(ctx context.Context, in Disable2FAInput) error {
	if e == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.FindByID(ctx, in.UserID)
	if err != nil {
		return ErrUserNotFound
	}
	if !user.TOTPEnabled() {
		return ErrTOTPNotEnabled
	}

	if err := e.verifySecondFactor(ctx, user, in.TOTPCode, in.Code, VerificationDisable2FA); err != nil {
		return err
	}

	if err := e.users.UpdateTOTPSecret(ctx, user.ID, ""); err != nil {
		return err
	}

	if in.TOTPCode == "" && in.Code != "" {
		_ = e.codes.Consume(ctx, user.Email, VerificationDisable2FA)
	}

	e.metrics.Inc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, true, user.ID, user.Email, 0, nil, nil)

	return nil
}
