package authcore

import (
	"context"
	"fmt"
	"time"
)

// LoginInput carries a login request. When the account has TOTP enabled,
// exactly one of TOTPCode (authenticator) or Code (emailed LOGIN code) must
// be supplied; TOTPCode takes precedence when both are present.
type LoginInput struct {
	Email    string
	Password string
	TOTPCode string
	Code     string
}

// Login authenticates the user, enforces the second factor when enabled,
// registers the session device, and issues a token pair.
func (e *Engine) Login(ctx context.Context, in LoginInput) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.FindByEmail(ctx, in.Email)
	if err != nil {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, 0, in.Email, 0, ErrEmailNotFound, nil)
		return nil, ErrEmailNotFound
	}

	if !e.hasher.Verify(in.Password, user.PasswordHash) {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, user.Email, 0, ErrPasswordIncorrect, nil)
		return nil, ErrPasswordIncorrect
	}

	if user.TOTPEnabled() {
		e.metrics.Inc(MetricLogin2FARequired)
		if err := e.verifySecondFactor(ctx, user, in.TOTPCode, in.Code, VerificationLogin); err != nil {
			e.metrics.Inc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, user.Email, 0, err, nil)
			return nil, err
		}
	}

	device, err := e.devices.Register(ctx, user.ID, userAgentFromContext(ctx), clientIPFromContext(ctx))
	if err != nil {
		e.metrics.Inc(MetricLoginFailure)
		return nil, fmt.Errorf("%w: %v", ErrDeviceCreationFailed, err)
	}

	pair, err := e.issueTokens(ctx, user, device.ID)
	if err != nil {
		e.metrics.Inc(MetricLoginFailure)
		return nil, err
	}

	// The LOGIN code is single-use; drop it now that the login went through.
	if user.TOTPEnabled() && in.TOTPCode == "" && in.Code != "" {
		_ = e.codes.Consume(ctx, user.Email, VerificationLogin)
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, user.Email, device.ID, nil, nil)

	return pair, nil
}

// verifySecondFactor enforces the 2FA gate shared by Login and Disable2FA.
// The authenticator code wins over the emailed code when both are given.
func (e *Engine) verifySecondFactor(ctx context.Context, user *User, totpCode, emailCode string, typ VerificationType) error {
	switch {
	case totpCode != "":
		ok, err := e.totp.VerifyCode(user.TOTPSecret, totpCode, time.Now())
		if err != nil {
			return err
		}
		if !ok {
			e.metrics.Inc(MetricTOTPFailure)
			return ErrInvalidTOTP
		}
		return nil
	case emailCode != "":
		if err := e.codes.Validate(ctx, user.Email, typ, emailCode); err != nil {
			e.metrics.Inc(MetricOTPRejected)
			return err
		}
		return nil
	default:
		return ErrTOTPNotSupplied
	}
}
