package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SendOTP generates a verification code for (email, typ), stores it, and
// emails it. For REGISTER the email must not have an account yet; every
// other type requires one.
//
// The upsert replaces any earlier code under the same key, so only the most
// recently sent code is ever accepted. A delivery failure surfaces as
// ErrFailedToSendOTP but leaves the stored code valid until its TTL.
func (e *Engine) SendOTP(ctx context.Context, email string, typ VerificationType) error {
	if e == nil {
		return ErrEngineNotReady
	}

	_, err := e.users.FindByEmail(ctx, email)
	switch typ {
	case VerificationRegister:
		if err == nil {
			return ErrEmailAlreadyExists
		}
		// Only a confirmed absence clears a REGISTER send; a repository
		// outage must not mint codes for addresses we know nothing about.
		if !errors.Is(err, ErrUserNotFound) {
			return err
		}
	default:
		if errors.Is(err, ErrUserNotFound) {
			return ErrEmailNotFound
		}
		if err != nil {
			return err
		}
	}

	code, err := newNumericOTP(e.config.OTP.Digits)
	if err != nil {
		return err
	}

	err = e.codes.Upsert(ctx, VerificationCode{
		Email:     email,
		Type:      typ,
		Code:      code,
		ExpiresAt: time.Now().Add(e.config.OTP.TTL),
	}, e.config.OTP.TTL)
	if err != nil {
		return err
	}

	if err := e.mailer.SendOTP(ctx, email, code); err != nil {
		e.metrics.Inc(MetricOTPSendFailure)
		e.emitAudit(ctx, auditEventOTPSendFailure, false, 0, email, 0, err, map[string]string{
			"type": string(typ),
		})
		return fmt.Errorf("%w: %v", ErrFailedToSendOTP, err)
	}

	e.metrics.Inc(MetricOTPSent)
	e.emitAudit(ctx, auditEventOTPSent, true, 0, email, 0, nil, map[string]string{
		"type": string(typ),
	})

	return nil
}

// ForgotPasswordInput carries a password reset gated by a FORGOT_PASSWORD
// verification code.
type ForgotPasswordInput struct {
	Email       string
	Code        string
	NewPassword string
}

// ForgotPassword resets the password after validating the emailed code. The
// code is consumed best-effort once the new hash is durably written.
func (e *Engine) ForgotPassword(ctx context.Context, in ForgotPasswordInput) error {
	if e == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return ErrEmailNotFound
	}

	if err := e.codes.Validate(ctx, in.Email, VerificationForgotPassword, in.Code); err != nil {
		e.metrics.Inc(MetricOTPRejected)
		return err
	}

	hash, err := e.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}

	if err := e.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	_ = e.codes.Consume(ctx, in.Email, VerificationForgotPassword)

	e.metrics.Inc(MetricForgotPasswordSuccess)
	e.emitAudit(ctx, auditEventForgotPassword, true, user.ID, user.Email, 0, nil, nil)

	return nil
}
