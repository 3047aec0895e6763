package authcore

import (
	"context"
	"errors"

	"github.com/ecomshop/authcore/token"
)

// RefreshToken rotates a refresh token: the presented token is spent and a
// new pair is issued. The stored row's atomic removal is the arbiter for
// concurrent presentations of the same token; the loser always gets
// ErrRefreshTokenAlreadyUsed. Rotation is never idempotent.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.VerifyRefresh(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, 0, "", 0, err, nil)
		return nil, err
	}

	rec, err := e.refreshStore.Consume(ctx, refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		if errors.Is(err, ErrRefreshTokenAlreadyUsed) {
			e.metrics.Inc(MetricRefreshReplayDetected)
			e.emitAudit(ctx, auditEventRefreshReplay, false, claims.UserID, "", 0, err, nil)
		}
		return nil, err
	}

	// A valid signature with a mismatched row means the token was issued for
	// someone else's row. Treat it as forged.
	if rec.UserID != claims.UserID {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.UserID, "", rec.DeviceID, token.ErrInvalidToken, nil)
		return nil, token.ErrInvalidToken
	}

	user, err := e.users.FindByID(ctx, rec.UserID)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, ErrUserNotFound
	}

	// Device metadata refresh is best-effort; a registry hiccup must not
	// cost the client its session.
	_ = e.devices.Touch(ctx, rec.DeviceID, userAgentFromContext(ctx), clientIPFromContext(ctx))

	pair, err := e.issueTokens(ctx, user, rec.DeviceID)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, user.Email, rec.DeviceID, nil, nil)

	return pair, nil
}

// Logout spends the refresh token and deactivates its device. Presenting an
// already-spent token fails with ErrRefreshTokenAlreadyUsed, mirroring the
// refresh arbiter. The device record survives, inactive.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return err
	}

	rec, err := e.refreshStore.Consume(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenAlreadyUsed) {
			e.metrics.Inc(MetricRefreshReplayDetected)
		}
		return err
	}

	// Deactivation is best-effort: the refresh row is already gone, so the
	// session is dead either way.
	_ = e.devices.Deactivate(ctx, rec.DeviceID)

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, claims.UserID, "", rec.DeviceID, nil, nil)

	return nil
}
