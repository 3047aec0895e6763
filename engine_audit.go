package authcore

import (
	"context"
	"strconv"
	"time"
)

const (
	auditEventRegisterSuccess    = "register_success"
	auditEventRegisterFailure    = "register_failure"
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventRefreshReplay      = "refresh_replay_detected"
	auditEventLogout             = "logout"
	auditEventOTPSent            = "otp_sent"
	auditEventOTPSendFailure     = "otp_send_failure"
	auditEventForgotPassword     = "forgot_password"
	auditEventTOTPSetupRequested = "totp_setup_requested"
	auditEventTOTPDisabled       = "totp_disabled"
	auditEventGoogleLoginSuccess = "google_login_success"
	auditEventGoogleLoginFailure = "google_login_failure"
	auditEventAuthorizeDenied    = "authorize_denied"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID int64,
	email string,
	deviceID int64,
	err error,
	metadata map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if userID != 0 {
		event.UserID = strconv.FormatInt(userID, 10)
	}
	if deviceID != 0 {
		event.DeviceID = strconv.FormatInt(deviceID, 10)
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.audit.Emit(ctx, event)
}

// AuditDropped reports how many audit events the dispatcher discarded under
// backpressure. Read by the metrics exporters.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}
