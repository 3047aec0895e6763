// Package internaldefs holds the stable metric name and bucket definitions
// shared by the Prometheus and OTel exporters, so both surfaces always agree
// on names and boundaries.
package internaldefs

import (
	authcore "github.com/ecomshop/authcore"
)

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Successful account registrations."},
	{ID: authcore.MetricRegisterFailure, Name: "authcore_register_failure_total", Help: "Failed account registrations."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLogin2FARequired, Name: "authcore_login_2fa_required_total", Help: "Logins that required a second factor."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh-token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh-token rotations."},
	{ID: authcore.MetricRefreshReplayDetected, Name: "authcore_refresh_replay_detected_total", Help: "Refresh tokens presented after being spent."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricOTPSent, Name: "authcore_otp_sent_total", Help: "Verification codes delivered by email."},
	{ID: authcore.MetricOTPSendFailure, Name: "authcore_otp_send_failure_total", Help: "Verification code delivery failures."},
	{ID: authcore.MetricOTPRejected, Name: "authcore_otp_rejected_total", Help: "Verification codes rejected as invalid or expired."},
	{ID: authcore.MetricForgotPasswordSuccess, Name: "authcore_forgot_password_success_total", Help: "Completed password resets."},
	{ID: authcore.MetricTOTPEnabled, Name: "authcore_totp_enabled_total", Help: "TOTP setup operations."},
	{ID: authcore.MetricTOTPDisabled, Name: "authcore_totp_disabled_total", Help: "TOTP disable operations."},
	{ID: authcore.MetricTOTPFailure, Name: "authcore_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: authcore.MetricGoogleLoginSuccess, Name: "authcore_google_login_success_total", Help: "Successful federated Google logins."},
	{ID: authcore.MetricGoogleLoginFailure, Name: "authcore_google_login_failure_total", Help: "Failed federated Google logins."},
	{ID: authcore.MetricAuthorizeAllowed, Name: "authcore_authorize_allowed_total", Help: "Authorization checks that granted access."},
	{ID: authcore.MetricAuthorizeDenied, Name: "authcore_authorize_denied_total", Help: "Authorization checks that denied access."},
	{ID: authcore.MetricRoleCacheLookup, Name: "authcore_role_cache_lookup_total", Help: "Role-permission cache lookups."},
	{ID: authcore.MetricRoleCacheMiss, Name: "authcore_role_cache_miss_total", Help: "Role-permission cache lookups that loaded from the repository."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthorizeLatency, Name: "authcore_authorize_latency_seconds", Help: "Authorize latency histogram."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw snapshot buckets to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form both
// exposition formats require.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
