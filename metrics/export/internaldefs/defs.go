package internaldefs

import (
	"github.com/plextask/keygate"
)

// CounterDef names one keygate counter for export.
type CounterDef struct {
	ID   keygate.MetricID
	Name string
	Help string
}

// HistogramDef names one keygate latency histogram for export.
type HistogramDef struct {
	ID   keygate.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: keygate.MetricRegistrationRequest, Name: "keygate_registration_request_total", Help: "Registration requests that issued a code."},
	{ID: keygate.MetricRegistrationRejected, Name: "keygate_registration_rejected_total", Help: "Registration requests rejected by validation."},
	{ID: keygate.MetricRegistrationConfirmSuccess, Name: "keygate_registration_confirm_success_total", Help: "Registrations confirmed into accounts."},
	{ID: keygate.MetricRegistrationConfirmFailure, Name: "keygate_registration_confirm_failure_total", Help: "Failed registration confirmations."},
	{ID: keygate.MetricLoginSuccess, Name: "keygate_login_success_total", Help: "Successful logins."},
	{ID: keygate.MetricLoginUnknownIdentity, Name: "keygate_login_unknown_identity_total", Help: "Logins with an unknown nickname or email."},
	{ID: keygate.MetricLoginWrongPassword, Name: "keygate_login_wrong_password_total", Help: "Logins with a wrong password."},
	{ID: keygate.MetricRefreshSuccess, Name: "keygate_refresh_success_total", Help: "Access tokens minted from refresh tokens."},
	{ID: keygate.MetricRefreshFailure, Name: "keygate_refresh_failure_total", Help: "Rejected refresh tokens."},
	{ID: keygate.MetricRecoveryRequest, Name: "keygate_recovery_request_total", Help: "Password recovery codes issued."},
	{ID: keygate.MetricRecoveryUnknownEmail, Name: "keygate_recovery_unknown_email_total", Help: "Recovery requests for unknown emails."},
	{ID: keygate.MetricRecoveryRedeemSuccess, Name: "keygate_recovery_redeem_success_total", Help: "Passwords replaced through recovery."},
	{ID: keygate.MetricRecoveryRedeemFailure, Name: "keygate_recovery_redeem_failure_total", Help: "Failed recovery redemptions."},
	{ID: keygate.MetricCodeCollision, Name: "keygate_code_collision_total", Help: "Generated codes that were already pending."},
	{ID: keygate.MetricNotificationFailure, Name: "keygate_notification_failure_total", Help: "Code notifications that could not be sent."},
}

var HistogramDefs = []HistogramDef{
	{ID: keygate.MetricPasswordHashLatency, Name: "keygate_password_hash_latency_seconds", Help: "Password hashing latency."},
	{ID: keygate.MetricPasswordVerifyLatency, Name: "keygate_password_verify_latency_seconds", Help: "Password verification latency."},
}

// HistogramBounds are the upper bounds of the engine's eight buckets.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
