package internaldefs

import (
	zerofriction "github.com/justwpthings/zerofriction"
)

// CounterDef binds an engine metric ID to its stable exported name.
type CounterDef struct {
	ID   zerofriction.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram ID to its stable exported name.
type HistogramDef struct {
	ID   zerofriction.MetricID
	Name string
	Help string
}

// CounterDefs is the shared counter definition table. Both exporters render
// from it so names never diverge.
var CounterDefs = []CounterDef{
	{ID: zerofriction.MetricCredentialIssued, Name: "zfl_credential_issued_total", Help: "Successfully issued credentials."},
	{ID: zerofriction.MetricCredentialDenied, Name: "zfl_credential_denied_total", Help: "Issuance requests denied by rate limiting."},
	{ID: zerofriction.MetricVerifySuccess, Name: "zfl_verify_success_total", Help: "Successful credential verifications."},
	{ID: zerofriction.MetricVerifyFailure, Name: "zfl_verify_failure_total", Help: "Failed credential verifications."},
	{ID: zerofriction.MetricRateLimitHit, Name: "zfl_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: zerofriction.MetricLockout, Name: "zfl_lockout_total", Help: "Lockouts applied after a threshold was exceeded."},
	{ID: zerofriction.MetricGuestSessionCreated, Name: "zfl_guest_session_created_total", Help: "Issued guest sessions."},
	{ID: zerofriction.MetricGuestSessionRedeemed, Name: "zfl_guest_session_redeemed_total", Help: "Redeemed guest sessions."},
	{ID: zerofriction.MetricLoginSuccess, Name: "zfl_login_success_total", Help: "Completed logins for known users."},
	{ID: zerofriction.MetricAccountCreated, Name: "zfl_account_created_total", Help: "Accounts created from guest sessions."},
	{ID: zerofriction.MetricStorageFailure, Name: "zfl_storage_failure_total", Help: "Operations that failed closed on storage errors."},
}

// HistogramDefs is the shared histogram definition table.
var HistogramDefs = []HistogramDef{
	{ID: zerofriction.MetricVerifyLatency, Name: "zfl_verify_latency_seconds", Help: "Verification latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the
// engine's fixed bucket layout.
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

// HistogramBoundSuffix are name-safe forms of HistogramBounds for backends
// without native histogram support.
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

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form both
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
