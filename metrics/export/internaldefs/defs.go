package internaldefs

import (
	goBroker "github.com/MrEthical07/goBroker"
)

// CounterDef defines a public type used by goBroker APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   goBroker.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by goBroker APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   goBroker.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the broker client.
var CounterDefs = []CounterDef{
	{ID: goBroker.MetricRefreshSuccess, Name: "gobroker_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goBroker.MetricRefreshFailure, Name: "gobroker_refresh_failure_total", Help: "Failed token refreshes (transient)."},
	{ID: goBroker.MetricRefreshTerminal, Name: "gobroker_refresh_terminal_total", Help: "Token refreshes that failed terminally (refresh token dead)."},
	{ID: goBroker.MetricRefreshShared, Name: "gobroker_refresh_shared_total", Help: "Callers that joined an in-flight refresh instead of starting one."},
	{ID: goBroker.MetricTokenLoaded, Name: "gobroker_token_loaded_total", Help: "Token records loaded from persistence."},
	{ID: goBroker.MetricTokenLoadFailed, Name: "gobroker_token_load_failed_total", Help: "Failed token record loads."},
	{ID: goBroker.MetricTokenSaved, Name: "gobroker_token_saved_total", Help: "Token records saved to persistence."},
	{ID: goBroker.MetricTokenSaveFailed, Name: "gobroker_token_save_failed_total", Help: "Failed token record saves."},
	{ID: goBroker.MetricTokenValidationFailed, Name: "gobroker_token_validation_failed_total", Help: "Persisted token records rejected as corrupt."},
	{ID: goBroker.MetricRateLimitWait, Name: "gobroker_rate_limit_wait_total", Help: "Requests delayed by the client-side rate limiter."},
	{ID: goBroker.MetricRateLimitRejected, Name: "gobroker_rate_limit_rejected_total", Help: "Requests rejected in fail-fast rate-limit mode."},
	{ID: goBroker.MetricRetryAttempt, Name: "gobroker_retry_attempt_total", Help: "Re-attempts issued by the retry executor."},
	{ID: goBroker.MetricRetryExhausted, Name: "gobroker_retry_exhausted_total", Help: "Requests that failed after exhausting all attempts."},
	{ID: goBroker.MetricAuthMissingToken, Name: "gobroker_auth_missing_token_total", Help: "Authenticated requests that found no usable token."},
	{ID: goBroker.MetricRequestSuccess, Name: "gobroker_request_success_total", Help: "Requests that completed with a non-error status."},
	{ID: goBroker.MetricRequestFailure, Name: "gobroker_request_failure_total", Help: "Requests that surfaced a classified error."},
}

// HistogramDefs is an exported constant or variable used by the broker client.
var HistogramDefs = []HistogramDef{
	{ID: goBroker.MetricRequestLatency, Name: "gobroker_request_latency_seconds", Help: "End-to-end request latency histogram."},
	{ID: goBroker.MetricRefreshLatency, Name: "gobroker_refresh_latency_seconds", Help: "Token refresh latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the broker client.
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

// HistogramBoundSuffix is an exported constant or variable used by the broker client.
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

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
