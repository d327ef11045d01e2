package goBroker

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidRequest marks a non-retryable 4xx caller error.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized marks rejected credentials or a rejected access token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden marks a request the broker refused on authorization grounds.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks a request for a resource the broker does not know.
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks a timed-out or cancelled exchange.
	ErrTimeout = errors.New("timeout")
	// ErrRateLimited marks a request denied by the broker's or the local rate limit.
	ErrRateLimited = errors.New("rate limited")
	// ErrServerError marks a retryable 5xx broker failure.
	ErrServerError = errors.New("server error")
	// ErrNetwork marks a transport-level failure before any response arrived.
	ErrNetwork = errors.New("network error")
	// ErrTokenExpired marks a terminally invalid refresh token. Recovery
	// requires a full re-authentication; it is never auto-retried.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrNoToken marks an authenticated request attempted without any token.
	ErrNoToken = errors.New("no token available")
	// ErrClientNotReady marks use of a Client that was not built.
	ErrClientNotReady = errors.New("client not initialized")
	// ErrPersistenceUnavailable marks a failed token store backend call.
	ErrPersistenceUnavailable = errors.New("token persistence unavailable")
)

// ErrorKind tags an [Error] with its place in the failure taxonomy.
// Retryability is a pure function of the kind.
type ErrorKind uint8

const (
	// KindUnknown is the zero kind; it is never retryable.
	KindUnknown ErrorKind = iota
	// KindInvalidRequest is a caller error (4xx other than 401/403/404/408/429).
	KindInvalidRequest
	// KindUnauthorized is a 401-class rejection of the presented credentials.
	KindUnauthorized
	// KindForbidden is a 403 rejection.
	KindForbidden
	// KindNotFound is a 404 rejection.
	KindNotFound
	// KindTimeout covers HTTP 408, cancelled contexts, and deadline expiry.
	KindTimeout
	// KindRateLimit is a 429 or a local rate-limit denial.
	KindRateLimit
	// KindServerInternal is an HTTP 500.
	KindServerInternal
	// KindBadGateway is an HTTP 502.
	KindBadGateway
	// KindUnavailable is an HTTP 503.
	KindUnavailable
	// KindGatewayTimeout is an HTTP 504.
	KindGatewayTimeout
	// KindNetwork is a transport failure with no HTTP response.
	KindNetwork
	// KindTokenExpired is a terminally invalid refresh token.
	KindTokenExpired
)

// String returns the stable wire name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate_limit"
	case KindServerInternal:
		return "server_internal"
	case KindBadGateway:
		return "bad_gateway"
	case KindUnavailable:
		return "unavailable"
	case KindGatewayTimeout:
		return "gateway_timeout"
	case KindNetwork:
		return "network"
	case KindTokenExpired:
		return "token_expired"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind may be retried.
// Terminal and caller errors are excluded by construction.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimit, KindNetwork,
		KindServerInternal, KindBadGateway, KindUnavailable, KindGatewayTimeout:
		return true
	default:
		return false
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidRequest:
		return ErrInvalidRequest
	case KindUnauthorized:
		return ErrUnauthorized
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindTimeout:
		return ErrTimeout
	case KindRateLimit:
		return ErrRateLimited
	case KindServerInternal, KindBadGateway, KindUnavailable, KindGatewayTimeout:
		return ErrServerError
	case KindNetwork:
		return ErrNetwork
	case KindTokenExpired:
		return ErrTokenExpired
	default:
		return nil
	}
}

// RateQuota carries the broker's X-RateLimit-Limit/Remaining/Reset headers
// when a response included them.
type RateQuota struct {
	Limit     int
	Remaining int
	Reset     time.Duration
}

// Error is the single typed failure record every failed operation yields.
// It collapses the per-status error zoo into one tagged value: the Kind
// decides retryability, RetryAfter carries a server-supplied delay hint,
// and RequestID ties the failure to one outbound exchange.
//
// Error matches both its kind sentinel and its cause through [errors.Is].
type Error struct {
	Kind       ErrorKind
	Status     int
	RetryAfter time.Duration
	RequestID  string
	Quota      *RateQuota
	Message    string

	cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("goBroker: ")
	b.WriteString(e.Kind.String())
	if e.Status > 0 {
		b.WriteString(" (http ")
		b.WriteString(strconv.Itoa(e.Status))
		b.WriteByte(')')
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.RequestID != "" {
		b.WriteString(" [request ")
		b.WriteString(e.RequestID)
		b.WriteByte(']')
	}
	return b.String()
}

// Unwrap exposes the kind sentinel and the underlying cause so that callers
// can branch with errors.Is without inspecting the Kind directly.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		out = append(out, s)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// Retryable reports whether the pipeline may retry the failed call.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}
