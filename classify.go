package goBroker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	headerRequestID     = "X-Request-ID"
	headerRetryAfter    = "Retry-After"
	headerRateLimit     = "X-RateLimit-Limit"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"
	classifyBodyLimit   = 4 << 10
	rateResetEpochFloor = int64(1_000_000_000)
)

// classifyStatus maps an HTTP status code to its kind per the fixed table.
// 5xx codes without a dedicated kind fall back to server_internal; unmapped
// 4xx codes are caller errors.
func classifyStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return KindInvalidRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusRequestTimeout:
		return KindTimeout
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusInternalServerError:
		return KindServerInternal
	case http.StatusBadGateway:
		return KindBadGateway
	case http.StatusServiceUnavailable:
		return KindUnavailable
	case http.StatusGatewayTimeout:
		return KindGatewayTimeout
	default:
		if status >= 500 {
			return KindServerInternal
		}
		if status >= 400 {
			return KindInvalidRequest
		}
		return KindUnknown
	}
}

// classifyResponse turns a non-2xx response into an [Error]. It consumes and
// closes the body (bounded read) so retries never leak connections. An OAuth
// invalid_grant/invalid_token body upgrades the kind to token_expired: the
// refresh token itself is dead and no retry can help.
func classifyResponse(resp *http.Response, requestID string) *Error {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, classifyBodyLimit))
		_ = resp.Body.Close()
	}

	kind := classifyStatus(resp.StatusCode)
	msg := strings.TrimSpace(string(body))
	if code := oauthErrorCode(body); code != "" {
		msg = code
		if code == "invalid_grant" || code == "invalid_token" {
			kind = KindTokenExpired
		}
	}
	if rid := resp.Header.Get(headerRequestID); rid != "" {
		requestID = rid
	}

	return &Error{
		Kind:       kind,
		Status:     resp.StatusCode,
		RetryAfter: retryHint(resp.Header, time.Now()),
		RequestID:  requestID,
		Quota:      parseQuota(resp.Header, time.Now()),
		Message:    msg,
	}
}

// classifyTransportError maps a raw transport failure: context cancellation
// and deadline expiry are timeouts, everything else is a network error.
func classifyTransportError(err error, requestID string) *Error {
	kind := KindNetwork
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindTimeout
	default:
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			kind = KindTimeout
		}
	}
	return &Error{
		Kind:      kind,
		RequestID: requestID,
		Message:   err.Error(),
		cause:     err,
	}
}

// retryHint extracts a server-supplied delay. Retry-After wins over
// X-RateLimit-Reset when both are present; a reset value at or above
// one billion is treated as epoch seconds, smaller values as a delta.
func retryHint(h http.Header, now time.Time) time.Duration {
	if v := h.Get(headerRetryAfter); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	if v := h.Get(headerRateReset); v != "" {
		if reset, err := strconv.ParseInt(v, 10, 64); err == nil && reset >= 0 {
			if reset >= rateResetEpochFloor {
				if d := time.Unix(reset, 0).Sub(now); d > 0 {
					return d
				}
				return 0
			}
			return time.Duration(reset) * time.Second
		}
	}
	return 0
}

func parseQuota(h http.Header, now time.Time) *RateQuota {
	limit, limitErr := strconv.Atoi(h.Get(headerRateLimit))
	remaining, remErr := strconv.Atoi(h.Get(headerRateRemaining))
	if limitErr != nil && remErr != nil {
		return nil
	}

	q := &RateQuota{Limit: -1, Remaining: -1}
	if limitErr == nil {
		q.Limit = limit
	}
	if remErr == nil {
		q.Remaining = remaining
	}
	if v := h.Get(headerRateReset); v != "" {
		if reset, err := strconv.ParseInt(v, 10, 64); err == nil && reset >= 0 {
			if reset >= rateResetEpochFloor {
				if d := time.Unix(reset, 0).Sub(now); d > 0 {
					q.Reset = d
				}
			} else {
				q.Reset = time.Duration(reset) * time.Second
			}
		}
	}
	return q
}

func oauthErrorCode(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}
