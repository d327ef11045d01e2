package goBroker

import "context"

type publicEndpointContextKey struct{}
type requestIDContextKey struct{}

// WithPublicEndpoint marks ctx so the auth middleware skips bearer token
// attachment for this call. Use it for unauthenticated endpoints such as
// market-hours or instrument lookups that the broker serves without a
// session.
func WithPublicEndpoint(ctx context.Context) context.Context {
	return context.WithValue(ctx, publicEndpointContextKey{}, true)
}

// WithRequestID attaches a caller-chosen request id to ctx. When absent, the
// client generates one per call and sends it as X-Request-ID; classified
// errors carry it either way.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

func publicEndpointFromContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	public, _ := ctx.Value(publicEndpointContextKey{}).(bool)
	return public
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}
