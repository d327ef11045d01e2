// Package goBroker provides the transport-and-auth core shared by every call
// a brokerage REST API client makes: an OAuth token lifecycle manager with
// single-flight refresh, and a request middleware pipeline that injects
// authentication, enforces a sliding-window rate limit, and retries transient
// failures with exponential backoff.
//
// The package is designed for concurrent workloads: [Client] and
// [TokenManager] methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goBroker is the public surface. It exposes [Client], [Builder], [Config],
// [TokenManager], and value types (TokenSet, Event, MetricsSnapshot). Event
// dispatch lives under internal/ and is never exported directly; the Sink
// family is re-exported here.
//
// # What this package must NOT do
//
//   - Construct request bodies or endpoint URLs; those belong to the
//     per-endpoint layer that consumes [Client.Do].
//   - Interpret domain payloads (orders, quotes, accounts).
//   - Hold more token state than one [TokenSet] per [TokenManager].
//   - Start timers that outlive the call that created them.
package goBroker
