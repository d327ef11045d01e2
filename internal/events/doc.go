// Package events implements async event dispatching for token and pipeline
// lifecycle transitions.
//
// # Components
//
//   - [Sink] — interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event] — structured lifecycle record with timestamp, type, request id, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit — that responsibility belongs to the Client, the token manager,
// and the persistence bridge.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goBroker or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package events
