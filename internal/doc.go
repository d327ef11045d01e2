// Package internal contains helper packages that are intentionally private
// to goBroker.
//
// # Sub-packages
//
//   - events — async lifecycle event dispatch (Dispatcher + Sink implementations)
//
// # What this package must NOT do
//
//   - Export types that appear in the public goBroker API other than through
//     explicit re-exports at the module root.
//   - Be imported by any package outside the goBroker module.
package internal
