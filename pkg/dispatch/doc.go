// Package dispatch implements the multi-provider key-rotation engine. It
// owns the credential pool and the rotation state (cursor, usage counter),
// selects a credential for each generation request, invokes the matching
// provider adapter, classifies failures, and retries with a different
// credential when rotation can help.
//
// One engine instance serves one caller session. At most one generation
// call may be in flight per instance; concurrent invocation fails fast with
// ErrCallInProgress rather than corrupting rotation state.
package dispatch
