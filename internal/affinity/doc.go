// Package affinity routes work to a single owner goroutine.
//
// A Dispatcher runs a Work item in place when the caller already is the owner
// and posts it to the owner's execution queue otherwise. The queue is located
// lazily through a Host the first time the dispatcher is used, or bound
// explicitly with InitializeWith.
//
// State machine:
//   - Unbound: initial. No queue, design mode unknown.
//   - Resolving: transient, a caller is inside Host.ResolveOwner.
//   - Bound: terminal, a queue is set.
//   - NoOp: terminal, the host reported design mode; all work runs in place.
//
// A failed resolution returns the dispatcher to Unbound and the error goes to
// the caller. A later call may retry. Nothing leaves Bound or NoOp.
//
// Error handling:
//   - nil queue or nil work → ErrInvalidArgument
//   - host resolution error → ErrNotOnOwnerThread (wraps the host error)
//   - host returns no queue → ErrNoOwnerHandle
//   - explicit rebinding → ErrAlreadyBound
//
// Work executed in place returns its error (or panics) straight through
// Dispatch. Work posted to the owner reports failures only through the
// queue's own error channel.
package affinity
