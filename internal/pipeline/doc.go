// Package pipeline provides the request interception chain.
//
// A Chain wraps a terminal Handler with an ordered list of Interceptors.
// Each interceptor contributes a pre-hook that runs before the request is
// forwarded and a post-hook that runs after the inner stages return, so the
// chain behaves like nested scopes (onion model):
//
//	A.pre -> B.pre -> C.pre -> handler -> C.post -> B.post -> A.post
//
// # Hooks
//
// Hooks only observe. A pre-hook receives a read-only *Request and returns a
// Decision: Continue forwards the request, Halt short-circuits it with a
// status and reason. A post-hook receives the same *Request plus an Exit
// describing how the inner stages finished: the immutable *Response produced
// by the terminal handler, or the error that unwound past it.
//
// # Short-circuit
//
// When a pre-hook halts, no further pre-hooks run and the handler is not
// called. By default no post-hook runs either; WithUnwindOnStop makes the
// post-hooks of interceptors that already forwarded run on the way back out.
// A halt is reported through Outcome, never as an error.
//
// # Errors and panics
//
// Post-hooks are deferred: an interceptor whose pre-hook forwarded always
// sees its post-hook called, including when an inner stage returned an error
// or panicked. Errors are returned to the caller as *StageError; panics are
// re-raised after the post-hooks ran.
//
// # Concurrency
//
// A Chain is assembled once and never mutated. Dispatch allocates nothing
// shared, so one Chain serves every request concurrently. Hooks must be safe
// for concurrent use.
package pipeline
