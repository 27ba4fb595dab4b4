// Package async provides panic-safe goroutine helpers for fire-and-forget
// background work.
//
// SafeGo wraps a task with context timeout, panic recovery, and error
// logging. It is used for best-effort work such as delete-time session
// disconnects where a failure must never propagate to the caller.
package async
