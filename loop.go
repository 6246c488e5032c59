package alohacast

// A Loop is a cooperative single-goroutine scheduler. Readers are pinned to
// exactly one Loop, and the buffer relies on that confinement instead of
// per-reader locking: every reader callback runs on its loop goroutine.
//
// Implementations must be comparable, since a Loop keys the buffer's
// internal per-loop state by identity. Pointer implementations satisfy this
// naturally. Tasks submitted to one loop must run in submission order.
//
// The eventloop package provides a ready-made implementation.
type Loop interface {
	// InLoop reports whether the calling goroutine is the loop goroutine.
	InLoop() bool

	// Async schedules task to run on the loop goroutine and returns without
	// waiting for it. If maySync is true and the caller is already on the
	// loop goroutine, the task may run inline before Async returns.
	Async(task func(), maySync bool)
}
