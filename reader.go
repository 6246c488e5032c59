package alohacast

import "sync/atomic"

// A Reader delivers frames from a Buffer to a single subscriber. Readers
// are created by Buffer.Attach and pinned to the loop they were attached
// on: SetReadCallback and SetDetachCallback must be called there, and both
// callbacks always run there. Only Close is safe from any goroutine.
//
// Until a keyframe arrives, a cache-enabled reader withholds delivery so
// the subscriber starts on a decodable frame.
type Reader[T any] struct {
	disp     *dispatcher[T]
	storage  *gopStorage[T]
	useCache bool

	// Force delivery after this many withheld frames. Zero means the owning
	// storage capacity, read live so adaptive resizing is honored.
	startThreshold int

	readCB   func(T)
	detachCB func()

	started bool
	ignored int

	// Set by Close, from any goroutine. The dispatcher treats a released
	// reader as gone without waiting for the removal task to land.
	released atomic.Bool
}

func newReader[T any](d *dispatcher[T], useCache bool, startThreshold int) *Reader[T] {
	return &Reader[T]{
		disp:           d,
		storage:        d.storage,
		useCache:       useCache,
		startThreshold: startThreshold,
		readCB:         func(T) {},
		detachCB:       func() {},
	}
}

// SetReadCallback installs the delivery callback. A non-nil callback resets
// keyframe gating and immediately replays the cached history through it, so
// a late subscriber starts from the most recent keyframe. A nil callback
// mutes the reader without touching gating state. Must be called on the
// reader's loop.
func (r *Reader[T]) SetReadCallback(cb func(frame T)) {
	if cb == nil {
		r.readCB = func(T) {}
		return
	}
	r.started = false
	r.ignored = 0
	r.readCB = cb
	r.replay()
}

// SetDetachCallback installs a callback fired exactly once, on the reader's
// loop, when the buffer has forgotten the reader: after a Close settles, or
// when the buffer detaches everything. Must be called on the reader's loop.
func (r *Reader[T]) SetDetachCallback(cb func()) {
	if cb == nil {
		r.detachCB = func() {}
		return
	}
	r.detachCB = cb
}

// Close releases the reader. It is safe from any goroutine and a no-op
// after the first call. Removal settles asynchronously on the reader's
// loop, where the detach callback fires.
func (r *Reader[T]) Close() error {
	if !r.released.CompareAndSwap(false, true) {
		return nil
	}
	d := r.disp
	d.loop.Async(func() { d.remove(r) }, true)
	return nil
}

// onRead feeds one frame through keyframe gating. Live delivery and cache
// replay share this path. Loop confined.
func (r *Reader[T]) onRead(frame T, key bool) {
	if r.started || !r.useCache {
		r.readCB(frame)
		return
	}
	if key {
		r.started = true
		r.readCB(frame)
		return
	}
	r.ignored++
	if r.ignored >= r.threshold() {
		// No keyframe within a full window; stop withholding. Delivery
		// begins with the next frame.
		r.started = true
	}
}

func (r *Reader[T]) threshold() int {
	if r.startThreshold > 0 {
		return r.startThreshold
	}
	return r.storage.maxSize()
}

// replay pushes the cached history through the gating path.
func (r *Reader[T]) replay() {
	if !r.useCache {
		return
	}
	for _, rec := range r.storage.cache() {
		r.onRead(rec.frame, rec.key)
	}
}
