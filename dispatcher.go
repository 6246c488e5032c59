package alohacast

import "sync/atomic"

// dispatcher owns every reader attached on one loop, plus a private clone
// of the frame history that evolves independently of the buffer's canonical
// copy. All fields except count are confined to the loop goroutine; count
// is atomic so Buffer.ReaderCount can read it from outside.
type dispatcher[T any] struct {
	loop    Loop
	storage *gopStorage[T]

	readers map[*Reader[T]]struct{}
	count   atomic.Int32

	// Reports (size, added) after every attach and every settled detach.
	sizeChanged func(size int, added bool)

	startThreshold int
}

func newDispatcher[T any](loop Loop, storage *gopStorage[T], startThreshold int, sizeChanged func(int, bool)) *dispatcher[T] {
	return &dispatcher[T]{
		loop:           loop,
		storage:        storage,
		readers:        make(map[*Reader[T]]struct{}),
		sizeChanged:    sizeChanged,
		startThreshold: startThreshold,
	}
}

// write delivers one frame to every live reader, pruning released ones
// along the way, then records the frame in the loop's history clone. Runs
// on the dispatcher's loop.
func (d *dispatcher[T]) write(frame T, key bool) {
	for r := range d.readers {
		if r.released.Load() {
			// The external handle is gone; drop the reader now rather than
			// wait for its removal task to land.
			d.forget(r)
			continue
		}
		d.deliver(r, frame, key)
	}
	d.storage.write(frame, key)
}

// deliver isolates one reader's callback so a panic there cannot suppress
// delivery to the remaining readers.
func (d *dispatcher[T]) deliver(r *Reader[T], frame T, key bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("reader callback panic: %v", p)
		}
	}()
	r.onRead(frame, key)
}

// attach creates a reader pinned to this dispatcher's loop. Calling it from
// any other goroutine would break loop confinement, so it panics.
func (d *dispatcher[T]) attach(useCache bool) *Reader[T] {
	if !d.loop.InLoop() {
		panic("alohacast: Attach must be called on the target loop")
	}
	r := newReader(d, useCache, d.startThreshold)
	d.readers[r] = struct{}{}
	size := int(d.count.Add(1))
	d.sizeChanged(size, true)
	return r
}

// remove settles a reader release on the loop. No-op if the write path
// already pruned the reader.
func (d *dispatcher[T]) remove(r *Reader[T]) {
	if _, ok := d.readers[r]; !ok {
		return
	}
	d.forget(r)
}

// forget drops a reader: erase, decrement, notify, and fire the reader's
// detach callback. Runs on the loop; the caller has checked presence.
func (d *dispatcher[T]) forget(r *Reader[T]) {
	delete(d.readers, r)
	size := int(d.count.Add(-1))
	d.sizeChanged(size, false)
	r.detachCB()
}

// close fires the detach callback of every remaining reader and empties the
// dispatcher. Used when the buffer detaches everything; runs on the loop.
func (d *dispatcher[T]) close() {
	readers := d.readers
	d.readers = make(map[*Reader[T]]struct{})
	for r := range readers {
		r.detachCB()
	}
}

func (d *dispatcher[T]) readerCount() int {
	return int(d.count.Load())
}
