//////////////////////////////////////////////////////////////////////////////
//
// Frame history storage: a bounded ring that clears on keyframes, plus the
// adaptive sizing policy that derives ring capacity from the observed
// keyframe interval.
//
// Copyright 2020 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package alohacast

// Smallest ring capacity the adaptive sizing may choose.
const minRingSize = 1

// A record pairs one frame with its keyframe flag.
type record[T any] struct {
	frame T
	key   bool
}

// ringStorage is a bounded, ordered frame history. Writing a keyframe clears
// the history first, so the cache never holds more than one keyframe and
// always begins at a decodable point. No internal locking: instances are
// either confined to a loop goroutine or guarded by the buffer's mutex.
type ringStorage[T any] struct {
	records []record[T]
	size    int
}

func newRingStorage[T any](size int) *ringStorage[T] {
	if size < minRingSize {
		panic("alohacast: ring size must be positive")
	}
	return &ringStorage[T]{size: size}
}

// write appends a frame, evicting from the head once the ring is full.
func (s *ringStorage[T]) write(frame T, key bool) {
	if key {
		s.records = s.records[:0]
	}
	s.records = append(s.records, record[T]{frame, key})
	if len(s.records) > s.size {
		s.records = s.records[1:]
	}
}

// cache returns the buffered history, oldest first. The slice aliases
// internal storage; callers must not retain it across writes.
func (s *ringStorage[T]) cache() []record[T] {
	return s.records
}

func (s *ringStorage[T]) maxSize() int {
	return s.size
}

func (s *ringStorage[T]) clone() *ringStorage[T] {
	return &ringStorage[T]{
		records: append([]record[T](nil), s.records...),
		size:    s.size,
	}
}

// gopStorage wraps ringStorage with one-shot adaptive sizing. In auto mode
// (requested size <= 0) the ring starts at the ceiling; once the distance
// between the first two keyframes is known, the ring is replaced by a fresh
// one sized to hold gopCount groups of pictures of that length, clamped to
// [minRingSize, ceiling]. From then on the storage behaves as fixed size,
// and clones inherit both the capacity and the sizing progress.
type gopStorage[T any] struct {
	ring *ringStorage[T]

	sizing   bool // auto mode, capacity not yet computed
	ceiling  int
	gopCount int

	total   int // frames seen while sizing
	lastKey int // 1-based count at the previous keyframe, 0 if none yet
}

func newGOPStorage[T any](size, ceiling, gopCount int) *gopStorage[T] {
	g := &gopStorage[T]{
		ceiling:  ceiling,
		gopCount: gopCount,
	}
	if size <= 0 {
		g.sizing = true
		size = ceiling
	}
	g.ring = newRingStorage[T](size)
	return g
}

// write runs the sizing policy, then stores the frame.
func (g *gopStorage[T]) write(frame T, key bool) {
	g.adapt(key)
	g.ring.write(frame, key)
}

// adapt computes the ring capacity from the observed keyframe interval. It
// completes once per lineage: on the second keyframe the interval is known,
// the ring is swapped for a fresh empty one (which the triggering keyframe
// then seeds), and sizing is permanently finished.
func (g *gopStorage[T]) adapt(key bool) {
	if !g.sizing {
		return
	}
	g.total++
	if !key {
		return
	}
	if g.lastKey == 0 {
		// First keyframe; remember where this group of pictures starts.
		g.lastKey = g.total
		return
	}

	size := (g.total - g.lastKey) * g.gopCount
	if size > g.ceiling {
		size = g.ceiling
	}
	if size < minRingSize {
		size = minRingSize
	}
	log.Info("keyframe interval %d frames, ring capacity now %d", g.total-g.lastKey, size)
	g.ring = newRingStorage[T](size)
	g.sizing = false
}

func (g *gopStorage[T]) cache() []record[T] {
	return g.ring.cache()
}

func (g *gopStorage[T]) maxSize() int {
	return g.ring.maxSize()
}

func (g *gopStorage[T]) clone() *gopStorage[T] {
	return &gopStorage[T]{
		ring:     g.ring.clone(),
		sizing:   g.sizing,
		ceiling:  g.ceiling,
		gopCount: g.gopCount,
		total:    g.total,
		lastKey:  g.lastKey,
	}
}
