//////////////////////////////////////////////////////////////////////////////
//
// Broadcast ring buffer: one producer fans typed frames out to any number
// of readers pinned to scheduler loops, with keyframe-aligned history
// replay for late joiners.
//
// Copyright 2020 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package alohacast

import (
	"sync"

	"github.com/lanikai/alohacast/internal/logging"
)

var log = logging.DefaultLogger.WithTag("alohacast")

// Buffer fans a sequence of frames out from one producer to readers spread
// across scheduler loops. It keeps a canonical history of recent frames,
// sized from the observed keyframe interval unless fixed by an option, and
// clones that history into per-loop state so late joiners replay a
// decodable prefix. The producer never blocks on reader speed.
//
// Write is meant for a single producer. Attach may be called from any loop
// goroutine; reader handles may be closed from anywhere.
type Buffer[T any] struct {
	mu          sync.Mutex
	storage     *gopStorage[T]
	dispatchers map[Loop]*dispatcher[T]
	delegate    func(frame T, keyFrame bool)

	cfg config
}

// New creates a broadcast buffer. With no options the history is sized
// adaptively: it starts at the ceiling (1024 frames) and shrinks to twice
// the keyframe interval once two keyframes have been observed.
func New[T any](opts ...Option) *Buffer[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Buffer[T]{
		storage:     newGOPStorage[T](cfg.size, cfg.maxSize, cfg.gopCount),
		dispatchers: make(map[Loop]*dispatcher[T]),
		cfg:         cfg,
	}
}

// Write records one frame in the canonical history and schedules delivery
// onto every loop with attached readers. Delivery is always asynchronous,
// even when the producer happens to run on one of those loops, so producer
// and subscriber code never share a call stack. If a delegate is installed
// the entire write is forwarded to it instead and no local state changes.
func (b *Buffer[T]) Write(frame T, keyFrame bool) {
	b.mu.Lock()
	delegate := b.delegate
	if delegate != nil {
		b.mu.Unlock()
		delegate(frame, keyFrame)
		return
	}
	b.storage.write(frame, keyFrame)
	for loop, d := range b.dispatchers {
		d := d
		loop.Async(func() { d.write(frame, keyFrame) }, false)
	}
	b.mu.Unlock()
}

// Attach subscribes a new reader on the given loop, creating that loop's
// dispatcher from a clone of the canonical history on first use. Must be
// called on loop's own goroutine. With useCache the reader replays cached
// history through keyframe gating; without it the reader gets live frames
// only, ungated. The reader delivers nothing until a read callback is
// installed.
func (b *Buffer[T]) Attach(loop Loop, useCache bool) *Reader[T] {
	if loop == nil {
		panic("alohacast: Attach with nil loop")
	}
	b.mu.Lock()
	d, ok := b.dispatchers[loop]
	if !ok {
		d = newDispatcher(loop, b.storage.clone(), b.cfg.startThreshold, func(size int, added bool) {
			b.onSizeChanged(loop, size, added)
		})
		b.dispatchers[loop] = d
		log.Debug("dispatcher created, %d loops active", len(b.dispatchers))
	}
	b.mu.Unlock()
	return d.attach(useCache)
}

// SetDelegate routes every subsequent Write to fn, bypassing history and
// fan-out entirely. A nil fn restores normal behavior.
func (b *Buffer[T]) SetDelegate(fn func(frame T, keyFrame bool)) {
	b.mu.Lock()
	b.delegate = fn
	b.mu.Unlock()
}

// ReaderCount reports the number of live readers across all loops. The
// count is a point in time: attaches and detaches still settling on their
// loops are not synchronized with it.
func (b *Buffer[T]) ReaderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, d := range b.dispatchers {
		total += d.readerCount()
	}
	return total
}

// Close detaches every reader: each loop's remaining detach callbacks fire
// on their own goroutines. The buffer itself remains usable, retaining its
// canonical history and accepting new attaches.
func (b *Buffer[T]) Close() error {
	b.mu.Lock()
	dispatchers := b.dispatchers
	b.dispatchers = make(map[Loop]*dispatcher[T])
	b.mu.Unlock()
	for loop, d := range dispatchers {
		loop.Async(d.close, true)
	}
	return nil
}

// onSizeChanged runs on the affected loop after every reader add and every
// settled remove. A dispatcher that just went empty is dropped so idle
// loops cost nothing on the write path; the live count is re-checked under
// the lock because a fresh attach may have raced the removal.
func (b *Buffer[T]) onSizeChanged(loop Loop, size int, added bool) {
	if size == 0 {
		b.mu.Lock()
		if d, ok := b.dispatchers[loop]; ok && d.readerCount() == 0 {
			delete(b.dispatchers, loop)
			log.Debug("dispatcher idle, %d loops active", len(b.dispatchers))
		}
		b.mu.Unlock()
	}
	if b.cfg.readerChanged != nil {
		b.cfg.readerChanged(loop, size, added)
	}
}
