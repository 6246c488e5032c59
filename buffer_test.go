//////////////////////////////////////////////////////////////////////////////
//
// Copyright 2020 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package alohacast

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/lanikai/alohacast/eventloop"
)

var _ Loop = (*eventloop.Loop)(nil)

// inlineLoop runs every task immediately on the calling goroutine, which
// makes single-loop tests deterministic. Distinct pointers are distinct
// loops to the buffer.
type inlineLoop struct{}

func (l *inlineLoop) InLoop() bool                    { return true }
func (l *inlineLoop) Async(task func(), maySync bool) { task() }

// offLoop claims the caller is never on it, for exercising confinement
// checks.
type offLoop struct{}

func (offLoop) InLoop() bool                    { return false }
func (offLoop) Async(task func(), maySync bool) { task() }

func TestWriteWithNoReaders(t *testing.T) {
	b := New[int]()
	b.Write(1, true)
	b.Write(2, false)
	assert.Equal(t, 0, b.ReaderCount())

	// History accumulated regardless; a later subscriber replays it.
	r := b.Attach(&inlineLoop{}, true)
	var got []int
	r.SetReadCallback(func(frame int) { got = append(got, frame) })
	if diff := cmp.Diff([]int{1, 2}, got); diff != "" {
		t.Fatalf("replayed frames (-want +got):\n%s", diff)
	}
}

func TestAttachNilLoopPanics(t *testing.T) {
	b := New[int]()
	assert.Panics(t, func() { b.Attach(nil, true) })
}

func TestAttachOffLoopPanics(t *testing.T) {
	b := New[int]()
	assert.Panics(t, func() { b.Attach(offLoop{}, true) })
}

func TestAdaptiveHistoryScenario(t *testing.T) {
	loop := &inlineLoop{}
	b := New[int]()

	b.Write(1, true)
	b.Write(2, false)
	b.Write(3, false)
	b.Write(4, true) // completes sizing: interval 3, capacity 6
	b.Write(5, false)

	assert.Equal(t, 6, b.storage.maxSize())

	r := b.Attach(loop, true)
	var got []int
	r.SetReadCallback(func(frame int) { got = append(got, frame) })
	if diff := cmp.Diff([]int{4, 5}, got); diff != "" {
		t.Fatalf("replayed frames (-want +got):\n%s", diff)
	}
}

func TestDelegateBypassesFanOut(t *testing.T) {
	loop := &inlineLoop{}
	b := New[int]()

	r := b.Attach(loop, false)
	var delivered []int
	r.SetReadCallback(func(frame int) { delivered = append(delivered, frame) })

	type write struct {
		frame int
		key   bool
	}
	var forwarded []write
	b.SetDelegate(func(frame int, keyFrame bool) {
		forwarded = append(forwarded, write{frame, keyFrame})
	})

	b.Write(1, true)
	b.Write(2, false)

	assert.Equal(t, []write{{1, true}, {2, false}}, forwarded)
	assert.Empty(t, delivered)
	assert.Empty(t, b.storage.cache())

	// Removing the delegate restores normal fan-out.
	b.SetDelegate(nil)
	b.Write(3, true)
	assert.Equal(t, []int{3}, delivered)
	assert.Len(t, b.storage.cache(), 1)
}

func TestReaderChangedNotifications(t *testing.T) {
	loop := &inlineLoop{}

	var events []sizeEvent
	b := New[int](WithReaderChanged(func(_ Loop, count int, added bool) {
		events = append(events, sizeEvent{count, added})
	}))

	r1 := b.Attach(loop, true)
	r2 := b.Attach(loop, true)
	r1.Close()
	r2.Close()

	want := []sizeEvent{{1, true}, {2, true}, {1, false}, {0, false}}
	if diff := cmp.Diff(want, events, cmp.AllowUnexported(sizeEvent{})); diff != "" {
		t.Fatalf("reader change events (-want +got):\n%s", diff)
	}
}

func TestDispatcherDroppedWhenLastReaderLeaves(t *testing.T) {
	loop := &inlineLoop{}
	b := New[int]()

	r := b.Attach(loop, true)
	b.mu.Lock()
	assert.Len(t, b.dispatchers, 1)
	b.mu.Unlock()

	r.Close()
	b.mu.Lock()
	assert.Len(t, b.dispatchers, 0)
	b.mu.Unlock()

	// A fresh attach on the same loop sees the canonical history again.
	b.Write(1, true)
	r2 := b.Attach(loop, true)
	var got []int
	r2.SetReadCallback(func(frame int) { got = append(got, frame) })
	assert.Equal(t, []int{1}, got)
}

func TestFanOutAcrossLoops(t *testing.T) {
	b := New[int]()

	const loops = 3
	var (
		pool      []*eventloop.Loop
		collected [loops][]int
	)
	for i := 0; i < loops; i++ {
		i := i
		loop := eventloop.New()
		defer loop.Close()
		pool = append(pool, loop)

		loop.Sync(func() {
			r := b.Attach(loop, false)
			r.SetReadCallback(func(frame int) {
				collected[i] = append(collected[i], frame)
			})
		})
	}

	var want []int
	for f := 1; f <= 20; f++ {
		b.Write(f, f == 1)
		want = append(want, f)
	}

	for i, loop := range pool {
		loop.Sync(func() {})
		if diff := cmp.Diff(want, collected[i]); diff != "" {
			t.Fatalf("loop %d frames (-want +got):\n%s", i, diff)
		}
	}
}

func TestDeliveryRunsOnReaderLoop(t *testing.T) {
	b := New[int]()
	loop := eventloop.New()
	defer loop.Close()

	onLoop := make(chan bool, 1)
	loop.Sync(func() {
		r := b.Attach(loop, false)
		r.SetReadCallback(func(int) { onLoop <- loop.InLoop() })
	})

	b.Write(1, true)
	select {
	case ok := <-onLoop:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("frame never delivered")
	}
}

func TestReaderCountAcrossLoops(t *testing.T) {
	b := New[int]()
	loopA := eventloop.New()
	loopB := eventloop.New()
	defer loopA.Close()
	defer loopB.Close()

	var readers []*Reader[int]
	attach := func(loop *eventloop.Loop, n int) {
		loop.Sync(func() {
			for i := 0; i < n; i++ {
				readers = append(readers, b.Attach(loop, true))
			}
		})
	}
	attach(loopA, 3)
	attach(loopB, 2)
	assert.Equal(t, 5, b.ReaderCount())

	readers[0].Close()
	readers[3].Close()
	loopA.Sync(func() {})
	loopB.Sync(func() {})
	assert.Equal(t, 3, b.ReaderCount())
}

func TestCloseDetachesAllReaders(t *testing.T) {
	b := New[int]()
	loopA := eventloop.New()
	loopB := eventloop.New()
	defer loopA.Close()
	defer loopB.Close()

	var wg sync.WaitGroup
	for _, loop := range []*eventloop.Loop{loopA, loopB} {
		loop := loop
		wg.Add(1)
		loop.Sync(func() {
			r := b.Attach(loop, true)
			r.SetDetachCallback(wg.Done)
		})
	}

	assert.NoError(t, b.Close())
	wg.Wait()
	assert.Equal(t, 0, b.ReaderCount())

	// The buffer survives Close: history intact, new attaches work.
	b.Write(1, true)
	loopA.Sync(func() {
		r := b.Attach(loopA, true)
		var got []int
		r.SetReadCallback(func(frame int) { got = append(got, frame) })
		assert.Equal(t, []int{1}, got)
	})
}

func TestHundredReaders(t *testing.T) {
	b := New[int]()
	pool := eventloop.NewPool(4)
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		loop := pool.Next()
		loop.Sync(func() {
			r := b.Attach(loop, false)
			first := true
			r.SetReadCallback(func(int) {
				if first {
					first = false
					wg.Done()
				}
			})
		})
	}
	assert.Equal(t, 100, b.ReaderCount())

	b.Write(42, true)
	wg.Wait()
}

func TestConcurrentWritesAndCloses(t *testing.T) {
	b := New[int]()
	pool := eventloop.NewPool(4)
	defer pool.Close()

	var readers []*Reader[int]
	var mu sync.Mutex
	for i := 0; i < 32; i++ {
		loop := pool.Next()
		loop.Sync(func() {
			r := b.Attach(loop, true)
			r.SetReadCallback(func(int) {})
			mu.Lock()
			readers = append(readers, r)
			mu.Unlock()
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for f := 0; f < 500; f++ {
			b.Write(f, f%30 == 0)
		}
	}()
	go func() {
		defer wg.Done()
		mu.Lock()
		rs := append([]*Reader[int](nil), readers...)
		mu.Unlock()
		for _, r := range rs {
			r.Close()
		}
	}()
	wg.Wait()

	for i := 0; i < pool.Size(); i++ {
		pool.Next().Sync(func() {})
	}
	assert.Equal(t, 0, b.ReaderCount())
}
