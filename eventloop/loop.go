//////////////////////////////////////////////////////////////////////////////
//
// Single-goroutine task loop satisfying the alohacast Loop contract.
//
// Copyright 2020 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

// Package eventloop provides cooperative single-goroutine schedulers.
// Each Loop drains an unbounded FIFO task queue on a dedicated goroutine;
// a Pool spreads groups of subscribers across several loops.
package eventloop

import (
	"bytes"
	"errors"
	"runtime"
	"strconv"
	"sync"

	"github.com/lanikai/alohacast/internal/logging"
)

var log = logging.DefaultLogger.WithTag("eventloop")

// ErrClosed is returned by operations on a loop that has been closed.
var ErrClosed = errors.New("eventloop: loop is closed")

// A Loop runs submitted tasks one at a time, in submission order, on a
// dedicated goroutine. Submission never blocks; the queue is unbounded.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	// Capacity-one wake signal for the run goroutine. A pending token is
	// enough; extra wakeups are harmless.
	wake chan struct{}

	gid  uint64        // id of the run goroutine
	done chan struct{} // closed when the run goroutine exits
}

// New starts a loop. The returned loop accepts tasks immediately; call
// Close to stop it.
func New() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	ready := make(chan struct{})
	go l.run(ready)
	<-ready
	return l
}

func (l *Loop) run(ready chan<- struct{}) {
	defer close(l.done)
	l.gid = goroutineID()
	close(ready)

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, task := range batch {
			task()
		}

		if closed {
			// Everything queued before Close has run; retire.
			return
		}
		if len(batch) == 0 {
			<-l.wake
		}
	}
}

// InLoop reports whether the calling goroutine is the loop goroutine.
func (l *Loop) InLoop() bool {
	return goroutineID() == l.gid
}

// Async schedules task on the loop goroutine and returns without waiting.
// If maySync is true and the caller is already on the loop goroutine, the
// task runs inline instead. Tasks submitted after Close are dropped.
func (l *Loop) Async(task func(), maySync bool) {
	if maySync && l.InLoop() {
		task()
		return
	}
	if !l.post(task) {
		log.Debug("task dropped, loop is closed")
	}
}

// Sync runs task on the loop goroutine and waits for it to finish. Called
// from the loop itself, the task simply runs inline. Returns ErrClosed if
// the loop was closed before the task could be queued.
func (l *Loop) Sync(task func()) error {
	if l.InLoop() {
		task()
		return nil
	}
	ran := make(chan struct{})
	if !l.post(func() {
		task()
		close(ran)
	}) {
		return ErrClosed
	}
	<-ran
	return nil
}

// Close stops the loop once every task already queued has run. Calling it
// from the loop's own goroutine returns immediately and the loop retires
// after the current batch; from anywhere else it waits for the run
// goroutine to exit. Closing an already closed loop returns ErrClosed.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	if !l.InLoop() {
		<-l.done
	}
	return nil
}

// post appends a task to the queue and nudges the run goroutine. Reports
// false if the loop is closed.
func (l *Loop) post(task func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// goroutineID extracts the numeric id of the calling goroutine from its
// runtime.Stack header ("goroutine 18 [running]: ..."). The runtime offers
// no direct accessor; the id is used only for equality checks.
func goroutineID() uint64 {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)
	s := buf[:n]
	s = bytes.TrimPrefix(s, []byte("goroutine "))
	if i := bytes.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	id, _ := strconv.ParseUint(string(s), 10, 64)
	return id
}
